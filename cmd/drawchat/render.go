package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/gosuda/drawchat/prefs"
	"github.com/gosuda/drawchat/session"
	"github.com/gosuda/drawchat/view"
)

// renderer prints what changed between snapshots. It never blocks the
// session loop: Dirty only marks that a new snapshot is due.
type renderer struct {
	mu    sync.Mutex
	w     io.Writer
	prefs *prefs.Store
	dirty chan struct{}

	lines     map[int64]string
	newest    int64
	notices   map[string]struct{}
	connected bool
	canvas    string
	rooms     string
	indicator bool
}

func newRenderer(w io.Writer, store *prefs.Store) *renderer {
	return &renderer{
		w:       w,
		prefs:   store,
		dirty:   make(chan struct{}, 1),
		lines:   make(map[int64]string),
		notices: make(map[string]struct{}),
	}
}

func (r *renderer) Dirty() {
	select {
	case r.dirty <- struct{}{}:
	default:
	}
}

func (r *renderer) Printf(format string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Fprintf(r.w, format, args...)
}

func (r *renderer) Run(ctx context.Context, sess *session.Session, settings <-chan prefs.Settings) {
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-settings:
			if !ok {
				settings = nil
				continue
			}
			r.mu.Lock()
			r.lines = make(map[int64]string)
			r.newest = 0
			r.mu.Unlock()
		case <-r.dirty:
		}
		snap, err := sess.Snapshot()
		if err != nil {
			return
		}
		r.mu.Lock()
		r.draw(snap, r.prefs.Screen() == prefs.ScreenWide)
		r.mu.Unlock()
	}
}

func (r *renderer) draw(snap session.Snapshot, wide bool) {
	if snap.Connected != r.connected {
		r.connected = snap.Connected
		if snap.Connected {
			fmt.Fprintf(r.w, "-- connected as %s (#%d)\n", snap.Me.Name, snap.Me.ID)
		}
	}

	seen := make(map[int64]struct{}, len(snap.View.Rows))
	for _, row := range snap.View.Rows {
		seen[row.ID] = struct{}{}
		line := formatRow(row, wide)
		prev, printed := r.lines[row.ID]
		switch {
		case !printed && row.ID < r.newest:
			fmt.Fprintf(r.w, "^ %s\n", line)
		case !printed:
			fmt.Fprintf(r.w, "%s\n", line)
		case prev != line:
			fmt.Fprintf(r.w, "* %s\n", line)
		}
		r.lines[row.ID] = line
		if row.ID > r.newest {
			r.newest = row.ID
		}
	}
	for id := range r.lines {
		if _, ok := seen[id]; !ok {
			fmt.Fprintf(r.w, "x #%d deleted\n", id)
			delete(r.lines, id)
		}
	}
	if snap.View.NewMessages && !r.indicator {
		fmt.Fprintln(r.w, "-- new messages below (/bottom)")
	}
	r.indicator = snap.View.NewMessages

	active := make(map[string]struct{}, len(snap.Notices))
	for _, n := range snap.Notices {
		active[n.ID] = struct{}{}
		if _, ok := r.notices[n.ID]; !ok {
			fmt.Fprintf(r.w, "[%s] %s\n", n.Kind, n.Text)
		}
	}
	r.notices = active

	if rooms := formatRooms(snap); rooms != r.rooms {
		r.rooms = rooms
		if rooms != "" {
			fmt.Fprintf(r.w, "-- drawing rooms: %s\n", rooms)
		}
	}
	if c := formatCanvas(snap.Canvas); c != r.canvas {
		r.canvas = c
		if c != "" {
			fmt.Fprintf(r.w, "-- %s\n", c)
		}
	}
}

func formatRow(row view.Row, wide bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d ", row.ID)
	if wide {
		fmt.Fprintf(&b, "%s ", row.Time.Format("15:04"))
	}
	author := row.Author
	if row.Mine {
		author += " (you)"
	}
	fmt.Fprintf(&b, "<%s> ", author)
	if row.Reply != nil {
		if row.Reply.Deleted {
			b.WriteString("[reply to deleted message] ")
		} else {
			fmt.Fprintf(&b, "[re #%d %s: %s] ", row.Reply.MessageID, row.Reply.Author, clip(view.PlainText(row.Reply.Text), 24))
		}
	}
	if row.Invite != nil {
		fmt.Fprintf(&b, "invites you to draw %q (/accept %d)", row.Invite.Title, row.ID)
	} else {
		b.WriteString(view.PlainText(row.Text))
	}
	for _, re := range row.Reactions {
		mark := ""
		if re.Mine {
			mark = "*"
		}
		fmt.Fprintf(&b, " %s%d%s", re.Emoji, re.Count, mark)
	}
	if row.Readers > 0 {
		if wide && len(row.ReaderNames) > 0 {
			fmt.Fprintf(&b, " (read by %s)", strings.Join(row.ReaderNames, ", "))
		} else if row.Mine {
			fmt.Fprintf(&b, " (%d read)", row.Readers)
		}
	}
	return b.String()
}

func formatRooms(snap session.Snapshot) string {
	parts := make([]string, 0, len(snap.Rooms))
	for _, cr := range snap.Rooms {
		p := fmt.Sprintf("%s %q (%s, %d members", cr.ID, cr.Title, cr.Role, cr.MemberCount)
		if !cr.CanDraw {
			p += ", view only"
		}
		parts = append(parts, p+")")
	}
	return strings.Join(parts, "; ")
}

func formatCanvas(c *session.CanvasState) string {
	if c == nil {
		return ""
	}
	state := "loading"
	if c.Ready {
		state = "ready"
	}
	mode := "view only"
	if c.CanDraw {
		mode = "drawing allowed"
	}
	return fmt.Sprintf("canvas %s %s, %s, %d members", c.RoomID, state, mode, len(c.Members))
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

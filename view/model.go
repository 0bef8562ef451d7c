// Package view turns session state into render-ready rows. Nothing here
// mutates the state it reads.
package view

import (
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/gosuda/drawchat/models"
	"github.com/gosuda/drawchat/prefs"
	"github.com/gosuda/drawchat/receipts"
)

// HeaderGap is the pause after which the same author gets a new header.
const HeaderGap = 60 * time.Second

// Emojis is the reaction palette, in display order.
var Emojis = []string{"👍", "❤️", "😂", "😮", "😢", "🎉", "🔥", "👀"}

type Reaction struct {
	Emoji string
	Count int
	Mine  bool
	Users []string
}

type Reply struct {
	MessageID int64
	Author    string
	Text      string
	Deleted   bool
}

// Row is one rendered message.
type Row struct {
	ID          int64
	AuthorID    int64
	Author      string
	Avatar      string
	Text        string
	Time        time.Time
	Relative    string
	Kind        string
	ShowHeader  bool
	Mine        bool
	AlignRight  bool
	OnlyEmoji   bool
	Readers     int
	ReaderNames []string
	Reply       *Reply
	Reactions   []Reaction
	Invite      *models.CanvasInvite
}

// Input is everything Build reads.
type Input struct {
	MeID        int64
	Messages    []*models.Message
	Receipts    *receipts.Aggregator
	Side        prefs.Side
	Connected   bool
	HasMore     bool
	Loading     bool
	NewMessages bool
	Now         time.Time
}

// Model is the whole message pane.
type Model struct {
	Rows        []Row
	Connected   bool
	HasMore     bool
	Loading     bool
	NewMessages bool
}

func Build(in Input) Model {
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}
	m := Model{
		Rows:        make([]Row, 0, len(in.Messages)),
		Connected:   in.Connected,
		HasMore:     in.HasMore,
		Loading:     in.Loading,
		NewMessages: in.NewMessages,
	}
	for i, msg := range in.Messages {
		var prev *models.Message
		if i > 0 {
			prev = in.Messages[i-1]
		}
		m.Rows = append(m.Rows, buildRow(in, msg, prev, now))
	}
	return m
}

func buildRow(in Input, msg, prev *models.Message, now time.Time) Row {
	mine := in.MeID != 0 && msg.AuthorID == in.MeID
	r := Row{
		ID:         msg.ID,
		AuthorID:   msg.AuthorID,
		Author:     SanitizeName(msg.AuthorName),
		Avatar:     msg.Avatar,
		Text:       SanitizeText(msg.Text),
		Time:       msg.Timestamp.Time,
		Kind:       msg.Kind,
		ShowHeader: ShowHeader(prev, msg),
		Mine:       mine,
		AlignRight: mine && in.Side != prefs.SideLeft,
		OnlyEmoji:  OnlyEmoji(msg.Text),
		Reactions:  reactions(msg, in.MeID),
		Invite:     msg.Meta,
	}
	if !msg.Timestamp.IsZero() {
		r.Relative = humanize.RelTime(msg.Timestamp.Time, now, "ago", "from now")
	}
	if in.Receipts != nil {
		rd := in.Receipts.ReadersOfAtLeast(msg)
		r.Readers = rd.Count
		r.ReaderNames = rd.Names
	}
	if msg.Reply != nil {
		r.Reply = &Reply{
			MessageID: msg.Reply.MessageID,
			Author:    SanitizeName(msg.Reply.AuthorName),
			Text:      SanitizeText(msg.Reply.Text),
			Deleted:   bool(msg.Reply.Deleted),
		}
	}
	return r
}

// ShowHeader reports whether cur starts a new group: the first row, a new
// author, or a pause of at least HeaderGap.
func ShowHeader(prev, cur *models.Message) bool {
	if prev == nil || prev.AuthorID != cur.AuthorID {
		return true
	}
	return cur.Timestamp.Sub(prev.Timestamp.Time) >= HeaderGap
}

// OnlyEmoji reports whether text is a single palette emoji, rendered large.
func OnlyEmoji(text string) bool {
	text = strings.TrimSpace(text)
	for _, e := range Emojis {
		if text == e {
			return true
		}
	}
	return false
}

func reactions(msg *models.Message, me int64) []Reaction {
	out := make([]Reaction, 0, len(msg.Reactions))
	for emoji, n := range msg.Reactions {
		if n <= 0 {
			continue
		}
		r := Reaction{Emoji: emoji, Count: n, Users: msg.ReactedUserNames[emoji]}
		for _, uid := range msg.ReactedUsers[emoji] {
			if uid == me {
				r.Mine = true
				break
			}
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		pi, pj := paletteIndex(out[i].Emoji), paletteIndex(out[j].Emoji)
		if pi != pj {
			return pi < pj
		}
		return out[i].Emoji < out[j].Emoji
	})
	return out
}

func paletteIndex(emoji string) int {
	for i, e := range Emojis {
		if e == emoji {
			return i
		}
	}
	return len(Emojis)
}

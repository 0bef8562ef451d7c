// Package notify keeps short-lived notices (toasts) grouped by screen
// position.
package notify

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Position is where a group of notices is shown.
type Position string

const (
	TopLeft      Position = "top-left"
	TopCenter    Position = "top-center"
	TopRight     Position = "top-right"
	BottomLeft   Position = "bottom-left"
	BottomCenter Position = "bottom-center"
	BottomRight  Position = "bottom-right"
)

// Kind is the severity of a notice.
type Kind string

const (
	KindSuccess Kind = "success"
	KindError   Kind = "error"
	KindWarning Kind = "warning"
	KindInfo    Kind = "info"
	KindLoading Kind = "loading"
)

// DefaultDuration applies when a notice sets none.
const DefaultDuration = 1500 * time.Millisecond

// Sticky keeps a notice until it is dismissed.
const Sticky time.Duration = -1

// Notice is one toast.
type Notice struct {
	ID       string
	Text     string
	Kind     Kind
	Position Position
	Duration time.Duration
}

// AfterFunc schedules fn; the returned func cancels it.
type AfterFunc func(d time.Duration, fn func()) (stop func())

func stdAfterFunc(d time.Duration, fn func()) func() {
	t := time.AfterFunc(d, fn)
	return func() { t.Stop() }
}

type entry struct {
	notice Notice
	stop   func()
}

// Center holds the notices of one session. It is safe for concurrent use.
type Center struct {
	mu    sync.Mutex
	after AfterFunc
	byPos map[Position][]*entry
	subs  map[Position]map[chan []Notice]struct{}
}

// NewCenter returns an empty Center. A nil after uses real timers.
func NewCenter(after AfterFunc) *Center {
	if after == nil {
		after = stdAfterFunc
	}
	return &Center{
		after: after,
		byPos: make(map[Position][]*entry),
		subs:  make(map[Position]map[chan []Notice]struct{}),
	}
}

// Push shows n and returns its id.
func (c *Center) Push(n Notice) string {
	if n.Position == "" {
		n.Position = TopCenter
	}
	if n.Kind == "" {
		n.Kind = KindInfo
	}
	if n.Duration == 0 {
		n.Duration = DefaultDuration
	}
	n.ID = "toast-" + uuid.NewString()

	e := &entry{notice: n}
	c.mu.Lock()
	c.byPos[n.Position] = append(c.byPos[n.Position], e)
	c.publishLocked(n.Position)
	c.mu.Unlock()

	if n.Duration > 0 {
		id := n.ID
		stop := c.after(n.Duration, func() { c.Dismiss(id) })
		c.mu.Lock()
		e.stop = stop
		c.mu.Unlock()
	}
	return n.ID
}

// Info pushes an informational notice with defaults.
func (c *Center) Info(text string) string {
	return c.Push(Notice{Text: text, Kind: KindInfo})
}

// Error pushes an error notice with defaults.
func (c *Center) Error(text string) string {
	return c.Push(Notice{Text: text, Kind: KindError})
}

// Dismiss removes a notice. Unknown ids are ignored.
func (c *Center) Dismiss(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for pos, list := range c.byPos {
		for i, e := range list {
			if e.notice.ID != id {
				continue
			}
			if e.stop != nil {
				e.stop()
			}
			next := make([]*entry, 0, len(list)-1)
			next = append(next, list[:i]...)
			next = append(next, list[i+1:]...)
			c.byPos[pos] = next
			c.publishLocked(pos)
			return
		}
	}
}

// DismissAll clears every position.
func (c *Center) DismissAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, list := range c.byPos {
		for _, e := range list {
			if e.stop != nil {
				e.stop()
			}
		}
	}
	c.byPos = make(map[Position][]*entry)
	for pos := range c.subs {
		c.publishLocked(pos)
	}
}

// Active returns the notices at pos, oldest first.
func (c *Center) Active(pos Position) []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeLocked(pos)
}

// Subscribe delivers the notices at pos after every change, starting with
// the current list. Slow readers only see the latest list.
func (c *Center) Subscribe(pos Position) (<-chan []Notice, func()) {
	ch := make(chan []Notice, 1)
	c.mu.Lock()
	set, ok := c.subs[pos]
	if !ok {
		set = make(map[chan []Notice]struct{})
		c.subs[pos] = set
	}
	set[ch] = struct{}{}
	ch <- c.activeLocked(pos)
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs[pos], ch)
			c.mu.Unlock()
			close(ch)
		})
	}
}

func (c *Center) activeLocked(pos Position) []Notice {
	list := c.byPos[pos]
	out := make([]Notice, 0, len(list))
	for _, e := range list {
		out = append(out, e.notice)
	}
	return out
}

func (c *Center) publishLocked(pos Position) {
	if len(c.subs[pos]) == 0 {
		return
	}
	cur := c.activeLocked(pos)
	for ch := range c.subs[pos] {
		select {
		case <-ch:
		default:
		}
		ch <- cur
	}
}

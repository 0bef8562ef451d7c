// Package pager loads older history pages when the viewport nears the top.
package pager

import (
	"github.com/rs/zerolog/log"

	"github.com/gosuda/drawchat/messages"
	"github.com/gosuda/drawchat/models"
	"github.com/gosuda/drawchat/transport"
	"github.com/gosuda/drawchat/wire"
)

const (
	// PageSize is the number of messages requested per backfill page.
	PageSize = 50
	// TopThresholdPx is how close to the top the viewport must be to
	// trigger a backfill.
	TopThresholdPx = 80
)

// Controller drives backward pagination for one room. It is owned by the
// session loop and is not safe for concurrent use.
type Controller struct {
	roomID  string
	tx      transport.Duplex
	store   *messages.Store
	hasMore bool
	loading bool
	// exhausted is set once a short page arrives and is never cleared
	// except by Reset.
	exhausted bool
}

func New(roomID string, tx transport.Duplex, store *messages.Store) *Controller {
	return &Controller{roomID: roomID, tx: tx, store: store, hasMore: true}
}

// HasMore reports whether older history may exist.
func (c *Controller) HasMore() bool { return c.hasMore }

// Loading reports whether a page request is in flight.
func (c *Controller) Loading() bool { return c.loading }

// Reset forgets pagination state, as after a fresh snapshot.
func (c *Controller) Reset() {
	c.hasMore = true
	c.loading = false
	c.exhausted = false
}

// RequestOlderPage emits history:before when the viewport is near the top
// and no request is pending. It reports whether a request was sent.
func (c *Controller) RequestOlderPage(scrollTop float64) bool {
	if c.loading || !c.hasMore || scrollTop > TopThresholdPx {
		return false
	}
	oldest, ok := c.store.Oldest()
	if !ok {
		return false
	}
	req := wire.HistoryBeforeRequest{
		RoomID:   c.roomID,
		BeforeTS: oldest.Timestamp.Millis(),
		Limit:    PageSize,
	}
	if err := c.tx.Emit(wire.EventHistoryBefore, req); err != nil {
		log.Warn().Err(err).Str("room", c.roomID).Msg("[pager] request older page")
		return false
	}
	c.loading = true
	return true
}

// HandlePage merges a history:before page into the store. A page shorter
// than PageSize ends pagination for the session; an explicit hasMore=false
// does too.
func (c *Controller) HandlePage(msgs []*models.Message, hasMore *bool) {
	c.loading = false
	c.store.ApplyHistory(msgs, messages.ModePrepend)
	if len(msgs) < PageSize || (hasMore != nil && !*hasMore) {
		c.exhausted = true
	}
	c.hasMore = !c.exhausted
}

// HandleLatest records the snapshot page. A short first page means there
// is nothing older to fetch.
func (c *Controller) HandleLatest(n int, hasMore *bool) {
	c.loading = false
	c.exhausted = n < PageSize || (hasMore != nil && !*hasMore)
	c.hasMore = !c.exhausted
}

// Abort clears the in-flight flag without touching hasMore, for a request
// lost to a disconnect.
func (c *Controller) Abort() {
	c.loading = false
}

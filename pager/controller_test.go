package pager

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/drawchat/messages"
	"github.com/gosuda/drawchat/models"
	"github.com/gosuda/drawchat/transport"
	"github.com/gosuda/drawchat/wire"
)

func page(from, to int64) []*models.Message {
	out := make([]*models.Message, 0, to-from+1)
	for id := from; id <= to; id++ {
		out = append(out, &models.Message{ID: id, Timestamp: models.FromMillis(id * 1000)})
	}
	return out
}

func setup(t *testing.T, latest []*models.Message) (*Controller, *transport.Pipe, *messages.Store) {
	t.Helper()
	pipe := transport.NewPipe()
	store := messages.NewStore()
	store.ApplyHistory(latest, messages.ModeReplace)
	c := New("lobby", pipe, store)
	c.HandleLatest(len(latest), nil)
	return c, pipe, store
}

func TestController_FullPageKeepsHasMore(t *testing.T) {
	c, pipe, store := setup(t, page(101, 150))
	require.True(t, c.HasMore())

	require.True(t, c.RequestOlderPage(0))
	sent := pipe.Emitted(wire.EventHistoryBefore)
	require.Len(t, sent, 1)
	var req wire.HistoryBeforeRequest
	require.NoError(t, json.Unmarshal(sent[0].Data, &req))
	assert.Equal(t, wire.HistoryBeforeRequest{RoomID: "lobby", BeforeTS: 101000, Limit: PageSize}, req)

	c.HandlePage(page(51, 100), nil)

	assert.True(t, c.HasMore())
	assert.False(t, c.Loading())
	assert.Equal(t, 100, store.Len())
	oldest, _ := store.Oldest()
	assert.Equal(t, int64(51), oldest.ID)
}

func TestController_ShortPageIsTerminal(t *testing.T) {
	c, pipe, _ := setup(t, page(101, 150))

	require.True(t, c.RequestOlderPage(10))
	c.HandlePage(page(90, 100), nil)

	assert.False(t, c.HasMore())
	assert.False(t, c.RequestOlderPage(0))
	assert.Len(t, pipe.Emitted(wire.EventHistoryBefore), 1)

	// A later full page cannot revive pagination.
	c.HandlePage(page(1, 50), nil)
	assert.False(t, c.HasMore())
}

func TestController_ExplicitHasMoreFalse(t *testing.T) {
	c, _, _ := setup(t, page(101, 150))
	no := false

	require.True(t, c.RequestOlderPage(0))
	c.HandlePage(page(51, 100), &no)

	assert.False(t, c.HasMore())
}

func TestController_NotNearTop(t *testing.T) {
	c, pipe, _ := setup(t, page(101, 150))

	assert.False(t, c.RequestOlderPage(TopThresholdPx+1))
	assert.Empty(t, pipe.Emitted())
	assert.True(t, c.RequestOlderPage(TopThresholdPx))
}

func TestController_SingleFlight(t *testing.T) {
	c, pipe, _ := setup(t, page(101, 150))

	require.True(t, c.RequestOlderPage(0))
	assert.True(t, c.Loading())
	assert.False(t, c.RequestOlderPage(0))
	assert.Len(t, pipe.Emitted(wire.EventHistoryBefore), 1)

	c.Abort()
	assert.True(t, c.RequestOlderPage(0))
}

func TestController_ShortSnapshotHasNothingOlder(t *testing.T) {
	c, pipe, _ := setup(t, page(1, 12))

	assert.False(t, c.HasMore())
	assert.False(t, c.RequestOlderPage(0))
	assert.Empty(t, pipe.Emitted())
}

func TestController_EmptyStoreDoesNotRequest(t *testing.T) {
	pipe := transport.NewPipe()
	c := New("lobby", pipe, messages.NewStore())

	assert.False(t, c.RequestOlderPage(0))
	assert.Empty(t, pipe.Emitted())
}

func TestController_ResetRevives(t *testing.T) {
	c, _, _ := setup(t, page(1, 3))
	require.False(t, c.HasMore())

	c.Reset()
	assert.True(t, c.HasMore())
}

func TestAnchor_RestoreKeepsRowInPlace(t *testing.T) {
	a := Capture(2000, 30)
	assert.Equal(t, 1530.0, a.Restore(3500))
	assert.Equal(t, 30.0, a.Restore(2000))
	assert.Equal(t, 0.0, Capture(2000, 0).Restore(1000))
}

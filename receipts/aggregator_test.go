package receipts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/drawchat/models"
)

func ptr(v int64) *int64 { return &v }

func TestAggregator_MonotonicMerge(t *testing.T) {
	a := NewAggregator()
	for _, id := range []int64{5, 3, 7, 2} {
		a.ApplyUpdate(1, ptr(id), nil)
	}

	row, ok := a.Watermark(1)
	require.True(t, ok)
	require.NotNil(t, row.LastReadMessageID)
	assert.Equal(t, int64(7), *row.LastReadMessageID)
}

func TestAggregator_NilCarriesNoInformation(t *testing.T) {
	a := NewAggregator()
	a.ApplyUpdate(1, ptr(10), ptr(1000))
	a.ApplyUpdate(1, nil, nil)
	a.ApplyUpdate(1, nil, ptr(900))

	row, _ := a.Watermark(1)
	assert.Equal(t, int64(10), *row.LastReadMessageID)
	assert.Equal(t, int64(1000), *row.LastReadAt)
}

func TestAggregator_FieldsMergeIndependently(t *testing.T) {
	a := NewAggregator()
	a.ApplyUpdate(1, ptr(10), ptr(1000))
	a.ApplyUpdate(1, ptr(8), ptr(2000))

	row, _ := a.Watermark(1)
	assert.Equal(t, int64(10), *row.LastReadMessageID)
	assert.Equal(t, int64(2000), *row.LastReadAt)
}

func TestAggregator_SetStateReplaces(t *testing.T) {
	a := NewAggregator()
	a.ApplyUpdate(9, ptr(100), nil)

	a.SetState([]models.ReadWatermark{
		{UserID: 1, Name: "ann", LastReadMessageID: ptr(3)},
		{UserID: 2, Name: "bob"},
	})

	_, ok := a.Watermark(9)
	assert.False(t, ok)
	assert.Equal(t, 2, a.Len())
	row, _ := a.Watermark(2)
	assert.Nil(t, row.LastReadMessageID)
}

func TestAggregator_ReadersExcludeAuthor(t *testing.T) {
	a := NewAggregator()
	a.SetState([]models.ReadWatermark{
		{UserID: 1, Name: "author", LastReadMessageID: ptr(50)},
		{UserID: 2, Name: "bob", LastReadMessageID: ptr(42)},
		{UserID: 3, Name: "cid", LastReadMessageID: ptr(41)},
		{UserID: 4, Name: "dee"},
	})

	got := a.ReadersOfAtLeast(&models.Message{ID: 42, AuthorID: 1})

	assert.Equal(t, 1, got.Count)
	assert.Equal(t, []string{"bob"}, got.Names)
}

func TestAggregator_ReadersOrderedByUser(t *testing.T) {
	a := NewAggregator()
	a.SetState([]models.ReadWatermark{
		{UserID: 3, Name: "cid", LastReadMessageID: ptr(9)},
		{UserID: 2, Name: "bob", LastReadMessageID: ptr(9)},
	})

	got := a.ReadersOfAtLeast(&models.Message{ID: 9, AuthorID: 1})

	assert.Equal(t, 2, got.Count)
	assert.Equal(t, []string{"bob", "cid"}, got.Names)
}

func TestAggregator_UpdateForUnknownUserCreatesRow(t *testing.T) {
	a := NewAggregator()
	a.ApplyUpdate(5, ptr(1), nil)
	a.SetName(5, "eve")

	got := a.ReadersOfAtLeast(&models.Message{ID: 1, AuthorID: 1})
	assert.Equal(t, []string{"eve"}, got.Names)
}

func TestAggregator_WatermarkIsACopy(t *testing.T) {
	a := NewAggregator()
	a.ApplyUpdate(1, ptr(3), nil)

	row, _ := a.Watermark(1)
	*row.LastReadMessageID = 100

	again, _ := a.Watermark(1)
	assert.Equal(t, int64(3), *again.LastReadMessageID)
}

func TestAckPolicy_NeverGoesBackwards(t *testing.T) {
	var p AckPolicy

	id, ok := p.Observe(0, 10)
	require.True(t, ok)
	assert.Equal(t, int64(10), id)

	_, ok = p.Observe(0, 8)
	assert.False(t, ok)
	_, ok = p.Observe(0, 10)
	assert.False(t, ok)

	id, ok = p.Observe(BottomGapPx, 12)
	require.True(t, ok)
	assert.Equal(t, int64(12), id)
	assert.Equal(t, int64(12), p.LastAcked())
}

func TestAckPolicy_RequiresNearBottom(t *testing.T) {
	var p AckPolicy

	_, ok := p.Observe(BottomGapPx+1, 10)
	assert.False(t, ok)
	assert.Zero(t, p.LastAcked())

	_, ok = p.Observe(0, 0)
	assert.False(t, ok)
}

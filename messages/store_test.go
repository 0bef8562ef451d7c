package messages

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/drawchat/models"
)

func msg(id int64) *models.Message {
	return &models.Message{ID: id, RoomID: "lobby", Text: "hi", AuthorID: id % 3}
}

func ids(ms []*models.Message) []int64 {
	out := make([]int64, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.ID)
	}
	return out
}

func TestStore_UpsertAppendsInOrder(t *testing.T) {
	s := NewStore()
	s.ApplyUpsert(msg(1))
	s.ApplyUpsert(msg(2))
	s.ApplyUpsert(msg(3))

	assert.Equal(t, []int64{1, 2, 3}, ids(s.Ordered()))
	assert.Equal(t, 3, s.Len())
}

func TestStore_DuplicateUpsertIsIdempotent(t *testing.T) {
	s := NewStore()
	s.ApplyHistory([]*models.Message{msg(1), msg(2), msg(3)}, ModeReplace)

	dup := msg(3)
	dup.Text = "edited"
	s.ApplyUpsert(dup)
	s.ApplyUpsert(dup)

	assert.Equal(t, []int64{1, 2, 3}, ids(s.Ordered()))
	got, ok := s.Get(3)
	require.True(t, ok)
	assert.Equal(t, "edited", got.Text)
}

func TestStore_UpsertExistingKeepsPosition(t *testing.T) {
	s := NewStore()
	s.ApplyHistory([]*models.Message{msg(1), msg(2), msg(3)}, ModeReplace)

	again := msg(2)
	again.Text = "overwritten"
	s.ApplyUpsert(again)

	assert.Equal(t, []int64{1, 2, 3}, ids(s.Ordered()))
	assert.Equal(t, "overwritten", s.Ordered()[1].Text)
}

func TestStore_OutOfOrderUpsertIsSorted(t *testing.T) {
	s := NewStore()
	s.ApplyUpsert(msg(5))
	s.ApplyUpsert(msg(9))
	s.ApplyUpsert(msg(7))

	assert.Equal(t, []int64{5, 7, 9}, ids(s.Ordered()))
}

func TestStore_ArbitraryDuplicatesYieldUniqueAscending(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	s := NewStore()
	seen := map[int64]bool{}
	for round := 0; round < 200; round++ {
		switch rng.Intn(3) {
		case 0:
			id := int64(rng.Intn(60) + 1)
			seen[id] = true
			s.ApplyUpsert(msg(id))
		case 1:
			batch := make([]*models.Message, 0, 8)
			for i := 0; i < 8; i++ {
				id := int64(rng.Intn(60) + 1)
				seen[id] = true
				batch = append(batch, msg(id))
			}
			s.ApplyHistory(batch, ModeAppend)
		case 2:
			batch := make([]*models.Message, 0, 8)
			for i := 0; i < 8; i++ {
				id := int64(rng.Intn(60) + 1)
				seen[id] = true
				batch = append(batch, msg(id))
			}
			s.ApplyHistory(batch, ModePrepend)
		}
	}

	got := ids(s.Ordered())
	want := make([]int64, 0, len(seen))
	for id := range seen {
		want = append(want, id)
	}
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
	assert.Equal(t, want, got)
}

func TestStore_PrependMergesOlderPage(t *testing.T) {
	s := NewStore()
	s.ApplyHistory([]*models.Message{msg(51), msg(52), msg(53)}, ModeReplace)

	older := make([]*models.Message, 0, 50)
	for id := int64(1); id <= 50; id++ {
		older = append(older, msg(id))
	}
	s.ApplyHistory(older, ModePrepend)

	got := ids(s.Ordered())
	require.Len(t, got, 53)
	assert.True(t, sort.SliceIsSorted(got, func(i, j int) bool { return got[i] < got[j] }))
	oldest, ok := s.Oldest()
	require.True(t, ok)
	assert.Equal(t, int64(1), oldest.ID)
	newest, ok := s.Newest()
	require.True(t, ok)
	assert.Equal(t, int64(53), newest.ID)
}

func TestStore_ReplaceDropsPreviousContents(t *testing.T) {
	s := NewStore()
	s.ApplyHistory([]*models.Message{msg(1), msg(2)}, ModeReplace)
	s.ApplyHistory([]*models.Message{msg(10)}, ModeReplace)

	assert.Equal(t, []int64{10}, ids(s.Ordered()))
}

func TestStore_DeleteUnknownIsNoop(t *testing.T) {
	s := NewStore()
	s.ApplyHistory([]*models.Message{msg(1), msg(2)}, ModeReplace)
	before := s.Ordered()

	s.ApplyDelete(99)

	assert.Equal(t, []int64{1, 2}, ids(s.Ordered()))
	assert.Same(t, before[0], s.Ordered()[0])
}

func TestStore_DeleteRemovesFromTableAndOrder(t *testing.T) {
	s := NewStore()
	s.ApplyHistory([]*models.Message{msg(1), msg(2), msg(3)}, ModeReplace)

	s.ApplyDelete(2)

	_, ok := s.Get(2)
	assert.False(t, ok)
	assert.Equal(t, []int64{1, 3}, ids(s.Ordered()))
	assert.Equal(t, 2, s.Len())
}

func TestStore_DeletedMessageIsNotResurrected(t *testing.T) {
	s := NewStore()
	s.ApplyHistory([]*models.Message{msg(1), msg(2)}, ModeReplace)
	s.ApplyDelete(2)

	s.ApplyUpsert(msg(2))
	s.ApplyHistory([]*models.Message{msg(2)}, ModeAppend)

	assert.Equal(t, []int64{1}, ids(s.Ordered()))
}

func TestStore_DeleteFlagsReplies(t *testing.T) {
	s := NewStore()
	reply := msg(2)
	reply.Reply = &models.ReplyRef{MessageID: 1, Text: "original"}
	s.ApplyHistory([]*models.Message{msg(1), reply}, ModeReplace)

	s.ApplyDelete(1)

	got, ok := s.Get(2)
	require.True(t, ok)
	require.NotNil(t, got.Reply)
	assert.True(t, bool(got.Reply.Deleted))
	assert.Equal(t, "original", got.Reply.Text)
	assert.Equal(t, []int64{2}, ids(s.Ordered()))
}

func TestStore_ReplyToDeletedArrivingLaterIsFlagged(t *testing.T) {
	s := NewStore()
	s.ApplyHistory([]*models.Message{msg(1)}, ModeReplace)
	s.ApplyDelete(1)

	reply := msg(2)
	reply.Reply = &models.ReplyRef{MessageID: 1}
	s.ApplyUpsert(reply)

	got, _ := s.Get(2)
	assert.True(t, bool(got.Reply.Deleted))
}

func TestStore_ReactionUpdateKeepsOtherIdentities(t *testing.T) {
	s := NewStore()
	s.ApplyHistory([]*models.Message{msg(101), msg(102), msg(103)}, ModeReplace)
	before := s.Ordered()
	m101, m102, m103 := before[0], before[1], before[2]

	s.ApplyReactionUpdate(102, map[string]int{"👍": 1}, map[string][]int64{"👍": {7}})

	after := s.Ordered()
	assert.Same(t, m101, after[0])
	assert.Same(t, m103, after[2])
	assert.NotSame(t, m102, after[1])
	assert.Equal(t, map[string]int{"👍": 1}, after[1].Reactions)
	assert.Equal(t, map[string][]int64{"👍": {7}}, after[1].ReactedUsers)
	assert.Empty(t, m102.Reactions, "previous entity must not be mutated")
	assert.Equal(t, m102.Text, after[1].Text)

	got101, _ := s.Get(101)
	got103, _ := s.Get(103)
	assert.Same(t, m101, got101)
	assert.Same(t, m103, got103)
}

func TestStore_ReactionUpdateUnknownIsNoop(t *testing.T) {
	s := NewStore()
	s.ApplyHistory([]*models.Message{msg(1)}, ModeReplace)
	before := s.Ordered()[0]

	s.ApplyReactionUpdate(5, map[string]int{"👍": 1}, nil)

	assert.Same(t, before, s.Ordered()[0])
	_, ok := s.Get(5)
	assert.False(t, ok)
}

func TestStore_ReactionUpdateNilMapsBecomeEmpty(t *testing.T) {
	s := NewStore()
	s.ApplyHistory([]*models.Message{msg(1)}, ModeReplace)

	s.ApplyReactionUpdate(1, nil, nil)

	got, _ := s.Get(1)
	assert.NotNil(t, got.Reactions)
	assert.NotNil(t, got.ReactedUsers)
}

func TestStore_OrderedIsIncrementalOnAppend(t *testing.T) {
	s := NewStore()
	s.ApplyHistory([]*models.Message{msg(1), msg(2)}, ModeReplace)
	first := s.Ordered()

	s.ApplyUpsert(msg(3))
	second := s.Ordered()

	require.Len(t, second, 3)
	assert.Same(t, first[0], second[0])
	assert.Same(t, first[1], second[1])
	assert.Len(t, first, 2, "previously returned view is not extended")
}

func TestStore_RejectsInvalidIDs(t *testing.T) {
	s := NewStore()
	s.ApplyUpsert(nil)
	s.ApplyUpsert(&models.Message{ID: 0})
	s.ApplyHistory([]*models.Message{nil, {ID: -4}}, ModeAppend)

	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Ordered())
}

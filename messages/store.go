// Package messages keeps the client-side message table and its id order.
package messages

import (
	"sort"

	"github.com/gosuda/drawchat/models"
)

// Mode selects how ApplyHistory merges a batch.
type Mode int

const (
	// ModeReplace discards the current contents.
	ModeReplace Mode = iota
	// ModeAppend merges a batch of newer messages.
	ModeAppend
	// ModePrepend merges an older page (backfill).
	ModePrepend
)

func (m Mode) String() string {
	switch m {
	case ModeReplace:
		return "replace"
	case ModeAppend:
		return "append"
	case ModePrepend:
		return "prepend"
	}
	return "unknown"
}

// Store is the normalized message table plus its ascending id index.
//
// Entities are treated as immutable once stored: any change to a message
// installs a fresh copy, so a consumer comparing pointers can tell which
// rows changed. Store is not safe for concurrent use; it is owned by the
// session loop.
type Store struct {
	byID  map[int64]*models.Message
	order []int64
	// replies maps a message id to the ids of messages replying to it.
	replies map[int64]map[int64]struct{}
	// deleted holds ids removed by a delete event, so that a duplicate
	// delivery of the original message does not resurrect it.
	deleted map[int64]struct{}
	// view caches Ordered(); nil when it must be rebuilt.
	view []*models.Message
}

func NewStore() *Store {
	s := &Store{}
	s.Reset()
	return s
}

// Reset drops every message and tombstone.
func (s *Store) Reset() {
	s.byID = make(map[int64]*models.Message)
	s.order = nil
	s.replies = make(map[int64]map[int64]struct{})
	s.deleted = make(map[int64]struct{})
	s.view = []*models.Message{}
}

// Len is the number of live messages.
func (s *Store) Len() int {
	return len(s.order)
}

// Get returns the message with id.
func (s *Store) Get(id int64) (*models.Message, bool) {
	m, ok := s.byID[id]
	return m, ok
}

// Oldest returns the message with the smallest id.
func (s *Store) Oldest() (*models.Message, bool) {
	if len(s.order) == 0 {
		return nil, false
	}
	return s.byID[s.order[0]], true
}

// Newest returns the message with the largest id.
func (s *Store) Newest() (*models.Message, bool) {
	if len(s.order) == 0 {
		return nil, false
	}
	return s.byID[s.order[len(s.order)-1]], true
}

// Ordered returns the live messages in ascending id order. The slice is
// shared with the store and must not be modified.
func (s *Store) Ordered() []*models.Message {
	if s.view == nil {
		view := make([]*models.Message, 0, len(s.order))
		for _, id := range s.order {
			view = append(view, s.byID[id])
		}
		s.view = view
	}
	return s.view
}

// ApplyHistory merges a batch of messages according to mode.
func (s *Store) ApplyHistory(msgs []*models.Message, mode Mode) {
	if mode == ModeReplace {
		s.Reset()
	}
	sorted := true
	for _, m := range msgs {
		if m == nil || m.ID <= 0 {
			continue
		}
		if _, gone := s.deleted[m.ID]; gone {
			continue
		}
		if _, ok := s.byID[m.ID]; ok {
			s.put(m)
			continue
		}
		if n := len(s.order); n > 0 && s.order[n-1] > m.ID {
			sorted = false
		}
		s.put(m)
		s.order = append(s.order, m.ID)
	}
	if !sorted {
		sort.Slice(s.order, func(i, j int) bool { return s.order[i] < s.order[j] })
	}
	s.view = nil
}

// ApplyUpsert inserts a live message or overwrites an existing one in place
// of its position.
func (s *Store) ApplyUpsert(m *models.Message) {
	if m == nil || m.ID <= 0 {
		return
	}
	if _, gone := s.deleted[m.ID]; gone {
		return
	}
	if _, ok := s.byID[m.ID]; ok {
		s.put(m)
		s.view = nil
		return
	}
	s.put(m)
	n := len(s.order)
	if n == 0 || s.order[n-1] < m.ID {
		s.order = append(s.order, m.ID)
		if s.view != nil {
			s.view = append(s.view, s.byID[m.ID])
		}
		return
	}
	// Arrived out of order: insert at its sorted position.
	i := sort.Search(n, func(i int) bool { return s.order[i] > m.ID })
	s.order = append(s.order, 0)
	copy(s.order[i+1:], s.order[i:])
	s.order[i] = m.ID
	s.view = nil
}

// ApplyDelete removes a message. Replies that quote it stay, flagged as
// quoting a deleted message. Unknown ids are ignored.
func (s *Store) ApplyDelete(id int64) {
	cur, ok := s.byID[id]
	if !ok {
		return
	}
	delete(s.byID, id)
	s.deleted[id] = struct{}{}
	i := sort.Search(len(s.order), func(i int) bool { return s.order[i] >= id })
	if i < len(s.order) && s.order[i] == id {
		s.order = append(s.order[:i], s.order[i+1:]...)
	}
	s.markReplies(id)
	delete(s.replies, id)
	if cur.Reply != nil {
		if set := s.replies[cur.Reply.MessageID]; set != nil {
			delete(set, id)
		}
	}
	s.view = nil
}

// ApplyReactionUpdate replaces the reaction fields of one message. Every
// other message keeps its identity. Unknown ids are ignored.
func (s *Store) ApplyReactionUpdate(id int64, reactions map[string]int, reactedUsers map[string][]int64) {
	cur, ok := s.byID[id]
	if !ok {
		return
	}
	next := cur.Clone()
	next.Reactions = reactions
	next.ReactedUsers = reactedUsers
	next.Normalize()
	s.byID[id] = next
	s.patchView(id, next)
}

// put stores a copy of m, keeping the reply index and deleted-reply flag
// consistent.
func (s *Store) put(m *models.Message) {
	cp := m.Clone()
	cp.Normalize()
	if old, ok := s.byID[cp.ID]; ok && old.Reply != nil && (cp.Reply == nil || cp.Reply.MessageID != old.Reply.MessageID) {
		if set := s.replies[old.Reply.MessageID]; set != nil {
			delete(set, cp.ID)
		}
	}
	if cp.Reply != nil && cp.Reply.MessageID > 0 {
		target := cp.Reply.MessageID
		set, ok := s.replies[target]
		if !ok {
			set = make(map[int64]struct{})
			s.replies[target] = set
		}
		set[cp.ID] = struct{}{}
		if _, gone := s.deleted[target]; gone {
			cp.Reply.Deleted = true
		}
	}
	s.byID[cp.ID] = cp
}

func (s *Store) markReplies(id int64) {
	for child := range s.replies[id] {
		cur, ok := s.byID[child]
		if !ok || cur.Reply == nil || bool(cur.Reply.Deleted) {
			continue
		}
		next := cur.Clone()
		next.Reply.Deleted = true
		s.byID[child] = next
	}
}

// patchView swaps one entity inside the cached view without rebuilding it.
func (s *Store) patchView(id int64, m *models.Message) {
	if s.view == nil {
		return
	}
	i := sort.Search(len(s.order), func(i int) bool { return s.order[i] >= id })
	if i < len(s.order) && s.order[i] == id && i < len(s.view) {
		view := make([]*models.Message, len(s.view))
		copy(view, s.view)
		view[i] = m
		s.view = view
	}
}

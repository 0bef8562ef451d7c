package relay

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/cockroachdb/pebble/v2"
	"github.com/cockroachdb/pebble/v2/vfs"

	"github.com/gosuda/drawchat/models"
)

// keySep separates the room from the big-endian message id in a key.
const keySep = 0x00

// HistoryStore persists chat messages in PebbleDB. Keys are the room id,
// a zero byte and the 8-byte big-endian message id, so iteration within a
// room follows id order.
type HistoryStore struct {
	db *pebble.DB
}

// OpenHistory opens (creating if needed) the store in dir.
func OpenHistory(dir string) (*HistoryStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create history dir: %w", err)
	}
	return openHistory(filepath.Clean(dir), &pebble.Options{})
}

// OpenMemoryHistory opens a store that lives only in memory.
func OpenMemoryHistory() (*HistoryStore, error) {
	return openHistory("", &pebble.Options{FS: vfs.NewMem()})
}

func openHistory(dir string, opts *pebble.Options) (*HistoryStore, error) {
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	return &HistoryStore{db: db}, nil
}

func (s *HistoryStore) Close() error {
	return s.db.Close()
}

func messageKey(room string, id int64) []byte {
	key := make([]byte, 0, len(room)+9)
	key = append(key, room...)
	key = append(key, keySep)
	return binary.BigEndian.AppendUint64(key, uint64(id))
}

func roomBounds(room string) (lower, upper []byte) {
	lower = append(append([]byte(room), keySep), make([]byte, 8)...)
	upper = append([]byte(room), keySep+1)
	return lower, upper
}

// Put writes or overwrites one message.
func (s *HistoryStore) Put(m *models.Message) error {
	val, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode message %d: %w", m.ID, err)
	}
	return s.db.Set(messageKey(m.RoomID, m.ID), val, pebble.Sync)
}

// Delete removes one message.
func (s *HistoryStore) Delete(room string, id int64) error {
	return s.db.Delete(messageKey(room, id), pebble.Sync)
}

// Recent returns up to limit of the newest messages of room, oldest first.
func (s *HistoryStore) Recent(room string, limit int) ([]*models.Message, error) {
	lower, upper := roomBounds(room)
	it, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, err
	}
	defer func() { _ = it.Close() }()

	var rev []*models.Message
	for it.Last(); it.Valid() && (limit <= 0 || len(rev) < limit); it.Prev() {
		raw, err := it.ValueAndErr()
		if err != nil {
			return nil, err
		}
		var m models.Message
		if err := json.Unmarshal(raw, &m); err != nil {
			continue
		}
		m.Normalize()
		rev = append(rev, &m)
	}
	out := make([]*models.Message, len(rev))
	for i, m := range rev {
		out[len(rev)-1-i] = m
	}
	return out, nil
}

// LastID is the highest message id stored in any room.
func (s *HistoryStore) LastID() (int64, error) {
	it, err := s.db.NewIter(nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = it.Close() }()
	var last int64
	for valid := it.First(); valid; valid = it.Next() {
		key := it.Key()
		if len(key) < 9 {
			continue
		}
		if id := int64(binary.BigEndian.Uint64(key[len(key)-8:])); id > last {
			last = id
		}
	}
	if err := it.Error(); err != nil && !errors.Is(err, pebble.ErrNotFound) {
		return 0, err
	}
	return last, nil
}

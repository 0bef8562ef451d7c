// Package receipts merges per-user read watermarks and answers who has read
// a given message.
package receipts

import (
	"sort"

	"github.com/gosuda/drawchat/models"
)

// Readers is the read-receipt summary for one message.
type Readers struct {
	Count int
	Names []string
}

// Aggregator holds one watermark per room participant. Merges are
// monotonic: a watermark never moves backwards, and a nil field in an
// update carries no information.
type Aggregator struct {
	rows map[int64]*models.ReadWatermark
}

func NewAggregator() *Aggregator {
	return &Aggregator{rows: make(map[int64]*models.ReadWatermark)}
}

// SetState replaces the whole table, as on a room snapshot.
func (a *Aggregator) SetState(rows []models.ReadWatermark) {
	a.rows = make(map[int64]*models.ReadWatermark, len(rows))
	for _, r := range rows {
		r := r
		r.LastReadMessageID = copyInt(r.LastReadMessageID)
		r.LastReadAt = copyInt(r.LastReadAt)
		a.rows[r.UserID] = &r
	}
}

// ApplyUpdate merges one user's acknowledgement. The message id and the
// timestamp are merged independently.
func (a *Aggregator) ApplyUpdate(userID int64, lastReadMessageID, lastReadAt *int64) {
	row, ok := a.rows[userID]
	if !ok {
		row = &models.ReadWatermark{UserID: userID}
		a.rows[userID] = row
	}
	row.LastReadMessageID = maxInt(row.LastReadMessageID, lastReadMessageID)
	row.LastReadAt = maxInt(row.LastReadAt, lastReadAt)
}

// SetName records the display name for a user, keeping the watermark.
func (a *Aggregator) SetName(userID int64, name string) {
	if name == "" {
		return
	}
	row, ok := a.rows[userID]
	if !ok {
		row = &models.ReadWatermark{UserID: userID}
		a.rows[userID] = row
	}
	row.Name = name
}

// Watermark returns a copy of the user's row.
func (a *Aggregator) Watermark(userID int64) (models.ReadWatermark, bool) {
	row, ok := a.rows[userID]
	if !ok {
		return models.ReadWatermark{}, false
	}
	cp := *row
	cp.LastReadMessageID = copyInt(row.LastReadMessageID)
	cp.LastReadAt = copyInt(row.LastReadAt)
	return cp, true
}

// Len is the number of tracked users.
func (a *Aggregator) Len() int {
	return len(a.rows)
}

// ReadersOfAtLeast counts the users, other than the author, whose
// watermark covers msg. Names are ordered by user id.
func (a *Aggregator) ReadersOfAtLeast(msg *models.Message) Readers {
	var out Readers
	if msg == nil {
		return out
	}
	uids := make([]int64, 0, len(a.rows))
	for uid, row := range a.rows {
		if uid == msg.AuthorID || row.LastReadMessageID == nil {
			continue
		}
		if *row.LastReadMessageID >= msg.ID {
			uids = append(uids, uid)
		}
	}
	sort.Slice(uids, func(i, j int) bool { return uids[i] < uids[j] })
	out.Count = len(uids)
	out.Names = make([]string, 0, len(uids))
	for _, uid := range uids {
		out.Names = append(out.Names, a.rows[uid].Name)
	}
	return out
}

// Reset forgets every watermark.
func (a *Aggregator) Reset() {
	a.rows = make(map[int64]*models.ReadWatermark)
}

func maxInt(cur, next *int64) *int64 {
	switch {
	case next == nil:
		return cur
	case cur == nil || *next > *cur:
		v := *next
		return &v
	}
	return cur
}

func copyInt(v *int64) *int64 {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

package canvas

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/drawchat/models"
	"github.com/gosuda/drawchat/wire"
)

// SetMembers replaces the member list.
func (e *Engine) SetMembers(members []models.CanvasMember) {
	if e.closed {
		return
	}
	e.members = make(map[int64]models.CanvasMember, len(members))
	for _, m := range members {
		e.members[m.UserID] = m
	}
	e.changed()
}

// Members returns the member list ordered by user id.
func (e *Engine) Members() []models.CanvasMember {
	out := make([]models.CanvasMember, 0, len(e.members))
	for _, m := range e.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// CanDraw reports whether local pointer input is enabled. Until the member
// list arrives nobody may draw. The server enforces the real rule.
func (e *Engine) CanDraw() bool {
	m, ok := e.members[e.cfg.UserID]
	return ok && bool(m.CanDraw)
}

// IsOwner reports whether the local user owns the room.
func (e *Engine) IsOwner() bool {
	m, ok := e.members[e.cfg.UserID]
	return ok && m.IsOwner()
}

// SetPermission asks the server to change another member's drawing right.
// The local list changes when the server confirms.
func (e *Engine) SetPermission(targetUserID int64, canDraw bool) error {
	if e.closed {
		return ErrClosed
	}
	if !e.IsOwner() {
		return ErrNotOwner
	}
	if targetUserID == e.cfg.UserID {
		return ErrSelfPermission
	}
	if _, ok := e.members[targetUserID]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownMember, targetUserID)
	}
	return e.tx.Emit(wire.EventPermissionSet, wire.PermissionSet{
		CanvasRoomID: e.room,
		TargetUserID: targetUserID,
		CanDraw:      canDraw,
	})
}

func (e *Engine) permissionUpdated(ev wire.PermissionUpdated) {
	if ev.CanvasRoomID != "" && ev.CanvasRoomID != e.room {
		return
	}
	m, ok := e.members[ev.TargetUserID]
	if !ok {
		m = models.CanvasMember{CanvasRoomID: e.room, UserID: ev.TargetUserID, Role: models.RoleMember}
	}
	m.CanDraw = ev.CanDraw
	e.members[ev.TargetUserID] = m
	if ev.TargetUserID == e.cfg.UserID && !bool(ev.CanDraw) && e.ptr.Phase == PhaseDrawing {
		log.Info().Str("canvas", e.room).Msg("[canvas] drawing revoked mid-stroke")
		e.endStroke()
	}
	e.changed()
}

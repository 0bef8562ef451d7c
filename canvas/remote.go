package canvas

import (
	"github.com/gosuda/drawchat/models"
	"github.com/gosuda/drawchat/wire"
)

// ours reports whether id is a stroke this client drew, so server echoes
// of it are not painted twice.
func (e *Engine) ours(id string) bool {
	if id == e.ptr.StrokeID {
		return true
	}
	_, ok := e.own[id]
	return ok
}

func (e *Engine) remoteStart(ev wire.StrokeStart) {
	if ev.CanvasRoomID != e.room || e.ours(ev.StrokeID) {
		return
	}
	rs := &remoteStroke{
		style: Style{Color: ev.Color, Width: ev.Width, Composite: ev.Composite}.orDefault(),
	}
	if ev.Point != nil {
		rs.last = *ev.Point
		rs.hasLast = true
	}
	e.remote[ev.StrokeID] = rs
}

// remoteMove draws each point as a segment from the previous one. Moves
// for a stroke whose start was never seen are dropped.
func (e *Engine) remoteMove(ev wire.StrokeMove) {
	if ev.CanvasRoomID != e.room || e.ours(ev.StrokeID) {
		return
	}
	rs, ok := e.remote[ev.StrokeID]
	if !ok || len(ev.Points) == 0 {
		return
	}
	for _, p := range ev.Points {
		if !rs.hasLast {
			rs.last, rs.hasLast = p, true
			continue
		}
		e.surface.DrawSegment(toPixels(e.surface, rs.last), toPixels(e.surface, p), rs.style)
		rs.last = p
	}
	e.changed()
}

func (e *Engine) remoteEnd(ev wire.StrokeEnd) {
	if ev.CanvasRoomID != e.room {
		return
	}
	delete(e.remote, ev.StrokeID)
}

// RemotePosition returns the last known point of a remote stroke.
func (e *Engine) RemotePosition(strokeID string) (models.Point, bool) {
	rs, ok := e.remote[strokeID]
	if !ok || !rs.hasLast {
		return models.Point{}, false
	}
	return rs.last, true
}

// RemoteStrokes is the number of remote strokes being tracked.
func (e *Engine) RemoteStrokes() int {
	return len(e.remote)
}

package canvas

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/drawchat/models"
	"github.com/gosuda/drawchat/transport"
	"github.com/gosuda/drawchat/wire"
)

var (
	ErrJoinRejected   = errors.New("canvas join rejected")
	ErrClosed         = errors.New("canvas closed")
	ErrNotOwner       = errors.New("only the room owner can change permissions")
	ErrSelfPermission = errors.New("owner cannot change their own permission")
	ErrUnknownMember  = errors.New("unknown canvas member")
)

// Scheduler runs callbacks on the owner's event loop.
type Scheduler interface {
	// Post runs fn on the loop.
	Post(fn func())
	// AfterFunc runs fn on the loop after d; stop cancels it.
	AfterFunc(d time.Duration, fn func()) (stop func())
}

// Config wires an Engine to its room.
type Config struct {
	CanvasRoomID string
	UserID       int64
	Transport    transport.Duplex
	Surface      Surface
	Scheduler    Scheduler
	// Now defaults to time.Now.
	Now func() time.Time
	// NewID defaults to a ULID.
	NewID func() string
	// OnReplay is told how many stored strokes a join drew.
	OnReplay func(n int)
	// OnChange fires after anything visible changed.
	OnChange func()
}

// remoteStroke tracks one stroke another participant is drawing.
type remoteStroke struct {
	last    models.Point
	hasLast bool
	style   Style
}

// Engine is the per-room stroke state machine. Every method must run on
// the scheduler's loop.
type Engine struct {
	cfg     Config
	room    string
	tx      transport.Duplex
	surface Surface
	sched   Scheduler

	style   Style
	ptr     Pointer
	buf     []models.Point
	stopTmr func()
	history *History

	remote  map[string]*remoteStroke
	own     map[string]struct{}
	members map[int64]models.CanvasMember

	offs   []func()
	closed bool
}

// NewEngine attaches the stroke listeners for cfg.CanvasRoomID. The
// surface stays blank until Join succeeds.
func NewEngine(cfg Config) *Engine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.NewID == nil {
		cfg.NewID = func() string { return ulid.Make().String() }
	}
	e := &Engine{
		cfg:     cfg,
		room:    cfg.CanvasRoomID,
		tx:      cfg.Transport,
		surface: cfg.Surface,
		sched:   cfg.Scheduler,
		style:   DefaultStyle(),
		history: NewHistory(UndoDepth),
		remote:  make(map[string]*remoteStroke),
		own:     make(map[string]struct{}),
		members: make(map[int64]models.CanvasMember),
	}
	for _, name := range []string{
		wire.EventStrokeStart,
		wire.EventStrokeMove,
		wire.EventStrokeEnd,
		wire.EventPermissionUpdated,
	} {
		e.offs = append(e.offs, e.tx.On(name, e.listener(name)))
	}
	return e
}

// RoomID is the drawing room this engine serves.
func (e *Engine) RoomID() string { return e.room }

// Surface is what the engine paints into.
func (e *Engine) Surface() Surface { return e.surface }

// listener decodes on the transport goroutine and applies on the loop.
func (e *Engine) listener(name string) transport.Handler {
	return func(raw json.RawMessage) {
		ev, err := wire.Decode(&wire.Frame{Event: name, Data: raw})
		if err != nil {
			log.Debug().Err(err).Str("canvas", e.room).Msg("[canvas] drop event")
			return
		}
		e.sched.Post(func() { e.apply(ev) })
	}
}

func (e *Engine) apply(ev wire.Event) {
	if e.closed {
		return
	}
	switch ev := ev.(type) {
	case wire.StrokeStart:
		e.remoteStart(ev)
	case wire.StrokeMove:
		e.remoteMove(ev)
	case wire.StrokeEnd:
		e.remoteEnd(ev)
	case wire.PermissionUpdated:
		e.permissionUpdated(ev)
	}
}

// Join requests the stored strokes and replays them onto a cleared
// surface. It blocks on the request and must not be called on the loop;
// the replay itself is posted to the loop. A rejection is logged and
// leaves the surface blank; it is not retried.
func (e *Engine) Join(ctx context.Context) error {
	raw, err := e.tx.Request(ctx, wire.EventCanvasJoin, wire.CanvasJoinRequest{CanvasRoomID: e.room})
	if err != nil {
		log.Warn().Err(err).Str("canvas", e.room).Msg("[canvas] join failed")
		return fmt.Errorf("canvas join %s: %w", e.room, err)
	}
	var resp wire.CanvasJoinResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		log.Warn().Err(err).Str("canvas", e.room).Msg("[canvas] join reply malformed")
		return fmt.Errorf("canvas join %s: %w: %v", e.room, wire.ErrMalformed, err)
	}
	if !resp.OK {
		log.Warn().Str("canvas", e.room).Str("reason", resp.Error).Msg("[canvas] join rejected")
		return fmt.Errorf("%w: %s", ErrJoinRejected, resp.Error)
	}
	e.sched.Post(func() { e.replay(resp.Strokes) })
	return nil
}

// LoadMembers fetches the member list with canvas:member:get. Like Join it
// blocks and posts the result to the loop.
func (e *Engine) LoadMembers(ctx context.Context) error {
	raw, err := e.tx.Request(ctx, wire.EventCanvasMemberGet, wire.CanvasJoinRequest{CanvasRoomID: e.room})
	if err != nil {
		return fmt.Errorf("canvas members %s: %w", e.room, err)
	}
	var resp wire.CanvasMembersResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return fmt.Errorf("canvas members %s: %w: %v", e.room, wire.ErrMalformed, err)
	}
	e.sched.Post(func() { e.SetMembers(resp.Members) })
	return nil
}

func (e *Engine) replay(strokes []wire.StoredStroke) {
	if e.closed {
		return
	}
	e.surface.Clear()
	e.history.Reset()
	sorted := append([]wire.StoredStroke(nil), strokes...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].StartedAt < sorted[j].StartedAt })
	drawn := 0
	for _, st := range sorted {
		pts := wire.ParseStoredPoints(st.PointsJSON)
		if len(pts) < 2 {
			continue
		}
		style := Style{Color: st.Color, Width: st.Width, Composite: st.Composite}.orDefault()
		for i := 1; i < len(pts); i++ {
			e.surface.DrawSegment(toPixels(e.surface, pts[i-1]), toPixels(e.surface, pts[i]), style)
		}
		drawn++
	}
	log.Debug().Str("canvas", e.room).Int("strokes", drawn).Msg("[canvas] replayed")
	if e.cfg.OnReplay != nil {
		e.cfg.OnReplay(drawn)
	}
	e.changed()
}

// SetStyle changes the style of the next local stroke.
func (e *Engine) SetStyle(st Style) {
	e.style = st.orDefault()
}

func (e *Engine) Style() Style { return e.style }

// Pointer returns the local gesture state.
func (e *Engine) Pointer() Pointer { return e.ptr }

// PointerDown starts a local stroke at surface position (x, y). It reports
// false when drawing is not permitted.
func (e *Engine) PointerDown(x, y float64) bool {
	if e.closed || !e.CanDraw() {
		return false
	}
	if e.ptr.Phase == PhaseDrawing {
		e.endStroke()
	}
	at := fromPixels(e.surface, x, y)
	id := e.cfg.NewID()
	e.history.Push(e.surface.Snapshot())
	e.ptr = e.ptr.down(id, at)
	e.own[id] = struct{}{}
	start := wire.StrokeStart{
		CanvasRoomID: e.room,
		StrokeID:     id,
		Color:        e.style.Color,
		Width:        e.style.Width,
		Composite:    e.style.Composite,
		T:            e.cfg.Now().UnixMilli(),
		Point:        &at,
	}
	if err := e.tx.Emit(wire.EventStrokeStart, start); err != nil {
		log.Warn().Err(err).Str("canvas", e.room).Msg("[canvas] announce stroke")
	}
	return true
}

// PointerMove draws the segment locally right away and buffers the point
// for the next flush.
func (e *Engine) PointerMove(x, y float64) {
	if e.closed || e.ptr.Phase != PhaseDrawing {
		return
	}
	at := fromPixels(e.surface, x, y)
	e.surface.DrawSegment(toPixels(e.surface, e.ptr.Last), toPixels(e.surface, at), e.style)
	e.ptr = e.ptr.move(at)
	at.T = e.cfg.Now().UnixMilli()
	e.buf = append(e.buf, at)
	e.scheduleFlush()
	e.changed()
}

// PointerUp flushes buffered points and announces the end of the stroke.
func (e *Engine) PointerUp() {
	if e.ptr.Phase != PhaseDrawing {
		return
	}
	e.endStroke()
}

// PointerCancel behaves like PointerUp.
func (e *Engine) PointerCancel() {
	e.PointerUp()
}

func (e *Engine) endStroke() {
	e.stopFlush()
	e.flush()
	end := wire.StrokeEnd{CanvasRoomID: e.room, StrokeID: e.ptr.StrokeID, T: e.cfg.Now().UnixMilli()}
	e.ptr = e.ptr.up()
	if err := e.tx.Emit(wire.EventStrokeEnd, end); err != nil {
		log.Warn().Err(err).Str("canvas", e.room).Msg("[canvas] end stroke")
	}
}

func (e *Engine) scheduleFlush() {
	if e.stopTmr != nil {
		return
	}
	e.stopTmr = e.sched.AfterFunc(FlushInterval, func() {
		e.stopTmr = nil
		if !e.closed {
			e.flush()
		}
	})
}

func (e *Engine) stopFlush() {
	if e.stopTmr != nil {
		e.stopTmr()
		e.stopTmr = nil
	}
}

func (e *Engine) flush() {
	if e.ptr.StrokeID == "" || len(e.buf) == 0 {
		return
	}
	mv := wire.StrokeMove{CanvasRoomID: e.room, StrokeID: e.ptr.StrokeID, Points: e.buf}
	e.buf = nil
	if err := e.tx.Emit(wire.EventStrokeMove, mv); err != nil {
		log.Warn().Err(err).Str("canvas", e.room).Msg("[canvas] flush points")
	}
}

// Undo restores the surface to before the last local stroke.
func (e *Engine) Undo() bool {
	if e.closed || e.ptr.Phase == PhaseDrawing {
		return false
	}
	snap, ok := e.history.Undo(e.surface.Snapshot())
	if !ok {
		return false
	}
	e.surface.Restore(snap)
	e.changed()
	return true
}

// Redo reapplies the last undone state.
func (e *Engine) Redo() bool {
	if e.closed || e.ptr.Phase == PhaseDrawing {
		return false
	}
	snap, ok := e.history.Redo(e.surface.Snapshot())
	if !ok {
		return false
	}
	e.surface.Restore(snap)
	e.changed()
	return true
}

func (e *Engine) CanUndo() bool { return e.history.CanUndo() }
func (e *Engine) CanRedo() bool { return e.history.CanRedo() }

// Disconnected drops state that a resync will rebuild: the remote stroke
// records and any local stroke in progress.
func (e *Engine) Disconnected() {
	e.stopFlush()
	e.buf = nil
	e.ptr = Pointer{}
	e.remote = make(map[string]*remoteStroke)
}

// Close detaches every listener and releases the stroke state. A stroke in
// progress is ended first.
func (e *Engine) Close() {
	if e.closed {
		return
	}
	if e.ptr.Phase == PhaseDrawing {
		e.endStroke()
	}
	e.closed = true
	for _, off := range e.offs {
		off()
	}
	e.offs = nil
	e.remote = nil
	e.own = nil
	e.buf = nil
	e.history.Reset()
}

// Closed reports whether Close ran.
func (e *Engine) Closed() bool { return e.closed }

func (e *Engine) changed() {
	if e.cfg.OnChange != nil {
		e.cfg.OnChange()
	}
}

// Package session wires the message store, read receipts, pagination and
// the drawing engine to one chat connection. Everything stateful runs on a
// single Loop; transport goroutines only decode and post.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/drawchat/canvas"
	"github.com/gosuda/drawchat/messages"
	"github.com/gosuda/drawchat/models"
	"github.com/gosuda/drawchat/notify"
	"github.com/gosuda/drawchat/pager"
	"github.com/gosuda/drawchat/prefs"
	"github.com/gosuda/drawchat/receipts"
	"github.com/gosuda/drawchat/transport"
	"github.com/gosuda/drawchat/view"
	"github.com/gosuda/drawchat/wire"
)

var (
	ErrClosed         = errors.New("session closed")
	ErrOffline        = errors.New("not connected")
	ErrEmptyMessage   = errors.New("empty message")
	ErrUnknownMessage = errors.New("unknown message")
	ErrNotAuthor      = errors.New("only the author can delete a message")
	ErrNoCanvas       = errors.New("no drawing room open")
	ErrNotReady       = errors.New("identity not assigned yet")
	ErrBadAvatar      = errors.New("avatar must be an http(s) URL")
	ErrNotInvite      = errors.New("message is not a canvas invite")
)

// JoinTimeout bounds the canvas:join and canvas:member:get requests.
const JoinTimeout = 10 * time.Second

// Options configures a Session.
type Options struct {
	RoomID    string
	Transport transport.Duplex
	// Loop defaults to a new loop owned by the session.
	Loop *Loop
	// Notices defaults to a center on real timers.
	Notices *notify.Center
	// Prefs is optional; without it the side preference is "both".
	Prefs *prefs.Store
	// Registerer receives the session metrics when set.
	Registerer prometheus.Registerer
	// NewSurface builds the drawing surface for each opened room.
	NewSurface func() canvas.Surface
	Now        func() time.Time
	// OnChange runs on the loop after any visible change.
	OnChange func()
}

// Session is one client's view of a chat room.
type Session struct {
	opts    Options
	loop    *Loop
	ownLoop bool
	tx      transport.Duplex
	room    string
	metrics *metrics

	store    *messages.Store
	receipts *receipts.Aggregator
	pager    *pager.Controller
	ack      receipts.AckPolicy
	follow   *view.Follow
	notices  *notify.Center

	me        models.Me
	connected bool
	everUp    bool
	lostID    string
	distance  float64
	anchor    *pager.Anchor
	merged    bool
	rooms     []models.CanvasRoomSummary
	users     []models.RoomUser

	engine      *canvas.Engine
	canvasReady bool

	offs   []func()
	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New attaches the inbound listeners. The session starts disconnected;
// feed connectivity changes to HandleState.
func New(opts Options) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Session{
		opts:     opts,
		loop:     opts.Loop,
		tx:       opts.Transport,
		room:     opts.RoomID,
		metrics:  newMetrics(opts.Registerer),
		store:    messages.NewStore(),
		receipts: receipts.NewAggregator(),
		follow:   view.NewFollow(),
		notices:  opts.Notices,
	}
	if s.loop == nil {
		s.loop = NewLoop(DefaultQueue)
		s.ownLoop = true
	}
	if s.notices == nil {
		s.notices = notify.NewCenter(nil)
	}
	s.pager = pager.New(s.room, s.tx, s.store)
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.listen()
	return s
}

// Loop is the loop the session state lives on.
func (s *Session) Loop() *Loop { return s.loop }

// Notices is the session's notification center.
func (s *Session) Notices() *notify.Center { return s.notices }

// HandleState reacts to connectivity changes; it is safe to call from the
// transport goroutine.
func (s *Session) HandleState(st transport.State) {
	s.loop.Post(func() {
		if s.closed {
			return
		}
		if st == transport.StateConnected {
			s.onConnect()
		} else {
			s.onDisconnect()
		}
		s.changed()
	})
}

func (s *Session) onConnect() {
	s.connected = true
	s.metrics.connected.Set(1)
	if s.lostID != "" {
		s.notices.Dismiss(s.lostID)
		s.lostID = ""
		s.notices.Info("reconnected")
	}
	s.everUp = true
	s.emit(wire.EventJoin, wire.JoinRequest{RoomID: s.room})
	s.emit(wire.EventHistoryLatest, wire.HistoryLatestRequest{RoomID: s.room, Limit: pager.PageSize})
	s.pager.Abort()
	if s.engine != nil {
		s.canvasReady = false
		s.joinCanvas(s.engine)
	}
	log.Info().Str("room", s.room).Msg("[session] connected")
}

func (s *Session) onDisconnect() {
	if !s.connected && s.everUp {
		return
	}
	s.connected = false
	s.metrics.connected.Set(0)
	s.pager.Abort()
	if s.engine != nil {
		s.engine.Disconnected()
	}
	if s.lostID == "" {
		s.lostID = s.notices.Push(notify.Notice{
			Text:     "connection lost, reconnecting",
			Kind:     notify.KindWarning,
			Duration: notify.Sticky,
		})
	}
	log.Info().Str("room", s.room).Msg("[session] disconnected")
}

func (s *Session) emit(event string, payload interface{}) bool {
	if err := s.tx.Emit(event, payload); err != nil {
		log.Warn().Err(err).Str("event", event).Msg("[session] emit")
		return false
	}
	return true
}

func (s *Session) changed() {
	if s.opts.OnChange != nil {
		s.opts.OnChange()
	}
}

// do runs fn on the loop and returns its error.
func (s *Session) do(fn func() error) error {
	var err error
	if !s.loop.Do(func() {
		if s.closed {
			err = ErrClosed
			return
		}
		err = fn()
	}) {
		return ErrClosed
	}
	return err
}

// Flush waits until every event posted so far has been applied.
func (s *Session) Flush() {
	s.loop.Do(func() {})
}

// Close detaches the listeners, closes an open drawing room and stops the
// loop if the session created it. It must not be called from the loop.
func (s *Session) Close() {
	if !s.loop.Do(func() { s.closed = true }) {
		return
	}
	s.cancel()
	s.wg.Wait()
	s.loop.Do(func() {
		if s.engine != nil {
			s.engine.Close()
			s.engine = nil
		}
		for _, off := range s.offs {
			off()
		}
		s.offs = nil
		s.notices.DismissAll()
		s.metrics.connected.Set(0)
	})
	if s.ownLoop {
		s.loop.Close()
	}
	log.Debug().Str("room", s.room).Msg("[session] closed")
}

// Snapshot is a consistent copy of everything the interface shows.
type Snapshot struct {
	Me        models.Me
	Connected bool
	View      view.Model
	Notices   []notify.Notice
	Rooms     []models.CanvasRoomSummary
	Users     []models.RoomUser
	Canvas    *CanvasState
}

// CanvasState describes the open drawing room.
type CanvasState struct {
	RoomID  string
	Ready   bool
	CanDraw bool
	IsOwner bool
	CanUndo bool
	CanRedo bool
	Drawing bool
	Style   canvas.Style
	Members []models.CanvasMember
}

// Snapshot builds the view model on the loop.
func (s *Session) Snapshot() (Snapshot, error) {
	var snap Snapshot
	err := s.do(func() error {
		snap = s.snapshot()
		return nil
	})
	return snap, err
}

func (s *Session) snapshot() Snapshot {
	side := prefs.SideBoth
	if s.opts.Prefs != nil {
		side = s.opts.Prefs.Side()
	}
	snap := Snapshot{
		Me:        s.me,
		Connected: s.connected,
		View: view.Build(view.Input{
			MeID:        s.me.ID,
			Messages:    s.store.Ordered(),
			Receipts:    s.receipts,
			Side:        side,
			Connected:   s.connected,
			HasMore:     s.pager.HasMore(),
			Loading:     s.pager.Loading(),
			NewMessages: s.follow.Indicator(),
			Now:         s.opts.Now(),
		}),
		Notices: s.notices.Active(notify.TopCenter),
		Rooms:   append([]models.CanvasRoomSummary(nil), s.rooms...),
		Users:   append([]models.RoomUser(nil), s.users...),
	}
	if e := s.engine; e != nil {
		snap.Canvas = &CanvasState{
			RoomID:  e.RoomID(),
			Ready:   s.canvasReady,
			CanDraw: e.CanDraw(),
			IsOwner: e.IsOwner(),
			CanUndo: e.CanUndo(),
			CanRedo: e.CanRedo(),
			Drawing: e.Pointer().Phase == canvas.PhaseDrawing,
			Style:   e.Style(),
			Members: e.Members(),
		}
	}
	return snap
}

// LastAcked is the highest message id this session acknowledged.
func (s *Session) LastAcked() int64 {
	var id int64
	s.loop.Do(func() { id = s.ack.LastAcked() })
	return id
}

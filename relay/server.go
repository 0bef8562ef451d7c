// Package relay is an in-memory development server for the drawchat
// protocol: chat rooms with history, reactions and read state, plus
// drawing rooms with stroke relay, membership and permissions.
package relay

import (
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/drawchat/models"
	"github.com/gosuda/drawchat/session"
	"github.com/gosuda/drawchat/view"
	"github.com/gosuda/drawchat/wire"
)

// DefaultHistoryKeep bounds each room's in-memory history.
const DefaultHistoryKeep = 5000

// MaxTextRunes caps a message body.
const MaxTextRunes = 2000

// Options configures a Server.
type Options struct {
	HistoryKeep int
	// Store persists chat history when set.
	Store      *HistoryStore
	Registerer prometheus.Registerer
	Now        func() time.Time
}

// Server holds every room. All state lives on one loop; connection
// goroutines only parse frames and post them.
type Server struct {
	opts    Options
	loop    *session.Loop
	metrics *metrics

	nextUser int64
	nextMsg  int64
	conns    map[*conn]struct{}
	rooms    map[string]*chatRoom
	canvases map[string]*canvasRoom
	invites  map[string]*invite
	// profile token -> user id, so reconnecting clients keep their id
	profiles map[string]int64

	wg sync.WaitGroup
}

func NewServer(opts Options) (*Server, error) {
	if opts.HistoryKeep <= 0 {
		opts.HistoryKeep = DefaultHistoryKeep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Server{
		opts:     opts,
		loop:     session.NewLoop(1024),
		metrics:  newMetrics(opts.Registerer),
		conns:    make(map[*conn]struct{}),
		rooms:    make(map[string]*chatRoom),
		canvases: make(map[string]*canvasRoom),
		invites:  make(map[string]*invite),
		profiles: make(map[string]int64),
	}
	if opts.Store != nil {
		last, err := opts.Store.LastID()
		if err != nil {
			s.loop.Close()
			return nil, err
		}
		s.nextMsg = last
	}
	return s, nil
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Router serves the websocket endpoint and a health check.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()
	r.Get("/ws", s.handleWS)
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return r
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("[relay] upgrade websocket")
		return
	}
	c := newConn(s, ws)
	q := r.URL.Query()
	name := view.SanitizeName(q.Get("name"))
	profile := q.Get("profile")

	s.wg.Add(2)
	s.loop.Post(func() { s.register(c, name, profile) })
	go func() {
		defer s.wg.Done()
		c.writePump()
	}()
	go func() {
		defer s.wg.Done()
		c.readPump()
		s.loop.Post(func() { s.unregister(c) })
	}()
}

func (s *Server) register(c *conn, name, profile string) {
	id, known := s.profiles[profile]
	if !known {
		s.nextUser++
		id = s.nextUser
		if profile != "" {
			s.profiles[profile] = id
		}
	}
	c.user = models.Me{ID: id, Name: name}
	if name == "anon" {
		c.user.Name = "guest-" + strconv.FormatInt(id, 10)
	}
	s.conns[c] = struct{}{}
	s.metrics.connections.Set(float64(len(s.conns)))
	c.push(wire.EventMe, c.user)
	log.Debug().Int64("user", c.user.ID).Str("name", c.user.Name).Msg("[relay] connected")
}

func (s *Server) unregister(c *conn) {
	if _, ok := s.conns[c]; !ok {
		return
	}
	delete(s.conns, c)
	if room := s.rooms[c.room]; room != nil {
		delete(room.members, c)
	}
	c.close()
	s.metrics.connections.Set(float64(len(s.conns)))
	log.Debug().Int64("user", c.user.ID).Msg("[relay] disconnected")
}

// dispatch handles one client frame on the loop.
func (s *Server) dispatch(c *conn, f *wire.Frame) {
	if _, ok := s.conns[c]; !ok {
		return
	}
	s.metrics.events.WithLabelValues(f.Event).Inc()
	var err error
	switch f.Event {
	case wire.EventJoin:
		err = s.join(c, f.Data)
	case wire.EventHistoryLatest:
		err = s.historyLatest(c, f.Data)
	case wire.EventHistoryBefore:
		err = s.historyBefore(c, f.Data)
	case wire.EventSend:
		err = s.send(c, f.Data)
	case wire.EventMessageDelete:
		err = s.deleteMessage(c, f.Data)
	case wire.EventReactionToggle:
		err = s.toggleReaction(c, f.Data)
	case wire.EventReadAck:
		err = s.readAck(c, f.Data)
	case wire.EventMeUpdate:
		err = s.meUpdate(c, f.Data)
	case wire.EventCanvasCreate:
		err = s.createCanvas(c, f.Data)
	case wire.EventCanvasInviteAcpt:
		err = s.acceptInvite(c, f.Data)
	case wire.EventCanvasJoin:
		s.joinCanvas(c, f)
	case wire.EventCanvasMemberGet:
		s.canvasMembers(c, f)
	case wire.EventPermissionSet:
		err = s.setPermission(c, f.Data)
	case wire.EventStrokeStart, wire.EventStrokeMove, wire.EventStrokeEnd:
		err = s.stroke(c, f)
	default:
		s.metrics.rejected.WithLabelValues("unknown").Inc()
		log.Debug().Str("event", f.Event).Msg("[relay] unknown event")
		return
	}
	if err != nil {
		s.metrics.rejected.WithLabelValues(f.Event).Inc()
		log.Debug().Err(err).Str("event", f.Event).Int64("user", c.user.ID).Msg("[relay] rejected")
		c.push(wire.EventError, wire.Error{Code: "bad_request", Message: err.Error()})
	}
}

// Close disconnects every client and waits for their goroutines.
func (s *Server) Close() {
	s.loop.Do(func() {
		for c := range s.conns {
			c.close()
		}
	})
	s.wg.Wait()
	s.loop.Close()
	log.Info().Msg("[relay] closed")
}

func decode(raw json.RawMessage, v interface{}) error {
	if len(raw) == 0 {
		return wire.ErrMalformed
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return wire.ErrMalformed
	}
	return nil
}

package session

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/drawchat/canvas"
	"github.com/gosuda/drawchat/raster"
)

// Default surface size when Options.NewSurface is unset.
const (
	DefaultCanvasWidth  = 800
	DefaultCanvasHeight = 600
)

// OpenCanvas enters a drawing room, closing the previous one. The join
// runs in the background; Snapshot reports Ready once the stored strokes
// are drawn. Before the connection is up the join waits for it.
func (s *Session) OpenCanvas(canvasRoomID string) error {
	canvasRoomID = strings.TrimSpace(canvasRoomID)
	return s.do(func() error {
		if s.me.ID == 0 {
			return ErrNotReady
		}
		if s.engine != nil {
			if s.engine.RoomID() == canvasRoomID {
				return nil
			}
			s.closeCanvas()
		}
		surface := s.newSurface()
		var eng *canvas.Engine
		eng = canvas.NewEngine(canvas.Config{
			CanvasRoomID: canvasRoomID,
			UserID:       s.me.ID,
			Transport:    s.tx,
			Surface:      surface,
			Scheduler:    s.loop,
			Now:          s.opts.Now,
			OnReplay: func(n int) {
				s.metrics.replayed.Add(float64(n))
				if s.engine == eng {
					s.canvasReady = true
				}
			},
			OnChange: s.changed,
		})
		s.engine = eng
		s.canvasReady = false
		if s.connected {
			s.joinCanvas(eng)
		}
		log.Info().Str("canvas", canvasRoomID).Msg("[session] canvas opened")
		s.changed()
		return nil
	})
}

func (s *Session) newSurface() canvas.Surface {
	if s.opts.NewSurface != nil {
		return s.opts.NewSurface()
	}
	return raster.New(DefaultCanvasWidth, DefaultCanvasHeight)
}

// joinCanvas runs the blocking join off the loop.
func (s *Session) joinCanvas(eng *canvas.Engine) {
	if s.closed {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(s.ctx, JoinTimeout)
		defer cancel()
		if err := eng.Join(ctx); err != nil {
			s.loop.Post(func() {
				if s.closed || s.engine != eng {
					return
				}
				s.notices.Error("could not open the drawing room")
				s.changed()
			})
			return
		}
		if err := eng.LoadMembers(ctx); err != nil {
			log.Warn().Err(err).Str("canvas", eng.RoomID()).Msg("[session] load canvas members")
		}
	}()
}

// CloseCanvas leaves the open drawing room, if any.
func (s *Session) CloseCanvas() error {
	return s.do(func() error {
		if s.engine == nil {
			return ErrNoCanvas
		}
		s.closeCanvas()
		s.changed()
		return nil
	})
}

func (s *Session) closeCanvas() {
	log.Info().Str("canvas", s.engine.RoomID()).Msg("[session] canvas closed")
	s.engine.Close()
	s.engine = nil
	s.canvasReady = false
}

// Canvas runs fn on the loop with the open drawing engine.
func (s *Session) Canvas(fn func(e *canvas.Engine) error) error {
	return s.do(func() error {
		if s.engine == nil {
			return ErrNoCanvas
		}
		err := fn(s.engine)
		s.changed()
		return err
	})
}

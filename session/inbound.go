package session

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/drawchat/messages"
	"github.com/gosuda/drawchat/transport"
	"github.com/gosuda/drawchat/wire"
)

// inbound lists the chat events the session handles. Stroke and permission
// events belong to the canvas engine.
var inbound = []string{
	wire.EventMe,
	wire.EventHistory,
	wire.EventHistoryLatest,
	wire.EventHistoryBefore,
	wire.EventMessage,
	wire.EventMessageDeleted,
	wire.EventReactionUpdate,
	wire.EventReadState,
	wire.EventReadUpdate,
	wire.EventCanvasRooms,
	wire.EventError,
}

func (s *Session) listen() {
	for _, name := range inbound {
		s.offs = append(s.offs, s.tx.On(name, s.handler(name)))
	}
}

// handler validates on the transport goroutine; only well-formed events
// reach the loop.
func (s *Session) handler(name string) transport.Handler {
	return func(raw json.RawMessage) {
		ev, err := wire.Decode(&wire.Frame{Event: name, Data: raw})
		if err != nil {
			s.metrics.dropped.WithLabelValues(DropMalformed).Inc()
			log.Debug().Err(err).Str("event", name).Msg("[session] drop event")
			return
		}
		s.loop.Post(func() {
			if s.closed {
				s.metrics.dropped.WithLabelValues(DropClosed).Inc()
				return
			}
			s.metrics.frames.WithLabelValues(name).Inc()
			s.apply(ev)
			s.changed()
		})
	}
}

func (s *Session) apply(ev wire.Event) {
	switch ev := ev.(type) {
	case wire.Me:
		s.me = ev.Me
	case wire.History:
		s.applyHistory(ev)
	case wire.MessageEvent:
		s.store.ApplyUpsert(ev.Message)
		s.follow.Rows(s.store.Len())
		s.ackNewest()
	case wire.MessageDeleted:
		s.store.ApplyDelete(ev.MessageID)
		s.follow.Shrunk(s.store.Len())
	case wire.ReactionUpdate:
		s.store.ApplyReactionUpdate(ev.MessageID, ev.Reactions, ev.ReactedUsers)
	case wire.ReadState:
		s.receipts.SetState(ev.Rows)
	case wire.ReadUpdate:
		s.receipts.ApplyUpdate(ev.UserID, ev.LastReadMessageID, ev.LastReadAt)
		if ev.Name != "" {
			s.receipts.SetName(ev.UserID, ev.Name)
		}
	case wire.CanvasRooms:
		s.rooms = ev.Rooms
		if ev.Users != nil {
			s.users = ev.Users
		}
	case wire.Error:
		log.Warn().Str("code", ev.Code).Str("message", ev.Message).Msg("[session] server error")
		if ev.Message != "" {
			s.notices.Error(ev.Message)
		}
	}
}

func (s *Session) applyHistory(ev wire.History) {
	if ev.Name == wire.EventHistoryBefore {
		s.pager.HandlePage(ev.Messages, ev.HasMore)
		s.follow.Prepended(s.store.Len())
		if s.anchor != nil {
			s.merged = true
		}
		return
	}
	s.store.ApplyHistory(ev.Messages, messages.ModeReplace)
	s.pager.HandleLatest(len(ev.Messages), ev.HasMore)
	s.anchor, s.merged = nil, false
	s.follow.Dismiss()
	s.follow.Rows(s.store.Len())
	s.distance = 0
	s.ackNewest()
}

// ackNewest acknowledges the newest message while the reader follows the
// bottom of the conversation.
func (s *Session) ackNewest() {
	if !s.follow.NearBottom() {
		return
	}
	if newest, ok := s.store.Newest(); ok {
		s.ackVisible(newest.ID)
	}
}

func (s *Session) ackVisible(id int64) {
	if !s.connected {
		return
	}
	last, ok := s.ack.Observe(s.distance, id)
	if !ok {
		return
	}
	if s.emit(wire.EventReadAck, wire.ReadAck{RoomID: s.room, LastReadMessageID: last}) {
		s.metrics.acks.Inc()
	}
}

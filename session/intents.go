package session

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gosuda/drawchat/models"
	"github.com/gosuda/drawchat/pager"
	"github.com/gosuda/drawchat/wire"
)

// DefaultCanvasTitle names drawing rooms created without a title.
const DefaultCanvasTitle = "drawing"

// Send posts text, optionally as a reply to replyTo (0 for none).
func (s *Session) Send(text string, replyTo int64) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	return s.do(func() error {
		if !s.connected {
			return ErrOffline
		}
		req := wire.SendRequest{RoomID: s.room, Text: text}
		if replyTo > 0 {
			if _, ok := s.store.Get(replyTo); !ok {
				return fmt.Errorf("%w: %d", ErrUnknownMessage, replyTo)
			}
			req.ReplyToMessageID = &replyTo
		}
		return s.tx.Emit(wire.EventSend, req)
	})
}

// Delete asks the server to delete one of the user's own messages.
func (s *Session) Delete(messageID int64) error {
	return s.do(func() error {
		if !s.connected {
			return ErrOffline
		}
		m, ok := s.store.Get(messageID)
		if !ok {
			return fmt.Errorf("%w: %d", ErrUnknownMessage, messageID)
		}
		if m.AuthorID != s.me.ID {
			return ErrNotAuthor
		}
		return s.tx.Emit(wire.EventMessageDelete, wire.DeleteRequest{RoomID: s.room, MessageID: messageID})
	})
}

// ToggleReaction adds or removes the user's emoji reaction.
func (s *Session) ToggleReaction(messageID int64, emoji string) error {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" {
		return fmt.Errorf("%w: reaction", ErrEmptyMessage)
	}
	return s.do(func() error {
		if !s.connected {
			return ErrOffline
		}
		if _, ok := s.store.Get(messageID); !ok {
			return fmt.Errorf("%w: %d", ErrUnknownMessage, messageID)
		}
		return s.tx.Emit(wire.EventReactionToggle, wire.ReactionToggle{RoomID: s.room, MessageID: messageID, Emoji: emoji})
	})
}

// UpdateAvatar changes the user's avatar image.
func (s *Session) UpdateAvatar(raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrBadAvatar, raw)
	}
	return s.do(func() error {
		if !s.connected {
			return ErrOffline
		}
		if err := s.tx.Emit(wire.EventMeUpdate, wire.MeUpdate{AvatarURL: u.String()}); err != nil {
			return err
		}
		s.me.AvatarURL = u.String()
		s.changed()
		return nil
	})
}

// Viewport is the scroll geometry of the message pane.
type Viewport struct {
	ScrollTop    float64
	ScrollHeight float64
	ClientHeight float64
	// HighestVisibleID is the newest message on screen; 0 means the newest
	// stored message.
	HighestVisibleID int64
}

// Viewport records a scroll. It acknowledges what the reader sees at the
// bottom and requests an older page near the top.
func (s *Session) Viewport(v Viewport) error {
	return s.do(func() error {
		dist := v.ScrollHeight - v.ScrollTop - v.ClientHeight
		if dist < 0 {
			dist = 0
		}
		s.distance = dist
		s.follow.Scrolled(dist)
		if v.HighestVisibleID > 0 {
			s.ackVisible(v.HighestVisibleID)
		} else {
			s.ackNewest()
		}
		if s.connected && s.pager.RequestOlderPage(v.ScrollTop) {
			a := pager.Capture(v.ScrollHeight, v.ScrollTop)
			s.anchor, s.merged = &a, false
		}
		s.changed()
		return nil
	})
}

// RestoreScroll returns the scrollTop that keeps the previously visible
// row in place once a backfilled page has been laid out at newHeight. It
// reports false when no page was merged since the last call.
func (s *Session) RestoreScroll(newHeight float64) (top float64, ok bool) {
	s.loop.Do(func() {
		if s.anchor == nil || !s.merged {
			return
		}
		top, ok = s.anchor.Restore(newHeight), true
		s.anchor, s.merged = nil, false
	})
	return top, ok
}

// LoadOlder requests the page before the oldest stored message regardless
// of scroll position. It reports whether a request went out.
func (s *Session) LoadOlder() (bool, error) {
	var sent bool
	err := s.do(func() error {
		if !s.connected {
			return ErrOffline
		}
		sent = s.pager.RequestOlderPage(0)
		s.changed()
		return nil
	})
	return sent, err
}

// JumpToBottom dismisses the new-message indicator and acknowledges the
// newest message.
func (s *Session) JumpToBottom() error {
	return s.do(func() error {
		s.follow.Dismiss()
		s.distance = 0
		s.ackNewest()
		s.changed()
		return nil
	})
}

// CreateCanvasRoom creates a drawing room and invites users. With no ids
// every known room user except the caller is invited.
func (s *Session) CreateCanvasRoom(title string, invited []int64) error {
	title = strings.TrimSpace(title)
	if title == "" {
		title = DefaultCanvasTitle
	}
	return s.do(func() error {
		if !s.connected {
			return ErrOffline
		}
		ids := append([]int64(nil), invited...)
		if len(ids) == 0 {
			for _, u := range s.users {
				if u.UserID != s.me.ID {
					ids = append(ids, u.UserID)
				}
			}
		}
		if ids == nil {
			ids = []int64{}
		}
		return s.tx.Emit(wire.EventCanvasCreate, wire.CanvasCreateRequest{RoomID: s.room, Title: title, InvitedUserIDs: ids})
	})
}

// AcceptInvite accepts the canvas invite carried by a message.
func (s *Session) AcceptInvite(messageID int64) error {
	return s.do(func() error {
		if !s.connected {
			return ErrOffline
		}
		m, ok := s.store.Get(messageID)
		if !ok {
			return fmt.Errorf("%w: %d", ErrUnknownMessage, messageID)
		}
		if m.Kind != models.KindCanvasInvite || m.Meta == nil || m.Meta.InviteID == "" {
			return ErrNotInvite
		}
		return s.tx.Emit(wire.EventCanvasInviteAcpt, wire.InviteAccept{InviteID: m.Meta.InviteID})
	})
}

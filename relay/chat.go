package relay

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/drawchat/models"
	"github.com/gosuda/drawchat/pager"
	"github.com/gosuda/drawchat/wire"
)

// MaxPage caps the limit of a history request.
const MaxPage = 200

var (
	errNotJoined      = errors.New("join the room first")
	errEmptyText      = errors.New("message is empty")
	errUnknownMessage = errors.New("unknown message")
	errNotAuthor      = errors.New("only the author can delete a message")
	errBadAvatar      = errors.New("avatar must be an http(s) URL")
)

type chatRoom struct {
	id      string
	msgs    []*models.Message
	members map[*conn]struct{}
	reads   map[int64]*models.ReadWatermark
	users   map[int64]*models.RoomUser
}

// historyPage is the payload of history:latest and history:before.
type historyPage struct {
	Messages []*models.Message `json:"messages"`
	HasMore  bool              `json:"hasMore"`
}

func (s *Server) room(id string) *chatRoom {
	if r, ok := s.rooms[id]; ok {
		return r
	}
	r := &chatRoom{
		id:      id,
		members: make(map[*conn]struct{}),
		reads:   make(map[int64]*models.ReadWatermark),
		users:   make(map[int64]*models.RoomUser),
	}
	if s.opts.Store != nil {
		msgs, err := s.opts.Store.Recent(id, s.opts.HistoryKeep)
		if err != nil {
			log.Warn().Err(err).Str("room", id).Msg("[relay] load history failed; starting empty")
		} else {
			r.msgs = msgs
			log.Info().Str("room", id).Int("messages", len(msgs)).Msg("[relay] history loaded")
		}
	}
	s.rooms[id] = r
	return r
}

// joined returns the room c is in, if it is roomID.
func (s *Server) joined(c *conn, roomID string) (*chatRoom, error) {
	if roomID == "" || roomID != c.room {
		return nil, errNotJoined
	}
	return s.rooms[roomID], nil
}

func (r *chatRoom) find(id int64) (int, *models.Message) {
	i := sort.Search(len(r.msgs), func(i int) bool { return r.msgs[i].ID >= id })
	if i < len(r.msgs) && r.msgs[i].ID == id {
		return i, r.msgs[i]
	}
	return -1, nil
}

func (r *chatRoom) broadcast(event string, payload interface{}) {
	for c := range r.members {
		c.push(event, payload)
	}
}

func (r *chatRoom) readState() []models.ReadWatermark {
	rows := make([]models.ReadWatermark, 0, len(r.reads))
	for _, w := range r.reads {
		rows = append(rows, *w)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].UserID < rows[j].UserID })
	return rows
}

func (r *chatRoom) userList() []models.RoomUser {
	out := make([]models.RoomUser, 0, len(r.users))
	for _, u := range r.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (s *Server) join(c *conn, raw []byte) error {
	var req wire.JoinRequest
	if err := decode(raw, &req); err != nil {
		return err
	}
	id := strings.TrimSpace(req.RoomID)
	if id == "" {
		return fmt.Errorf("%w: roomId", wire.ErrMalformed)
	}
	if prev := s.rooms[c.room]; prev != nil {
		delete(prev.members, c)
	}
	r := s.room(id)
	c.room = id
	r.members[c] = struct{}{}
	if u, ok := r.users[c.user.ID]; ok {
		u.Name, u.AvatarURL = c.user.Name, c.user.AvatarURL
	} else {
		r.users[c.user.ID] = &models.RoomUser{UserID: c.user.ID, Name: c.user.Name, AvatarURL: c.user.AvatarURL}
	}
	c.push(wire.EventReadState, wire.ReadState{Rows: r.readState()})
	for m := range r.members {
		s.pushCanvasRooms(m)
	}
	log.Debug().Str("room", id).Int64("user", c.user.ID).Msg("[relay] joined")
	return nil
}

func pageLimit(n int) int {
	if n <= 0 {
		return pager.PageSize
	}
	if n > MaxPage {
		return MaxPage
	}
	return n
}

func (s *Server) historyLatest(c *conn, raw []byte) error {
	var req wire.HistoryLatestRequest
	if err := decode(raw, &req); err != nil {
		return err
	}
	r, err := s.joined(c, req.RoomID)
	if err != nil {
		return err
	}
	limit := pageLimit(req.Limit)
	from := len(r.msgs) - limit
	if from < 0 {
		from = 0
	}
	c.push(wire.EventHistoryLatest, historyPage{
		Messages: append([]*models.Message{}, r.msgs[from:]...),
		HasMore:  from > 0,
	})
	return nil
}

func (s *Server) historyBefore(c *conn, raw []byte) error {
	var req wire.HistoryBeforeRequest
	if err := decode(raw, &req); err != nil {
		return err
	}
	r, err := s.joined(c, req.RoomID)
	if err != nil {
		return err
	}
	var older []*models.Message
	for _, m := range r.msgs {
		if m.Timestamp.Millis() < req.BeforeTS {
			older = append(older, m)
		}
	}
	limit := pageLimit(req.Limit)
	from := len(older) - limit
	if from < 0 {
		from = 0
	}
	c.push(wire.EventHistoryBefore, historyPage{
		Messages: append([]*models.Message{}, older[from:]...),
		HasMore:  from > 0,
	})
	return nil
}

func (s *Server) send(c *conn, raw []byte) error {
	var req wire.SendRequest
	if err := decode(raw, &req); err != nil {
		return err
	}
	r, err := s.joined(c, req.RoomID)
	if err != nil {
		return err
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return errEmptyText
	}
	if runes := []rune(text); len(runes) > MaxTextRunes {
		text = string(runes[:MaxTextRunes])
	}
	m := s.newMessage(c, r, text)
	if req.ReplyToMessageID != nil {
		_, target := r.find(*req.ReplyToMessageID)
		if target == nil {
			return fmt.Errorf("%w: %d", errUnknownMessage, *req.ReplyToMessageID)
		}
		m.Reply = &models.ReplyRef{
			MessageID:  target.ID,
			AuthorID:   target.AuthorID,
			AuthorName: target.AuthorName,
			Text:       target.Text,
			Timestamp:  target.Timestamp,
		}
	}
	s.appendMessage(r, m)
	return nil
}

func (s *Server) newMessage(c *conn, r *chatRoom, text string) *models.Message {
	s.nextMsg++
	m := &models.Message{
		ID:         s.nextMsg,
		RoomID:     r.id,
		Text:       text,
		Timestamp:  models.FromMillis(s.opts.Now().UnixMilli()),
		AuthorID:   c.user.ID,
		AuthorName: c.user.Name,
		Avatar:     c.user.AvatarURL,
		Kind:       models.KindText,
	}
	m.Normalize()
	return m
}

// appendMessage stores m, trims the room to HistoryKeep and broadcasts it.
func (s *Server) appendMessage(r *chatRoom, m *models.Message) {
	r.msgs = append(r.msgs, m)
	if over := len(r.msgs) - s.opts.HistoryKeep; over > 0 {
		r.msgs = append([]*models.Message(nil), r.msgs[over:]...)
	}
	if u := r.users[m.AuthorID]; u != nil {
		u.LastMessageAt = m.Timestamp.Millis()
	}
	s.persist(m)
	r.broadcast(wire.EventMessage, m)
}

func (s *Server) persist(m *models.Message) {
	if s.opts.Store == nil {
		return
	}
	if err := s.opts.Store.Put(m); err != nil {
		log.Warn().Err(err).Int64("id", m.ID).Msg("[relay] persist message")
	}
}

func (s *Server) deleteMessage(c *conn, raw []byte) error {
	var req wire.DeleteRequest
	if err := decode(raw, &req); err != nil {
		return err
	}
	r, err := s.joined(c, req.RoomID)
	if err != nil {
		return err
	}
	i, m := r.find(req.MessageID)
	if m == nil {
		return fmt.Errorf("%w: %d", errUnknownMessage, req.MessageID)
	}
	if m.AuthorID != c.user.ID {
		return errNotAuthor
	}
	r.msgs = append(r.msgs[:i], r.msgs[i+1:]...)
	for _, other := range r.msgs {
		if other.Reply != nil && other.Reply.MessageID == m.ID && !bool(other.Reply.Deleted) {
			other.Reply.Deleted = true
			s.persist(other)
		}
	}
	if s.opts.Store != nil {
		if err := s.opts.Store.Delete(r.id, m.ID); err != nil {
			log.Warn().Err(err).Int64("id", m.ID).Msg("[relay] delete persisted message")
		}
	}
	r.broadcast(wire.EventMessageDeleted, wire.MessageDeleted{MessageID: m.ID})
	return nil
}

func (s *Server) toggleReaction(c *conn, raw []byte) error {
	var req wire.ReactionToggle
	if err := decode(raw, &req); err != nil {
		return err
	}
	r, err := s.joined(c, req.RoomID)
	if err != nil {
		return err
	}
	emoji := strings.TrimSpace(req.Emoji)
	if emoji == "" || len(emoji) > 32 {
		return fmt.Errorf("%w: emoji", wire.ErrMalformed)
	}
	_, m := r.find(req.MessageID)
	if m == nil {
		return fmt.Errorf("%w: %d", errUnknownMessage, req.MessageID)
	}
	users := m.ReactedUsers[emoji]
	kept := make([]int64, 0, len(users)+1)
	removed := false
	for _, uid := range users {
		if uid == c.user.ID {
			removed = true
			continue
		}
		kept = append(kept, uid)
	}
	if !removed {
		kept = append(kept, c.user.ID)
	}
	if len(kept) == 0 {
		delete(m.ReactedUsers, emoji)
		delete(m.Reactions, emoji)
	} else {
		m.ReactedUsers[emoji] = kept
		m.Reactions[emoji] = len(kept)
	}
	s.persist(m)
	r.broadcast(wire.EventReactionUpdate, wire.ReactionUpdate{
		MessageID:    m.ID,
		Reactions:    m.Reactions,
		ReactedUsers: m.ReactedUsers,
	})
	return nil
}

func (s *Server) readAck(c *conn, raw []byte) error {
	var req wire.ReadAck
	if err := decode(raw, &req); err != nil {
		return err
	}
	r, err := s.joined(c, req.RoomID)
	if err != nil {
		return err
	}
	if req.LastReadMessageID <= 0 {
		return fmt.Errorf("%w: lastReadMessageId", wire.ErrMalformed)
	}
	w, ok := r.reads[c.user.ID]
	if !ok {
		w = &models.ReadWatermark{UserID: c.user.ID}
		r.reads[c.user.ID] = w
	}
	w.Name = c.user.Name
	if w.LastReadMessageID != nil && *w.LastReadMessageID >= req.LastReadMessageID {
		return nil
	}
	id, at := req.LastReadMessageID, s.opts.Now().UnixMilli()
	w.LastReadMessageID, w.LastReadAt = &id, &at
	r.broadcast(wire.EventReadUpdate, wire.ReadUpdate{
		UserID:            c.user.ID,
		Name:              c.user.Name,
		LastReadMessageID: &id,
		LastReadAt:        &at,
	})
	return nil
}

func (s *Server) meUpdate(c *conn, raw []byte) error {
	var req wire.MeUpdate
	if err := decode(raw, &req); err != nil {
		return err
	}
	u, err := url.Parse(strings.TrimSpace(req.AvatarURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errBadAvatar
	}
	c.user.AvatarURL = u.String()
	if r := s.rooms[c.room]; r != nil {
		if ru := r.users[c.user.ID]; ru != nil {
			ru.AvatarURL = c.user.AvatarURL
		}
	}
	c.push(wire.EventMe, c.user)
	return nil
}

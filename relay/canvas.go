package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/drawchat/models"
	"github.com/gosuda/drawchat/view"
	"github.com/gosuda/drawchat/wire"
)

// Per-room stroke bounds; the oldest strokes go first.
const (
	MaxStrokes      = 10000
	MaxStrokePoints = 10000
)

var (
	errUnknownCanvas = errors.New("unknown drawing room")
	errNotMember     = errors.New("not a member of the drawing room")
	errNotOwner      = errors.New("only the owner can change permissions")
	errCannotDraw    = errors.New("drawing is not permitted")
	errUnknownInvite = errors.New("unknown invite")
	errNotInvited    = errors.New("invite is for someone else")
	errStroke        = errors.New("stroke rejected")
)

type canvasRoom struct {
	id        string
	title     string
	chatRoom  string
	createdAt int64
	members   map[int64]*models.CanvasMember
	strokes   []*models.Stroke
	byID      map[string]*models.Stroke
}

type invite struct {
	id      string
	canvas  string
	invited map[int64]struct{}
}

func (cr *canvasRoom) summary(uid int64) (models.CanvasRoomSummary, bool) {
	m, ok := cr.members[uid]
	if !ok {
		return models.CanvasRoomSummary{}, false
	}
	return models.CanvasRoomSummary{
		ID:          cr.id,
		Title:       cr.title,
		Role:        m.Role,
		CanDraw:     m.CanDraw,
		MemberCount: len(cr.members),
		CreatedAt:   cr.createdAt,
	}, true
}

func (cr *canvasRoom) memberList() []models.CanvasMember {
	out := make([]models.CanvasMember, 0, len(cr.members))
	for _, m := range cr.members {
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (cr *canvasRoom) addStroke(st *models.Stroke) {
	cr.strokes = append(cr.strokes, st)
	cr.byID[st.ID] = st
	if over := len(cr.strokes) - MaxStrokes; over > 0 {
		for _, old := range cr.strokes[:over] {
			delete(cr.byID, old.ID)
		}
		cr.strokes = append([]*models.Stroke(nil), cr.strokes[over:]...)
	}
}

// pushCanvasRooms tells c which drawing rooms it belongs to and who is in
// its chat room.
func (s *Server) pushCanvasRooms(c *conn) {
	var rooms []models.CanvasRoomSummary
	for _, cr := range s.canvases {
		if sum, ok := cr.summary(c.user.ID); ok {
			rooms = append(rooms, sum)
		}
	}
	sort.Slice(rooms, func(i, j int) bool {
		if rooms[i].CreatedAt != rooms[j].CreatedAt {
			return rooms[i].CreatedAt < rooms[j].CreatedAt
		}
		return rooms[i].ID < rooms[j].ID
	})
	ev := wire.CanvasRooms{Rooms: rooms}
	if ev.Rooms == nil {
		ev.Rooms = []models.CanvasRoomSummary{}
	}
	if r := s.rooms[c.room]; r != nil {
		ev.Users = r.userList()
	}
	c.push(wire.EventCanvasRooms, ev)
}

// pushCanvasRoomsTo refreshes the room list of every connection of uid.
func (s *Server) pushCanvasRoomsTo(uid int64) {
	for c := range s.conns {
		if c.user.ID == uid {
			s.pushCanvasRooms(c)
		}
	}
}

// broadcastCanvas sends to every connection inside the drawing room except
// skip.
func (s *Server) broadcastCanvas(cr *canvasRoom, event string, payload interface{}, skip *conn) {
	for c := range s.conns {
		if c != skip && c.canvas == cr.id {
			c.push(event, payload)
		}
	}
}

func (s *Server) createCanvas(c *conn, raw []byte) error {
	var req wire.CanvasCreateRequest
	if err := decode(raw, &req); err != nil {
		return err
	}
	r, err := s.joined(c, req.RoomID)
	if err != nil {
		return err
	}
	title := view.PlainText(view.SanitizeText(strings.TrimSpace(req.Title)))
	if title == "" {
		title = "drawing"
	}
	now := s.opts.Now().UnixMilli()
	cr := &canvasRoom{
		id:        ulid.Make().String(),
		title:     title,
		chatRoom:  r.id,
		createdAt: now,
		members:   make(map[int64]*models.CanvasMember),
		byID:      make(map[string]*models.Stroke),
	}
	cr.members[c.user.ID] = &models.CanvasMember{
		CanvasRoomID: cr.id,
		UserID:       c.user.ID,
		Role:         models.RoleOwner,
		CanDraw:      true,
		JoinedAt:     now,
	}
	s.canvases[cr.id] = cr

	inv := &invite{id: ulid.Make().String(), canvas: cr.id, invited: make(map[int64]struct{})}
	ids := make([]int64, 0, len(req.InvitedUserIDs))
	for _, uid := range req.InvitedUserIDs {
		if uid != c.user.ID {
			inv.invited[uid] = struct{}{}
			ids = append(ids, uid)
		}
	}
	s.invites[inv.id] = inv

	m := s.newMessage(c, r, title)
	m.Kind = models.KindCanvasInvite
	m.Meta = &models.CanvasInvite{CanvasRoomID: cr.id, InviteID: inv.id, InvitedUserIDs: ids, Title: title}
	s.appendMessage(r, m)
	s.pushCanvasRooms(c)
	log.Info().Str("canvas", cr.id).Str("title", title).Int("invited", len(ids)).Msg("[relay] drawing room created")
	return nil
}

func (s *Server) acceptInvite(c *conn, raw []byte) error {
	var req wire.InviteAccept
	if err := decode(raw, &req); err != nil {
		return err
	}
	inv, ok := s.invites[req.InviteID]
	if !ok {
		return errUnknownInvite
	}
	if _, ok := inv.invited[c.user.ID]; len(inv.invited) > 0 && !ok {
		return errNotInvited
	}
	cr, ok := s.canvases[inv.canvas]
	if !ok {
		return errUnknownCanvas
	}
	if _, member := cr.members[c.user.ID]; !member {
		cr.members[c.user.ID] = &models.CanvasMember{
			CanvasRoomID: cr.id,
			UserID:       c.user.ID,
			Role:         models.RoleMember,
			CanDraw:      true,
			JoinedAt:     s.opts.Now().UnixMilli(),
		}
	}
	s.pushCanvasRooms(c)
	return nil
}

func (s *Server) member(c *conn, canvasRoomID string) (*canvasRoom, *models.CanvasMember, error) {
	cr, ok := s.canvases[canvasRoomID]
	if !ok {
		return nil, nil, errUnknownCanvas
	}
	m, ok := cr.members[c.user.ID]
	if !ok {
		return nil, nil, errNotMember
	}
	return cr, m, nil
}

func (s *Server) joinCanvas(c *conn, f *wire.Frame) {
	var req wire.CanvasJoinRequest
	if err := decode(f.Data, &req); err != nil {
		c.reply(f.Ack, wire.CanvasJoinResponse{Error: err.Error()})
		return
	}
	cr, _, err := s.member(c, req.CanvasRoomID)
	if err != nil {
		s.metrics.rejected.WithLabelValues(f.Event).Inc()
		c.reply(f.Ack, wire.CanvasJoinResponse{CanvasRoomID: req.CanvasRoomID, Error: err.Error()})
		return
	}
	c.canvas = cr.id
	strokes := make([]wire.StoredStroke, 0, len(cr.strokes))
	for _, st := range cr.strokes {
		pts, err := json.Marshal(st.Points)
		if err != nil {
			continue
		}
		strokes = append(strokes, wire.StoredStroke{
			ID:           st.ID,
			CanvasRoomID: cr.id,
			UserID:       st.AuthorID,
			Color:        st.Color,
			Width:        st.Width,
			Composite:    st.Composite,
			StartedAt:    st.StartedAt,
			EndedAt:      st.EndedAt,
			PointsJSON:   string(pts),
		})
	}
	c.reply(f.Ack, wire.CanvasJoinResponse{OK: true, CanvasRoomID: cr.id, Strokes: strokes})
}

func (s *Server) canvasMembers(c *conn, f *wire.Frame) {
	var req wire.CanvasJoinRequest
	resp := wire.CanvasMembersResponse{Members: []models.CanvasMember{}}
	if err := decode(f.Data, &req); err == nil {
		if cr, _, err := s.member(c, req.CanvasRoomID); err == nil {
			resp.Members = cr.memberList()
		}
	}
	c.reply(f.Ack, resp)
}

func (s *Server) setPermission(c *conn, raw []byte) error {
	var req wire.PermissionSet
	if err := decode(raw, &req); err != nil {
		return err
	}
	cr, me, err := s.member(c, req.CanvasRoomID)
	if err != nil {
		return err
	}
	if !me.IsOwner() {
		return errNotOwner
	}
	target, ok := cr.members[req.TargetUserID]
	if !ok || target.IsOwner() {
		return fmt.Errorf("%w: %d", errNotMember, req.TargetUserID)
	}
	target.CanDraw = models.Flag(req.CanDraw)
	s.broadcastCanvas(cr, wire.EventPermissionUpdated, wire.PermissionUpdated{
		CanvasRoomID: cr.id,
		TargetUserID: target.UserID,
		CanDraw:      target.CanDraw,
	}, nil)
	s.pushCanvasRoomsTo(target.UserID)
	return nil
}

// stroke validates a stroke event from its author, records it and relays
// it to the other participants in the room.
func (s *Server) stroke(c *conn, f *wire.Frame) error {
	ev, err := wire.Decode(f)
	if err != nil {
		return err
	}
	var roomID string
	switch ev := ev.(type) {
	case wire.StrokeStart:
		roomID = ev.CanvasRoomID
	case wire.StrokeMove:
		roomID = ev.CanvasRoomID
	case wire.StrokeEnd:
		roomID = ev.CanvasRoomID
	}
	cr, m, err := s.member(c, roomID)
	if err != nil {
		return err
	}
	if c.canvas != cr.id {
		return errNotMember
	}
	if !m.CanDraw {
		return errCannotDraw
	}
	now := s.opts.Now().UnixMilli()

	switch ev := ev.(type) {
	case wire.StrokeStart:
		if _, dup := cr.byID[ev.StrokeID]; dup {
			return fmt.Errorf("%w: duplicate id %s", errStroke, ev.StrokeID)
		}
		st := &models.Stroke{
			ID:           ev.StrokeID,
			CanvasRoomID: cr.id,
			AuthorID:     c.user.ID,
			Color:        orString(ev.Color, models.DefaultColor),
			Width:        ev.Width,
			Composite:    orString(ev.Composite, models.DefaultComposite),
			StartedAt:    orInt(ev.T, now),
		}
		if st.Width <= 0 {
			st.Width = models.DefaultWidth
		}
		if ev.Point != nil {
			st.Points = append(st.Points, *ev.Point)
		}
		cr.addStroke(st)
		ev.UserID = c.user.ID
		s.broadcastCanvas(cr, wire.EventStrokeStart, ev, c)
	case wire.StrokeMove:
		st, err := ownStroke(cr, ev.StrokeID, c.user.ID)
		if err != nil {
			return err
		}
		room := MaxStrokePoints - len(st.Points)
		if room <= 0 {
			return fmt.Errorf("%w: %s is full", errStroke, st.ID)
		}
		pts := ev.Points
		if len(pts) > room {
			pts = pts[:room]
		}
		st.Points = append(st.Points, pts...)
		ev.Points = pts
		s.broadcastCanvas(cr, wire.EventStrokeMove, ev, c)
	case wire.StrokeEnd:
		st, err := ownStroke(cr, ev.StrokeID, c.user.ID)
		if err != nil {
			return err
		}
		st.EndedAt = orInt(ev.T, now)
		s.broadcastCanvas(cr, wire.EventStrokeEnd, ev, c)
	}
	return nil
}

func ownStroke(cr *canvasRoom, id string, uid int64) (*models.Stroke, error) {
	st, ok := cr.byID[id]
	if !ok || st.AuthorID != uid {
		return nil, fmt.Errorf("%w: unknown stroke %s", errStroke, id)
	}
	if st.Closed() {
		return nil, fmt.Errorf("%w: %s already ended", errStroke, id)
	}
	return st, nil
}

func orString(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func orInt(v, def int64) int64 {
	if v <= 0 {
		return def
	}
	return v
}

// Package wire defines the named events exchanged with the chat server and
// validates inbound payloads at the transport boundary.
package wire

import "github.com/gosuda/drawchat/models"

// Outbound event names.
const (
	EventJoin             = "join"
	EventSend             = "send"
	EventMessageDelete    = "message:delete"
	EventReactionToggle   = "reaction:toggle"
	EventReadAck          = "read:ack"
	EventMeUpdate         = "me:update"
	EventCanvasJoin       = "canvas:join"
	EventCanvasMemberGet  = "canvas:member:get"
	EventPermissionSet    = "canvas:permission:set"
	EventCanvasCreate     = "canvas:room:create_and_invite"
	EventCanvasInviteAcpt = "canvas:invite:accept"
)

// Inbound event names. history:latest and history:before are also sent
// outbound as requests.
const (
	EventMe                = "me"
	EventHistory           = "history"
	EventHistoryLatest     = "history:latest"
	EventHistoryBefore     = "history:before"
	EventMessage           = "message"
	EventMessageDeleted    = "message:deleted"
	EventReactionUpdate    = "reaction:update"
	EventReadState         = "read:state"
	EventReadUpdate        = "read:update"
	EventCanvasRooms       = "canvas:rooms"
	EventPermissionUpdated = "canvas:permission:updated"
	EventError             = "error"
)

// Stroke events flow in both directions.
const (
	EventStrokeStart = "canvas:stroke:start"
	EventStrokeMove  = "canvas:stroke:move"
	EventStrokeEnd   = "canvas:stroke:end"
)

// EventAck marks a frame that answers a request.
const EventAck = "ack"

// Event is implemented by every decoded inbound payload.
type Event interface {
	EventName() string
}

// Outbound payloads.

type JoinRequest struct {
	RoomID string `json:"roomId"`
}

type SendRequest struct {
	RoomID           string `json:"roomId"`
	Text             string `json:"text"`
	ReplyToMessageID *int64 `json:"replyToMessageId,omitempty"`
	Type             string `json:"type,omitempty"`
}

type DeleteRequest struct {
	RoomID    string `json:"roomId"`
	MessageID int64  `json:"messageId"`
}

type ReactionToggle struct {
	RoomID    string `json:"roomId"`
	MessageID int64  `json:"messageId"`
	Emoji     string `json:"emoji"`
}

type ReadAck struct {
	RoomID            string `json:"roomId"`
	LastReadMessageID int64  `json:"lastReadMessageId"`
}

type MeUpdate struct {
	AvatarURL string `json:"avatarUrl"`
}

type HistoryLatestRequest struct {
	RoomID string `json:"roomId"`
	Limit  int    `json:"limit"`
}

type HistoryBeforeRequest struct {
	RoomID   string `json:"roomId"`
	BeforeTS int64  `json:"beforeTs"`
	Limit    int    `json:"limit"`
}

type CanvasJoinRequest struct {
	CanvasRoomID string `json:"canvasRoomId"`
}

// CanvasJoinResponse is the acknowledgement of canvas:join.
type CanvasJoinResponse struct {
	OK           bool           `json:"ok"`
	CanvasRoomID string         `json:"canvasRoomId"`
	ClearedAt    int64          `json:"clearedAt,omitempty"`
	Strokes      []StoredStroke `json:"strokes"`
	Error        string         `json:"error,omitempty"`
}

// StoredStroke is a stroke as the server keeps it, points as a JSON string.
type StoredStroke struct {
	ID           string  `json:"id"`
	CanvasRoomID string  `json:"canvasRoomId"`
	UserID       int64   `json:"userId"`
	Color        string  `json:"color"`
	Width        float64 `json:"width"`
	Composite    string  `json:"composite"`
	StartedAt    int64   `json:"startedAt"`
	EndedAt      int64   `json:"endedAt"`
	PointsJSON   string  `json:"pointsJson"`
}

// CanvasMembersResponse is the acknowledgement of canvas:member:get.
type CanvasMembersResponse struct {
	Members []models.CanvasMember `json:"members"`
}

type PermissionSet struct {
	CanvasRoomID string `json:"canvasRoomId"`
	TargetUserID int64  `json:"targetUserId"`
	CanDraw      bool   `json:"canDraw"`
}

type CanvasCreateRequest struct {
	RoomID         string  `json:"roomId"`
	Title          string  `json:"title"`
	InvitedUserIDs []int64 `json:"invitedUserIds"`
}

type InviteAccept struct {
	InviteID string `json:"inviteId"`
}

// Inbound payloads.

type Me struct {
	models.Me
}

func (Me) EventName() string { return EventMe }

// History carries a page of messages. Name is the event it arrived on, so
// consumers can tell a snapshot from a backfill page.
type History struct {
	Name     string
	Messages []*models.Message
	HasMore  *bool
}

func (h History) EventName() string { return h.Name }

type MessageEvent struct {
	Message *models.Message
}

func (MessageEvent) EventName() string { return EventMessage }

type MessageDeleted struct {
	MessageID int64 `json:"messageId"`
}

func (MessageDeleted) EventName() string { return EventMessageDeleted }

type ReactionUpdate struct {
	MessageID    int64              `json:"messageId"`
	Reactions    map[string]int     `json:"reactions"`
	ReactedUsers map[string][]int64 `json:"reactedUsers"`
}

func (ReactionUpdate) EventName() string { return EventReactionUpdate }

type ReadState struct {
	Rows []models.ReadWatermark `json:"readState"`
}

func (ReadState) EventName() string { return EventReadState }

type ReadUpdate struct {
	UserID            int64  `json:"userId"`
	Name              string `json:"name,omitempty"`
	LastReadMessageID *int64 `json:"lastReadMessageId"`
	LastReadAt        *int64 `json:"lastReadAt"`
}

func (ReadUpdate) EventName() string { return EventReadUpdate }

type CanvasRooms struct {
	Rooms []models.CanvasRoomSummary `json:"rooms"`
	Users []models.RoomUser          `json:"users,omitempty"`
}

func (CanvasRooms) EventName() string { return EventCanvasRooms }

// StrokeStart announces a new stroke. Point is nil when the sender did not
// include a first point.
type StrokeStart struct {
	CanvasRoomID string        `json:"canvasRoomId"`
	StrokeID     string        `json:"strokeId"`
	UserID       int64         `json:"userId,omitempty"`
	Color        string        `json:"color"`
	Width        float64       `json:"width"`
	Composite    string        `json:"composite"`
	T            int64         `json:"t"`
	Point        *models.Point `json:"point,omitempty"`
}

func (StrokeStart) EventName() string { return EventStrokeStart }

type StrokeMove struct {
	CanvasRoomID string         `json:"canvasRoomId"`
	StrokeID     string         `json:"strokeId"`
	Points       []models.Point `json:"points"`
}

func (StrokeMove) EventName() string { return EventStrokeMove }

type StrokeEnd struct {
	CanvasRoomID string `json:"canvasRoomId"`
	StrokeID     string `json:"strokeId"`
	T            int64  `json:"t"`
}

func (StrokeEnd) EventName() string { return EventStrokeEnd }

type PermissionUpdated struct {
	CanvasRoomID string      `json:"canvasRoomId"`
	TargetUserID int64       `json:"targetUserId"`
	CanDraw      models.Flag `json:"canDraw"`
}

func (PermissionUpdated) EventName() string { return EventPermissionUpdated }

type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (Error) EventName() string { return EventError }

package wire

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/gosuda/drawchat/models"
)

var (
	ErrUnknownEvent = errors.New("unknown event")
	ErrMalformed    = errors.New("malformed payload")
)

// Frame is the envelope of every websocket message. Ack is non-zero when
// the sender expects a reply, and on the reply itself (Event == EventAck).
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   uint64          `json:"ack,omitempty"`
}

// NewFrame marshals payload into a frame.
func NewFrame(event string, ack uint64, payload interface{}) (*Frame, error) {
	f := &Frame{Event: event, Ack: ack}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s: %w", event, err)
		}
		f.Data = raw
	}
	return f, nil
}

// ParseFrame parses a websocket message into a frame.
func ParseFrame(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if f.Event == "" {
		return nil, fmt.Errorf("%w: missing event name", ErrMalformed)
	}
	return &f, nil
}

// Decode converts an inbound frame into its typed event.
func Decode(f *Frame) (Event, error) {
	switch f.Event {
	case EventMe:
		var me Me
		if err := unmarshal(f, &me.Me); err != nil {
			return nil, err
		}
		return me, nil
	case EventHistory, EventHistoryLatest, EventHistoryBefore:
		return decodeHistory(f)
	case EventMessage:
		m, ok := decodeMessage(f.Data)
		if !ok {
			return nil, fmt.Errorf("%w: %s without id", ErrMalformed, f.Event)
		}
		return MessageEvent{Message: m}, nil
	case EventMessageDeleted:
		var ev MessageDeleted
		if err := unmarshal(f, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case EventReactionUpdate:
		var ev ReactionUpdate
		if err := unmarshal(f, &ev); err != nil {
			return nil, err
		}
		if ev.Reactions == nil {
			ev.Reactions = map[string]int{}
		}
		if ev.ReactedUsers == nil {
			ev.ReactedUsers = map[string][]int64{}
		}
		return ev, nil
	case EventReadState:
		var ev ReadState
		if isArray(f.Data) {
			if err := json.Unmarshal(f.Data, &ev.Rows); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, f.Event, err)
			}
		} else if err := unmarshal(f, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case EventReadUpdate:
		var ev ReadUpdate
		if err := unmarshal(f, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case EventCanvasRooms:
		var ev CanvasRooms
		if isArray(f.Data) {
			if err := json.Unmarshal(f.Data, &ev.Rooms); err != nil {
				return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, f.Event, err)
			}
		} else if err := unmarshal(f, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case EventStrokeStart:
		return decodeStrokeStart(f)
	case EventStrokeMove:
		return decodeStrokeMove(f)
	case EventStrokeEnd:
		var ev StrokeEnd
		if err := unmarshal(f, &ev); err != nil {
			return nil, err
		}
		if ev.StrokeID == "" {
			return nil, fmt.Errorf("%w: %s without strokeId", ErrMalformed, f.Event)
		}
		return ev, nil
	case EventPermissionUpdated:
		var ev PermissionUpdated
		if err := unmarshal(f, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	case EventError:
		var ev Error
		if err := unmarshal(f, &ev); err != nil {
			return nil, err
		}
		return ev, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Event)
}

func unmarshal(f *Frame, v interface{}) error {
	if len(f.Data) == 0 {
		return fmt.Errorf("%w: %s without data", ErrMalformed, f.Event)
	}
	if err := json.Unmarshal(f.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, f.Event, err)
	}
	return nil
}

func isArray(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	return len(raw) > 0 && raw[0] == '['
}

func decodeHistory(f *Frame) (Event, error) {
	ev := History{Name: f.Event}
	var items []json.RawMessage
	switch {
	case len(bytes.TrimSpace(f.Data)) == 0 || bytes.Equal(bytes.TrimSpace(f.Data), []byte("null")):
	case isArray(f.Data):
		if err := json.Unmarshal(f.Data, &items); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, f.Event, err)
		}
	default:
		var obj struct {
			Messages []json.RawMessage `json:"messages"`
			HasMore  *bool             `json:"hasMore"`
		}
		if err := json.Unmarshal(f.Data, &obj); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, f.Event, err)
		}
		items = obj.Messages
		ev.HasMore = obj.HasMore
	}
	ev.Messages = make([]*models.Message, 0, len(items))
	for _, raw := range items {
		if m, ok := decodeMessage(raw); ok {
			ev.Messages = append(ev.Messages, m)
		}
	}
	return ev, nil
}

// decodeMessage parses one message. Messages without a positive id cannot
// be ordered and are rejected.
func decodeMessage(raw json.RawMessage) (*models.Message, bool) {
	var m models.Message
	if err := json.Unmarshal(raw, &m); err != nil || m.ID <= 0 {
		return nil, false
	}
	m.Normalize()
	return &m, true
}

func decodeStrokeStart(f *Frame) (Event, error) {
	var aux struct {
		StrokeStart
		Point json.RawMessage `json:"point"`
	}
	if err := unmarshal(f, &aux); err != nil {
		return nil, err
	}
	ev := aux.StrokeStart
	if ev.StrokeID == "" {
		return nil, fmt.Errorf("%w: %s without strokeId", ErrMalformed, f.Event)
	}
	ev.Point = nil
	if p, ok := ParsePoint(aux.Point); ok {
		ev.Point = &p
	}
	return ev, nil
}

func decodeStrokeMove(f *Frame) (Event, error) {
	var aux struct {
		CanvasRoomID string          `json:"canvasRoomId"`
		StrokeID     string          `json:"strokeId"`
		Points       json.RawMessage `json:"points"`
	}
	if err := unmarshal(f, &aux); err != nil {
		return nil, err
	}
	if aux.StrokeID == "" {
		return nil, fmt.Errorf("%w: %s without strokeId", ErrMalformed, f.Event)
	}
	return StrokeMove{
		CanvasRoomID: aux.CanvasRoomID,
		StrokeID:     aux.StrokeID,
		Points:       ParsePoints(aux.Points),
	}, nil
}

// ParsePoints decodes a JSON array of points, skipping entries that are not
// valid points. Anything that is not an array yields no points.
func ParsePoints(raw json.RawMessage) []models.Point {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return []models.Point{}
	}
	out := make([]models.Point, 0, len(items))
	for _, item := range items {
		if p, ok := ParsePoint(item); ok {
			out = append(out, p)
		}
	}
	return out
}

// ParseStoredPoints decodes the pointsJson string of a stored stroke.
func ParseStoredPoints(pointsJSON string) []models.Point {
	if pointsJSON == "" {
		return []models.Point{}
	}
	return ParsePoints(json.RawMessage(pointsJSON))
}

// ParsePoint decodes one point. Coordinates may be numbers or numeric
// strings; the result is clamped to [0,1].
func ParsePoint(raw json.RawMessage) (models.Point, bool) {
	var aux struct {
		NX json.RawMessage `json:"nx"`
		NY json.RawMessage `json:"ny"`
		T  json.RawMessage `json:"t"`
	}
	if len(raw) == 0 || json.Unmarshal(raw, &aux) != nil {
		return models.Point{}, false
	}
	nx, ok := number(aux.NX)
	if !ok {
		return models.Point{}, false
	}
	ny, ok := number(aux.NY)
	if !ok {
		return models.Point{}, false
	}
	p := models.Point{NX: nx, NY: ny}
	if t, ok := number(aux.T); ok {
		p.T = int64(t)
	}
	return p.Clamped(), true
}

func number(raw json.RawMessage) (float64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	s := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &s); err != nil {
			return 0, false
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

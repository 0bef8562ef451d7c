package models

import "math"

// Canvas member roles.
const (
	RoleOwner  = "owner"
	RoleMember = "member"
)

// Default stroke style.
const (
	DefaultColor     = "rgba(255,255,255,0.8)"
	DefaultWidth     = 10
	DefaultComposite = "source-over"
)

// Point is a canvas coordinate expressed as a fraction of width and height.
type Point struct {
	NX float64 `json:"nx"`
	NY float64 `json:"ny"`
	T  int64   `json:"t,omitempty"`
}

// Clamped returns p with both axes clamped to [0,1]; NaN becomes 0.
func (p Point) Clamped() Point {
	p.NX = Clamp01(p.NX)
	p.NY = Clamp01(p.NY)
	return p
}

// Clamp01 clamps v to [0,1] and maps NaN to 0.
func Clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}

// Stroke is one freehand gesture.
type Stroke struct {
	ID           string  `json:"id"`
	CanvasRoomID string  `json:"canvasRoomId"`
	AuthorID     int64   `json:"userId"`
	Color        string  `json:"color"`
	Width        float64 `json:"width"`
	Composite    string  `json:"composite"`
	Points       []Point `json:"points,omitempty"`
	StartedAt    int64   `json:"startedAt"`
	EndedAt      int64   `json:"endedAt"`
}

// Closed reports whether the end event for the stroke has been seen.
func (s *Stroke) Closed() bool {
	return s.EndedAt > 0
}

// CanvasMember is one participant of a drawing room.
type CanvasMember struct {
	CanvasRoomID string `json:"canvasRoomId"`
	UserID       int64  `json:"userId"`
	Role         string `json:"role"`
	CanDraw      Flag   `json:"canDraw"`
	JoinedAt     int64  `json:"joinedAt,omitempty"`
}

// IsOwner reports whether the member owns the room.
func (m CanvasMember) IsOwner() bool {
	return m.Role == RoleOwner
}

// CanvasRoomSummary describes a drawing room the user can enter.
type CanvasRoomSummary struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Role        string `json:"role"`
	CanDraw     Flag   `json:"canDraw"`
	MemberCount int    `json:"memberCount"`
	CreatedAt   int64  `json:"createdAt"`
}

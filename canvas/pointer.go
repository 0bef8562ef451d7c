package canvas

import "github.com/gosuda/drawchat/models"

// Phase is the local pointer state.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDrawing
)

func (p Phase) String() string {
	if p == PhaseDrawing {
		return "drawing"
	}
	return "idle"
}

// Pointer is the local gesture state. StrokeID is set only while drawing.
type Pointer struct {
	Phase    Phase
	StrokeID string
	Last     models.Point
}

// down starts a gesture.
func (p Pointer) down(id string, at models.Point) Pointer {
	return Pointer{Phase: PhaseDrawing, StrokeID: id, Last: at}
}

// move extends a gesture. An idle pointer is unchanged.
func (p Pointer) move(at models.Point) Pointer {
	if p.Phase != PhaseDrawing {
		return p
	}
	p.Last = at
	return p
}

// up ends a gesture.
func (p Pointer) up() Pointer {
	return Pointer{}
}

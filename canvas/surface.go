// Package canvas replicates freehand strokes between participants of a
// drawing room: local prediction, remote stroke buffering and local
// undo/redo.
package canvas

import (
	"time"

	"github.com/gosuda/drawchat/models"
)

const (
	// FlushInterval batches outgoing move points.
	FlushInterval = 16 * time.Millisecond
	// UndoDepth bounds the undo stack.
	UndoDepth = 30
)

// Composite operations understood by every Surface.
const (
	CompositeSourceOver     = "source-over"
	CompositeDestinationOut = "destination-out"
)

// Pos is a position in surface pixels.
type Pos struct {
	X, Y float64
}

// Style is how a stroke is painted.
type Style struct {
	Color     string  `json:"color"`
	Width     float64 `json:"width"`
	Composite string  `json:"composite"`
}

// DefaultStyle is used for any field a stroke leaves empty.
func DefaultStyle() Style {
	return Style{Color: models.DefaultColor, Width: models.DefaultWidth, Composite: models.DefaultComposite}
}

// orDefault fills empty fields from DefaultStyle.
func (s Style) orDefault() Style {
	d := DefaultStyle()
	if s.Color == "" {
		s.Color = d.Color
	}
	if s.Width <= 0 {
		s.Width = d.Width
	}
	if s.Composite == "" {
		s.Composite = d.Composite
	}
	return s
}

// Surface is the pixel target of an Engine. Device pixels exist only
// behind this interface; the engine works in normalized points.
type Surface interface {
	Size() (w, h int)
	Clear()
	DrawSegment(from, to Pos, st Style)
	// Snapshot captures the whole surface; Restore puts it back.
	Snapshot() []byte
	Restore(snap []byte)
}

// toPixels maps a normalized point onto s.
func toPixels(s Surface, p models.Point) Pos {
	w, h := s.Size()
	return Pos{X: p.NX * float64(w), Y: p.NY * float64(h)}
}

// fromPixels maps a surface position to a clamped normalized point.
func fromPixels(s Surface, x, y float64) models.Point {
	w, h := s.Size()
	if w <= 0 || h <= 0 {
		return models.Point{}
	}
	return models.Point{NX: models.Clamp01(x / float64(w)), NY: models.Clamp01(y / float64(h))}
}

package pager

// Anchor records the scroll geometry right before older rows are merged in
// above the viewport.
type Anchor struct {
	Height float64
	Top    float64
}

// Capture takes the anchor for the current viewport.
func Capture(scrollHeight, scrollTop float64) Anchor {
	return Anchor{Height: scrollHeight, Top: scrollTop}
}

// Restore returns the scrollTop that keeps the same row on screen after
// the content grew to newHeight.
func (a Anchor) Restore(newHeight float64) float64 {
	top := a.Top + (newHeight - a.Height)
	if top < 0 {
		return 0
	}
	return top
}

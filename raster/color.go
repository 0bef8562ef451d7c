package raster

import (
	"errors"
	"fmt"
	"image/color"

	"github.com/mazznoer/csscolorparser"
)

var ErrBadColor = errors.New("unsupported color")

// ParseColor accepts any CSS color: hex forms, rgb(), rgba(), hsl() and
// named colors.
func ParseColor(s string) (color.NRGBA, error) {
	c, err := csscolorparser.Parse(s)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("%w: %q", ErrBadColor, s)
	}
	r, g, b, a := c.RGBA255()
	return color.NRGBA{R: r, G: g, B: b, A: a}, nil
}

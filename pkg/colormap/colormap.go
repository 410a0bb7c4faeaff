// Package colormap maps complex values to perceptually ordered RGB colors.
//
// Magnitude drives lightness along a cubic ramp from white at the origin to a
// ring of constant luminance at unit magnitude; phase drives hue through a
// chroma transform derived from the channel weights of a Profile. A Scale
// normalizes raw magnitudes before mapping and supplies colorbar ticks.
package colormap

import "image/color"

// Colormap maps complex values to colors.
type Colormap interface {
	At(z complex128) color.Color
}

// check interfaces
var (
	_ Colormap = (*Mapper)(nil)
)

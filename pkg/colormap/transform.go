package colormap

import "math"

// Matrix row and column indices.
const (
	rowR  = 0
	rowG  = 1
	rowB  = 2
	colRe = 0
	colIm = 1
)

// Transform maps a point of the complex plane to an RGB chroma offset.
// Rows of Matrix are the R, G and B channels, columns the real and imaginary
// axes. Matrix[R][Re] and Matrix[B][Im] are always zero.
type Transform struct {
	ChromaLimit float64
	Matrix      [3][2]float64
}

// DeriveTransform computes the chroma transform for the given red and blue
// weight ratios.
//
// Both ratios must lie in (0, 1) with red+blue < 1. Other inputs are not
// rejected: they yield NaN or Inf entries that propagate into any colors
// computed with the transform.
func DeriveTransform(red, blue float64) Transform {
	redCbrt := math.Cbrt(red)
	blueCbrt := math.Cbrt(blue)

	vmax := redCbrt / (redCbrt + blueCbrt)
	umax := blueCbrt / (redCbrt + blueCbrt)

	var t Transform
	m := &t.Matrix
	m[rowR][colIm] = 1 - red/vmax
	m[rowG][colRe] = blue * (1 - blue) / (umax * (blue + red - 1))
	m[rowG][colIm] = red * (1 - red) / (vmax * (blue + red - 1))
	m[rowB][colRe] = 1 - blue/vmax

	gr := m[rowG][colRe]
	kg2 := gr*gr + m[rowG][colIm]*m[rowG][colIm]
	kg := math.Sqrt(kg2)

	candidates := [4]float64{
		m[rowR][colIm],
		m[rowB][colRe],
		-((gr + kg) * kg2) / (kg2 + gr*kg),
		-((gr - kg) * kg2) / (kg2 - gr*kg),
	}

	limit := candidates[0]
	for _, c := range candidates[1:] {
		if c > limit {
			limit = c
		}
	}
	t.ChromaLimit = 1 / limit

	return t
}

// Project returns the chroma direction of z, unscaled: Matrix applied to
// (Re z, Im z).
func (t Transform) Project(z complex128) [3]float64 {
	re, im := real(z), imag(z)
	var out [3]float64
	for i := range out {
		out[i] = t.Matrix[i][colRe]*re + t.Matrix[i][colIm]*im
	}
	return out
}

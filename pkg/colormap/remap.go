package colormap

import (
	"image/color"
	"math"
	"math/cmplx"
)

// lightnessCutoff is the lightness reached at unit magnitude, 4^(1/3)/2.
// Its cube, 0.5, is the luminance of the saturated hue ring.
const lightnessCutoff = 0.7937005259840998

// Remap converts complex values to RGB triples in [0, 1]. Magnitude sets the
// lightness, from white at zero to the hue ring at magnitude one; phase sets
// the hue. A nil scale uses the raw values.
func Remap(data *Array, scale Scale, profile Profile) *RGBArray {
	m := newMapper(scale, profile)

	out := &RGBArray{
		Shape: rgbShape(data.Shape),
		Data:  make([]float64, 3*len(data.Data)),
	}
	for i, z := range data.Data {
		rgb := m.color(z)
		copy(out.Data[3*i:3*i+3], rgb[:])
	}
	return out
}

// RemapInt is like Remap but scales the triples by 255 and truncates them.
// Values are saturated to 0..255; NaN becomes 0.
func RemapInt(data *Array, scale Scale, profile Profile) *IntArray {
	m := newMapper(scale, profile)

	out := &IntArray{
		Shape: rgbShape(data.Shape),
		Data:  make([]uint8, 3*len(data.Data)),
	}
	for i, z := range data.Data {
		rgb := m.color(z)
		for c, v := range rgb {
			out.Data[3*i+c] = quantize(v)
		}
	}
	return out
}

// Color returns the RGB triple for a single value.
func Color(z complex128, scale Scale, profile Profile) [3]float64 {
	m := newMapper(scale, profile)
	return m.color(z)
}

// Mapper converts single values to colors with a fixed scale and profile.
// It implements the same mapping as Remap.
type Mapper struct {
	scale     Scale
	profile   Profile
	transform Transform
}

// NewMapper returns a Mapper. A nil scale uses the raw values.
func NewMapper(scale Scale, profile Profile) *Mapper {
	m := newMapper(scale, profile)
	return &m
}

func newMapper(scale Scale, profile Profile) Mapper {
	return Mapper{
		scale:     scale,
		profile:   profile,
		transform: profile.Transform(),
	}
}

// RGB returns the float triple for z.
func (m *Mapper) RGB(z complex128) [3]float64 {
	return m.color(z)
}

// At returns z as an opaque color.RGBA.
func (m *Mapper) At(z complex128) color.Color {
	rgb := m.color(z)
	return color.RGBA{R: quantize(rgb[0]), G: quantize(rgb[1]), B: quantize(rgb[2]), A: 255}
}

func (m *Mapper) color(z complex128) [3]float64 {
	if m.scale != nil {
		z = m.scale.Apply(z)
	}
	magnitude := cmplx.Abs(z)

	clipped := math.Min(math.Max(magnitude, 0), 1)
	luminance := math.Pow(1-(1-lightnessCutoff)*clipped, 3)
	chroma := m.transform.ChromaLimit * (1 - luminance)

	raw := m.transform.Project(z)
	// the origin has no direction
	div := magnitude
	if magnitude == 0 {
		div = 1
	}

	var rgb [3]float64
	for i, v := range raw {
		rgb[i] = m.profile.RemoveGamma(v/div*chroma + luminance)
	}
	return rgb
}

func quantize(v float64) uint8 {
	x := v * 255
	switch {
	case !(x > 0):
		return 0
	case x >= 255:
		return 255
	default:
		return uint8(x)
	}
}

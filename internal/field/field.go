// Package field loads complex-valued fields for rendering.
package field

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	"github.com/ztorgb/server/pkg/colormap"
)

// ErrUnsupportedDType is returned for array data types that cannot be
// coerced to complex values.
var ErrUnsupportedDType = errors.New("unsupported data type")

// Extent is the region of the complex plane covered by a 2-D field.
type Extent struct {
	MinRe float64 `json:"min_re" yaml:"min_re"`
	MaxRe float64 `json:"max_re" yaml:"max_re"`
	MinIm float64 `json:"min_im" yaml:"min_im"`
	MaxIm float64 `json:"max_im" yaml:"max_im"`
}

// Field is a named array of complex samples.
type Field struct {
	Name   string
	Values *colormap.Array
	Extent *Extent
}

// Stats summarizes the magnitudes of a field.
type Stats struct {
	Count      int     `json:"count"`
	NonFinite  int     `json:"non_finite"`
	MinMag     float64 `json:"min_magnitude"`
	MaxMag     float64 `json:"max_magnitude"`
	MeanMag    float64 `json:"mean_magnitude"`
	MinNonZero float64 `json:"min_nonzero_magnitude"`
}

// Dims returns height and width of a 2-D field.
func (f *Field) Dims() (height, width int, err error) {
	shape := f.Values.Shape
	if len(shape) != 2 {
		return 0, 0, fmt.Errorf("field %q: expected 2-D data, got shape %v", f.Name, shape)
	}
	return shape[0], shape[1], nil
}

// Stats computes magnitude statistics. Non-finite samples are counted and
// otherwise skipped.
func (f *Field) Stats() Stats {
	s := Stats{
		Count:      f.Values.Len(),
		MinMag:     math.Inf(1),
		MinNonZero: math.Inf(1),
	}

	var sum float64
	var n int
	for _, z := range f.Values.Data {
		m := cmplx.Abs(z)
		if math.IsNaN(m) || math.IsInf(m, 0) {
			s.NonFinite++
			continue
		}
		n++
		sum += m
		s.MinMag = math.Min(s.MinMag, m)
		s.MaxMag = math.Max(s.MaxMag, m)
		if m > 0 {
			s.MinNonZero = math.Min(s.MinNonZero, m)
		}
	}

	if n == 0 {
		s.MinMag = 0
		s.MinNonZero = 0
		return s
	}
	if math.IsInf(s.MinNonZero, 1) {
		s.MinNonZero = 0
	}
	s.MeanMag = sum / float64(n)
	return s
}

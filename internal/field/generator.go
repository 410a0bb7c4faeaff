package field

import (
	"errors"
	"fmt"
	"math/cmplx"
	"sort"

	"github.com/ztorgb/server/pkg/colormap"
)

// ErrUnknownGenerator is returned for generator names not in Generators.
var ErrUnknownGenerator = errors.New("unknown generator")

// DefaultExtent is the square [-2, 2] x [-2, 2].
var DefaultExtent = Extent{MinRe: -2, MaxRe: 2, MinIm: -2, MaxIm: 2}

var generators = map[string]func(z complex128) complex128{
	"identity":  func(z complex128) complex128 { return z },
	"roots":     func(z complex128) complex128 { return z*z*z - 1 },
	"poles":     func(z complex128) complex128 { return (z*z - 1) / (z*z + 1) },
	"essential": func(z complex128) complex128 { return cmplx.Exp(1 / z) },
	"exp":       cmplx.Exp,
	"sin":       cmplx.Sin,
}

// Generators returns the names of the analytic fields, sorted.
func Generators() []string {
	names := make([]string, 0, len(generators))
	for name := range generators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Generate samples the named function at pixel centers of a width x height
// grid over extent. Row 0 is the top edge (largest imaginary part).
func Generate(name string, width, height int, extent Extent) (*Field, error) {
	fn, ok := generators[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownGenerator, name)
	}
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid grid size %dx%d", width, height)
	}
	if !(extent.MaxRe > extent.MinRe) || !(extent.MaxIm > extent.MinIm) {
		return nil, fmt.Errorf("invalid extent %+v", extent)
	}

	dx := (extent.MaxRe - extent.MinRe) / float64(width)
	dy := (extent.MaxIm - extent.MinIm) / float64(height)

	data := make([]complex128, width*height)
	for y := 0; y < height; y++ {
		im := extent.MaxIm - (float64(y)+0.5)*dy
		for x := 0; x < width; x++ {
			re := extent.MinRe + (float64(x)+0.5)*dx
			data[y*width+x] = fn(complex(re, im))
		}
	}

	arr, err := colormap.NewArray([]int{height, width}, data)
	if err != nil {
		return nil, err
	}

	e := extent
	return &Field{Name: name, Values: arr, Extent: &e}, nil
}

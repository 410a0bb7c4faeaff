package colormap

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
)

// ErrShape is returned when an array's data length does not match its shape.
var ErrShape = errors.New("shape mismatch")

// Array is an N-dimensional row-major array of complex values.
type Array struct {
	Shape []int
	Data  []complex128
}

// NewArray wraps data with the given shape. A nil or empty shape describes a
// scalar and requires exactly one element.
func NewArray(shape []int, data []complex128) (*Array, error) {
	n, err := elements(shape)
	if err != nil {
		return nil, err
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: shape %v holds %d values, got %d", ErrShape, shape, n, len(data))
	}
	return &Array{Shape: append([]int(nil), shape...), Data: data}, nil
}

// FromReal converts real values to a complex array with zero imaginary parts.
func FromReal[T constraints.Integer | constraints.Float](shape []int, values []T) (*Array, error) {
	data := make([]complex128, len(values))
	for i, v := range values {
		data[i] = complex(float64(v), 0)
	}
	return NewArray(shape, data)
}

// FromComplex converts complex values of any precision to a complex128 array.
func FromComplex[T constraints.Complex](shape []int, values []T) (*Array, error) {
	data := make([]complex128, len(values))
	for i, v := range values {
		data[i] = complex128(v)
	}
	return NewArray(shape, data)
}

// Len returns the number of elements.
func (a *Array) Len() int {
	return len(a.Data)
}

// RGBArray holds float RGB triples; Shape is the source shape plus a trailing 3.
type RGBArray struct {
	Shape []int
	Data  []float64
}

// At returns the triple for the i-th source element.
func (a *RGBArray) At(i int) [3]float64 {
	return [3]float64{a.Data[3*i], a.Data[3*i+1], a.Data[3*i+2]}
}

// IntArray holds RGB triples quantized to 0..255; Shape is the source shape
// plus a trailing 3.
type IntArray struct {
	Shape []int
	Data  []uint8
}

// At returns the triple for the i-th source element.
func (a *IntArray) At(i int) [3]uint8 {
	return [3]uint8{a.Data[3*i], a.Data[3*i+1], a.Data[3*i+2]}
}

func elements(shape []int) (int, error) {
	n := 1
	for d, v := range shape {
		if v < 0 {
			return 0, fmt.Errorf("%w: negative extent %d at dim %d", ErrShape, v, d)
		}
		if v != 0 && n > math.MaxInt/v {
			return 0, fmt.Errorf("%w: shape %v overflows", ErrShape, shape)
		}
		n *= v
	}
	return n, nil
}

func rgbShape(shape []int) []int {
	out := make([]int, len(shape)+1)
	copy(out, shape)
	out[len(shape)] = 3
	return out
}

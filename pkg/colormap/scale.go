package colormap

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"
)

// ErrInvalidScale is returned for scale parameters that cannot define a
// magnitude mapping.
var ErrInvalidScale = errors.New("invalid scale")

// Scale maps raw complex values onto the lightness control domain [0, LMax]
// by rewriting their magnitude. Implementations are immutable.
type Scale interface {
	// Apply returns the scaled value. The phase of v is kept.
	Apply(v complex128) complex128
	// LMax returns the largest control value Apply produces for in-range input.
	LMax() float64
	// Ticks returns tick positions in the control domain and the raw values
	// they label.
	Ticks() (offsets, labels []float64)
}

// linearDivisors are the step multipliers tried per decade.
var linearDivisors = [...]float64{5, 10, 20, 25}

// minLinearMag is the smallest normal float64. Below it the tick search
// underflows to a zero step.
const minLinearMag = 0x1p-1022

// LinearScale divides values by a fixed magnitude.
type LinearScale struct {
	mag    float64
	factor float64
}

// NewLinearScale returns a scale mapping magnitudes 0..vmag onto 0..1.
func NewLinearScale(vmag float64) (*LinearScale, error) {
	if !(vmag > 0) || math.IsInf(vmag, 0) {
		return nil, fmt.Errorf("%w: linear vmag must be positive and finite, got %v", ErrInvalidScale, vmag)
	}
	if vmag < minLinearMag {
		return nil, fmt.Errorf("%w: linear vmag %v is subnormal", ErrInvalidScale, vmag)
	}
	return &LinearScale{mag: vmag, factor: 1 / vmag}, nil
}

// Mag returns the magnitude mapped to 1.
func (s *LinearScale) Mag() float64 {
	return s.mag
}

// Apply implements Scale.
func (s *LinearScale) Apply(v complex128) complex128 {
	return v * complex(s.factor, 0)
}

// LMax implements Scale.
func (s *LinearScale) LMax() float64 {
	return 1
}

// Ticks implements Scale. The step is chosen from {5, 10, 20, 25}×10^k so that
// [0, vmag) is covered by 4 to 10 steps.
func (s *LinearScale) Ticks() (offsets, labels []float64) {
	step := s.stepSize()

	n := int(math.Ceil(s.mag / step))
	labels = make([]float64, 0, n)
	for i := 0; i < n; i++ {
		v := float64(i) * step
		if v >= s.mag {
			break
		}
		labels = append(labels, v)
	}

	offsets = make([]float64, len(labels))
	for i, v := range labels {
		offsets[i] = v * s.factor
	}
	return offsets, labels
}

func (s *LinearScale) stepSize() float64 {
	divisor := 0
	decade := 1.0

	for {
		steps := math.Ceil(s.mag / (linearDivisors[divisor] * decade))
		switch {
		case steps < 4:
			if divisor == 0 {
				decade /= 10
				divisor = len(linearDivisors) - 1
			} else {
				divisor--
			}
		case steps > 10:
			if divisor == len(linearDivisors)-1 {
				decade *= 10
				divisor = 0
			} else {
				divisor++
			}
		default:
			return linearDivisors[divisor] * decade
		}
	}
}

// maxLogTicks caps the number of ticks a LogScale returns.
const maxLogTicks = 6

// LogScale maps magnitudes vmin..vmax logarithmically onto 1-vLmax..vLmax.
type LogScale struct {
	logMin   float64
	logMax   float64
	lightMax float64
	lightBuf float64
	factor   float64
}

// NewLogScale returns a logarithmic scale. vLmax must lie in (0.5, 1] so that
// the output range 1-vLmax..vLmax is not empty.
func NewLogScale(vmin, vmax, vLmax float64) (*LogScale, error) {
	if !(vmin > 0) || math.IsInf(vmax, 0) || !(vmax > vmin) {
		return nil, fmt.Errorf("%w: log range must satisfy 0 < vmin < vmax, got %v..%v", ErrInvalidScale, vmin, vmax)
	}
	if !(vLmax > 0.5 && vLmax <= 1) {
		return nil, fmt.Errorf("%w: log vLmax must be in (0.5, 1], got %v", ErrInvalidScale, vLmax)
	}

	s := &LogScale{
		logMin:   math.Log10(vmin),
		logMax:   math.Log10(vmax),
		lightMax: vLmax,
		lightBuf: 1 - vLmax,
	}
	s.factor = (s.lightMax - s.lightBuf) / (s.logMax - s.logMin)
	return s, nil
}

// Range returns vmin and vmax.
func (s *LogScale) Range() (vmin, vmax float64) {
	return math.Pow(10, s.logMin), math.Pow(10, s.logMax)
}

// Apply implements Scale. Zero maps to zero, and magnitudes so small that the
// mapped magnitude would be negative are mapped to zero as well.
func (s *LogScale) Apply(v complex128) complex128 {
	mag := cmplx.Abs(v)
	if mag == 0 {
		return 0
	}

	scaled := s.lightBuf + (math.Log10(mag)-s.logMin)*s.factor
	if scaled <= 0 {
		return 0
	}
	return v * complex(scaled/mag, 0)
}

// LMax implements Scale.
func (s *LogScale) LMax() float64 {
	return s.lightMax
}

// Ticks implements Scale. Ticks are evenly spaced in log space, one per decade
// up to maxLogTicks; wider ranges are subsampled to maxLogTicks ticks spanning
// vmin..vmax.
func (s *LogScale) Ticks() (offsets, labels []float64) {
	n := int(math.Ceil(s.logMax-s.logMin)) + 1
	if n > maxLogTicks {
		n = maxLogTicks
	}

	offsets = make([]float64, n)
	labels = make([]float64, n)
	for i := 0; i < n; i++ {
		step := s.logMin + (s.logMax-s.logMin)*float64(i)/float64(n-1)
		if i == n-1 {
			step = s.logMax
		}
		offsets[i] = s.lightBuf + (step-s.logMin)*s.factor
		labels[i] = math.Pow(10, step)
	}
	return offsets, labels
}

// check interfaces
var (
	_ Scale = (*LinearScale)(nil)
	_ Scale = (*LogScale)(nil)
)

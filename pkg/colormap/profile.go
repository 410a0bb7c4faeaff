package colormap

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidProfile is returned when a profile has non-positive or non-finite
// weights or gamma.
var ErrInvalidProfile = errors.New("invalid color profile")

// Profile is an RGB color profile: relative channel weights plus a gamma
// exponent. The chroma transform is derived once at construction.
//
// A Profile built with NewProfile is validated. A zero value or a Profile
// whose weights violate the constraints produces NaN/Inf output from Remap;
// nothing downstream checks again.
type Profile struct {
	weights   [3]float64
	gamma     float64
	transform Transform
}

// Built-in profiles using the ITU-R BT.709 luma weights.
var (
	SRGBHigh = MustProfile([3]float64{2126, 7152, 722}, 0.5)
	SRGBLow  = MustProfile([3]float64{2126, 7152, 722}, 1)
	SRGB     = SRGBHigh
)

// NewProfile creates a profile from red, green and blue weights and gamma.
// Weights need not sum to one.
func NewProfile(weights [3]float64, gamma float64) (Profile, error) {
	p := Profile{weights: weights, gamma: gamma}
	if err := p.Validate(); err != nil {
		return Profile{}, err
	}
	p.transform = DeriveTransform(p.Ratios())
	return p, nil
}

// MustProfile is like NewProfile but panics on error.
func MustProfile(weights [3]float64, gamma float64) Profile {
	p, err := NewProfile(weights, gamma)
	if err != nil {
		panic(err)
	}
	return p
}

// Profiles returns the built-in profiles by name.
func Profiles() map[string]Profile {
	return map[string]Profile{
		"srgb":      SRGB,
		"srgb_high": SRGBHigh,
		"srgb_low":  SRGBLow,
	}
}

// Validate reports whether the weights and gamma are usable.
func (p Profile) Validate() error {
	for i, w := range p.weights {
		if !(w > 0) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: weight %d is %v", ErrInvalidProfile, i, w)
		}
	}
	if !(p.gamma > 0) || math.IsInf(p.gamma, 0) {
		return fmt.Errorf("%w: gamma is %v", ErrInvalidProfile, p.gamma)
	}
	return nil
}

// Weights returns the red, green and blue weights.
func (p Profile) Weights() [3]float64 {
	return p.weights
}

// Gamma returns the gamma exponent.
func (p Profile) Gamma() float64 {
	return p.gamma
}

// Ratios returns the red and blue shares of the total weight.
func (p Profile) Ratios() (red, blue float64) {
	total := p.weights[0] + p.weights[1] + p.weights[2]
	return p.weights[0] / total, p.weights[2] / total
}

// Transform returns the chroma transform derived from the profile weights.
func (p Profile) Transform() Transform {
	if p.transform == (Transform{}) {
		return DeriveTransform(p.Ratios())
	}
	return p.transform
}

// ApplyGamma returns x^gamma.
func (p Profile) ApplyGamma(x float64) float64 {
	return math.Pow(x, p.gamma)
}

// RemoveGamma returns x^(1/gamma).
func (p Profile) RemoveGamma(x float64) float64 {
	return math.Pow(x, 1/p.gamma)
}

package service

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/ztorgb/server/internal/field"
	"github.com/ztorgb/server/pkg/colormap"
)

// Scale kinds accepted by ScaleSpec.
const (
	ScaleLinear = "linear"
	ScaleLog    = "log"
)

// ScaleSpec describes a colormap.Scale in configuration and request
// parameters.
type ScaleSpec struct {
	Kind  string  `yaml:"kind" json:"kind"`
	VMag  float64 `yaml:"vmag,omitempty" json:"vmag,omitempty"`
	VMin  float64 `yaml:"vmin,omitempty" json:"vmin,omitempty"`
	VMax  float64 `yaml:"vmax,omitempty" json:"vmax,omitempty"`
	VLMax float64 `yaml:"vlmax,omitempty" json:"vlmax,omitempty"`
}

// DefaultScaleSpec is a linear scale of unit magnitude.
var DefaultScaleSpec = ScaleSpec{Kind: ScaleLinear, VMag: 1}

// Normalize fills unset parameters with their defaults: vmag 1 for linear,
// 0.01..1 and vlmax 0.9 for log. An empty kind means linear.
func (s ScaleSpec) Normalize() ScaleSpec {
	s.Kind = strings.ToLower(strings.TrimSpace(s.Kind))
	switch s.Kind {
	case "", ScaleLinear:
		s.Kind = ScaleLinear
		if s.VMag == 0 {
			s.VMag = 1
		}
		s.VMin, s.VMax, s.VLMax = 0, 0, 0
	case ScaleLog:
		if s.VMin == 0 {
			s.VMin = 0.01
		}
		if s.VMax == 0 {
			s.VMax = 1
		}
		if s.VLMax == 0 {
			s.VLMax = 0.9
		}
		s.VMag = 0
	}
	return s
}

// Build constructs the scale.
func (s ScaleSpec) Build() (colormap.Scale, error) {
	s = s.Normalize()
	switch s.Kind {
	case ScaleLinear:
		scale, err := colormap.NewLinearScale(s.VMag)
		if err != nil {
			return nil, err
		}
		return scale, nil
	case ScaleLog:
		scale, err := colormap.NewLogScale(s.VMin, s.VMax, s.VLMax)
		if err != nil {
			return nil, err
		}
		return scale, nil
	default:
		return nil, fmt.Errorf("%w: unknown kind %q", colormap.ErrInvalidScale, s.Kind)
	}
}

// String returns a canonical form used in cache keys.
func (s ScaleSpec) String() string {
	s = s.Normalize()
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	if s.Kind == ScaleLog {
		return fmt.Sprintf("log(%s,%s,%s)", f(s.VMin), f(s.VMax), f(s.VLMax))
	}
	if s.Kind == ScaleLinear {
		return fmt.Sprintf("linear(%s)", f(s.VMag))
	}
	return s.Kind
}

// ParseScaleQuery reads scale, vmag, vmin, vmax and vlmax query parameters.
// Parameters that are absent keep the value from fallback when the kind
// matches.
func ParseScaleQuery(q url.Values, fallback ScaleSpec) (ScaleSpec, error) {
	spec := fallback
	if kind := strings.TrimSpace(q.Get("scale")); kind != "" && !strings.EqualFold(kind, fallback.Kind) {
		spec = ScaleSpec{Kind: kind}
	}

	for name, dst := range map[string]*float64{
		"vmag":  &spec.VMag,
		"vmin":  &spec.VMin,
		"vmax":  &spec.VMax,
		"vlmax": &spec.VLMax,
	} {
		raw := strings.TrimSpace(q.Get(name))
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || math.IsNaN(v) {
			return ScaleSpec{}, fmt.Errorf("%w: invalid %s %q", colormap.ErrInvalidScale, name, raw)
		}
		*dst = v
	}

	spec = spec.Normalize()
	if _, err := spec.Build(); err != nil {
		return ScaleSpec{}, err
	}
	return spec, nil
}

// SuggestScales proposes a linear and a log scale covering the finite
// magnitudes summarized by stats.
func SuggestScales(stats field.Stats) []ScaleSpec {
	vmax := stats.MaxMag
	if !(vmax > 0) {
		vmax = 1
	}

	vmin := stats.MinNonZero
	if !(vmin > 0) || vmin < vmax*1e-6 {
		vmin = vmax * 1e-6
	}
	if vmin >= vmax {
		vmin = vmax / 100
	}

	return []ScaleSpec{
		{Kind: ScaleLinear, VMag: vmax},
		{Kind: ScaleLog, VMin: vmin, VMax: vmax, VLMax: 0.9},
	}
}

// IsInvalidScale reports whether err comes from invalid scale parameters.
func IsInvalidScale(err error) bool {
	return errors.Is(err, colormap.ErrInvalidScale)
}

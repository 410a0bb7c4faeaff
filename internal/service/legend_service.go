package service

import (
	"time"

	"github.com/ztorgb/server/internal/cache"
	"github.com/ztorgb/server/internal/render"
	"github.com/ztorgb/server/pkg/colormap"
)

// LegendService renders colorbars and colorwheels.
type LegendService struct {
	cache    *cache.Manager
	renderer *render.Renderer
	metrics  *Metrics
}

// NewLegendService creates a new legend service.
func NewLegendService(c *cache.Manager, r *render.Renderer, m *Metrics) *LegendService {
	return &LegendService{cache: c, renderer: r, metrics: m}
}

// Colorbar returns a vertical lightness legend for the scale as PNG.
func (s *LegendService) Colorbar(profileName string, profile colormap.Profile, spec ScaleSpec, width, height int) ([]byte, error) {
	key := cache.ColorbarKey(profileName, spec.String(), width, height)
	if data, ok := s.cache.GetImage(key); ok {
		s.metrics.hit("colorbar")
		return data, nil
	}

	scale, err := spec.Build()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := s.renderer.RenderColorbar(width, height, scale, profile)
	if err != nil {
		return nil, err
	}
	s.metrics.observe("colorbar", profileName, start)

	_ = s.cache.SetImage(key, data)
	return data, nil
}

// Colorwheel returns a disk covering the scale's range as PNG.
func (s *LegendService) Colorwheel(profileName string, profile colormap.Profile, spec ScaleSpec, size int) ([]byte, error) {
	key := cache.ColorwheelKey(profileName, spec.String(), size)
	if data, ok := s.cache.GetImage(key); ok {
		s.metrics.hit("colorwheel")
		return data, nil
	}

	scale, err := spec.Build()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := s.renderer.RenderColorwheel(size, scale, profile)
	if err != nil {
		return nil, err
	}
	s.metrics.observe("colorwheel", profileName, start)

	_ = s.cache.SetImage(key, data)
	return data, nil
}

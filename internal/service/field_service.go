// Package service provides rendering logic for complex fields.
package service

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ztorgb/server/internal/cache"
	"github.com/ztorgb/server/internal/field"
	"github.com/ztorgb/server/internal/fieldstore"
	"github.com/ztorgb/server/internal/render"
	"github.com/ztorgb/server/pkg/colormap"
)

// Loader produces the field served by a FieldService.
type Loader func() (*field.Field, error)

// ZarrLoader reads the named array from a Zarr directory.
func ZarrLoader(path string) Loader {
	return func() (*field.Field, error) {
		r, err := field.OpenZarr(path)
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return r.Read("")
	}
}

// GeneratorLoader samples a synthetic field.
func GeneratorLoader(name string, width, height int, extent field.Extent) Loader {
	return func() (*field.Field, error) {
		return field.Generate(name, width, height, extent)
	}
}

// StoreLoader reads an uploaded field from the SQLite store.
func StoreLoader(store *fieldstore.Store, id string) Loader {
	return func() (*field.Field, error) {
		return store.Get(id)
	}
}

// FieldServiceConfig contains field service configuration.
type FieldServiceConfig struct {
	ID       string
	Source   string
	Load     Loader
	Cache    *cache.Manager
	Renderer *render.Renderer
	Metrics  *Metrics
	Logger   *zap.Logger
}

// FieldInfo describes a served field.
type FieldInfo struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Source string        `json:"source"`
	Shape  []int         `json:"shape,omitempty"`
	Extent *field.Extent `json:"extent,omitempty"`
}

// StatsResponse is the body of the field statistics endpoint.
type StatsResponse struct {
	Field     string      `json:"field"`
	Stats     field.Stats `json:"stats"`
	Suggested []ScaleSpec `json:"suggested_scales"`
}

// FieldService renders one field as PNG images and tiles.
type FieldService struct {
	id       string
	source   string
	load     Loader
	cache    *cache.Manager
	renderer *render.Renderer
	metrics  *Metrics
	l        *zap.Logger

	fieldOnce sync.Once
	field     *field.Field
	fieldErr  error
}

// NewFieldService creates a new field service. The field is loaded lazily on
// first use.
func NewFieldService(cfg FieldServiceConfig) *FieldService {
	id := cfg.ID
	if id == "" {
		id = "default"
	}

	l := cfg.Logger
	if l == nil {
		l = zap.NewNop()
	}

	return &FieldService{
		id:       id,
		source:   cfg.Source,
		load:     cfg.Load,
		cache:    cfg.Cache,
		renderer: cfg.Renderer,
		metrics:  cfg.Metrics,
		l:        l.With(zap.String("field", id)),
	}
}

// ID returns the field identifier.
func (s *FieldService) ID() string {
	return s.id
}

// Field returns the loaded field.
func (s *FieldService) Field() (*field.Field, error) {
	s.fieldOnce.Do(func() {
		start := time.Now()
		if s.load == nil {
			s.fieldErr = fmt.Errorf("field %q has no source", s.id)
			return
		}

		s.field, s.fieldErr = s.load()
		if s.fieldErr != nil {
			s.l.Error("Failed to load field", zap.Error(s.fieldErr))
			return
		}
		s.l.Info("Field loaded",
			zap.Ints("shape", s.field.Values.Shape),
			zap.Duration("took", time.Since(start)),
		)
	})
	return s.field, s.fieldErr
}

// Info describes the field. Loading errors leave shape and extent empty.
func (s *FieldService) Info() FieldInfo {
	info := FieldInfo{ID: s.id, Name: s.id, Source: s.source}
	f, err := s.Field()
	if err != nil {
		return info
	}
	if f.Name != "" {
		info.Name = f.Name
	}
	info.Shape = f.Values.Shape
	info.Extent = f.Extent
	return info
}

// Stats returns magnitude statistics and suggested scales for the field.
func (s *FieldService) Stats() (*StatsResponse, error) {
	key := cache.StatsKey(s.id)
	if data, ok := s.cache.GetQuery(key); ok {
		var res StatsResponse
		if err := json.Unmarshal(data, &res); err == nil {
			return &res, nil
		}
	}

	f, err := s.Field()
	if err != nil {
		return nil, err
	}

	stats := f.Stats()
	res := &StatsResponse{
		Field:     s.id,
		Stats:     stats,
		Suggested: SuggestScales(stats),
	}

	if data, err := json.Marshal(res); err == nil {
		s.cache.SetQuery(key, data)
	}
	return res, nil
}

// Image returns the whole field rendered as a PNG of the given width.
// A non-positive width selects the renderer default.
func (s *FieldService) Image(profileName string, profile colormap.Profile, spec ScaleSpec, width int) ([]byte, error) {
	if width <= 0 {
		width = s.renderer.ImageWidth()
	}

	key := cache.ImageKey(s.id, profileName, spec.String(), width)
	if data, ok := s.cache.GetImage(key); ok {
		s.metrics.hit("image")
		return data, nil
	}

	f, err := s.Field()
	if err != nil {
		return nil, err
	}
	scale, err := spec.Build()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := s.renderer.RenderField(f, width, scale, profile)
	if err != nil {
		return nil, err
	}
	s.metrics.observe("image", profileName, start)

	if err := s.cache.SetImage(key, data); err != nil {
		s.l.Debug("Image not cached", zap.String("key", key), zap.Error(err))
	}
	return data, nil
}

// Tile returns a rendered tile PNG.
func (s *FieldService) Tile(z, x, y int, profileName string, profile colormap.Profile, spec ScaleSpec) ([]byte, error) {
	key := cache.TileKey(s.id, z, x, y, profileName, spec.String())
	if data, ok := s.cache.GetImage(key); ok {
		s.metrics.hit("tile")
		return data, nil
	}

	f, err := s.Field()
	if err != nil {
		return nil, err
	}
	scale, err := spec.Build()
	if err != nil {
		return nil, err
	}

	start := time.Now()
	data, err := s.renderer.RenderTile(f, z, x, y, scale, profile)
	if err != nil {
		return nil, err
	}
	s.metrics.observe("tile", profileName, start)

	if err := s.cache.SetImage(key, data); err != nil {
		s.l.Debug("Tile not cached", zap.String("key", key), zap.Error(err))
	}
	return data, nil
}

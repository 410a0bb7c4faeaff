// Package config handles configuration loading for the ZtoRGB server.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server   ServerConfig             `yaml:"server"`
	Cache    CacheConfig              `yaml:"cache"`
	Render   RenderConfig             `yaml:"render"`
	Store    StoreConfig              `yaml:"store"`
	Profiles map[string]ProfileConfig `yaml:"profiles"`
	Fields   FieldsConfig             `yaml:"fields"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	Title       string   `yaml:"title"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	ImageSizeMB     int `yaml:"image_size_mb"`
	ImageTTLMinutes int `yaml:"image_ttl_minutes"`
	QueryCacheSize  int `yaml:"query_cache_size"`
}

// ImageTTL returns the image cache TTL as a duration.
func (c CacheConfig) ImageTTL() time.Duration {
	return time.Duration(c.ImageTTLMinutes) * time.Minute
}

// RenderConfig contains rendering settings.
type RenderConfig struct {
	TileSize       int         `yaml:"tile_size"`
	ImageSize      int         `yaml:"image_size"`
	DefaultProfile string      `yaml:"default_profile"`
	DefaultScale   ScaleConfig `yaml:"default_scale"`
}

// ScaleConfig selects a scale kind and its parameters.
type ScaleConfig struct {
	Kind  string  `yaml:"kind"`
	VMag  float64 `yaml:"vmag"`
	VMin  float64 `yaml:"vmin"`
	VMax  float64 `yaml:"vmax"`
	VLMax float64 `yaml:"vlmax"`
}

// StoreConfig contains uploaded field storage settings. An empty path
// disables uploads.
type StoreConfig struct {
	SQLitePath string `yaml:"sqlite_path"`
}

// ProfileConfig defines a custom color profile.
type ProfileConfig struct {
	Weights [3]float64 `yaml:"weights"`
	Gamma   float64    `yaml:"gamma"`
}

// FieldConfig describes one served field: either a Zarr array or a
// generator sampled on a grid.
type FieldConfig struct {
	ZarrPath  string    `yaml:"zarr_path"`
	Generator string    `yaml:"generator"`
	Width     int       `yaml:"width"`
	Height    int       `yaml:"height"`
	Extent    []float64 `yaml:"extent"`
}

// FieldsConfig holds the configured fields in YAML order.
type FieldsConfig struct {
	Fields       map[string]FieldConfig
	Order        []string
	DefaultField string
}

// UnmarshalYAML decodes the fields mapping, keeping key order.
func (f *FieldsConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("fields: expected mapping, got %s", node.Tag)
	}

	f.Fields = make(map[string]FieldConfig, len(node.Content)/2)
	f.Order = f.Order[:0]
	for i := 0; i+1 < len(node.Content); i += 2 {
		id := node.Content[i].Value
		var fc FieldConfig
		if err := node.Content[i+1].Decode(&fc); err != nil {
			return fmt.Errorf("fields.%s: %w", id, err)
		}
		if _, dup := f.Fields[id]; dup {
			return fmt.Errorf("fields.%s: duplicate field", id)
		}
		f.Fields[id] = fc
		f.Order = append(f.Order, id)
	}
	if len(f.Order) > 0 {
		f.DefaultField = f.Order[0]
	}
	return nil
}

// FieldIDs returns field IDs in config order.
func (f *FieldsConfig) FieldIDs() []string {
	return f.Order
}

// Load reads configuration from a YAML file. A missing file yields the
// default configuration.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field definitions.
func (c *Config) Validate() error {
	for _, id := range c.Fields.Order {
		fc := c.Fields.Fields[id]
		switch {
		case fc.ZarrPath == "" && fc.Generator == "":
			return fmt.Errorf("fields.%s: one of zarr_path or generator is required", id)
		case fc.ZarrPath != "" && fc.Generator != "":
			return fmt.Errorf("fields.%s: zarr_path and generator are mutually exclusive", id)
		case len(fc.Extent) != 0 && len(fc.Extent) != 4:
			return fmt.Errorf("fields.%s: extent needs 4 values [min_re, max_re, min_im, max_im]", id)
		}
	}
	return nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			Title:       "ZtoRGB",
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Cache: CacheConfig{
			ImageSizeMB:     256,
			ImageTTLMinutes: 10,
			QueryCacheSize:  1000,
		},
		Render: RenderConfig{
			TileSize:       256,
			ImageSize:      512,
			DefaultProfile: "srgb",
			DefaultScale:   ScaleConfig{Kind: "linear", VMag: 1},
		},
		Store: StoreConfig{
			SQLitePath: "./data/fields.sqlite",
		},
		Fields: FieldsConfig{
			Fields: map[string]FieldConfig{
				"poles": {Generator: "poles", Width: 512, Height: 512},
			},
			Order:        []string{"poles"},
			DefaultField: "poles",
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if cfg.Server.Title == "" {
		cfg.Server.Title = defaults.Server.Title
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if cfg.Cache.ImageSizeMB == 0 {
		cfg.Cache.ImageSizeMB = defaults.Cache.ImageSizeMB
	}
	if cfg.Cache.ImageTTLMinutes == 0 {
		cfg.Cache.ImageTTLMinutes = defaults.Cache.ImageTTLMinutes
	}
	if cfg.Cache.QueryCacheSize == 0 {
		cfg.Cache.QueryCacheSize = defaults.Cache.QueryCacheSize
	}
	if cfg.Render.TileSize == 0 {
		cfg.Render.TileSize = defaults.Render.TileSize
	}
	if cfg.Render.ImageSize == 0 {
		cfg.Render.ImageSize = defaults.Render.ImageSize
	}
	if cfg.Render.DefaultProfile == "" {
		cfg.Render.DefaultProfile = defaults.Render.DefaultProfile
	}
	if cfg.Render.DefaultScale.Kind == "" {
		cfg.Render.DefaultScale = defaults.Render.DefaultScale
	}
	if len(cfg.Fields.Order) == 0 {
		cfg.Fields = defaults.Fields
	}
	for id, fc := range cfg.Fields.Fields {
		if fc.Generator == "" {
			continue
		}
		if fc.Width == 0 {
			fc.Width = 512
		}
		if fc.Height == 0 {
			fc.Height = fc.Width
		}
		cfg.Fields.Fields[id] = fc
	}
}

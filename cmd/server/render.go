package main

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/ztorgb/server/internal/config"
	"github.com/ztorgb/server/internal/field"
	"github.com/ztorgb/server/internal/render"
	"github.com/ztorgb/server/internal/service"
)

// renderCmd renders a single PNG without starting the server.
type renderCmd struct {
	Kind      string `default:"field" enum:"field,colorbar,colorwheel" help:"What to render: 'field', 'colorbar' or 'colorwheel'."`
	Field     string `help:"Configured field ID (default: the first configured field)."`
	Generator string `help:"Sample this generator instead of a configured field."`
	Zarr      string `help:"Read this Zarr array instead of a configured field." type:"path"`
	Grid      int    `default:"512" help:"Generator grid size in samples per axis."`

	Width  int `default:"512" help:"Output width in pixels; colorwheel diameter."`
	Height int `default:"256" help:"Colorbar height in pixels."`

	Profile string  `help:"Color profile name (default from configuration)."`
	Scale   string  `default:"linear" enum:"linear,log" help:"Scale kind: 'linear' or 'log'."`
	VMag    float64 `name:"vmag"  help:"Linear scale: magnitude mapped to full color."`
	VMin    float64 `name:"vmin"  help:"Log scale: smallest magnitude."`
	VMax    float64 `name:"vmax"  help:"Log scale: largest magnitude."`
	VLMax   float64 `name:"vlmax" help:"Log scale: control value for vmax, in (0.5, 1]."`

	Out string `default:"out.png" short:"o" help:"Output PNG path." type:"path"`
}

// Run renders the requested image and writes it to Out.
func (c *renderCmd) Run(g *Globals, l *zap.Logger) error {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	profiles, err := newProfileRegistry(cfg)
	if err != nil {
		return err
	}
	profileName, profile, err := profiles.Lookup(c.Profile)
	if err != nil {
		return err
	}

	spec := service.ScaleSpec{Kind: c.Scale, VMag: c.VMag, VMin: c.VMin, VMax: c.VMax, VLMax: c.VLMax}.Normalize()
	scale, err := spec.Build()
	if err != nil {
		return err
	}

	renderer := render.NewRenderer(render.Config{
		TileSize:   cfg.Render.TileSize,
		ImageWidth: cfg.Render.ImageSize,
	})

	var data []byte
	switch c.Kind {
	case "colorbar":
		data, err = renderer.RenderColorbar(c.Width, c.Height, scale, profile)
	case "colorwheel":
		data, err = renderer.RenderColorwheel(c.Width, scale, profile)
	default:
		var f *field.Field
		if f, err = c.loadField(cfg); err != nil {
			return err
		}
		data, err = renderer.RenderField(f, c.Width, scale, profile)
	}
	if err != nil {
		return err
	}

	if err := os.WriteFile(c.Out, data, 0o644); err != nil {
		return err
	}

	l.Info("Rendered",
		zap.String("kind", c.Kind),
		zap.String("profile", profileName),
		zap.Stringer("scale", spec),
		zap.String("out", c.Out),
		zap.String("size", humanize.Bytes(uint64(len(data)))),
	)
	return nil
}

// loadField resolves the field source from flags, falling back to the
// configuration.
func (c *renderCmd) loadField(cfg *config.Config) (*field.Field, error) {
	switch {
	case c.Generator != "":
		return field.Generate(c.Generator, c.Grid, c.Grid, field.DefaultExtent)
	case c.Zarr != "":
		return service.ZarrLoader(c.Zarr)()
	}

	id := c.Field
	if id == "" {
		id = cfg.Fields.DefaultField
	}
	fc, ok := cfg.Fields.Fields[id]
	if !ok {
		return nil, fmt.Errorf("field %q is not configured", id)
	}
	_, load, err := fieldLoader(fc)
	if err != nil {
		return nil, err
	}
	return load()
}

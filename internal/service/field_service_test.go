package service

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ztorgb/server/internal/cache"
	"github.com/ztorgb/server/internal/field"
	"github.com/ztorgb/server/internal/render"
	"github.com/ztorgb/server/pkg/colormap"
)

func newCache(t *testing.T) *cache.Manager {
	t.Helper()

	c, err := cache.NewManager(cache.Config{
		ImageCacheSizeMB: 64,
		ImageTTL:         time.Minute,
		QueryCacheSize:   64,
	})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func newFieldService(t *testing.T, load Loader) (*FieldService, *Metrics) {
	t.Helper()

	m := NewMetrics()
	svc := NewFieldService(FieldServiceConfig{
		ID:       "poles",
		Source:   "generator:poles",
		Load:     load,
		Cache:    newCache(t),
		Renderer: render.NewRenderer(render.Config{TileSize: 16, ImageWidth: 24}),
		Metrics:  m,
	})
	return svc, m
}

func TestFieldServiceLoadsOnce(t *testing.T) {
	t.Parallel()

	var calls int
	svc, _ := newFieldService(t, func() (*field.Field, error) {
		calls++
		return field.Generate("poles", 8, 8, field.DefaultExtent)
	})

	for i := 0; i < 3; i++ {
		f, err := svc.Field()
		require.NoError(t, err)
		assert.Equal(t, []int{8, 8}, f.Values.Shape)
	}
	assert.Equal(t, 1, calls)

	info := svc.Info()
	assert.Equal(t, "poles", info.ID)
	assert.Equal(t, "generator:poles", info.Source)
	assert.Equal(t, []int{8, 8}, info.Shape)
}

func TestFieldServiceLoadError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	svc, _ := newFieldService(t, func() (*field.Field, error) { return nil, boom })

	_, err := svc.Image("srgb", colormap.SRGB, DefaultScaleSpec, 0)
	assert.ErrorIs(t, err, boom)

	_, err = svc.Stats()
	assert.ErrorIs(t, err, boom)

	info := svc.Info()
	assert.Nil(t, info.Shape)
}

func TestFieldServiceImageCached(t *testing.T) {
	t.Parallel()

	svc, m := newFieldService(t, GeneratorLoader("identity", 12, 6, field.DefaultExtent))

	first, err := svc.Image("srgb", colormap.SRGB, DefaultScaleSpec, 0)
	require.NoError(t, err)
	second, err := svc.Image("srgb", colormap.SRGB, DefaultScaleSpec, 0)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Renders.WithLabelValues("image", "srgb")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits.WithLabelValues("image")))

	_, err = svc.Image("srgb", colormap.SRGB, ScaleSpec{Kind: ScaleLinear, VMag: 2}, 0)
	require.NoError(t, err)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Renders.WithLabelValues("image", "srgb")))

	_, err = svc.Image("srgb", colormap.SRGB, ScaleSpec{Kind: ScaleLog, VMin: 2, VMax: 1}, 0)
	assert.ErrorIs(t, err, colormap.ErrInvalidScale)
}

func TestFieldServiceTile(t *testing.T) {
	t.Parallel()

	svc, m := newFieldService(t, GeneratorLoader("roots", 32, 32, field.DefaultExtent))

	data, err := svc.Tile(1, 1, 0, "srgb_low", colormap.SRGBLow, DefaultScaleSpec)
	require.NoError(t, err)
	assert.NotEmpty(t, data)

	_, err = svc.Tile(1, 1, 0, "srgb_low", colormap.SRGBLow, DefaultScaleSpec)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits.WithLabelValues("tile")))

	_, err = svc.Tile(1, 2, 0, "srgb_low", colormap.SRGBLow, DefaultScaleSpec)
	assert.ErrorIs(t, err, render.ErrTileRange)
}

func TestFieldServiceStats(t *testing.T) {
	t.Parallel()

	arr, err := colormap.NewArray([]int{2, 2}, []complex128{0, 1, 2i, 4})
	require.NoError(t, err)

	var calls int
	svc, _ := newFieldService(t, func() (*field.Field, error) {
		calls++
		return &field.Field{Name: "small", Values: arr}, nil
	})

	res, err := svc.Stats()
	require.NoError(t, err)
	assert.Equal(t, "poles", res.Field)
	assert.Equal(t, 4.0, res.Stats.MaxMag)
	assert.Equal(t, 1.0, res.Stats.MinNonZero)
	require.Len(t, res.Suggested, 2)
	assert.Equal(t, 4.0, res.Suggested[0].VMag)

	again, err := svc.Stats()
	require.NoError(t, err)
	assert.Equal(t, res, again)
	assert.Equal(t, 1, calls)
}

func TestLegendService(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	svc := NewLegendService(newCache(t), render.NewRenderer(render.Config{}), m)

	bar, err := svc.Colorbar("srgb", colormap.SRGB, DefaultScaleSpec, 80, 120)
	require.NoError(t, err)
	assert.NotEmpty(t, bar)

	wheel, err := svc.Colorwheel("srgb", colormap.SRGB, ScaleSpec{Kind: ScaleLog}, 64)
	require.NoError(t, err)
	assert.NotEmpty(t, wheel)

	_, err = svc.Colorwheel("srgb", colormap.SRGB, ScaleSpec{Kind: ScaleLog}, 64)
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheHits.WithLabelValues("colorwheel")))

	_, err = svc.Colorbar("srgb", colormap.SRGB, ScaleSpec{Kind: "cubic"}, 80, 120)
	assert.ErrorIs(t, err, colormap.ErrInvalidScale)
}

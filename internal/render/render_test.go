package render

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ztorgb/server/internal/field"
	"github.com/ztorgb/server/pkg/colormap"
)

func decodePNG(t *testing.T, data []byte) image.Image {
	t.Helper()

	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

func rgbaAt(img image.Image, x, y int) [4]uint8 {
	r, g, b, a := img.At(x, y).RGBA()
	return [4]uint8{uint8(r >> 8), uint8(g >> 8), uint8(b >> 8), uint8(a >> 8)}
}

func linear(t *testing.T, vmag float64) colormap.Scale {
	t.Helper()

	s, err := colormap.NewLinearScale(vmag)
	require.NoError(t, err)
	return s
}

func TestRenderField(t *testing.T) {
	t.Parallel()

	r := NewRenderer(Config{TileSize: 16, ImageWidth: 32})

	arr, err := colormap.NewArray([]int{1, 2}, []complex128{0, -1})
	require.NoError(t, err)
	f := &field.Field{Name: "pair", Values: arr}

	data, err := r.RenderField(f, 0, linear(t, 1), colormap.SRGB)
	require.NoError(t, err)

	img := decodePNG(t, data)
	assert.Equal(t, image.Rect(0, 0, 2, 1), img.Bounds())
	assert.Equal(t, [4]uint8{255, 255, 255, 255}, rgbaAt(img, 0, 0))

	want := colormap.NewMapper(linear(t, 1), colormap.SRGB).At(-1)
	wr, wg, wb, _ := want.RGBA()
	assert.Equal(t, [4]uint8{uint8(wr >> 8), uint8(wg >> 8), uint8(wb >> 8), 255}, rgbaAt(img, 1, 0))

	data, err = r.RenderField(f, 8, linear(t, 1), colormap.SRGB)
	require.NoError(t, err)
	img = decodePNG(t, data)
	assert.Equal(t, image.Rect(0, 0, 8, 4), img.Bounds())
	assert.Equal(t, [4]uint8{255, 255, 255, 255}, rgbaAt(img, 3, 3))
	assert.Equal(t, rgbaAt(img, 4, 0), rgbaAt(img, 7, 3))
}

func TestRenderFieldRejectsNon2D(t *testing.T) {
	t.Parallel()

	r := NewRenderer(Config{})
	arr, err := colormap.NewArray([]int{3}, make([]complex128, 3))
	require.NoError(t, err)

	_, err = r.RenderField(&field.Field{Name: "line", Values: arr}, 0, nil, colormap.SRGB)
	assert.Error(t, err)
}

func TestRenderTile(t *testing.T) {
	t.Parallel()

	r := NewRenderer(Config{TileSize: 16})
	f, err := field.Generate("identity", 64, 64, field.DefaultExtent)
	require.NoError(t, err)

	data, err := r.RenderTile(f, 1, 1, 0, linear(t, 2), colormap.SRGB)
	require.NoError(t, err)
	img := decodePNG(t, data)
	assert.Equal(t, image.Rect(0, 0, 16, 16), img.Bounds())

	// bottom-left of tile 1/1/0 is the field center, close to the origin
	c := rgbaAt(img, 0, 15)
	for _, v := range c[:3] {
		assert.Greater(t, v, uint8(200))
	}

	_, err = r.RenderTile(f, 1, 2, 0, nil, colormap.SRGB)
	assert.ErrorIs(t, err, ErrTileRange)
	_, err = r.RenderTile(f, -1, 0, 0, nil, colormap.SRGB)
	assert.ErrorIs(t, err, ErrTileRange)
}

func TestRenderColorbar(t *testing.T) {
	t.Parallel()

	r := NewRenderer(Config{})

	data, err := r.RenderColorbar(80, 200, linear(t, 1), colormap.SRGB)
	require.NoError(t, err)
	img := decodePNG(t, data)
	assert.Equal(t, image.Rect(0, 0, 80, 200), img.Bounds())

	// bottom row is near zero magnitude, top row near the hue ring
	bottom := rgbaAt(img, 5, 199)
	for _, v := range bottom[:3] {
		assert.Greater(t, v, uint8(240))
	}
	top := rgbaAt(img, 5, 0)
	assert.Equal(t, uint8(255), top[3])
	assert.NotEqual(t, bottom, top)

	log, err := colormap.NewLogScale(0.01, 100, 0.9)
	require.NoError(t, err)
	_, err = r.RenderColorbar(10, 50, log, colormap.SRGBLow)
	require.NoError(t, err)

	_, err = r.RenderColorbar(0, 10, log, colormap.SRGB)
	assert.Error(t, err)
}

func TestRenderColorwheel(t *testing.T) {
	t.Parallel()

	r := NewRenderer(Config{})

	data, err := r.RenderColorwheel(65, linear(t, 1), colormap.SRGB)
	require.NoError(t, err)
	img := decodePNG(t, data)
	assert.Equal(t, image.Rect(0, 0, 65, 65), img.Bounds())

	assert.Equal(t, uint8(0), rgbaAt(img, 0, 0)[3])
	center := rgbaAt(img, 32, 32)
	assert.Equal(t, [4]uint8{255, 255, 255, 255}, center)

	_, err = r.RenderColorwheel(0, linear(t, 1), colormap.SRGB)
	assert.Error(t, err)
}

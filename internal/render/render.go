// Package render draws complex fields, colorbars and colorwheels as PNG
// images using fogleman/gg.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/ztorgb/server/internal/field"
	"github.com/ztorgb/server/pkg/colormap"
)

// ErrTileRange is returned for tile coordinates outside the zoom pyramid.
var ErrTileRange = errors.New("tile out of range")

// Config contains renderer configuration.
type Config struct {
	TileSize   int
	ImageWidth int
}

// Renderer renders fields and legends.
type Renderer struct {
	config     Config
	bufferPool sync.Pool
}

// NewRenderer creates a new renderer.
func NewRenderer(cfg Config) *Renderer {
	if cfg.TileSize <= 0 {
		cfg.TileSize = 256
	}
	if cfg.ImageWidth <= 0 {
		cfg.ImageWidth = 512
	}

	return &Renderer{
		config: cfg,
		bufferPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewBuffer(make([]byte, 0, 64*1024))
			},
		},
	}
}

// TileSize returns the tile edge length in pixels.
func (r *Renderer) TileSize() int {
	return r.config.TileSize
}

// ImageWidth returns the default field image width.
func (r *Renderer) ImageWidth() int {
	return r.config.ImageWidth
}

// RenderField renders a 2-D field resized to width pixels (nearest
// neighbour, aspect ratio kept). width <= 0 uses the field's own width.
func (r *Renderer) RenderField(f *field.Field, width int, scale colormap.Scale, profile colormap.Profile) ([]byte, error) {
	h, w, err := f.Dims()
	if err != nil {
		return nil, err
	}
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("field %q is empty", f.Name)
	}
	if width <= 0 {
		width = w
	}
	height := h * width / w
	if height < 1 {
		height = 1
	}

	samples := make([]complex128, width*height)
	for y := 0; y < height; y++ {
		row := y * h / height
		for x := 0; x < width; x++ {
			samples[y*width+x] = f.Values.Data[row*w+x*w/width]
		}
	}

	return r.encodeSamples(samples, width, height, scale, profile)
}

// RenderTile renders tile x/y at zoom z of a 2-D field stretched over the
// unit square, tile 0/0/0 being the whole field.
func (r *Renderer) RenderTile(f *field.Field, z, x, y int, scale colormap.Scale, profile colormap.Profile) ([]byte, error) {
	h, w, err := f.Dims()
	if err != nil {
		return nil, err
	}
	if z < 0 || z > 30 {
		return nil, fmt.Errorf("%w: invalid zoom level %d", ErrTileRange, z)
	}
	tilesPerAxis := 1 << z
	if x < 0 || y < 0 || x >= tilesPerAxis || y >= tilesPerAxis {
		return nil, fmt.Errorf("%w: %d/%d (tiles_per_axis=%d)", ErrTileRange, x, y, tilesPerAxis)
	}
	if w == 0 || h == 0 {
		return nil, fmt.Errorf("field %q is empty", f.Name)
	}

	size := r.config.TileSize
	world := float64(size * tilesPerAxis)
	samples := make([]complex128, size*size)
	for py := 0; py < size; py++ {
		v := (float64(y*size+py) + 0.5) / world
		row := int(v * float64(h))
		for px := 0; px < size; px++ {
			u := (float64(x*size+px) + 0.5) / world
			col := int(u * float64(w))
			samples[py*size+px] = f.Values.Data[row*w+col]
		}
	}

	return r.encodeSamples(samples, size, size, scale, profile)
}

func (r *Renderer) encodeSamples(samples []complex128, width, height int, scale colormap.Scale, profile colormap.Profile) ([]byte, error) {
	arr, err := colormap.NewArray([]int{height, width}, samples)
	if err != nil {
		return nil, err
	}

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	fillRGBA(img, colormap.RemapInt(arr, scale, profile))

	return r.encode(img)
}

// fillRGBA copies quantized triples into an opaque image of the same size.
func fillRGBA(img *image.RGBA, rgb *colormap.IntArray) {
	n := len(rgb.Data) / 3
	for i := 0; i < n; i++ {
		img.Pix[4*i] = rgb.Data[3*i]
		img.Pix[4*i+1] = rgb.Data[3*i+1]
		img.Pix[4*i+2] = rgb.Data[3*i+2]
		img.Pix[4*i+3] = 255
	}
}

func (r *Renderer) encode(img image.Image) ([]byte, error) {
	buf := r.bufferPool.Get().(*bytes.Buffer)
	defer func() {
		buf.Reset()
		r.bufferPool.Put(buf)
	}()

	encoder := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := encoder.Encode(buf, img); err != nil {
		return nil, err
	}

	// Copy buffer contents (buffer will be reused)
	result := make([]byte, buf.Len())
	copy(result, buf.Bytes())
	return result, nil
}

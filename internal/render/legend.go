package render

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"math/cmplx"
	"strconv"

	"github.com/fogleman/gg"
	"golang.org/x/image/font/basicfont"

	"github.com/ztorgb/server/pkg/colormap"
)

// colorbarPhases is the number of discrete phase columns in a colorbar.
const colorbarPhases = 45

const tickLength = 4

// RenderColorbar renders a vertical colorbar: phase from -pi to pi across the
// strip, control value from LMax at the top to 0 at the bottom, and the scale
// ticks labeled on the right.
func (r *Renderer) RenderColorbar(width, height int, scale colormap.Scale, profile colormap.Profile) ([]byte, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid colorbar size %dx%d", width, height)
	}

	offsets, labels := scale.Ticks()
	texts := make([]string, len(labels))
	labelWidth := 0
	for i, v := range labels {
		texts[i] = formatTick(v)
		labelWidth = max(labelWidth, len(texts[i]))
	}

	face := basicfont.Face7x13
	margin := labelWidth*face.Advance + tickLength + 4
	strip := width - margin
	if strip < 4 {
		strip = min(4, width)
		margin = width - strip
	}

	lmax := scale.LMax()
	samples := make([]complex128, strip*height)
	for y := 0; y < height; y++ {
		mag := lmax * (1 - (float64(y)+0.5)/float64(height))
		for x := 0; x < strip; x++ {
			k := x * colorbarPhases / strip
			phase := -math.Pi + 2*math.Pi*float64(k)/float64(colorbarPhases-1)
			samples[y*strip+x] = cmplx.Rect(mag, phase)
		}
	}
	arr, err := colormap.NewArray([]int{height, strip}, samples)
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, strip, height))
	fillRGBA(img, colormap.RemapInt(arr, nil, profile))

	dc := gg.NewContext(width, height)
	dc.SetColor(color.Transparent)
	dc.Clear()
	dc.DrawImage(img, 0, 0)

	if margin > 0 {
		dc.SetFontFace(face)
		dc.SetColor(color.Black)
		dc.SetLineWidth(1)
		for i, o := range offsets {
			y := (1 - o/lmax) * float64(height)
			dc.DrawLine(float64(strip), y, float64(strip+tickLength), y)
			dc.Stroke()
			dc.DrawStringAnchored(texts[i], float64(strip+tickLength+2), y, 0, 0.35)
		}
	}

	return r.encode(dc.Image())
}

// RenderColorwheel renders a disk of diameter size: radius is the control
// value from 0 at the center to LMax at the rim, angle is phase. Scale ticks
// are drawn as circles.
func (r *Renderer) RenderColorwheel(size int, scale colormap.Scale, profile colormap.Profile) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("invalid colorwheel size %d", size)
	}

	center := float64(size) / 2
	radius := center - 1
	if radius <= 0 {
		radius = center
	}
	lmax := scale.LMax()

	samples := make([]complex128, size*size)
	inside := make([]bool, size*size)
	for y := 0; y < size; y++ {
		dy := center - (float64(y) + 0.5)
		for x := 0; x < size; x++ {
			dx := float64(x) + 0.5 - center
			d := math.Hypot(dx, dy)
			if d > radius {
				continue
			}
			inside[y*size+x] = true
			samples[y*size+x] = cmplx.Rect(d/radius*lmax, math.Atan2(dy, dx))
		}
	}

	arr, err := colormap.NewArray([]int{size, size}, samples)
	if err != nil {
		return nil, err
	}
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	fillRGBA(img, colormap.RemapInt(arr, nil, profile))
	for i, ok := range inside {
		if !ok {
			copy(img.Pix[4*i:4*i+4], []uint8{0, 0, 0, 0})
		}
	}

	dc := gg.NewContextForRGBA(img)
	dc.SetRGBA(0, 0, 0, 0.35)
	dc.SetLineWidth(1)
	offsets, _ := scale.Ticks()
	for _, o := range offsets {
		if o <= 0 {
			continue
		}
		dc.DrawCircle(center, center, o/lmax*radius)
		dc.Stroke()
	}

	return r.encode(dc.Image())
}

func formatTick(v float64) string {
	return strconv.FormatFloat(v, 'g', 4, 64)
}

package field

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ztorgb/server/pkg/colormap"
)

func TestGenerate(t *testing.T) {
	t.Parallel()

	f, err := Generate("identity", 4, 2, DefaultExtent)
	require.NoError(t, err)

	h, w, err := f.Dims()
	require.NoError(t, err)
	assert.Equal(t, 2, h)
	assert.Equal(t, 4, w)

	// pixel centers, top row first
	assert.Equal(t, complex(-1.5, 1), f.Values.Data[0])
	assert.Equal(t, complex(1.5, -1), f.Values.Data[7])
	require.NotNil(t, f.Extent)
	assert.Equal(t, DefaultExtent, *f.Extent)

	_, err = Generate("nope", 4, 4, DefaultExtent)
	assert.True(t, errors.Is(err, ErrUnknownGenerator))

	_, err = Generate("identity", 0, 4, DefaultExtent)
	assert.Error(t, err)

	_, err = Generate("identity", 4, 4, Extent{MinRe: 1, MaxRe: 1, MinIm: 0, MaxIm: 1})
	assert.Error(t, err)

	assert.Contains(t, Generators(), "poles")
}

func TestStats(t *testing.T) {
	t.Parallel()

	arr, err := colormap.NewArray([]int{5}, []complex128{0, 3 + 4i, -1, complex(math.NaN(), 0), 2i})
	require.NoError(t, err)

	s := (&Field{Name: "s", Values: arr}).Stats()
	assert.Equal(t, 5, s.Count)
	assert.Equal(t, 1, s.NonFinite)
	assert.Equal(t, 0.0, s.MinMag)
	assert.Equal(t, 5.0, s.MaxMag)
	assert.Equal(t, 1.0, s.MinNonZero)
	assert.InDelta(t, 2.0, s.MeanMag, 1e-12)
}

func TestZarrRoundTrip(t *testing.T) {
	t.Parallel()

	f, err := Generate("poles", 7, 5, DefaultExtent)
	require.NoError(t, err)

	dir := filepath.Join(t.TempDir(), "poles.zarr")
	require.NoError(t, WriteZarr(dir, f, 2))

	r, err := OpenZarr(dir)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []int{5, 7}, r.Meta().Shape)

	got, err := r.Read("")
	require.NoError(t, err)
	assert.Equal(t, "poles", got.Name)
	assert.Equal(t, f.Values.Shape, got.Values.Shape)
	assert.Equal(t, f.Values.Data, got.Values.Data)
	require.NotNil(t, got.Extent)
	assert.Equal(t, *f.Extent, *got.Extent)
}

func writeRawZarr(t *testing.T, meta map[string]any, chunks map[string][]byte) string {
	t.Helper()

	dir := t.TempDir()
	b, err := json.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "zarr.json"), b, 0644))

	for key, data := range chunks {
		p := filepath.Join(dir, filepath.FromSlash(key))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0755))
		require.NoError(t, os.WriteFile(p, data, 0644))
	}
	return dir
}

func TestZarrRealCoercedAndMissingChunk(t *testing.T) {
	t.Parallel()

	chunk := make([]byte, 8)
	binary.LittleEndian.PutUint32(chunk[0:], math.Float32bits(1.5))
	binary.LittleEndian.PutUint32(chunk[4:], math.Float32bits(-2))

	dir := writeRawZarr(t, map[string]any{
		"zarr_format": 3,
		"node_type":   "array",
		"shape":       []int{3},
		"data_type":   "float32",
		"chunk_grid": map[string]any{
			"name":          "regular",
			"configuration": map[string]any{"chunk_shape": []int{2}},
		},
		"fill_value": 7,
		"codecs":     []map[string]any{{"name": "bytes", "configuration": map[string]any{"endian": "little"}}},
	}, map[string][]byte{"c/0": chunk})

	r, err := OpenZarr(dir)
	require.NoError(t, err)
	defer r.Close()

	f, err := r.Read("real")
	require.NoError(t, err)
	assert.Equal(t, []complex128{1.5, -2, 7}, f.Values.Data)
	assert.Nil(t, f.Extent)
}

func TestZarrBigEndianV2Keys(t *testing.T) {
	t.Parallel()

	chunk := make([]byte, 16)
	binary.BigEndian.PutUint64(chunk[0:], math.Float64bits(0.25))
	binary.BigEndian.PutUint64(chunk[8:], math.Float64bits(-0.75))

	dir := writeRawZarr(t, map[string]any{
		"zarr_format": 3,
		"node_type":   "array",
		"shape":       []int{1, 1},
		"data_type":   "complex128",
		"chunk_grid": map[string]any{
			"name":          "regular",
			"configuration": map[string]any{"chunk_shape": []int{1, 1}},
		},
		"chunk_key_encoding": map[string]any{"name": "v2"},
		"codecs":             []map[string]any{{"name": "bytes", "configuration": map[string]any{"endian": "big"}}},
	}, map[string][]byte{"0.0": chunk})

	r, err := OpenZarr(dir)
	require.NoError(t, err)
	defer r.Close()

	f, err := r.Read("be")
	require.NoError(t, err)
	assert.Equal(t, []complex128{complex(0.25, -0.75)}, f.Values.Data)
}

func TestZarrUnsupported(t *testing.T) {
	t.Parallel()

	dir := writeRawZarr(t, map[string]any{
		"zarr_format": 3,
		"node_type":   "array",
		"shape":       []int{2},
		"data_type":   "bool",
	}, nil)

	_, err := OpenZarr(dir)
	assert.True(t, errors.Is(err, ErrUnsupportedDType))

	dir = writeRawZarr(t, map[string]any{
		"zarr_format": 3,
		"node_type":   "array",
		"shape":       []int{2},
		"data_type":   "float64",
		"codecs":      []map[string]any{{"name": "blosc"}},
	}, nil)

	_, err = OpenZarr(dir)
	assert.ErrorContains(t, err, "blosc")

	_, err = OpenZarr(t.TempDir())
	assert.Error(t, err)
}

package field

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/ztorgb/server/pkg/colormap"
)

// ZarrReader reads a single Zarr v3 array into a complex field.
type ZarrReader struct {
	basePath string
	meta     *ZarrArrayMeta
	decoder  *zstd.Decoder
	order    binary.ByteOrder
	zstd     bool
}

// ZarrArrayMeta represents Zarr v3 array metadata (zarr.json).
type ZarrArrayMeta struct {
	Shape     []int  `json:"shape"`
	DataType  string `json:"data_type"`
	ChunkGrid struct {
		Name          string `json:"name"`
		Configuration struct {
			ChunkShape []int `json:"chunk_shape"`
		} `json:"configuration"`
	} `json:"chunk_grid"`
	ChunkKeyEncoding struct {
		Name          string `json:"name"`
		Configuration struct {
			Separator string `json:"separator"`
		} `json:"configuration"`
	} `json:"chunk_key_encoding"`
	FillValue interface{} `json:"fill_value"`
	Codecs    []struct {
		Name          string                 `json:"name"`
		Configuration map[string]interface{} `json:"configuration"`
	} `json:"codecs"`
	Attributes struct {
		Name   string    `json:"name"`
		Extent []float64 `json:"extent"`
	} `json:"attributes"`
	ZarrFormat int    `json:"zarr_format"`
	NodeType   string `json:"node_type"`
}

// OpenZarr opens the array stored at basePath.
func OpenZarr(basePath string) (*ZarrReader, error) {
	data, err := os.ReadFile(filepath.Join(basePath, "zarr.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read zarr.json: %w", err)
	}

	var meta ZarrArrayMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse zarr.json: %w", err)
	}
	if meta.NodeType != "" && meta.NodeType != "array" {
		return nil, fmt.Errorf("zarr node %s is a %s, not an array", basePath, meta.NodeType)
	}
	if _, err := dtypeSize(meta.DataType); err != nil {
		return nil, err
	}
	if len(meta.ChunkGrid.Configuration.ChunkShape) == 0 {
		meta.ChunkGrid.Configuration.ChunkShape = append([]int(nil), meta.Shape...)
	}
	if len(meta.Shape) != len(meta.ChunkGrid.Configuration.ChunkShape) {
		return nil, fmt.Errorf("invalid zarr metadata: shape dims (%d) != chunk dims (%d)",
			len(meta.Shape), len(meta.ChunkGrid.Configuration.ChunkShape))
	}
	for d, c := range meta.ChunkGrid.Configuration.ChunkShape {
		if c <= 0 {
			return nil, fmt.Errorf("invalid chunk shape at dim %d: %d", d, c)
		}
	}

	r := &ZarrReader{
		basePath: basePath,
		meta:     &meta,
		order:    binary.LittleEndian,
	}

	for _, codec := range meta.Codecs {
		switch codec.Name {
		case "bytes":
			if endian, _ := codec.Configuration["endian"].(string); endian == "big" {
				r.order = binary.BigEndian
			}
		case "zstd":
			r.zstd = true
		default:
			return nil, fmt.Errorf("unsupported zarr codec: %s", codec.Name)
		}
	}

	if r.zstd {
		decoder, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
		}
		r.decoder = decoder
	}

	return r, nil
}

// Meta returns the array metadata.
func (r *ZarrReader) Meta() *ZarrArrayMeta {
	return r.meta
}

// Close releases the decoder.
func (r *ZarrReader) Close() {
	if r.decoder != nil {
		r.decoder.Close()
	}
}

// Read loads the whole array as a field named name. Real data types are
// coerced to complex values with zero imaginary part.
func (r *ZarrReader) Read(name string) (*Field, error) {
	meta := r.meta
	size, _ := dtypeSize(meta.DataType)
	chunkShape := meta.ChunkGrid.Configuration.ChunkShape
	chunkLen := product(chunkShape)

	total := product(meta.Shape)
	isReal := isRealType(meta.DataType)
	var out []complex128
	var reals []float64
	if isReal {
		reals = make([]float64, total)
	} else {
		out = make([]complex128, total)
	}

	fill, err := r.fillValue()
	if err != nil {
		return nil, err
	}

	grid := make([]int, len(meta.Shape))
	for d := range grid {
		grid[d] = ceilDiv(meta.Shape[d], chunkShape[d])
	}
	strides := rowMajorStrides(meta.Shape)

	if total > 0 {
		err = forEachIndex(grid, func(chunkIdx []int) error {
			raw, err := r.readChunkAt(chunkIdx)
			if err != nil {
				return fmt.Errorf("chunk %v: %w", chunkIdx, err)
			}
			if raw != nil && len(raw) != chunkLen*size {
				return fmt.Errorf("chunk %v: expected %d bytes, got %d", chunkIdx, chunkLen*size, len(raw))
			}

			pos := 0
			global := make([]int, len(chunkIdx))
			return forEachIndex(chunkShape, func(local []int) error {
				p := pos
				pos++

				flat := 0
				for d := range local {
					global[d] = chunkIdx[d]*chunkShape[d] + local[d]
					if global[d] >= meta.Shape[d] {
						return nil
					}
					flat += global[d] * strides[d]
				}

				switch {
				case isReal && raw == nil:
					reals[flat] = real(fill)
				case isReal:
					reals[flat] = r.decodeReal(raw[p*size : (p+1)*size])
				case raw == nil:
					out[flat] = fill
				default:
					out[flat] = r.decode(raw[p*size : (p+1)*size])
				}
				return nil
			})
		})
		if err != nil {
			return nil, err
		}
	}

	var arr *colormap.Array
	if isReal {
		arr, err = colormap.FromReal(meta.Shape, reals)
	} else {
		arr, err = colormap.NewArray(meta.Shape, out)
	}
	if err != nil {
		return nil, err
	}

	f := &Field{Name: name, Values: arr}
	if meta.Attributes.Name != "" && name == "" {
		f.Name = meta.Attributes.Name
	}
	if e := meta.Attributes.Extent; len(e) == 4 {
		f.Extent = &Extent{MinRe: e[0], MaxRe: e[1], MinIm: e[2], MaxIm: e[3]}
	}
	return f, nil
}

func (r *ZarrReader) chunkKey(chunkIdx []int) string {
	sep := r.meta.ChunkKeyEncoding.Configuration.Separator
	v2 := r.meta.ChunkKeyEncoding.Name == "v2"
	if sep == "" {
		sep = "/"
		if v2 {
			sep = "."
		}
	}

	parts := make([]string, len(chunkIdx))
	for i, idx := range chunkIdx {
		parts[i] = strconv.Itoa(idx)
	}
	key := strings.Join(parts, sep)
	if v2 {
		if key == "" {
			return "0"
		}
		return key
	}
	if key == "" {
		return "c"
	}
	return "c" + sep + key
}

// readChunkAt returns the decoded chunk bytes, or nil when the chunk is
// absent and therefore all fill value.
func (r *ZarrReader) readChunkAt(chunkIdx []int) ([]byte, error) {
	key := r.chunkKey(chunkIdx)
	chunkPath := filepath.Join(r.basePath, filepath.FromSlash(key))

	data, err := os.ReadFile(chunkPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if r.zstd {
		data, err = r.decoder.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decompress failed: %w", err)
		}
	}
	return data, nil
}

func (r *ZarrReader) decode(b []byte) complex128 {
	switch r.meta.DataType {
	case "complex128":
		re := math.Float64frombits(r.order.Uint64(b[0:8]))
		im := math.Float64frombits(r.order.Uint64(b[8:16]))
		return complex(re, im)
	case "complex64":
		re := math.Float32frombits(r.order.Uint32(b[0:4]))
		im := math.Float32frombits(r.order.Uint32(b[4:8]))
		return complex(float64(re), float64(im))
	default:
		return complex(math.NaN(), math.NaN())
	}
}

func (r *ZarrReader) decodeReal(b []byte) float64 {
	switch r.meta.DataType {
	case "float64":
		return math.Float64frombits(r.order.Uint64(b))
	case "float32":
		return float64(math.Float32frombits(r.order.Uint32(b)))
	case "int32":
		return float64(int32(r.order.Uint32(b)))
	case "uint32":
		return float64(r.order.Uint32(b))
	case "int16":
		return float64(int16(r.order.Uint16(b)))
	case "uint8":
		return float64(b[0])
	default:
		return math.NaN()
	}
}

func isRealType(dataType string) bool {
	return !strings.HasPrefix(dataType, "complex")
}

func (r *ZarrReader) fillValue() (complex128, error) {
	switch fill := r.meta.FillValue.(type) {
	case nil:
		return 0, nil
	case []interface{}:
		if len(fill) != 2 {
			return 0, fmt.Errorf("unsupported complex fill_value: %v", fill)
		}
		re, err := fillComponent(fill[0])
		if err != nil {
			return 0, err
		}
		im, err := fillComponent(fill[1])
		if err != nil {
			return 0, err
		}
		return complex(re, im), nil
	default:
		re, err := fillComponent(fill)
		if err != nil {
			return 0, err
		}
		return complex(re, 0), nil
	}
}

func fillComponent(v interface{}) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case string:
		switch t {
		case "NaN":
			return math.NaN(), nil
		case "Infinity":
			return math.Inf(1), nil
		case "-Infinity":
			return math.Inf(-1), nil
		}
	}
	return 0, fmt.Errorf("unsupported fill_value: %v", v)
}

func dtypeSize(dataType string) (int, error) {
	switch dataType {
	case "uint8":
		return 1, nil
	case "int16":
		return 2, nil
	case "float32", "int32", "uint32":
		return 4, nil
	case "float64", "complex64":
		return 8, nil
	case "complex128":
		return 16, nil
	default:
		return 0, fmt.Errorf("%w: zarr data_type %q", ErrUnsupportedDType, dataType)
	}
}

func product(ints []int) int {
	p := 1
	for _, v := range ints {
		p *= v
	}
	return p
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func rowMajorStrides(shape []int) []int {
	strides := make([]int, len(shape))
	s := 1
	for d := len(shape) - 1; d >= 0; d-- {
		strides[d] = s
		s *= shape[d]
	}
	return strides
}

// forEachIndex calls fn for every index of an array with the given extents,
// last dimension fastest. The index slice is reused between calls.
func forEachIndex(extents []int, fn func(idx []int) error) error {
	for _, e := range extents {
		if e <= 0 {
			return nil
		}
	}

	idx := make([]int, len(extents))
	for {
		if err := fn(idx); err != nil {
			return err
		}

		d := len(idx) - 1
		for ; d >= 0; d-- {
			idx[d]++
			if idx[d] < extents[d] {
				break
			}
			idx[d] = 0
		}
		if d < 0 {
			return nil
		}
	}
}

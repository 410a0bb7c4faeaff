package field

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// WriteZarr stores f as a Zarr v3 complex128 array at basePath, zstd
// compressed, one chunk per chunkRows leading-axis rows (all rows if
// chunkRows <= 0).
func WriteZarr(basePath string, f *Field, chunkRows int) error {
	shape := f.Values.Shape
	if len(shape) == 0 {
		return fmt.Errorf("field %q: cannot write a scalar", f.Name)
	}
	if chunkRows <= 0 || chunkRows > shape[0] {
		chunkRows = shape[0]
	}
	if chunkRows == 0 {
		chunkRows = 1
	}

	chunkShape := append([]int{chunkRows}, shape[1:]...)
	rowLen := product(shape[1:])

	meta := map[string]interface{}{
		"zarr_format": 3,
		"node_type":   "array",
		"shape":       shape,
		"data_type":   "complex128",
		"chunk_grid": map[string]interface{}{
			"name":          "regular",
			"configuration": map[string]interface{}{"chunk_shape": chunkShape},
		},
		"chunk_key_encoding": map[string]interface{}{
			"name":          "default",
			"configuration": map[string]interface{}{"separator": "/"},
		},
		"fill_value": []float64{0, 0},
		"codecs": []map[string]interface{}{
			{"name": "bytes", "configuration": map[string]interface{}{"endian": "little"}},
			{"name": "zstd", "configuration": map[string]interface{}{"level": 3, "checksum": false}},
		},
	}
	attrs := map[string]interface{}{"name": f.Name}
	if f.Extent != nil {
		attrs["extent"] = []float64{f.Extent.MinRe, f.Extent.MaxRe, f.Extent.MinIm, f.Extent.MaxIm}
	}
	meta["attributes"] = attrs

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return fmt.Errorf("failed to create zarr directory: %w", err)
	}
	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(basePath, "zarr.json"), metaBytes, 0644); err != nil {
		return fmt.Errorf("failed to write zarr.json: %w", err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	defer encoder.Close()

	chunkLen := chunkRows * rowLen
	for c := 0; c < ceilDiv(shape[0], chunkRows); c++ {
		buf := make([]byte, chunkLen*16)
		start := c * chunkLen
		for i := 0; i < chunkLen && start+i < len(f.Values.Data); i++ {
			z := f.Values.Data[start+i]
			binary.LittleEndian.PutUint64(buf[i*16:], math.Float64bits(real(z)))
			binary.LittleEndian.PutUint64(buf[i*16+8:], math.Float64bits(imag(z)))
		}

		key := []int{c}
		for range shape[1:] {
			key = append(key, 0)
		}
		chunkPath := filepath.Join(basePath, "c")
		for _, k := range key {
			chunkPath = filepath.Join(chunkPath, fmt.Sprint(k))
		}
		if err := os.MkdirAll(filepath.Dir(chunkPath), 0755); err != nil {
			return err
		}
		if err := os.WriteFile(chunkPath, encoder.EncodeAll(buf, nil), 0644); err != nil {
			return fmt.Errorf("failed to write chunk %d: %w", c, err)
		}
	}

	return nil
}

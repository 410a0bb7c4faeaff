// Package fieldstore provides persistent storage for uploaded fields using SQLite.
package fieldstore

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"

	"github.com/ztorgb/server/internal/field"
	"github.com/ztorgb/server/pkg/colormap"
)

// ErrNotFound is returned when no field has the requested ID.
var ErrNotFound = errors.New("field not found")

// Record describes a stored field without its samples.
type Record struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Shape     []int         `json:"shape"`
	Extent    *field.Extent `json:"extent,omitempty"`
	Bytes     int           `json:"bytes"`
	CreatedAt time.Time     `json:"created_at"`
}

// Store persists fields in SQLite. Samples are stored as zstd-compressed
// little-endian complex128 pairs.
type Store struct {
	db      *sql.DB
	mu      sync.Mutex
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewStore opens (creating if needed) the SQLite database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for sqlite: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	s := &Store{db: db, encoder: encoder, decoder: decoder}
	if err := s.migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.decoder.Close()
	s.encoder.Close()
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS fields (
		field_id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		shape_json TEXT NOT NULL,
		extent_json TEXT,
		raw_bytes INTEGER NOT NULL,
		data BLOB NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_fields_created ON fields(created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Put stores f under a new ID and returns its record.
func (s *Store) Put(f *field.Field) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	shapeJSON, err := json.Marshal(f.Values.Shape)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal shape: %w", err)
	}

	var extentJSON sql.NullString
	if f.Extent != nil {
		b, err := json.Marshal(f.Extent)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal extent: %w", err)
		}
		extentJSON = sql.NullString{String: string(b), Valid: true}
	}

	raw := encodeSamples(f.Values.Data)
	rec := &Record{
		ID:        uuid.NewString(),
		Name:      f.Name,
		Shape:     append([]int(nil), f.Values.Shape...),
		Extent:    f.Extent,
		Bytes:     len(raw),
		CreatedAt: time.Now().UTC().Truncate(time.Second),
	}

	_, err = s.db.Exec(`
		INSERT INTO fields (field_id, name, shape_json, extent_json, raw_bytes, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.Name,
		string(shapeJSON),
		extentJSON,
		rec.Bytes,
		s.encoder.EncodeAll(raw, nil),
		rec.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Get loads the field with the given ID.
func (s *Store) Get(id string) (*field.Field, error) {
	row := s.db.QueryRow(`
		SELECT field_id, name, shape_json, extent_json, raw_bytes, created_at, data
		FROM fields WHERE field_id = ?
	`, id)

	var blob []byte
	rec, err := scanRecord(row.Scan, &blob)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	raw, err := s.decoder.DecodeAll(blob, nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decompress failed: %w", err)
	}
	if len(raw) != rec.Bytes {
		return nil, fmt.Errorf("field %s: expected %d bytes, got %d", id, rec.Bytes, len(raw))
	}

	arr, err := colormap.NewArray(rec.Shape, decodeSamples(raw))
	if err != nil {
		return nil, err
	}
	return &field.Field{Name: rec.Name, Values: arr, Extent: rec.Extent}, nil
}

// List returns all records, oldest first.
func (s *Store) List() ([]*Record, error) {
	rows, err := s.db.Query(`
		SELECT field_id, name, shape_json, extent_json, raw_bytes, created_at
		FROM fields ORDER BY created_at, field_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		rec, err := scanRecord(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Delete removes the field with the given ID.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM fields WHERE field_id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func scanRecord(scan func(dest ...any) error, extra ...any) (*Record, error) {
	var rec Record
	var shapeJSON, createdAtStr string
	var extentJSON sql.NullString

	dest := append([]any{&rec.ID, &rec.Name, &shapeJSON, &extentJSON, &rec.Bytes, &createdAtStr}, extra...)
	if err := scan(dest...); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(shapeJSON), &rec.Shape); err != nil {
		return nil, fmt.Errorf("failed to unmarshal shape: %w", err)
	}
	if extentJSON.Valid {
		rec.Extent = new(field.Extent)
		if err := json.Unmarshal([]byte(extentJSON.String), rec.Extent); err != nil {
			return nil, fmt.Errorf("failed to unmarshal extent: %w", err)
		}
	}
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAtStr)

	return &rec, nil
}

func encodeSamples(data []complex128) []byte {
	buf := make([]byte, 16*len(data))
	for i, z := range data {
		binary.LittleEndian.PutUint64(buf[16*i:], math.Float64bits(real(z)))
		binary.LittleEndian.PutUint64(buf[16*i+8:], math.Float64bits(imag(z)))
	}
	return buf
}

func decodeSamples(buf []byte) []complex128 {
	data := make([]complex128, len(buf)/16)
	for i := range data {
		re := math.Float64frombits(binary.LittleEndian.Uint64(buf[16*i:]))
		im := math.Float64frombits(binary.LittleEndian.Uint64(buf[16*i+8:]))
		data[i] = complex(re, im)
	}
	return data
}

// Package cache provides caching for rendered images and query results.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/dustin/go-humanize"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Config contains cache configuration.
type Config struct {
	ImageCacheSizeMB int
	ImageTTL         time.Duration
	QueryCacheSize   int
}

// Manager manages image and query caches.
type Manager struct {
	imageCache *bigcache.BigCache
	queryCache *lru.Cache[string, []byte]
}

// NewManager creates a new cache manager.
func NewManager(cfg Config) (*Manager, error) {
	imageCacheConfig := bigcache.Config{
		Shards:             64,
		LifeWindow:         cfg.ImageTTL,
		CleanWindow:        cfg.ImageTTL / 2,
		MaxEntriesInWindow: 10000,
		MaxEntrySize:       256 * 1024,
		HardMaxCacheSize:   cfg.ImageCacheSizeMB,
		Verbose:            false,
	}

	imageCache, err := bigcache.New(context.Background(), imageCacheConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create image cache: %w", err)
	}

	queryCache, err := lru.New[string, []byte](cfg.QueryCacheSize)
	if err != nil {
		imageCache.Close()
		return nil, fmt.Errorf("failed to create query cache: %w", err)
	}

	return &Manager{
		imageCache: imageCache,
		queryCache: queryCache,
	}, nil
}

// GetImage retrieves an encoded image from cache.
func (m *Manager) GetImage(key string) ([]byte, bool) {
	data, err := m.imageCache.Get(key)
	if err != nil {
		return nil, false
	}
	return data, true
}

// SetImage stores an encoded image in cache.
func (m *Manager) SetImage(key string, data []byte) error {
	return m.imageCache.Set(key, data)
}

// GetQuery retrieves a query result from cache.
func (m *Manager) GetQuery(key string) ([]byte, bool) {
	return m.queryCache.Get(key)
}

// SetQuery stores a query result in cache.
func (m *Manager) SetQuery(key string, data []byte) {
	m.queryCache.Add(key, data)
}

// PurgePrefix drops query entries whose key starts with prefix. Image entries
// expire on their own.
func (m *Manager) PurgePrefix(prefix string) int {
	n := 0
	for _, k := range m.queryCache.Keys() {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			m.queryCache.Remove(k)
			n++
		}
	}
	return n
}

// ImageKey generates a cache key for a full field image.
func ImageKey(fieldID, profile, scale string, width int) string {
	return fmt.Sprintf("img:%s:%s:%s:w=%d", fieldID, profile, scale, width)
}

// TileKey generates a cache key for a field tile.
func TileKey(fieldID string, z, x, y int, profile, scale string) string {
	return fmt.Sprintf("tile:%s:%d/%d/%d:%s:%s", fieldID, z, x, y, profile, scale)
}

// ColorbarKey generates a cache key for a colorbar image.
func ColorbarKey(profile, scale string, width, height int) string {
	return fmt.Sprintf("cbar:%s:%s:%dx%d", profile, scale, width, height)
}

// ColorwheelKey generates a cache key for a colorwheel image.
func ColorwheelKey(profile, scale string, size int) string {
	return fmt.Sprintf("wheel:%s:%s:%d", profile, scale, size)
}

// TicksKey generates a cache key for scale ticks.
func TicksKey(scale string) string {
	return "ticks:" + scale
}

// StatsKey generates a cache key for field statistics.
func StatsKey(fieldID string) string {
	return "stats:" + fieldID
}

// Stats returns cache statistics.
func (m *Manager) Stats() map[string]interface{} {
	return map[string]interface{}{
		"image_cache_len":   m.imageCache.Len(),
		"image_cache_bytes": humanize.IBytes(uint64(m.imageCache.Capacity())),
		"image_cache_hits":  m.imageCache.Stats().Hits,
		"query_cache_len":   m.queryCache.Len(),
	}
}

// Close closes the cache manager.
func (m *Manager) Close() error {
	return m.imageCache.Close()
}

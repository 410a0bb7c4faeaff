package cache

import (
	"testing"
	"time"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	m, err := NewManager(Config{
		ImageCacheSizeMB: 8,
		ImageTTL:         time.Minute,
		QueryCacheSize:   8,
	})
	if err != nil {
		t.Fatalf("failed to create cache manager: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestKeys(t *testing.T) {
	t.Parallel()

	if got := ImageKey("poles", "srgb", "linear(1)", 512); got != "img:poles:srgb:linear(1):w=512" {
		t.Fatalf("unexpected image key %q", got)
	}
	if got := TileKey("poles", 2, 1, 3, "srgb", "log(0.01,1,0.9)"); got != "tile:poles:2/1/3:srgb:log(0.01,1,0.9)" {
		t.Fatalf("unexpected tile key %q", got)
	}
	if got := TicksKey("linear(2)"); got != "ticks:linear(2)" {
		t.Fatalf("unexpected ticks key %q", got)
	}
	if ColorbarKey("srgb", "linear(1)", 40, 200) == ColorbarKey("srgb", "linear(1)", 200, 40) {
		t.Fatal("expected colorbar keys to depend on orientation")
	}
	if ColorwheelKey("srgb", "linear(1)", 64) == ColorwheelKey("srgb_low", "linear(1)", 64) {
		t.Fatal("expected colorwheel keys to depend on profile")
	}
}

func TestImageCache(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)

	if _, ok := m.GetImage("missing"); ok {
		t.Fatal("expected miss")
	}
	if err := m.SetImage("k", []byte("png")); err != nil {
		t.Fatalf("SetImage: %v", err)
	}
	got, ok := m.GetImage("k")
	if !ok || string(got) != "png" {
		t.Fatalf("unexpected image cache entry: %q %v", got, ok)
	}
}

func TestQueryCachePurgePrefix(t *testing.T) {
	t.Parallel()

	m := newTestManager(t)

	m.SetQuery("stats:a", []byte("1"))
	m.SetQuery("stats:b", []byte("2"))
	m.SetQuery("ticks:x", []byte("3"))

	if n := m.PurgePrefix("stats:"); n != 2 {
		t.Fatalf("expected 2 purged entries, got %d", n)
	}
	if _, ok := m.GetQuery("stats:a"); ok {
		t.Fatal("expected stats:a to be purged")
	}
	if v, ok := m.GetQuery("ticks:x"); !ok || string(v) != "3" {
		t.Fatalf("expected ticks:x to survive, got %q %v", v, ok)
	}

	stats := m.Stats()
	if stats["query_cache_len"] != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}
}

package main

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ztorgb/server/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "server.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRenderCmd(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	g := &Globals{Config: filepath.Join(dir, "missing.yaml")}

	for name, cmd := range map[string]*renderCmd{
		"generator": {Kind: "field", Generator: "poles", Grid: 32, Width: 16, Scale: "log", VMin: 0.01, VMax: 100},
		"configured": {Kind: "field", Grid: 32, Width: 20, Scale: "linear"},
		"colorbar":   {Kind: "colorbar", Width: 60, Height: 100, Scale: "linear", VMag: 2},
		"colorwheel": {Kind: "colorwheel", Width: 40, Scale: "log", Profile: "srgb_low"},
	} {
		name, cmd := name, cmd
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cmd.Out = filepath.Join(dir, name+".png")
			require.NoError(t, cmd.Run(g, zap.NewNop()))

			data, err := os.ReadFile(cmd.Out)
			require.NoError(t, err)
			img, err := png.Decode(bytes.NewReader(data))
			require.NoError(t, err)
			assert.Equal(t, cmd.Width, img.Bounds().Dx())
		})
	}
}

func TestRenderCmdErrors(t *testing.T) {
	t.Parallel()

	g := &Globals{Config: filepath.Join(t.TempDir(), "missing.yaml")}
	out := filepath.Join(t.TempDir(), "out.png")

	err := (&renderCmd{Kind: "field", Generator: "nope", Grid: 8, Width: 8, Scale: "linear", Out: out}).Run(g, zap.NewNop())
	assert.Error(t, err)

	err = (&renderCmd{Kind: "field", Field: "nope", Width: 8, Scale: "linear", Out: out}).Run(g, zap.NewNop())
	assert.Error(t, err)

	err = (&renderCmd{Kind: "colorbar", Width: 8, Height: 8, Scale: "log", VMin: 10, VMax: 1, Out: out}).Run(g, zap.NewNop())
	assert.Error(t, err)

	err = (&renderCmd{Kind: "colorbar", Width: 8, Height: 8, Scale: "linear", Profile: "cmyk", Out: out}).Run(g, zap.NewNop())
	assert.Error(t, err)
}

func TestNewServer(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg, err := config.Load(writeConfig(t, `
render:
  tile_size: 32
  default_profile: mine
  default_scale: {kind: log, vmin: 0.1, vmax: 10}
store:
  sqlite_path: `+filepath.Join(dir, "fields.sqlite")+`
profiles:
  mine: {weights: [0.3, 0.59, 0.11], gamma: 0.5}
fields:
  roots: {generator: roots, width: 32}
  poles: {generator: poles, width: 32, extent: [-1, 1, -1, 1]}
`))
	require.NoError(t, err)

	srv, err := newServer(cfg, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	assert.Equal(t, []string{"roots", "poles"}, srv.registry.FieldIDs())

	rec := httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/profiles", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var profiles struct {
		Default string `json:"default"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &profiles))
	assert.Equal(t, "mine", profiles.Default)

	rec = httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/d/poles/tiles/0/0/0.png", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))

	rec = httptest.NewRecorder()
	srv.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ztorgb_render_total")
}

func TestNewServerErrors(t *testing.T) {
	t.Parallel()

	for name, content := range map[string]string{
		"UnknownGenerator": "fields:\n  a: {generator: nope}\n",
		"UnknownProfile":   "render: {default_profile: cmyk}\n",
		"BadProfile":       "profiles:\n  bad: {weights: [1, 0, 1], gamma: 1}\n",
		"BadScale":         "render: {default_scale: {kind: log, vmin: 5, vmax: 1}}\n",
	} {
		name, content := name, content
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg, err := config.Load(writeConfig(t, content+"store: {sqlite_path: \"\"}\n"))
			require.NoError(t, err)
			_, err = newServer(cfg, zap.NewNop())
			assert.Error(t, err)
		})
	}
}

// Package api provides HTTP handlers for the ZtoRGB server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/ztorgb/server/internal/cache"
	"github.com/ztorgb/server/internal/field"
	"github.com/ztorgb/server/internal/fieldstore"
	"github.com/ztorgb/server/internal/render"
	"github.com/ztorgb/server/internal/service"
	"github.com/ztorgb/server/pkg/colormap"
)

const (
	maxImageSize     = 4096
	maxRequestBytes  = 64 << 20
	maxRemapValues   = 1 << 20
	defaultBarWidth  = 64
	defaultBarHeight = 256
	defaultWheelSize = 256
)

// RouterConfig contains router configuration.
type RouterConfig struct {
	Registry     *FieldRegistry
	Profiles     *service.ProfileRegistry
	Legends      *service.LegendService
	Cache        *cache.Manager
	Store        *fieldstore.Store
	DefaultScale service.ScaleSpec
	CORSOrigins  []string
	Gatherer     prometheus.Gatherer
	Logger       *zap.Logger
}

// handlers carries shared dependencies of the global endpoints.
type handlers struct {
	cfg RouterConfig
	l   *zap.Logger
}

// NewRouter creates a new HTTP router.
func NewRouter(cfg RouterConfig) *chi.Mux {
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.DefaultScale.Kind == "" {
		cfg.DefaultScale = service.DefaultScaleSpec
	}
	cfg.DefaultScale = cfg.DefaultScale.Normalize()

	l := cfg.Logger
	if l == nil {
		l = zap.L()
	}
	h := &handlers{cfg: cfg, l: l.Named("api")}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestLogger(&middleware.DefaultLogFormatter{
		Logger:  zap.NewStdLog(h.l),
		NoColor: true,
	}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{DisableCompression: true}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/profiles", h.profiles)
		r.Get("/ticks", h.ticks)
		r.Post("/remap", h.remap)
		r.Get("/colorbar.png", h.colorbar)
		r.Get("/colorwheel.png", h.colorwheel)

		r.Get("/fields", h.fields)
		r.Post("/fields", h.uploadField)
		r.Delete("/fields/{field}", h.deleteField)
	})

	// Field-scoped routes: /d/{field}/...
	r.Route("/d/{field}", func(r chi.Router) {
		r.Use(fieldMiddleware(cfg.Registry))

		r.Get("/image.png", h.fieldImage)
		r.Get("/tiles/{z}/{x}/{y}.png", h.fieldTile)

		r.Route("/api", func(r chi.Router) {
			r.Get("/info", fieldInfoHandler)
			r.Get("/stats", fieldStatsHandler)
		})
	})

	return r
}

// Context key for field service
type ctxKey string

const fieldServiceKey ctxKey = "fieldService"

// fieldMiddleware resolves the field from URL and injects its service into context.
func fieldMiddleware(registry *FieldRegistry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fieldID := chi.URLParam(r, "field")
			svc := registry.Get(fieldID)
			if svc == nil {
				http.Error(w, "field not found: "+fieldID, http.StatusNotFound)
				return
			}
			ctx := context.WithValue(r.Context(), fieldServiceKey, svc)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func getFieldService(r *http.Request) *service.FieldService {
	if svc, ok := r.Context().Value(fieldServiceKey).(*service.FieldService); ok {
		return svc
	}
	return nil
}

// errorStatus maps an error to an HTTP status code.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, colormap.ErrInvalidScale),
		errors.Is(err, colormap.ErrInvalidProfile),
		errors.Is(err, colormap.ErrShape),
		errors.Is(err, service.ErrUnknownProfile),
		errors.Is(err, field.ErrUnsupportedDType),
		errors.Is(err, field.ErrUnknownGenerator):
		return http.StatusBadRequest
	case errors.Is(err, fieldstore.ErrNotFound),
		errors.Is(err, render.ErrTileRange):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		h.l.Error("Request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
	}
	http.Error(w, err.Error(), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeRawJSON(w, status, data)
}

func writeRawJSON(w http.ResponseWriter, status int, data []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

func writePNG(w http.ResponseWriter, data []byte) {
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(data)
}

// parseSize reads a positive integer query parameter no larger than
// maxImageSize; absent means def.
func parseSize(r *http.Request, name string, def int) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 || v > maxImageSize {
		return 0, false
	}
	return v, true
}

// appearance resolves the profile and scale query parameters.
func (h *handlers) appearance(r *http.Request) (string, colormap.Profile, service.ScaleSpec, error) {
	q := r.URL.Query()
	name, profile, err := h.cfg.Profiles.Lookup(q.Get("profile"))
	if err != nil {
		return "", colormap.Profile{}, service.ScaleSpec{}, err
	}
	spec, err := service.ParseScaleQuery(q, h.cfg.DefaultScale)
	if err != nil {
		return "", colormap.Profile{}, service.ScaleSpec{}, err
	}
	return name, profile, spec, nil
}

// profiles returns all registered color profiles.
func (h *handlers) profiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"default":  h.cfg.Profiles.DefaultName(),
		"profiles": h.cfg.Profiles.Infos(),
	})
}

type ticksResponse struct {
	Scale   service.ScaleSpec `json:"scale"`
	LMax    float64           `json:"lmax"`
	Offsets []float64         `json:"offsets"`
	Labels  []float64         `json:"labels"`
}

// ticks returns colorbar tick offsets and labels for a scale.
func (h *handlers) ticks(w http.ResponseWriter, r *http.Request) {
	spec, err := service.ParseScaleQuery(r.URL.Query(), h.cfg.DefaultScale)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	key := cache.TicksKey(spec.String())
	if data, ok := h.cfg.Cache.GetQuery(key); ok {
		writeRawJSON(w, http.StatusOK, data)
		return
	}

	scale, err := spec.Build()
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	offsets, labels := scale.Ticks()

	data, err := json.Marshal(ticksResponse{
		Scale:   spec,
		LMax:    scale.LMax(),
		Offsets: offsets,
		Labels:  labels,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.cfg.Cache.SetQuery(key, data)
	writeRawJSON(w, http.StatusOK, data)
}

type remapRequest struct {
	Shape   []int              `json:"shape"`
	Values  [][2]float64       `json:"values"`
	Scale   *service.ScaleSpec `json:"scale"`
	Profile string             `json:"profile"`
	Int     bool               `json:"int"`
}

type remapResponse struct {
	Shape []int `json:"shape"`
	RGB   any   `json:"rgb"`
}

// remap converts posted complex values to RGB triples. A missing scale
// feeds the raw values to the color transform.
func (h *handlers) remap(w http.ResponseWriter, r *http.Request) {
	var req remapRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Values) > maxRemapValues {
		http.Error(w, "too many values", http.StatusRequestEntityTooLarge)
		return
	}

	shape := req.Shape
	if shape == nil {
		shape = []int{len(req.Values)}
	}
	arr, err := colormap.NewArray(shape, pairsToComplex(req.Values))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	_, profile, err := h.cfg.Profiles.Lookup(req.Profile)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	var scale colormap.Scale
	if req.Scale != nil {
		if scale, err = req.Scale.Build(); err != nil {
			h.writeError(w, r, err)
			return
		}
	}

	if req.Int {
		out := colormap.RemapInt(arr, scale, profile)
		rgb := make([]int, len(out.Data))
		for i, v := range out.Data {
			rgb[i] = int(v)
		}
		writeJSON(w, http.StatusOK, remapResponse{Shape: out.Shape, RGB: rgb})
		return
	}

	out := colormap.Remap(arr, scale, profile)
	writeJSON(w, http.StatusOK, remapResponse{Shape: out.Shape, RGB: out.Data})
}

func pairsToComplex(pairs [][2]float64) []complex128 {
	data := make([]complex128, len(pairs))
	for i, p := range pairs {
		data[i] = complex(p[0], p[1])
	}
	return data
}

// colorbar renders a colorbar PNG.
func (h *handlers) colorbar(w http.ResponseWriter, r *http.Request) {
	name, profile, spec, err := h.appearance(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	width, ok := parseSize(r, "width", defaultBarWidth)
	if !ok {
		http.Error(w, "invalid width", http.StatusBadRequest)
		return
	}
	height, ok := parseSize(r, "height", defaultBarHeight)
	if !ok {
		http.Error(w, "invalid height", http.StatusBadRequest)
		return
	}

	data, err := h.cfg.Legends.Colorbar(name, profile, spec, width, height)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writePNG(w, data)
}

// colorwheel renders a colorwheel PNG.
func (h *handlers) colorwheel(w http.ResponseWriter, r *http.Request) {
	name, profile, spec, err := h.appearance(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	size, ok := parseSize(r, "size", defaultWheelSize)
	if !ok {
		http.Error(w, "invalid size", http.StatusBadRequest)
		return
	}

	data, err := h.cfg.Legends.Colorwheel(name, profile, spec, size)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writePNG(w, data)
}

// fields returns the list of available fields.
func (h *handlers) fields(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"default": h.cfg.Registry.DefaultFieldID(),
		"fields":  h.cfg.Registry.Fields(),
		"title":   h.cfg.Registry.Title(),
	})
}

type uploadRequest struct {
	Name   string        `json:"name"`
	Shape  []int         `json:"shape"`
	Values [][2]float64  `json:"values"`
	Extent *field.Extent `json:"extent"`
}

// uploadField stores a posted 2-D field and registers it for rendering.
func (h *handlers) uploadField(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Store == nil {
		http.Error(w, "field uploads are disabled", http.StatusServiceUnavailable)
		return
	}

	var req uploadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body: "+err.Error(), http.StatusBadRequest)
		return
	}

	arr, err := colormap.NewArray(req.Shape, pairsToComplex(req.Values))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	f := &field.Field{Name: strings.TrimSpace(req.Name), Values: arr, Extent: req.Extent}
	if _, _, err := f.Dims(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if arr.Len() == 0 {
		http.Error(w, "field has no values", http.StatusBadRequest)
		return
	}

	rec, err := h.cfg.Store.Put(f)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.cfg.Registry.Add(rec.ID, "upload", service.StoreLoader(h.cfg.Store, rec.ID))
	h.l.Info("Field uploaded", zap.String("field", rec.ID), zap.Ints("shape", rec.Shape))

	writeJSON(w, http.StatusCreated, rec)
}

// deleteField removes an uploaded field. Configured fields cannot be deleted.
func (h *handlers) deleteField(w http.ResponseWriter, r *http.Request) {
	fieldID := chi.URLParam(r, "field")
	if h.cfg.Store == nil {
		http.Error(w, "field uploads are disabled", http.StatusServiceUnavailable)
		return
	}

	if err := h.cfg.Store.Delete(fieldID); err != nil {
		if errors.Is(err, fieldstore.ErrNotFound) && h.cfg.Registry.Get(fieldID) != nil {
			http.Error(w, "configured fields cannot be deleted", http.StatusForbidden)
			return
		}
		h.writeError(w, r, err)
		return
	}

	h.cfg.Registry.Remove(fieldID)
	h.cfg.Cache.PurgePrefix(cache.StatsKey(fieldID))
	w.WriteHeader(http.StatusNoContent)
}

// fieldImage renders the whole field.
func (h *handlers) fieldImage(w http.ResponseWriter, r *http.Request) {
	svc := getFieldService(r)
	if svc == nil {
		http.Error(w, "field service not found", http.StatusInternalServerError)
		return
	}

	name, profile, spec, err := h.appearance(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	width, ok := parseSize(r, "width", 0)
	if !ok {
		http.Error(w, "invalid width", http.StatusBadRequest)
		return
	}

	data, err := svc.Image(name, profile, spec, width)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writePNG(w, data)
}

// fieldTile renders one slippy-map tile of the field.
func (h *handlers) fieldTile(w http.ResponseWriter, r *http.Request) {
	svc := getFieldService(r)
	if svc == nil {
		http.Error(w, "field service not found", http.StatusInternalServerError)
		return
	}

	z, err := strconv.Atoi(chi.URLParam(r, "z"))
	if err != nil {
		http.Error(w, "invalid z", http.StatusBadRequest)
		return
	}
	x, err := strconv.Atoi(chi.URLParam(r, "x"))
	if err != nil {
		http.Error(w, "invalid x", http.StatusBadRequest)
		return
	}
	y, err := strconv.Atoi(chi.URLParam(r, "y"))
	if err != nil {
		http.Error(w, "invalid y", http.StatusBadRequest)
		return
	}

	name, profile, spec, err := h.appearance(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	data, err := svc.Tile(z, x, y, name, profile, spec)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writePNG(w, data)
}

func fieldInfoHandler(w http.ResponseWriter, r *http.Request) {
	svc := getFieldService(r)
	if svc == nil {
		http.Error(w, "field service not found", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, svc.Info())
}

func fieldStatsHandler(w http.ResponseWriter, r *http.Request) {
	svc := getFieldService(r)
	if svc == nil {
		http.Error(w, "field service not found", http.StatusInternalServerError)
		return
	}

	res, err := svc.Stats()
	if err != nil {
		http.Error(w, err.Error(), errorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, res)
}

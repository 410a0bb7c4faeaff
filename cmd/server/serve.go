package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ztorgb/server/internal/api"
	"github.com/ztorgb/server/internal/cache"
	"github.com/ztorgb/server/internal/config"
	"github.com/ztorgb/server/internal/field"
	"github.com/ztorgb/server/internal/fieldstore"
	"github.com/ztorgb/server/internal/render"
	"github.com/ztorgb/server/internal/service"
)

// serveCmd runs the HTTP server.
type serveCmd struct {
	Port int `default:"0" help:"Listen port; overrides the configuration file when set."`
}

// Run starts the server and blocks until SIGINT or SIGTERM.
func (c *serveCmd) Run(g *Globals, l *zap.Logger) error {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	srv, err := newServer(cfg, l)
	if err != nil {
		return err
	}
	defer srv.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		l.Sugar().Infof("Server listening on http://localhost:%d", cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	l.Info("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		l.Warn("Server forced to shutdown", zap.Error(err))
	}

	l.Info("Server stopped")
	return nil
}

// server holds the HTTP handler and the resources behind it.
type server struct {
	handler  http.Handler
	cache    *cache.Manager
	store    *fieldstore.Store
	registry *api.FieldRegistry
}

// Close releases the cache and the field store.
func (s *server) Close() {
	if s.store != nil {
		s.store.Close()
	}
	s.cache.Close()
}

// newServer wires configuration into the HTTP handler.
func newServer(cfg *config.Config, l *zap.Logger) (*server, error) {
	profiles, err := newProfileRegistry(cfg)
	if err != nil {
		return nil, err
	}

	defaultScale := service.ScaleSpec(cfg.Render.DefaultScale).Normalize()
	if _, err := defaultScale.Build(); err != nil {
		return nil, fmt.Errorf("render.default_scale: %w", err)
	}

	// Shared across all fields
	cacheManager, err := cache.NewManager(cache.Config{
		ImageCacheSizeMB: cfg.Cache.ImageSizeMB,
		ImageTTL:         cfg.Cache.ImageTTL(),
		QueryCacheSize:   cfg.Cache.QueryCacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	l.Info("Image cache initialized",
		zap.String("limit", humanize.IBytes(uint64(cfg.Cache.ImageSizeMB)<<20)),
		zap.Duration("ttl", cfg.Cache.ImageTTL()),
	)

	renderer := render.NewRenderer(render.Config{
		TileSize:   cfg.Render.TileSize,
		ImageWidth: cfg.Render.ImageSize,
	})

	metrics := service.NewMetrics()
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		metrics,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	registry := api.NewFieldRegistry(service.FieldServiceConfig{
		Cache:    cacheManager,
		Renderer: renderer,
		Metrics:  metrics,
		Logger:   l.Named("service"),
	}, cfg.Server.Title)

	ids := cfg.Fields.FieldIDs()
	l.Sugar().Infof("Initializing %d field(s), default: %s", len(ids), cfg.Fields.DefaultField)

	for _, id := range ids {
		source, load, err := fieldLoader(cfg.Fields.Fields[id])
		if err != nil {
			cacheManager.Close()
			return nil, fmt.Errorf("fields.%s: %w", id, err)
		}
		registry.Add(id, source, load)
		l.Sugar().Infof("  [%s] %s", id, source)
	}

	var store *fieldstore.Store
	if cfg.Store.SQLitePath != "" {
		if store, err = fieldstore.NewStore(cfg.Store.SQLitePath); err != nil {
			cacheManager.Close()
			return nil, err
		}

		records, err := store.List()
		if err != nil {
			store.Close()
			cacheManager.Close()
			return nil, err
		}
		for _, rec := range records {
			registry.Add(rec.ID, "upload", service.StoreLoader(store, rec.ID))
		}
		l.Info("Field store opened", zap.String("path", cfg.Store.SQLitePath), zap.Int("fields", len(records)))
	}

	router := api.NewRouter(api.RouterConfig{
		Registry:     registry,
		Profiles:     profiles,
		Legends:      service.NewLegendService(cacheManager, renderer, metrics),
		Cache:        cacheManager,
		Store:        store,
		DefaultScale: defaultScale,
		CORSOrigins:  cfg.Server.CORSOrigins,
		Gatherer:     reg,
		Logger:       l,
	})

	return &server{
		handler:  router,
		cache:    cacheManager,
		store:    store,
		registry: registry,
	}, nil
}

// newProfileRegistry registers configured profiles on top of the built-ins.
func newProfileRegistry(cfg *config.Config) (*service.ProfileRegistry, error) {
	profiles := service.NewProfileRegistry(cfg.Render.DefaultProfile)
	for name, p := range cfg.Profiles {
		if err := profiles.Register(name, p.Weights, p.Gamma); err != nil {
			return nil, err
		}
	}
	if _, _, err := profiles.Lookup(""); err != nil {
		return nil, fmt.Errorf("render.default_profile: %w", err)
	}
	return profiles, nil
}

// fieldLoader returns a description and a loader for a configured field.
func fieldLoader(fc config.FieldConfig) (string, service.Loader, error) {
	if fc.ZarrPath != "" {
		return "zarr:" + fc.ZarrPath, service.ZarrLoader(fc.ZarrPath), nil
	}

	if !slices.Contains(field.Generators(), fc.Generator) {
		return "", nil, fmt.Errorf("%w: %q (known: %v)", field.ErrUnknownGenerator, fc.Generator, field.Generators())
	}

	extent := field.DefaultExtent
	if e := fc.Extent; len(e) == 4 {
		extent = field.Extent{MinRe: e[0], MaxRe: e[1], MinIm: e[2], MaxIm: e[3]}
	}
	return "generator:" + fc.Generator, service.GeneratorLoader(fc.Generator, fc.Width, fc.Height, extent), nil
}

// Package app builds the runtime components shared by the CLI and the HTTP
// service from the loaded configuration.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/robert-malhotra/ewoc-work-plan/internal/asf"
	"github.com/robert-malhotra/ewoc-work-plan/internal/catalog"
	"github.com/robert-malhotra/ewoc-work-plan/internal/config"
	"github.com/robert-malhotra/ewoc-work-plan/internal/creodias"
	"github.com/robert-malhotra/ewoc-work-plan/internal/event"
	"github.com/robert-malhotra/ewoc-work-plan/internal/landsat"
	"github.com/robert-malhotra/ewoc-work-plan/internal/mask"
	"github.com/robert-malhotra/ewoc-work-plan/internal/metrics"
	"github.com/robert-malhotra/ewoc-work-plan/internal/objstore"
	"github.com/robert-malhotra/ewoc-work-plan/internal/sar"
	"github.com/robert-malhotra/ewoc-work-plan/internal/stacapi"
	"github.com/robert-malhotra/ewoc-work-plan/internal/store"
	"github.com/robert-malhotra/ewoc-work-plan/internal/telemetry"
	"github.com/robert-malhotra/ewoc-work-plan/internal/tiles"
	"github.com/robert-malhotra/ewoc-work-plan/internal/workplan"
)

// ErrDisabled is returned for optional components without configuration.
var ErrDisabled = errors.New("component not configured")

// App owns the configured components and releases them on Close.
type App struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	objects  *objstore.Client
	closers  []func(context.Context) error
}

// New creates the metrics registry, the object store client and, when
// enabled, the tracer provider.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	a := &App{
		cfg:      cfg,
		logger:   logger,
		registry: reg,
		metrics:  metrics.New(reg),
	}

	objects, err := objstore.Connect(ctx, objstore.Options{
		Endpoint:      cfg.S3.Endpoint,
		Region:        cfg.S3.Region,
		AccessKey:     cfg.S3.AccessKey,
		SecretKey:     cfg.S3.SecretKey,
		UsePathStyle:  cfg.S3.UsePathStyle,
		RequesterPays: cfg.S3.RequesterPays,
	}, logger)
	if err != nil {
		return nil, err
	}
	a.objects = objects

	if cfg.Telemetry.Enabled {
		_, shutdown, err := telemetry.InitTracer(cfg.Telemetry.ServiceName, nil)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, shutdown)
		logger.Info("tracing enabled", slog.String("service", cfg.Telemetry.ServiceName))
	}

	return a, nil
}

// Config returns the loaded configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger { return a.logger }

// Registry returns the Prometheus registry the metrics are registered with.
func (a *App) Registry() *prometheus.Registry { return a.registry }

// Metrics returns the application metrics.
func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// Objects returns the S3 client.
func (a *App) Objects() *objstore.Client { return a.objects }

// Catalogs registers every supported provider, each instrumented with
// search metrics.
func (a *App) Catalogs() *catalog.Registry {
	c := a.cfg.Catalog
	reg := catalog.NewRegistry(
		creodias.NewClient(c.CreodiasURL, c.Timeout).WithLogger(a.logger).WithPageSize(c.PageSize),
		asf.NewClient(c.ASFURL, c.Timeout).WithLogger(a.logger),
		stacapi.NewClient(stacapi.EarthSearchCOG, c.EarthSearchURL, c.Timeout).WithLogger(a.logger).WithPageSize(c.PageSize),
		stacapi.NewClient(stacapi.EarthSearchS1, c.EarthSearchURL, c.Timeout).WithLogger(a.logger).WithPageSize(c.PageSize),
		stacapi.NewClient(stacapi.USGSLandsat, c.USGSURL, c.Timeout).WithLogger(a.logger).WithPageSize(c.PageSize),
		stacapi.NewClient(stacapi.AstraeaLandsat, c.AstraeaURL, c.Timeout).WithLogger(a.logger).WithPageSize(c.PageSize),
	)
	return a.metrics.Registry(reg)
}

// Masks opens the configured cloud mask index.
func (a *App) Masks() (landsat.MaskIndex, error) {
	m := a.cfg.Mask

	var index mask.Index
	switch m.Backend {
	case "sqlite":
		sqlIndex, err := mask.OpenSQLite(m.SQLitePath)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func(context.Context) error { return sqlIndex.Close() })
		index = sqlIndex
	default:
		index = mask.NewS3Index(a.objects, m.Bucket, m.KeyTemplate)
	}

	if m.CacheSize == 0 {
		return index, nil
	}
	cached, err := mask.NewCached(index, m.CacheSize, m.CacheTTL)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { cached.Close(); return nil })
	return cached, nil
}

// Assembler builds a plan assembler over the given tile grid. An empty path
// falls back to PLAN_TILE_GRID.
func (a *App) Assembler(gridPath string) (*workplan.Assembler, error) {
	if gridPath == "" {
		gridPath = a.cfg.Plan.TileGrid
	}
	if gridPath == "" {
		return nil, fmt.Errorf("%w: a tile grid is required (PLAN_TILE_GRID)", workplan.ErrInvalidConfig)
	}
	grid, err := tiles.LoadGrid(gridPath)
	if err != nil {
		return nil, err
	}

	masks, err := a.Masks()
	if err != nil {
		return nil, err
	}

	return workplan.NewAssembler(a.Catalogs(), grid, a.logger).
		WithManifests(a.objects).
		WithMasks(masks).
		WithRecorder(a.metrics).
		WithConcurrency(a.cfg.Plan.Concurrency), nil
}

// Policy loads the selection policy from path, falling back to
// PLAN_POLICY_FILE and then to the defaults. The defaults carry no season
// window.
func (a *App) Policy(path string) (workplan.Policy, error) {
	if path == "" {
		path = a.cfg.Plan.PolicyFile
	}
	if path == "" {
		return workplan.DefaultPolicy(), nil
	}
	return config.LoadPolicy(path)
}

// OrbitOverrides loads the orbit override file at path, falling back to
// PLAN_ORBIT_FILE. No file means no override.
func (a *App) OrbitOverrides(path string) (map[string]sar.Direction, error) {
	if path == "" {
		path = a.cfg.Plan.OrbitFile
	}
	if path == "" {
		return nil, nil
	}
	return config.LoadOrbitOverrides(path)
}

// Store connects to the plan database.
func (a *App) Store(ctx context.Context) (*store.Store, error) {
	if a.cfg.DB.URL == "" {
		return nil, fmt.Errorf("%w: database (DB_URL)", ErrDisabled)
	}
	s, err := store.Open(ctx, a.cfg.DB.URL, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { s.Close(); return nil })
	return s, nil
}

// Publisher connects to NATS, or returns a no-op publisher when no URL is
// configured.
func (a *App) Publisher() (event.Publisher, error) {
	if a.cfg.NATS.URL == "" {
		return event.Noop{}, nil
	}
	p, err := event.Connect(a.cfg.NATS.URL, a.cfg.NATS.Subject, a.logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func(context.Context) error { return p.Close() })
	return p, nil
}

// Close releases the components in reverse creation order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

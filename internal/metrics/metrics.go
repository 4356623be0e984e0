// Package metrics exposes Prometheus instruments for plan generation.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/robert-malhotra/ewoc-work-plan/internal/catalog"
	"github.com/robert-malhotra/ewoc-work-plan/internal/workplan"
)

// Metrics holds the application metrics.
type Metrics struct {
	// HTTP request metrics
	HTTPRequestTotal    *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Catalog search metrics
	CatalogSearchTotal    *prometheus.CounterVec
	CatalogSearchDuration *prometheus.HistogramVec
	CatalogRecords        *prometheus.CounterVec

	// Tile planning metrics
	TilesTotal   *prometheus.CounterVec
	TileDuration prometheus.Histogram
	TileProducts *prometheus.CounterVec
	PlansTotal   *prometheus.CounterVec
	EventsTotal  *prometheus.CounterVec
}

// New creates the metrics and registers them with reg. Collectors that are
// already registered are reused, so New may be called more than once per
// registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		HTTPRequestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ewoc_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "path", "status"}),

		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ewoc_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),

		CatalogSearchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ewoc_catalog_searches_total",
			Help: "Total number of catalog searches",
		}, []string{"provider", "family", "status"}),

		CatalogSearchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ewoc_catalog_search_duration_seconds",
			Help:    "Catalog search duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "family"}),

		CatalogRecords: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ewoc_catalog_records_total",
			Help: "Total number of records returned by catalog searches",
		}, []string{"provider", "family"}),

		TilesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ewoc_tiles_planned_total",
			Help: "Total number of tiles planned",
		}, []string{"status"}),

		TileDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "ewoc_tile_plan_duration_seconds",
			Help:    "Time to plan one tile in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}),

		TileProducts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ewoc_tile_products_total",
			Help: "Total number of products selected into tile plans",
		}, []string{"sensor"}),

		PlansTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ewoc_workplans_total",
			Help: "Total number of work plan builds",
		}, []string{"status"}),

		EventsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ewoc_events_published_total",
			Help: "Total number of plan events published",
		}, []string{"event_type", "status"}),
	}

	m.HTTPRequestTotal = registerOrGet(reg, m.HTTPRequestTotal)
	m.HTTPRequestDuration = registerOrGet(reg, m.HTTPRequestDuration)
	m.CatalogSearchTotal = registerOrGet(reg, m.CatalogSearchTotal)
	m.CatalogSearchDuration = registerOrGet(reg, m.CatalogSearchDuration)
	m.CatalogRecords = registerOrGet(reg, m.CatalogRecords)
	m.TilesTotal = registerOrGet(reg, m.TilesTotal)
	m.TileDuration = registerOrGet(reg, m.TileDuration)
	m.TileProducts = registerOrGet(reg, m.TileProducts)
	m.PlansTotal = registerOrGet(reg, m.PlansTotal)
	m.EventsTotal = registerOrGet(reg, m.EventsTotal)

	return m
}

// registerOrGet registers c, returning the existing collector if an equal one
// is already registered.
func registerOrGet[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

// TileBuilt records a successfully planned tile.
func (m *Metrics) TileBuilt(tp workplan.TilePlan, fallback bool, elapsed time.Duration) {
	status := "ok"
	if fallback {
		status = "fallback"
	}
	m.TilesTotal.WithLabelValues(status).Inc()
	m.TileDuration.Observe(elapsed.Seconds())
	m.TileProducts.WithLabelValues("s1").Add(float64(tp.S1Nb))
	m.TileProducts.WithLabelValues("s2").Add(float64(tp.S2Nb))
	m.TileProducts.WithLabelValues("l8").Add(float64(tp.L8Nb))
}

// TileFailed records a tile that aborted its plan.
func (m *Metrics) TileFailed(_ string, _ error) {
	m.TilesTotal.WithLabelValues("error").Inc()
}

// PlanBuilt records the outcome of a whole plan build.
func (m *Metrics) PlanBuilt(err error) {
	m.PlansTotal.WithLabelValues(statusLabel(err)).Inc()
}

// EventPublished records the outcome of a publish.
func (m *Metrics) EventPublished(eventType string, err error) {
	m.EventsTotal.WithLabelValues(eventType, statusLabel(err)).Inc()
}

// Searcher wraps a catalog searcher with search metrics.
func (m *Metrics) Searcher(s catalog.Searcher) catalog.Searcher {
	return &instrumentedSearcher{next: s, m: m}
}

// Registry wraps every searcher of a registry.
func (m *Metrics) Registry(r *catalog.Registry) *catalog.Registry {
	return r.Wrap(m.Searcher)
}

type instrumentedSearcher struct {
	next catalog.Searcher
	m    *Metrics
}

func (s *instrumentedSearcher) Name() string {
	return s.next.Name()
}

func (s *instrumentedSearcher) Search(ctx context.Context, q catalog.Query) ([]catalog.Record, error) {
	start := time.Now()
	records, err := s.next.Search(ctx, q)

	provider, family := s.next.Name(), string(q.Family)
	s.m.CatalogSearchDuration.WithLabelValues(provider, family).Observe(time.Since(start).Seconds())
	s.m.CatalogSearchTotal.WithLabelValues(provider, family, statusLabel(err)).Inc()
	s.m.CatalogRecords.WithLabelValues(provider, family).Add(float64(len(records)))
	return records, err
}

// Middleware records HTTP request metrics labelled with the chi route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		code := strconv.Itoa(status)
		m.HTTPRequestTotal.WithLabelValues(r.Method, path, code).Inc()
		m.HTTPRequestDuration.WithLabelValues(r.Method, path, code).Observe(time.Since(start).Seconds())
	})
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

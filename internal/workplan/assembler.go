package workplan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/robert-malhotra/ewoc-work-plan/internal/catalog"
	"github.com/robert-malhotra/ewoc-work-plan/internal/landsat"
	"github.com/robert-malhotra/ewoc-work-plan/internal/optical"
	"github.com/robert-malhotra/ewoc-work-plan/internal/sar"
)

const tracerName = "github.com/robert-malhotra/ewoc-work-plan/internal/workplan"

// Default plan metadata.
const (
	DefaultUser       = "EWoC_admin"
	DefaultVisibility = "public"
	DefaultSeasonType = "cropland"
)

// Footprints resolves tile ids to WKT footprints.
type Footprints interface {
	Footprint(tileID string) (string, error)
}

// Recorder receives per-tile build outcomes.
type Recorder interface {
	TileBuilt(tp TilePlan, fallback bool, elapsed time.Duration)
	TileFailed(tile string, err error)
}

type nopRecorder struct{}

func (nopRecorder) TileBuilt(TilePlan, bool, time.Duration) {}
func (nopRecorder) TileFailed(string, error) {}

// Assembler builds work plans from the catalogs.
type Assembler struct {
	catalogs    *catalog.Registry
	footprints  Footprints
	manifests   sar.ManifestFetcher
	masks       landsat.MaskIndex
	recorder    Recorder
	tracer      trace.Tracer
	concurrency int
	logger      *slog.Logger

	now   func() time.Time
	newID func() string
}

// NewAssembler creates an assembler resolving providers through catalogs
// and tile footprints through footprints.
func NewAssembler(catalogs *catalog.Registry, footprints Footprints, logger *slog.Logger) *Assembler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Assembler{
		catalogs:    catalogs,
		footprints:  footprints,
		recorder:    nopRecorder{},
		tracer:      otel.Tracer(tracerName),
		concurrency: 1,
		logger:      logger,
		now:         time.Now,
		newID:       uuid.NewString,
	}
}

// WithManifests sets the fetcher used for Sentinel-1 products without a
// direct orbit direction.
func (a *Assembler) WithManifests(m sar.ManifestFetcher) *Assembler {
	a.manifests = m
	return a
}

// WithMasks sets the Landsat-8 cloud mask index.
func (a *Assembler) WithMasks(m landsat.MaskIndex) *Assembler {
	a.masks = m
	return a
}

// WithRecorder sets the receiver of build outcomes.
func (a *Assembler) WithRecorder(r Recorder) *Assembler {
	if r != nil {
		a.recorder = r
	}
	return a
}

// WithTracer sets the tracer of tile builds.
func (a *Assembler) WithTracer(t trace.Tracer) *Assembler {
	if t != nil {
		a.tracer = t
	}
	return a
}

// WithConcurrency sets how many tiles are built at once.
func (a *Assembler) WithConcurrency(n int) *Assembler {
	a.concurrency = max(n, 1)
	return a
}

// Build produces the plan of every requested tile. The request is fully
// validated before any catalog is queried. A tile failure aborts the whole
// build and no plan is returned.
func (a *Assembler) Build(ctx context.Context, req Request) (*WorkPlan, error) {
	ids, err := req.validate()
	if err != nil {
		return nil, err
	}
	if req.Mode == "" {
		req.Mode = ModeFull
	}
	if err := a.checkProviders(req); err != nil {
		return nil, err
	}

	geometries := make([]string, len(ids))
	for i, id := range ids {
		wkt, err := a.footprints.Footprint(id)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
		geometries[i] = wkt
	}

	var grouper *landsat.Grouper
	if req.Mode.withL8() {
		grouper, err = landsat.NewGrouper(req.L8Provider, a.masks, a.logger)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}

	a.logger.InfoContext(ctx, "building work plan",
		slog.Int("tiles", len(ids)),
		slog.String("mode", string(req.Mode)),
		slog.Int("concurrency", a.concurrency),
	)

	plans := make([]TilePlan, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.concurrency)
	for i, id := range ids {
		g.Go(func() error {
			tp, err := a.buildTile(gctx, req, grouper, id, geometries[i])
			if err != nil {
				return err
			}
			plans[i] = tp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	wp := &WorkPlan{Metadata: a.metadata(req), Tiles: plans}
	a.logger.InfoContext(ctx, "work plan built",
		slog.String("plan_id", wp.ID),
		slog.Int("tiles", len(wp.Tiles)),
	)
	return wp, nil
}

func (a *Assembler) checkProviders(req Request) error {
	var providers []string
	if req.Mode.withS1() {
		providers = append(providers, req.S1Provider)
	}
	if req.Mode.withS2() {
		providers = append(providers, req.Policy.Providers...)
	}
	if req.Mode.withL8() {
		providers = append(providers, req.L8Provider)
		if a.masks == nil {
			return fmt.Errorf("%w: no cloud mask index configured for landsat-8", ErrInvalidConfig)
		}
	}
	for _, p := range providers {
		if _, err := a.catalogs.Get(p); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	return nil
}

func (a *Assembler) metadata(req Request) Metadata {
	meta := req.Meta
	if meta.User == "" {
		meta.User = DefaultUser
	}
	if meta.Visibility == "" {
		meta.Visibility = DefaultVisibility
	}
	if meta.SeasonType == "" {
		meta.SeasonType = DefaultSeasonType
	}

	procStart, procEnd := req.ProcessingStart, req.ProcessingEnd
	if procStart.IsZero() {
		procStart = req.Policy.WindowStart
	}
	if procEnd.IsZero() {
		procEnd = req.Policy.WindowEnd
	}

	return Metadata{
		ID:              a.newID(),
		Version:         Version,
		User:            meta.User,
		Visibility:      meta.Visibility,
		Generated:       a.now().Format(GeneratedLayout),
		AEZID:           meta.AEZID,
		SeasonStart:     req.Policy.WindowStart.Format(DateLayout),
		SeasonEnd:       req.Policy.WindowEnd.Format(DateLayout),
		SeasonType:      meta.SeasonType,
		ProcessingStart: procStart.Format(DateLayout),
		ProcessingEnd:   procEnd.Format(DateLayout),
		S1Provider:      req.S1Provider,
		S2Providers:     append([]string{}, req.Policy.Providers...),
		Strategy:        append([]string{}, req.Policy.Strategy...),
		L8Provider:      req.L8Provider,
		DetectorSet:     meta.DetectorSet,
		EnableSW:        meta.EnableSW,
	}
}

func (a *Assembler) buildTile(ctx context.Context, req Request, grouper *landsat.Grouper, tile, geometry string) (TilePlan, error) {
	if err := ctx.Err(); err != nil {
		return TilePlan{}, err
	}

	ctx, span := a.tracer.Start(ctx, "workplan.tile", trace.WithAttributes(
		attribute.String("tile", tile),
		attribute.String("mode", string(req.Mode)),
	))
	defer span.End()

	started := time.Now()
	logger := a.logger.With(slog.String("tile", tile))

	fail := func(err error) (TilePlan, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.recorder.TileFailed(tile, err)
		logger.ErrorContext(ctx, "tile build failed", slog.String("error", err.Error()))
		return TilePlan{}, &TileError{Tile: tile, Err: err}
	}

	tp := TilePlan{
		TileID:     tile,
		S1IDs:      [][]string{},
		S2IDs:      [][2]string{},
		L8IDs:      [][]string{},
		Geometry:   geometry,
		L8EnableSR: req.enableSR(tile),
	}

	if req.Mode.withS1() {
		groups, dir, err := a.sentinel1(ctx, req, tile, geometry, logger)
		if err != nil {
			return fail(err)
		}
		tp.S1IDs = groups
		tp.S1OrbitDir = string(dir)
	}

	fallback := false
	if req.Mode.withS2() {
		pairs, fb, err := a.sentinel2(ctx, req, tile, geometry, logger)
		if err != nil {
			return fail(err)
		}
		tp.S2IDs = pairs
		fallback = fb
	}

	if req.Mode.withL8() {
		groups, err := a.landsat8(ctx, req, grouper, tile, geometry, logger)
		if err != nil {
			return fail(err)
		}
		tp.L8IDs = groups
	}

	tp.updateCounts()
	span.SetAttributes(
		attribute.Int("s1_nb", tp.S1Nb),
		attribute.Int("s2_nb", tp.S2Nb),
		attribute.Int("l8_nb", tp.L8Nb),
	)
	a.recorder.TileBuilt(tp, fallback, time.Since(started))

	logger.InfoContext(ctx, "tile planned",
		slog.Int("s1_nb", tp.S1Nb),
		slog.String("s1_orbit_dir", tp.S1OrbitDir),
		slog.Int("s2_nb", tp.S2Nb),
		slog.Int("l8_nb", tp.L8Nb),
	)
	return tp, nil
}

func (a *Assembler) sentinel1(ctx context.Context, req Request, tile, geometry string, logger *slog.Logger) ([][]string, sar.Direction, error) {
	searcher, err := a.catalogs.Get(req.S1Provider)
	if err != nil {
		return nil, "", err
	}
	records, err := searcher.Search(ctx, catalog.Query{
		Family:   catalog.FamilyS1GRD,
		Geometry: geometry,
		Start:    req.Policy.WindowStart,
		End:      req.Policy.WindowEnd,
		Tile:     tile,
	})
	if err != nil {
		return nil, "", fmt.Errorf("search sentinel-1 on %s: %w", req.S1Provider, err)
	}

	selector := sar.NewSelector(req.S1Provider, a.manifests, logger)
	if req.Policy.OrbitTieBreak != "" {
		selector.WithTieBreak(req.Policy.OrbitTieBreak)
	}
	sel := selector.Select(ctx, records, sar.Window{Start: req.Policy.WindowStart, End: req.Policy.WindowEnd}, req.override(tile))

	groups := sar.GroupByDate(sel.Products)
	if len(groups) == 0 {
		logger.WarnContext(ctx, "no sentinel-1 product for tile", slog.String("direction", string(sel.Direction)))
	}
	return groups, sel.Direction, nil
}

func (a *Assembler) sentinel2(ctx context.Context, req Request, tile, geometry string, logger *slog.Logger) ([][2]string, bool, error) {
	chain, err := optical.Chain(req.Policy.Providers, req.Policy.Strategy)
	if err != nil {
		return nil, false, err
	}
	set, err := optical.NewReconciler(a.catalogs, logger).Reconcile(ctx, chain, optical.TileQuery{
		Tile:          tile,
		Geometry:      geometry,
		Start:         req.Policy.WindowStart,
		End:           req.Policy.WindowEnd,
		CloudCoverMax: req.Policy.CloudCoverMax,
	})
	if err != nil {
		return nil, false, err
	}

	sel, err := optical.SelectBest(ctx, set, req.Policy.CloudCoverMin, req.Policy.MinProductsPerYear, logger)
	if err != nil && !errors.Is(err, optical.ErrEmptyResult) {
		return nil, false, err
	}

	products := sel.Products
	if req.Policy.RemoveL1C {
		kept := products[:0:0]
		for _, e := range products {
			if e.Level != "L1C" {
				kept = append(kept, e)
			}
		}
		if removed := len(products) - len(kept); removed > 0 {
			logger.InfoContext(ctx, "removed L1C products from selection", slog.Int("removed", removed))
		}
		products = kept
	}

	if len(products) == 0 {
		return nil, false, ErrNoOpticalProducts
	}
	sel.Products = products
	return sel.Pairs(), sel.Fallback, nil
}

func (a *Assembler) landsat8(ctx context.Context, req Request, grouper *landsat.Grouper, tile, geometry string, logger *slog.Logger) ([][]string, error) {
	searcher, err := a.catalogs.Get(req.L8Provider)
	if err != nil {
		return nil, err
	}
	records, err := searcher.Search(ctx, catalog.Query{
		Family:     catalog.FamilyLandsat,
		Geometry:   geometry,
		Start:      req.Policy.WindowStart,
		End:        req.Policy.WindowEnd,
		CloudCover: catalog.Float(req.Policy.CloudCoverMax),
		Tile:       tile,
	})
	if err != nil {
		return nil, fmt.Errorf("search landsat-8 on %s: %w", req.L8Provider, err)
	}

	groups, err := grouper.Group(ctx, records, req.Policy.CloudCoverMax)
	if err != nil {
		return nil, err
	}
	if len(groups) == 0 {
		logger.InfoContext(ctx, "no landsat-8 product for tile")
		return [][]string{}, nil
	}
	return groups, nil
}

// Package sar selects and groups Sentinel-1 GRD products for a tile.
//
// Products are first filtered for the expected acquisition configuration,
// then classified by orbit direction. The direction whose acquisitions leave
// the smallest temporal hole over the season window is kept, and the kept
// products are batched by acquisition day.
package sar

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/robert-malhotra/ewoc-work-plan/internal/catalog"
	"github.com/robert-malhotra/ewoc-work-plan/internal/product"
)

// Direction is the orbit direction recorded in a work plan.
type Direction string

const (
	Ascending  Direction = "ASC"
	Descending Direction = "DES"
)

// ParseDirection accepts ASC/DES as well as the long catalog spellings.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "ASC", "ASCENDING":
		return Ascending, nil
	case "DES", "DESC", "DESCENDING":
		return Descending, nil
	default:
		return "", fmt.Errorf("invalid orbit direction %q", s)
	}
}

// NoCoverageGap is the gap reported for a direction without any product.
const NoCoverageGap = 9999 * 24 * time.Hour

// Expected acquisition configuration.
const (
	expectedBeamMode     = "IW"
	expectedPolarisation = "DV"
)

// Creodias mixes NRT-3h and Fast-24h products before this date; only the
// Fast-24h ones are usable.
var timelinessCutoff = time.Date(2021, 2, 23, 0, 0, 0, 0, time.UTC)

const (
	slowTimeliness        = "Fast-24h"
	mixedTimelinessSource = "creodias"
)

// ManifestFetcher retrieves the SAFE manifest referenced by a record.
type ManifestFetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// Window is the season window the coverage gap is measured against.
type Window struct {
	Start time.Time
	End   time.Time
}

// Selection is the outcome of orbit selection for one tile.
type Selection struct {
	Direction  Direction
	Products   []catalog.Record
	Ascending  int
	Descending int
	// Forced is true when the direction came from an override.
	Forced bool
}

// Selector picks the orbit direction for a set of Sentinel-1 products.
type Selector struct {
	provider  string
	manifests ManifestFetcher
	tieBreak  Direction
	logger    *slog.Logger
}

// NewSelector creates a selector for products coming from provider.
// manifests may be nil when the provider exposes the orbit direction.
func NewSelector(provider string, manifests ManifestFetcher, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{
		provider:  provider,
		manifests: manifests,
		tieBreak:  Descending,
		logger:    logger,
	}
}

// WithTieBreak sets the direction kept when both directions have the same gap.
func (s *Selector) WithTieBreak(d Direction) *Selector {
	s.tieBreak = d
	return s
}

// Select filters, classifies and picks a direction. override, when non-empty,
// bypasses the coverage comparison.
func (s *Selector) Select(ctx context.Context, records []catalog.Record, w Window, override Direction) Selection {
	asc, desc := s.Classify(ctx, records)

	s.logger.InfoContext(ctx, "classified sentinel-1 products",
		slog.Int("ascending", len(asc)),
		slog.Int("descending", len(desc)),
	)

	sel := Selection{Ascending: len(asc), Descending: len(desc)}

	if override != "" {
		s.logger.InfoContext(ctx, "orbit direction forced", slog.String("direction", string(override)))
		sel.Direction = override
		sel.Forced = true
		if override == Ascending {
			sel.Products = asc
		} else {
			sel.Products = desc
		}
		return sel
	}

	gapAsc := MaxGap(acquisitionDays(asc), w)
	gapDesc := MaxGap(acquisitionDays(desc), w)

	sel.Direction = s.pick(gapAsc, gapDesc)
	if sel.Direction == Ascending {
		sel.Products = asc
	} else {
		sel.Products = desc
	}

	s.logger.InfoContext(ctx, "orbit direction selected from coverage",
		slog.String("direction", string(sel.Direction)),
		slog.Duration("gap_ascending", gapAsc),
		slog.Duration("gap_descending", gapDesc),
	)
	return sel
}

func (s *Selector) pick(gapAsc, gapDesc time.Duration) Direction {
	switch {
	case gapAsc < gapDesc:
		return Ascending
	case gapDesc < gapAsc:
		return Descending
	default:
		return s.tieBreak
	}
}

// Classify drops invalid products and splits the rest by orbit direction.
// Products whose direction cannot be determined are skipped.
func (s *Selector) Classify(ctx context.Context, records []catalog.Record) (asc, desc []catalog.Record) {
	for _, rec := range records {
		if !s.IsValid(ctx, rec) {
			continue
		}

		dir, err := s.direction(ctx, rec)
		if err != nil {
			s.logger.WarnContext(ctx, "could not determine orbit direction",
				slog.String("product_id", rec.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		if dir == Ascending {
			asc = append(asc, rec)
		} else {
			desc = append(desc, rec)
		}
	}
	return asc, desc
}

// IsValid reports whether a product matches the expected beam mode and
// polarisation and is not one of the known-bad early NRT products.
func (s *Selector) IsValid(ctx context.Context, rec catalog.Record) bool {
	id, err := product.ParseS1(rec.ID)
	if err != nil {
		s.logger.InfoContext(ctx, "bad product", slog.String("product_id", rec.ID), slog.String("error", err.Error()))
		return false
	}

	if s.provider == mixedTimelinessSource && id.Start.Before(timelinessCutoff) && rec.Timeliness != slowTimeliness {
		s.logger.InfoContext(ctx, "bad product",
			slog.String("product_id", rec.ID),
			slog.String("timeliness", rec.Timeliness),
		)
		return false
	}

	if id.BeamMode != expectedBeamMode || id.Polarisation != expectedPolarisation {
		s.logger.InfoContext(ctx, "bad product",
			slog.String("product_id", rec.ID),
			slog.String("beam_mode", id.BeamMode),
			slog.String("polarisation", id.Polarisation),
		)
		return false
	}
	return true
}

func (s *Selector) direction(ctx context.Context, rec catalog.Record) (Direction, error) {
	if rec.OrbitDirection != "" {
		return ParseDirection(rec.OrbitDirection)
	}
	if rec.ManifestRef == "" {
		return "", fmt.Errorf("no orbit metadata")
	}
	if s.manifests == nil {
		return "", fmt.Errorf("no manifest fetcher configured for %s", rec.ManifestRef)
	}

	data, err := s.manifests.Fetch(ctx, rec.ManifestRef)
	if err != nil {
		return "", fmt.Errorf("fetch manifest: %w", err)
	}
	pass, err := ParseManifestPass(data)
	if err != nil {
		return "", err
	}
	return ParseDirection(pass)
}

// MaxGap returns the largest distance between consecutive points of the
// chain window start, sorted dates, window end. Without dates it returns
// NoCoverageGap.
func MaxGap(dates []time.Time, w Window) time.Duration {
	if len(dates) == 0 {
		return NoCoverageGap
	}

	sorted := make([]time.Time, len(dates))
	copy(sorted, dates)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	var maxGap time.Duration
	prev := w.Start
	for _, d := range sorted {
		maxGap = max(maxGap, absDuration(d.Sub(prev)))
		prev = d
	}
	return max(maxGap, absDuration(w.End.Sub(prev)))
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// acquisitionDays returns the acquisition day (midnight UTC) of every
// parseable product.
func acquisitionDays(records []catalog.Record) []time.Time {
	days := make([]time.Time, 0, len(records))
	for _, rec := range records {
		id, err := product.ParseS1(rec.ID)
		if err != nil {
			continue
		}
		days = append(days, time.Date(id.Start.Year(), id.Start.Month(), id.Start.Day(), 0, 0, 0, 0, time.UTC))
	}
	return days
}

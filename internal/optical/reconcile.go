// Package optical reconciles Sentinel-2 products found on several catalogs
// and processing levels, then selects the subset that goes into a plan.
package optical

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/robert-malhotra/ewoc-work-plan/internal/catalog"
	"github.com/robert-malhotra/ewoc-work-plan/internal/product"
)

// ErrEmptyChain is returned when no (provider, level) pair is given.
var ErrEmptyChain = errors.New("empty provider chain")

// Source is one (provider, processing level) pair of the reconciliation chain.
type Source struct {
	Provider string
	Level    string
}

func (s Source) String() string {
	return s.Provider + "/" + s.Level
}

// Chain zips providers and levels into sources. Both lists must have the
// same non-zero length.
func Chain(providers, levels []string) ([]Source, error) {
	if len(providers) == 0 || len(providers) != len(levels) {
		return nil, fmt.Errorf("%w: %d providers for %d levels", ErrEmptyChain, len(providers), len(levels))
	}
	chain := make([]Source, len(providers))
	for i := range providers {
		chain[i] = Source{Provider: providers[i], Level: levels[i]}
	}
	return chain, nil
}

// Entry is a Sentinel-2 product candidate.
type Entry struct {
	ID          string
	Provider    string
	Level       string
	Acquisition time.Time
	CloudCover  float64
}

// Source returns the (provider, level) pair the entry came from.
func (e Entry) Source() Source {
	return Source{Provider: e.Provider, Level: e.Level}
}

// Set maps product ids to entries.
type Set map[string]Entry

// Sorted returns the entries ordered by acquisition time, then id.
func (s Set) Sorted() []Entry {
	out := make([]Entry, 0, len(s))
	for _, e := range s {
		out = append(out, e)
	}
	sortEntries(out)
	return out
}

// Dates returns the distinct acquisition timestamps of the set.
func (s Set) Dates() map[time.Time]struct{} {
	dates := make(map[time.Time]struct{}, len(s))
	for _, e := range s {
		dates[e.Acquisition] = struct{}{}
	}
	return dates
}

func (s Set) has(src Source) bool {
	for _, e := range s {
		if e.Source() == src {
			return true
		}
	}
	return false
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].Acquisition.Equal(entries[j].Acquisition) {
			return entries[i].Acquisition.Before(entries[j].Acquisition)
		}
		return entries[i].ID < entries[j].ID
	})
}

// TileQuery restricts catalog searches to one tile.
type TileQuery struct {
	Tile          string
	Geometry      string
	Start         time.Time
	End           time.Time
	CloudCoverMax float64
}

// Reconciler merges Sentinel-2 candidates along a provider chain.
type Reconciler struct {
	catalogs *catalog.Registry
	logger   *slog.Logger
}

// NewReconciler creates a reconciler resolving providers through catalogs.
func NewReconciler(catalogs *catalog.Registry, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{catalogs: catalogs, logger: logger}
}

// Reconcile folds the chain left to right. The first source defines the set
// of acquisition dates; later sources can only substitute a product of a
// different level at an existing date. Folding stops once no entry of the
// first source is left.
func (r *Reconciler) Reconcile(ctx context.Context, chain []Source, q TileQuery) (Set, error) {
	if len(chain) == 0 {
		return nil, ErrEmptyChain
	}

	head := chain[0]
	ref, err := r.Fetch(ctx, head, q)
	if err != nil {
		return nil, err
	}
	if len(ref) == 0 {
		r.logger.WarnContext(ctx, "reference source returned no product",
			slog.String("tile", q.Tile),
			slog.String("source", head.String()),
		)
		return ref, nil
	}

	seen := map[Source]bool{head: true}
	for _, src := range chain[1:] {
		if seen[src] {
			r.logger.InfoContext(ctx, "skipping source already merged", slog.String("source", src.String()))
			continue
		}
		seen[src] = true

		sec, err := r.Fetch(ctx, src, q)
		if err != nil {
			return nil, err
		}

		r.logger.InfoContext(ctx, "merging sentinel-2 sources",
			slog.String("tile", q.Tile),
			slog.String("reference", head.String()),
			slog.String("secondary", src.String()),
		)
		ref = Merge(ref, sec)

		if !ref.has(head) {
			r.logger.InfoContext(ctx, "every date resolved, stopping chain", slog.String("tile", q.Tile))
			break
		}
	}
	return ref, nil
}

// Fetch searches one source and keeps the products of the queried tile.
func (r *Reconciler) Fetch(ctx context.Context, src Source, q TileQuery) (Set, error) {
	searcher, err := r.catalogs.Get(src.Provider)
	if err != nil {
		return nil, err
	}
	family, err := catalog.S2Family(src.Level)
	if err != nil {
		return nil, err
	}

	records, err := searcher.Search(ctx, catalog.Query{
		Family:     family,
		Geometry:   q.Geometry,
		Start:      q.Start,
		End:        q.End,
		CloudCover: catalog.Float(q.CloudCoverMax),
		Tile:       q.Tile,
	})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", src, err)
	}

	set := make(Set, len(records))
	for _, rec := range records {
		id, err := product.ParseS2(rec.ID)
		if err != nil {
			r.logger.DebugContext(ctx, "skipping unparseable sentinel-2 id", slog.String("product_id", rec.ID))
			continue
		}
		if q.Tile != "" && id.Tile != q.Tile {
			continue
		}
		cc := 100.0
		if rec.CloudCover != nil {
			cc = *rec.CloudCover
		}
		set[rec.ID] = Entry{
			ID:          rec.ID,
			Provider:    src.Provider,
			Level:       src.Level,
			Acquisition: id.Sensing,
			CloudCover:  cc,
		}
	}

	r.logger.DebugContext(ctx, "sentinel-2 source searched",
		slog.String("source", src.String()),
		slog.Int("records", len(records)),
		slog.Int("kept", len(set)),
	)
	return set, nil
}

// Merge returns ref where every entry that has a secondary product at the
// same acquisition time and a different level is replaced by that product.
// Secondary products without a match in ref are not added.
func Merge(ref, sec Set) Set {
	secByTime := make(map[time.Time][]Entry)
	for _, e := range sec {
		secByTime[e.Acquisition] = append(secByTime[e.Acquisition], e)
	}

	fusion := make(Set, len(ref))
	for id, e := range ref {
		match, ok := latestOtherLevel(secByTime[e.Acquisition], e.Level)
		if ok {
			fusion[match.ID] = match
		} else {
			fusion[id] = e
		}
	}
	return fusion
}

// latestOtherLevel returns the candidate of a level other than level with
// the latest reprocessing generation.
func latestOtherLevel(candidates []Entry, level string) (Entry, bool) {
	var best Entry
	found := false
	for _, c := range candidates {
		if c.Level == level {
			continue
		}
		if !found || newerGeneration(c.ID, best.ID) {
			best = c
			found = true
		}
	}
	return best, found
}

package optical

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	"github.com/robert-malhotra/ewoc-work-plan/internal/product"
)

// ErrEmptyResult tags a selection made on an empty candidate set. It is an
// expected outcome, not a caller error.
var ErrEmptyResult = errors.New("no sentinel-2 product available")

// Selection is the outcome of the best-subset selection.
type Selection struct {
	Products []Entry
	// Required is the minimum product count scaled to the covered months.
	Required int
	// LowCloud is the number of products under the cloud cover threshold.
	LowCloud int
	// Fallback is true when the cloud filter was abandoned for lack of products.
	Fallback bool
}

// Pairs returns the selection as [provider, product id] pairs.
func (s Selection) Pairs() [][2]string {
	pairs := make([][2]string, len(s.Products))
	for i, e := range s.Products {
		pairs[i] = [2]string{e.Provider, e.ID}
	}
	return pairs
}

// RemoveDuplicates keeps one product per exact acquisition time, the one
// with the latest reprocessing generation. The result is sorted by
// acquisition time.
func RemoveDuplicates(ctx context.Context, entries []Entry, logger *slog.Logger) []Entry {
	byTime := make(map[time.Time][]Entry)
	var order []time.Time
	for _, e := range entries {
		if _, ok := byTime[e.Acquisition]; !ok {
			order = append(order, e.Acquisition)
		}
		byTime[e.Acquisition] = append(byTime[e.Acquisition], e)
	}

	out := make([]Entry, 0, len(order))
	for _, t := range order {
		group := byTime[t]
		if len(group) > 1 {
			logger.WarnContext(ctx, "found duplicates, keeping only latest product reprocessing",
				slog.Int("duplicates", len(group)),
				slog.Time("acquisition", t),
			)
		}
		latest := group[0]
		for _, e := range group[1:] {
			if newerGeneration(e.ID, latest.ID) {
				latest = e
			}
		}
		out = append(out, latest)
	}
	sortEntries(out)
	return out
}

// newerGeneration reports whether a was produced by a later reprocessing
// than b. Ids that do not parse compare lexicographically.
func newerGeneration(a, b string) bool {
	pa, errA := product.ParseS2(a)
	pb, errB := product.ParseS2(b)
	if errA != nil || errB != nil {
		return a > b
	}
	if pa.Generation.Equal(pb.Generation) {
		return a > b
	}
	return pa.Generation.After(pb.Generation)
}

// ScaledMinimum scales a yearly product count to the months between first
// and last acquisition, rounding half to even.
func ScaledMinimum(first, last time.Time, perYear int) int {
	months := (last.Year()-first.Year())*12 + int(last.Month()) - int(first.Month())
	return int(math.RoundToEven(float64(months*perYear) / 12))
}

// SelectBest deduplicates the set and keeps the products with a cloud cover
// at most cloudCoverMin when there are at least as many of them as the
// window-scaled minimum. Otherwise every deduplicated product is kept.
func SelectBest(ctx context.Context, set Set, cloudCoverMin float64, minPerYear int, logger *slog.Logger) (Selection, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(set) == 0 {
		logger.ErrorContext(ctx, "product list is empty")
		return Selection{}, ErrEmptyResult
	}

	entries := RemoveDuplicates(ctx, set.Sorted(), logger)
	required := ScaledMinimum(entries[0].Acquisition, entries[len(entries)-1].Acquisition, minPerYear)

	var lowCloud []Entry
	for _, e := range entries {
		if e.CloudCover <= cloudCoverMin {
			lowCloud = append(lowCloud, e)
		}
	}
	logger.InfoContext(ctx, "products below cloud cover threshold",
		slog.Int("count", len(lowCloud)),
		slog.Float64("cloud_cover", cloudCoverMin),
	)

	sel := Selection{Required: required, LowCloud: len(lowCloud)}
	if len(lowCloud) >= required {
		logger.InfoContext(ctx, "found enough products below threshold",
			slog.Int("count", len(lowCloud)),
			slog.Int("min_nb_prods", required),
		)
		sel.Products = lowCloud
		return sel, nil
	}

	logger.WarnContext(ctx, "not enough products below threshold, full list of products will be used",
		slog.Float64("cloud_cover", cloudCoverMin),
		slog.Int("count", len(lowCloud)),
		slog.Int("min_nb_prods", required),
	)
	sel.Products = entries
	sel.Fallback = true
	return sel, nil
}

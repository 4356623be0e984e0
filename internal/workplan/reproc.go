package workplan

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/robert-malhotra/ewoc-work-plan/internal/product"
)

// Lister lists the object keys under a prefix.
type Lister interface {
	ListKeys(ctx context.Context, bucket, prefix string) ([]string, error)
}

// Reproc returns a copy of the plan keeping only the products that have no
// output yet under bucket/prefix. An S1 or L8 group is dropped as soon as
// one of its products has an output. Counts are recomputed. The receiver is
// left untouched.
//
// A product has an output when some key contains its catalog id, without
// the .SAFE suffix. Outputs whose keys were renamed to an ARD naming that
// drops the catalog id are not recognised, and their products stay in the
// returned plan.
func (wp *WorkPlan) Reproc(ctx context.Context, lister Lister, bucket, prefix string, logger *slog.Logger) (*WorkPlan, error) {
	if logger == nil {
		logger = slog.Default()
	}
	keys, err := lister.ListKeys(ctx, bucket, prefix)
	if err != nil {
		return nil, fmt.Errorf("list outputs: %w", err)
	}
	logger.InfoContext(ctx, "listed existing outputs",
		slog.String("bucket", bucket),
		slog.String("prefix", prefix),
		slog.Int("keys", len(keys)),
	)

	produced := func(id string) bool {
		base := strings.TrimSuffix(id, product.SafeSuffix)
		for _, k := range keys {
			if strings.Contains(k, base) {
				return true
			}
		}
		return false
	}

	out := wp.Clone()
	for i, tp := range out.Tiles {
		next := tp
		next.S1IDs = pendingGroups(tp.S1IDs, produced)
		next.S2IDs = [][2]string{}
		for _, pair := range tp.S2IDs {
			if !produced(pair[1]) {
				next.S2IDs = append(next.S2IDs, pair)
			}
		}
		next.L8IDs = pendingGroups(tp.L8IDs, produced)
		next.updateCounts()

		logger.InfoContext(ctx, "tile left to reprocess",
			slog.String("tile", tp.TileID),
			slog.Int("s1_nb", next.S1Nb),
			slog.Int("s2_nb", next.S2Nb),
			slog.Int("l8_nb", next.L8Nb),
		)
		out.Tiles[i] = next
	}
	return out, nil
}

func pendingGroups(groups [][]string, produced func(string) bool) [][]string {
	out := [][]string{}
	for _, g := range groups {
		done := false
		for _, id := range g {
			if produced(id) {
				done = true
				break
			}
		}
		if !done {
			out = append(out, g)
		}
	}
	return out
}

package workplan

import (
	"fmt"

	"github.com/google/uuid"
)

// Merge concatenates the tiles of several plans, typically the per-tile
// plans of one AEZ. The metadata of the first plan is kept under a new plan
// id, so storing the merged plan leaves the per-tile plans intact. Plans of
// another AEZ and tiles present twice are rejected.
func Merge(plans ...*WorkPlan) (*WorkPlan, error) {
	if len(plans) == 0 {
		return nil, ErrEmptyMerge
	}

	out := plans[0].Clone()
	out.ID = uuid.NewString()
	seen := make(map[string]bool, len(out.Tiles))
	for _, tp := range out.Tiles {
		seen[tp.TileID] = true
	}

	for _, wp := range plans[1:] {
		if wp.AEZID != out.AEZID {
			return nil, fmt.Errorf("%w: cannot merge plans of AEZ %d and %d", ErrInvalidConfig, out.AEZID, wp.AEZID)
		}
		for _, tp := range wp.Tiles {
			if seen[tp.TileID] {
				return nil, fmt.Errorf("%w: %s", ErrDuplicateTile, tp.TileID)
			}
			seen[tp.TileID] = true
			out.Tiles = append(out.Tiles, tp.clone())
		}
	}
	return out, nil
}

// Package workplan assembles, serializes and transforms EWoC work plans.
//
// A work plan lists, for every tile of a production request, the
// Sentinel-1, Sentinel-2 and Landsat-8 products to process over a season
// window, along with the metadata the downstream loader needs.
package workplan

import (
	"errors"
	"fmt"
)

// Version is written in the metadata of every generated plan.
const Version = "1.0.0"

// DateLayout is the layout of the season and processing dates of a plan.
const DateLayout = "2006-01-02"

// GeneratedLayout is the layout of the generation timestamp.
const GeneratedLayout = "2006-01-02 15:04:05 MST"

var (
	// ErrInvalidConfig tags a request that cannot be planned. It is
	// returned before any catalog is queried.
	ErrInvalidConfig = errors.New("invalid work plan configuration")

	// ErrNoOpticalProducts is returned when a tile has no Sentinel-2 product
	// while optical products are required.
	ErrNoOpticalProducts = errors.New("no optical products")

	// ErrEmptyMerge is returned when merging zero plans.
	ErrEmptyMerge = errors.New("no plan to merge")

	// ErrDuplicateTile is returned when merged plans share a tile.
	ErrDuplicateTile = errors.New("duplicate tile")
)

// TileError reports a failure that aborted the build of one tile.
type TileError struct {
	Tile string
	Err  error
}

func (e *TileError) Error() string {
	return fmt.Sprintf("tile %s: %v", e.Tile, e.Err)
}

func (e *TileError) Unwrap() error {
	return e.Err
}

// TilePlan lists the products to process for one tile.
type TilePlan struct {
	TileID     string      `json:"tile_id"`
	S1IDs      [][]string  `json:"s1_ids"`
	S1OrbitDir string      `json:"s1_orbit_dir"`
	S2IDs      [][2]string `json:"s2_ids"`
	L8IDs      [][]string  `json:"l8_ids"`
	S1Nb       int         `json:"s1_nb"`
	S2Nb       int         `json:"s2_nb"`
	L8Nb       int         `json:"l8_nb"`
	Geometry   string      `json:"geometry"`
	L8EnableSR bool        `json:"l8_enable_sr"`
}

// updateCounts sets the product counts from the id lists.
func (tp *TilePlan) updateCounts() {
	tp.S1Nb = len(tp.S1IDs)
	tp.S2Nb = len(tp.S2IDs)
	tp.L8Nb = len(tp.L8IDs)
}

// clone returns a deep copy of the tile plan.
func (tp TilePlan) clone() TilePlan {
	out := tp
	out.S1IDs = cloneGroups(tp.S1IDs)
	out.S2IDs = append(make([][2]string, 0, len(tp.S2IDs)), tp.S2IDs...)
	out.L8IDs = cloneGroups(tp.L8IDs)
	return out
}

func cloneGroups(groups [][]string) [][]string {
	out := make([][]string, len(groups))
	for i, g := range groups {
		out[i] = append([]string{}, g...)
	}
	return out
}

// Metadata describes how and for whom a plan was produced.
type Metadata struct {
	ID              string   `json:"plan_id"`
	Version         string   `json:"version"`
	User            string   `json:"user"`
	Visibility      string   `json:"visibility"`
	Generated       string   `json:"generated"`
	AEZID           int      `json:"aez_id"`
	SeasonStart     string   `json:"season_start"`
	SeasonEnd       string   `json:"season_end"`
	SeasonType      string   `json:"season_type"`
	ProcessingStart string   `json:"wp_processing_start"`
	ProcessingEnd   string   `json:"wp_processing_end"`
	S1Provider      string   `json:"s1_provider"`
	S2Providers     []string `json:"s2_provider"`
	Strategy        []string `json:"strategy"`
	L8Provider      string   `json:"l8_provider"`
	DetectorSet     string   `json:"detector_set"`
	EnableSW        bool     `json:"enable_sw"`
}

// WorkPlan is the plan document: metadata followed by the tiles in request
// order.
type WorkPlan struct {
	Metadata
	Tiles []TilePlan `json:"tiles"`
}

// Tile returns the plan of a tile.
func (wp *WorkPlan) Tile(id string) (TilePlan, bool) {
	for _, tp := range wp.Tiles {
		if tp.TileID == id {
			return tp, true
		}
	}
	return TilePlan{}, false
}

// Clone returns a deep copy of the plan.
func (wp *WorkPlan) Clone() *WorkPlan {
	out := &WorkPlan{Metadata: wp.Metadata}
	out.S2Providers = append([]string{}, wp.S2Providers...)
	out.Strategy = append([]string{}, wp.Strategy...)
	out.Tiles = make([]TilePlan, len(wp.Tiles))
	for i, tp := range wp.Tiles {
		out.Tiles[i] = tp.clone()
	}
	return out
}

// Package tiles resolves MGRS tile ids to their footprint.
package tiles

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/robert-malhotra/ewoc-work-plan/pkg/geojson"
)

// ErrUnknownTile is returned for a tile id missing from the grid.
var ErrUnknownTile = errors.New("unknown tile")

// nameProperties lists the feature properties that may carry the tile id.
var nameProperties = []string{"Name", "name", "tile", "tile_id"}

// Grid maps tile ids to WKT footprints.
type Grid struct {
	footprints map[string]string
}

// NewGrid builds a grid from explicit footprints.
func NewGrid(footprints map[string]string) *Grid {
	g := &Grid{footprints: make(map[string]string, len(footprints))}
	for id, wkt := range footprints {
		g.footprints[Normalize(id)] = wkt
	}
	return g
}

// LoadGrid reads a GeoJSON feature collection of tiles.
func LoadGrid(path string) (*Grid, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tile grid: %w", err)
	}
	defer f.Close()
	return ReadGrid(f)
}

// ReadGrid decodes a GeoJSON feature collection of tiles. Features without
// a tile id property are ignored.
func ReadGrid(r io.Reader) (*Grid, error) {
	var fc geojson.FeatureCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, fmt.Errorf("decode tile grid: %w", err)
	}

	g := &Grid{footprints: make(map[string]string, len(fc.Features))}
	for i, feat := range fc.Features {
		id := tileName(feat)
		if id == "" {
			continue
		}
		wkt, err := geojson.ToWKT(feat.Geometry)
		if err != nil {
			return nil, fmt.Errorf("feature %d (%s): %w", i, id, err)
		}
		g.footprints[Normalize(id)] = wkt
	}
	return g, nil
}

func tileName(feat *geojson.Feature) string {
	for _, key := range nameProperties {
		if v := feat.StringProperty(key); v != "" {
			return v
		}
	}
	if s, ok := feat.ID.(string); ok {
		return s
	}
	return ""
}

// Normalize strips the optional leading "T" of an MGRS tile id.
func Normalize(id string) string {
	id = strings.ToUpper(strings.TrimSpace(id))
	if len(id) == 6 && id[0] == 'T' {
		return id[1:]
	}
	return id
}

// Footprint returns the tile polygon as WKT.
func (g *Grid) Footprint(tileID string) (string, error) {
	wkt, ok := g.footprints[Normalize(tileID)]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTile, tileID)
	}
	return wkt, nil
}

// IDs returns the known tile ids, sorted.
func (g *Grid) IDs() []string {
	ids := make([]string, 0, len(g.footprints))
	for id := range g.footprints {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ReadList reads tile ids from a CSV document. Every non-empty cell is a
// tile id; duplicates keep their first position.
func ReadList(r io.Reader) ([]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read tile list: %w", err)
	}

	seen := make(map[string]bool)
	var ids []string
	for _, rec := range records {
		for _, cell := range rec {
			id := Normalize(cell)
			if id == "" || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// LoadList reads a tile list file.
func LoadList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open tile list: %w", err)
	}
	defer f.Close()
	return ReadList(f)
}

// Package geojson reads GeoJSON tile grids and converts polygon footprints
// between GeoJSON and WKT.
package geojson

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Geometry represents a GeoJSON geometry object.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Feature is a GeoJSON feature with free-form properties.
type Feature struct {
	Type       string         `json:"type"`
	ID         any            `json:"id,omitempty"`
	Properties map[string]any `json:"properties"`
	Geometry   *Geometry      `json:"geometry"`
}

// FeatureCollection is a GeoJSON feature collection.
type FeatureCollection struct {
	Type     string     `json:"type"`
	Features []*Feature `json:"features"`
}

// StringProperty returns the property key as a string, or "".
func (f *Feature) StringProperty(key string) string {
	switch v := f.Properties[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

// Polygon returns the coordinates as a Polygon [][][lon, lat].
// Returns error if geometry is not a Polygon.
func (g *Geometry) Polygon() ([][][]float64, error) {
	if g.Type != "Polygon" {
		return nil, fmt.Errorf("geometry is not a Polygon, got %s", g.Type)
	}
	var coords [][][]float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal Polygon coordinates: %w", err)
	}
	return coords, nil
}

// MultiPolygon returns the coordinates as a MultiPolygon [][][][lon, lat].
// Returns error if geometry is not a MultiPolygon.
func (g *Geometry) MultiPolygon() ([][][][]float64, error) {
	if g.Type != "MultiPolygon" {
		return nil, fmt.Errorf("geometry is not a MultiPolygon, got %s", g.Type)
	}
	var coords [][][][]float64
	if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
		return nil, fmt.Errorf("failed to unmarshal MultiPolygon coordinates: %w", err)
	}
	return coords, nil
}

// ToWKT converts a Polygon or MultiPolygon geometry to WKT.
func ToWKT(g *Geometry) (string, error) {
	if g == nil {
		return "", fmt.Errorf("geometry is nil")
	}

	switch g.Type {
	case "Polygon":
		coords, err := g.Polygon()
		if err != nil {
			return "", err
		}
		body, err := ringsToWKT(coords)
		if err != nil {
			return "", err
		}
		return "POLYGON" + body, nil

	case "MultiPolygon":
		coords, err := g.MultiPolygon()
		if err != nil {
			return "", err
		}
		parts := make([]string, len(coords))
		for i, polygon := range coords {
			body, err := ringsToWKT(polygon)
			if err != nil {
				return "", err
			}
			parts[i] = body
		}
		return "MULTIPOLYGON(" + strings.Join(parts, ",") + ")", nil

	default:
		return "", fmt.Errorf("unsupported geometry type for WKT conversion: %s", g.Type)
	}
}

func ringsToWKT(rings [][][]float64) (string, error) {
	out := make([]string, len(rings))
	for i, ring := range rings {
		points := make([]string, len(ring))
		for j, point := range ring {
			if len(point) < 2 {
				return "", fmt.Errorf("invalid point in ring: expected at least 2 coordinates")
			}
			points[j] = formatFloat(point[0]) + " " + formatFloat(point[1])
		}
		out[i] = "(" + strings.Join(points, ",") + ")"
	}
	return "(" + strings.Join(out, ",") + ")", nil
}

// FromWKT parses a POLYGON or MULTIPOLYGON WKT string.
func FromWKT(wkt string) (*Geometry, error) {
	wkt = strings.TrimSpace(wkt)
	if wkt == "" {
		return nil, fmt.Errorf("empty WKT string")
	}

	open := strings.Index(wkt, "(")
	if open < 0 {
		return nil, fmt.Errorf("invalid WKT: missing coordinates")
	}
	kind := strings.ToUpper(strings.TrimSpace(wkt[:open]))

	p := &wktParser{s: wkt, pos: open}
	tree, err := p.list()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.s) {
		return nil, fmt.Errorf("invalid WKT: trailing content at position %d", p.pos)
	}

	var coords any
	switch kind {
	case "POLYGON":
		coords, err = tree.rings()
	case "MULTIPOLYGON":
		coords, err = tree.polygons()
	default:
		return nil, fmt.Errorf("unsupported WKT geometry type %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %w", kind, err)
	}

	raw, err := json.Marshal(coords)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal coordinates: %w", err)
	}
	typ := "Polygon"
	if kind == "MULTIPOLYGON" {
		typ = "MultiPolygon"
	}
	return &Geometry{Type: typ, Coordinates: raw}, nil
}

// node is a parenthesized WKT list: either nested lists or a coordinate
// sequence.
type node struct {
	children []*node
	points   [][]float64
}

func (n *node) ring() ([][]float64, error) {
	if n.points == nil {
		return nil, fmt.Errorf("expected a coordinate sequence")
	}
	return n.points, nil
}

func (n *node) rings() ([][][]float64, error) {
	if len(n.children) == 0 {
		return nil, fmt.Errorf("expected at least one ring")
	}
	out := make([][][]float64, len(n.children))
	for i, c := range n.children {
		r, err := c.ring()
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

func (n *node) polygons() ([][][][]float64, error) {
	if len(n.children) == 0 {
		return nil, fmt.Errorf("expected at least one polygon")
	}
	out := make([][][][]float64, len(n.children))
	for i, c := range n.children {
		r, err := c.rings()
		if err != nil {
			return nil, err
		}
		out[i] = r
	}
	return out, nil
}

type wktParser struct {
	s   string
	pos int
}

func (p *wktParser) skipSpace() {
	for p.pos < len(p.s) && strings.ContainsRune(" \t\r\n", rune(p.s[p.pos])) {
		p.pos++
	}
}

func (p *wktParser) expect(c byte) error {
	p.skipSpace()
	if p.pos >= len(p.s) || p.s[p.pos] != c {
		return fmt.Errorf("invalid WKT: expected %q at position %d", c, p.pos)
	}
	p.pos++
	return nil
}

// list parses "(" (list | point) {"," (list | point)} ")".
func (p *wktParser) list() (*node, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}

	n := &node{}
	for {
		p.skipSpace()
		if p.pos < len(p.s) && p.s[p.pos] == '(' {
			child, err := p.list()
			if err != nil {
				return nil, err
			}
			n.children = append(n.children, child)
		} else {
			pt, err := p.point()
			if err != nil {
				return nil, err
			}
			n.points = append(n.points, pt)
		}

		p.skipSpace()
		if p.pos < len(p.s) && p.s[p.pos] == ',' {
			p.pos++
			continue
		}
		if err := p.expect(')'); err != nil {
			return nil, err
		}
		break
	}

	if n.children != nil && n.points != nil {
		return nil, fmt.Errorf("invalid WKT: mixed coordinates and lists")
	}
	return n, nil
}

func (p *wktParser) point() ([]float64, error) {
	end := p.pos
	for end < len(p.s) && p.s[end] != ',' && p.s[end] != ')' {
		end++
	}
	fields := strings.Fields(p.s[p.pos:end])
	if len(fields) < 2 {
		return nil, fmt.Errorf("invalid coordinate pair: %q", p.s[p.pos:end])
	}

	lon, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid longitude: %s", fields[0])
	}
	lat, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return nil, fmt.Errorf("invalid latitude: %s", fields[1])
	}
	p.pos = end
	return []float64{lon, lat}, nil
}

// formatFloat formats a float64 for WKT output
func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

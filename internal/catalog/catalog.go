// Package catalog defines the provider-neutral view of a catalog search hit
// and the interface every catalog adapter implements.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Family identifies a product family searched on a catalog.
type Family string

const (
	FamilyS1GRD   Family = "S1_GRD"
	FamilyS2L1C   Family = "S2_L1C"
	FamilyS2L2A   Family = "S2_L2A"
	FamilyLandsat Family = "L8_C2L1"
)

// Level returns the processing level of an optical family ("L1C", "L2A").
func (f Family) Level() string {
	switch f {
	case FamilyS2L1C:
		return "L1C"
	case FamilyS2L2A:
		return "L2A"
	default:
		return ""
	}
}

// S2Family maps a Sentinel-2 processing level to its family.
func S2Family(level string) (Family, error) {
	switch level {
	case "L1C":
		return FamilyS2L1C, nil
	case "L2A":
		return FamilyS2L2A, nil
	default:
		return "", fmt.Errorf("%w: sentinel-2 level %q", ErrUnsupportedFamily, level)
	}
}

// Orbit directions as carried by records.
const (
	Ascending  = "ASCENDING"
	Descending = "DESCENDING"
)

var (
	// ErrUnsupportedProvider is returned for a provider name no adapter serves.
	ErrUnsupportedProvider = errors.New("unsupported provider")

	// ErrUnsupportedFamily is returned when an adapter cannot search a family.
	ErrUnsupportedFamily = errors.New("unsupported product family")
)

// Record is a normalized catalog search hit.
type Record struct {
	ID          string
	Provider    string
	Level       string
	Acquisition time.Time

	// CloudCover is nil for SAR products.
	CloudCover *float64

	// OrbitDirection is empty when the catalog does not expose it directly;
	// ManifestRef then points at the side manifest to read it from.
	OrbitDirection string
	ManifestRef    string

	// Timeliness is the Sentinel-1 timeliness class when the catalog reports one.
	Timeliness string

	// Landsat metadata.
	LandCloudCover *float64
	Correction     string
	Path           string
	Row            string

	// Assets maps asset keys to hrefs.
	Assets map[string]string
}

// Query is a product search restricted to one tile footprint and window.
type Query struct {
	Family     Family
	Geometry   string // WKT polygon
	Start      time.Time
	End        time.Time
	CloudCover *float64
	Tile       string
}

// Searcher executes a provider-specific search.
// An empty result is not an error; errors are reserved for connectivity,
// authentication and decoding failures.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Record, error)
	Name() string
}

// Float returns a pointer to v.
func Float(v float64) *float64 {
	return &v
}

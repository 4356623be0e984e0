package workplan

import (
	"fmt"
	"strings"
	"time"

	"github.com/robert-malhotra/ewoc-work-plan/internal/catalog"
	"github.com/robert-malhotra/ewoc-work-plan/internal/sar"
	"github.com/robert-malhotra/ewoc-work-plan/internal/tiles"
)

// Mode restricts a build to one product family.
type Mode string

const (
	ModeFull   Mode = "full"
	ModeOnlyS1 Mode = "only_s1"
	ModeOnlyS2 Mode = "only_s2"
	ModeOnlyL8 Mode = "only_l8"
)

// ParseMode accepts the mode names; an empty string is the full mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case "", ModeFull:
		return ModeFull, nil
	case ModeOnlyS1, ModeOnlyS2, ModeOnlyL8:
		return m, nil
	default:
		return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, s)
	}
}

func (m Mode) withS1() bool { return m == ModeFull || m == ModeOnlyS1 || m == "" }
func (m Mode) withS2() bool { return m == ModeFull || m == ModeOnlyS2 || m == "" }
func (m Mode) withL8() bool { return m == ModeFull || m == ModeOnlyL8 || m == "" }

// Policy drives the product selection.
type Policy struct {
	// CloudCoverMax bounds every optical catalog search.
	CloudCoverMax float64
	// CloudCoverMin is the threshold of the preferred Sentinel-2 subset.
	CloudCoverMin float64
	// MinProductsPerYear is the yearly count the preferred subset must reach.
	MinProductsPerYear int

	WindowStart time.Time
	WindowEnd   time.Time

	// Providers and Strategy are the Sentinel-2 reconciliation chain. The
	// first pair is the reference.
	Providers []string
	Strategy  []string

	// OrbitTieBreak is kept when both orbit directions leave the same gap.
	OrbitTieBreak sar.Direction
	// RemoveL1C drops L1C products from the final Sentinel-2 selection.
	RemoveL1C bool
}

// DefaultPolicy returns the production defaults.
func DefaultPolicy() Policy {
	return Policy{
		CloudCoverMax:      95,
		CloudCoverMin:      50,
		MinProductsPerYear: 50,
		Providers:          []string{"creodias"},
		Strategy:           []string{"L1C"},
		OrbitTieBreak:      sar.Descending,
	}
}

// Validate checks the policy, season window included.
func (p Policy) Validate() error {
	if err := p.ValidateSelection(); err != nil {
		return err
	}
	if p.WindowStart.IsZero() || p.WindowEnd.IsZero() {
		return fmt.Errorf("%w: season window is required", ErrInvalidConfig)
	}
	return nil
}

// ValidateSelection checks the policy without requiring a season window. A
// window set on both ends must still be ordered.
func (p Policy) ValidateSelection() error {
	if len(p.Providers) == 0 {
		return fmt.Errorf("%w: at least one sentinel-2 provider is required", ErrInvalidConfig)
	}
	if len(p.Providers) != len(p.Strategy) {
		return fmt.Errorf("%w: %d sentinel-2 providers for %d strategy levels", ErrInvalidConfig, len(p.Providers), len(p.Strategy))
	}
	for _, level := range p.Strategy {
		if _, err := catalog.S2Family(level); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}
	}
	if !p.WindowStart.IsZero() && !p.WindowEnd.IsZero() && p.WindowEnd.Before(p.WindowStart) {
		return fmt.Errorf("%w: season ends before it starts", ErrInvalidConfig)
	}
	if p.CloudCoverMax < 0 || p.CloudCoverMax > 100 || p.CloudCoverMin < 0 || p.CloudCoverMin > 100 {
		return fmt.Errorf("%w: cloud cover must be within [0, 100]", ErrInvalidConfig)
	}
	if p.MinProductsPerYear < 0 {
		return fmt.Errorf("%w: negative minimum product count", ErrInvalidConfig)
	}
	switch p.OrbitTieBreak {
	case "", sar.Ascending, sar.Descending:
	default:
		return fmt.Errorf("%w: invalid orbit tie-break %q", ErrInvalidConfig, p.OrbitTieBreak)
	}
	return nil
}

// Meta carries the descriptive fields copied into the plan metadata.
type Meta struct {
	User        string
	Visibility  string
	SeasonType  string
	AEZID       int
	DetectorSet string
	EnableSW    bool
}

// Request is everything needed to build one plan.
type Request struct {
	Tiles  []string
	Policy Policy
	Mode   Mode

	S1Provider string
	L8Provider string

	// OrbitOverrides forces the orbit direction of some tiles.
	OrbitOverrides map[string]sar.Direction

	// L8EnableSR is the surface reflectance flag of every tile, unless
	// L8EnableSRByTile has an entry for it.
	L8EnableSR       bool
	L8EnableSRByTile map[string]bool

	// ProcessingStart and ProcessingEnd default to the season window.
	ProcessingStart time.Time
	ProcessingEnd   time.Time

	Meta Meta
}

// validate checks the request and returns the requested tile ids without
// their optional T prefix.
func (r Request) validate() ([]string, error) {
	if err := r.Policy.Validate(); err != nil {
		return nil, err
	}
	if _, err := ParseMode(string(r.Mode)); err != nil {
		return nil, err
	}
	if len(r.Tiles) == 0 {
		return nil, fmt.Errorf("%w: no tile requested", ErrInvalidConfig)
	}

	ids := make([]string, 0, len(r.Tiles))
	known := make(map[string]bool, len(r.Tiles))
	for _, t := range r.Tiles {
		id := tiles.Normalize(t)
		if id == "" {
			return nil, fmt.Errorf("%w: empty tile id", ErrInvalidConfig)
		}
		if known[id] {
			return nil, fmt.Errorf("%w: tile %s requested twice", ErrInvalidConfig, id)
		}
		known[id] = true
		ids = append(ids, id)
	}

	for tile := range r.L8EnableSRByTile {
		if !known[tiles.Normalize(tile)] {
			return nil, fmt.Errorf("%w: l8_enable_sr set for unrequested tile %s", ErrInvalidConfig, tile)
		}
	}
	for tile, dir := range r.OrbitOverrides {
		if dir != sar.Ascending && dir != sar.Descending {
			return nil, fmt.Errorf("%w: invalid orbit direction %q for tile %s", ErrInvalidConfig, dir, tile)
		}
	}
	return ids, nil
}

func (r Request) enableSR(tile string) bool {
	for t, v := range r.L8EnableSRByTile {
		if tiles.Normalize(t) == tile {
			return v
		}
	}
	return r.L8EnableSR
}

func (r Request) override(tile string) sar.Direction {
	for t, d := range r.OrbitOverrides {
		if tiles.Normalize(t) == tile {
			return d
		}
	}
	return ""
}

package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robert-malhotra/ewoc-work-plan/internal/sar"
	"github.com/robert-malhotra/ewoc-work-plan/internal/workplan"
)

// Defaults fills the fields a plan request leaves out.
type Defaults struct {
	Policy         workplan.Policy
	S1Provider     string
	L8Provider     string
	OrbitOverrides map[string]sar.Direction
}

// PlanRequest is the body of POST /workplans.
type PlanRequest struct {
	Tiles       []string `json:"tiles"`
	SeasonStart string   `json:"season_start"`
	SeasonEnd   string   `json:"season_end"`
	Mode        string   `json:"mode"`

	S1Provider  string   `json:"s1_provider"`
	S2Providers []string `json:"s2_providers"`
	Strategy    []string `json:"strategy"`
	L8Provider  string   `json:"l8_provider"`

	CloudCoverMax      *float64 `json:"cloud_cover_max"`
	CloudCoverMin      *float64 `json:"cloud_cover_min"`
	MinProductsPerYear *int     `json:"min_products_per_year"`
	OrbitTieBreak      string   `json:"orbit_tie_break"`
	RemoveL1C          *bool    `json:"remove_l1c"`

	OrbitOverrides map[string]string `json:"orbit_overrides"`
	// L8EnableSR is either a boolean for every tile or an object keyed by tile.
	L8EnableSR json.RawMessage `json:"l8_enable_sr"`

	ProcessingStart string `json:"processing_start"`
	ProcessingEnd   string `json:"processing_end"`

	AEZID       int    `json:"aez_id"`
	User        string `json:"user"`
	Visibility  string `json:"visibility"`
	SeasonType  string `json:"season_type"`
	DetectorSet string `json:"detector_set"`
	EnableSW    bool   `json:"enable_sw"`
}

// ToRequest merges the body with the defaults. Every error wraps
// workplan.ErrInvalidConfig.
func (p *PlanRequest) ToRequest(d Defaults) (workplan.Request, error) {
	policy := d.Policy
	if len(p.S2Providers) > 0 {
		policy.Providers = p.S2Providers
	}
	if len(p.Strategy) > 0 {
		policy.Strategy = p.Strategy
	}
	if p.CloudCoverMax != nil {
		policy.CloudCoverMax = *p.CloudCoverMax
	}
	if p.CloudCoverMin != nil {
		policy.CloudCoverMin = *p.CloudCoverMin
	}
	if p.MinProductsPerYear != nil {
		policy.MinProductsPerYear = *p.MinProductsPerYear
	}
	if p.RemoveL1C != nil {
		policy.RemoveL1C = *p.RemoveL1C
	}
	if p.OrbitTieBreak != "" {
		dir, err := sar.ParseDirection(p.OrbitTieBreak)
		if err != nil {
			return workplan.Request{}, fmt.Errorf("%w: %w", workplan.ErrInvalidConfig, err)
		}
		policy.OrbitTieBreak = dir
	}

	var err error
	if policy.WindowStart, err = optionalDate("season_start", p.SeasonStart, policy.WindowStart); err != nil {
		return workplan.Request{}, err
	}
	if policy.WindowEnd, err = optionalDate("season_end", p.SeasonEnd, policy.WindowEnd); err != nil {
		return workplan.Request{}, err
	}

	mode, err := workplan.ParseMode(p.Mode)
	if err != nil {
		return workplan.Request{}, err
	}

	req := workplan.Request{
		Tiles:          p.Tiles,
		Policy:         policy,
		Mode:           mode,
		S1Provider:     firstNonEmpty(p.S1Provider, d.S1Provider),
		L8Provider:     firstNonEmpty(p.L8Provider, d.L8Provider),
		OrbitOverrides: d.OrbitOverrides,
		Meta: workplan.Meta{
			User:        p.User,
			Visibility:  p.Visibility,
			SeasonType:  p.SeasonType,
			AEZID:       p.AEZID,
			DetectorSet: p.DetectorSet,
			EnableSW:    p.EnableSW,
		},
	}

	if len(p.OrbitOverrides) > 0 {
		req.OrbitOverrides = make(map[string]sar.Direction, len(d.OrbitOverrides)+len(p.OrbitOverrides))
		for tile, dir := range d.OrbitOverrides {
			req.OrbitOverrides[tile] = dir
		}
		for tile, s := range p.OrbitOverrides {
			dir, err := sar.ParseDirection(s)
			if err != nil {
				return workplan.Request{}, fmt.Errorf("%w: tile %s: %w", workplan.ErrInvalidConfig, tile, err)
			}
			req.OrbitOverrides[tile] = dir
		}
	}

	if err := p.decodeEnableSR(&req); err != nil {
		return workplan.Request{}, err
	}

	if req.ProcessingStart, err = optionalDate("processing_start", p.ProcessingStart, time.Time{}); err != nil {
		return workplan.Request{}, err
	}
	if req.ProcessingEnd, err = optionalDate("processing_end", p.ProcessingEnd, time.Time{}); err != nil {
		return workplan.Request{}, err
	}

	return req, nil
}

func (p *PlanRequest) decodeEnableSR(req *workplan.Request) error {
	raw := bytes.TrimSpace(p.L8EnableSR)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '{' {
		if err := json.Unmarshal(raw, &req.L8EnableSRByTile); err != nil {
			return fmt.Errorf("%w: l8_enable_sr: %w", workplan.ErrInvalidConfig, err)
		}
		return nil
	}
	if err := json.Unmarshal(raw, &req.L8EnableSR); err != nil {
		return fmt.Errorf("%w: l8_enable_sr must be a boolean or an object of booleans", workplan.ErrInvalidConfig)
	}
	return nil
}

func optionalDate(field, s string, fallback time.Time) (time.Time, error) {
	if s == "" {
		return fallback, nil
	}
	t, err := time.Parse(workplan.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be YYYY-MM-DD", workplan.ErrInvalidConfig, field)
	}
	return t, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

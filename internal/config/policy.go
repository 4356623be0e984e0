package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/robert-malhotra/ewoc-work-plan/internal/sar"
	"github.com/robert-malhotra/ewoc-work-plan/internal/workplan"
)

// PolicyError reports an invalid field of a policy file.
type PolicyError struct {
	Field string
	Err   error
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("policy field %s: %v", e.Field, e.Err)
}

func (e *PolicyError) Unwrap() error {
	return e.Err
}

// PolicyFile is the YAML form of a selection policy. Unset fields keep the
// production defaults. The season window is optional so that one file can
// serve requests that bring their own window.
type PolicyFile struct {
	CloudCoverMax      *float64 `yaml:"cloud_cover_max"`
	CloudCoverMin      *float64 `yaml:"cloud_cover_min"`
	MinProductsPerYear *int     `yaml:"min_products_per_year"`
	SeasonStart        string   `yaml:"season_start"`
	SeasonEnd          string   `yaml:"season_end"`
	Providers          []string `yaml:"providers"`
	Strategy           []string `yaml:"strategy"`
	OrbitTieBreak      string   `yaml:"orbit_tie_break"`
	RemoveL1C          *bool    `yaml:"remove_l1c"`
}

// ReadPolicy decodes a YAML policy document and validates it. The returned
// policy has a zero window when the document sets none.
func ReadPolicy(r io.Reader) (workplan.Policy, error) {
	var pf PolicyFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil && !errors.Is(err, io.EOF) {
		return workplan.Policy{}, fmt.Errorf("decode policy: %w", err)
	}
	return pf.Policy()
}

// LoadPolicy reads a policy file.
func LoadPolicy(path string) (workplan.Policy, error) {
	f, err := os.Open(path)
	if err != nil {
		return workplan.Policy{}, fmt.Errorf("open policy: %w", err)
	}
	defer f.Close()
	return ReadPolicy(f)
}

// Policy applies the file on top of the default policy.
func (pf PolicyFile) Policy() (workplan.Policy, error) {
	p := workplan.DefaultPolicy()

	if pf.CloudCoverMax != nil {
		p.CloudCoverMax = *pf.CloudCoverMax
	}
	if pf.CloudCoverMin != nil {
		p.CloudCoverMin = *pf.CloudCoverMin
	}
	if pf.MinProductsPerYear != nil {
		p.MinProductsPerYear = *pf.MinProductsPerYear
	}
	if len(pf.Providers) > 0 {
		p.Providers = pf.Providers
	}
	if len(pf.Strategy) > 0 {
		p.Strategy = pf.Strategy
	}
	if pf.RemoveL1C != nil {
		p.RemoveL1C = *pf.RemoveL1C
	}

	var err error
	if p.WindowStart, err = parseDate(pf.SeasonStart); err != nil {
		return workplan.Policy{}, &PolicyError{Field: "season_start", Err: err}
	}
	if p.WindowEnd, err = parseDate(pf.SeasonEnd); err != nil {
		return workplan.Policy{}, &PolicyError{Field: "season_end", Err: err}
	}
	if pf.OrbitTieBreak != "" {
		if p.OrbitTieBreak, err = sar.ParseDirection(pf.OrbitTieBreak); err != nil {
			return workplan.Policy{}, &PolicyError{Field: "orbit_tie_break", Err: err}
		}
	}

	if err := p.ValidateSelection(); err != nil {
		return workplan.Policy{}, &PolicyError{Field: "policy", Err: err}
	}
	return p, nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(workplan.DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("expected YYYY-MM-DD: %w", err)
	}
	return t, nil
}

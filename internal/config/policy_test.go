package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/robert-malhotra/ewoc-work-plan/internal/sar"
	"github.com/robert-malhotra/ewoc-work-plan/internal/workplan"
)

func TestReadPolicy_Defaults(t *testing.T) {
	p, err := ReadPolicy(strings.NewReader("season_start: \"2021-01-01\"\nseason_end: \"2021-12-31\"\n"))
	if err != nil {
		t.Fatalf("ReadPolicy failed: %v", err)
	}

	if p.CloudCoverMax != 95 || p.CloudCoverMin != 50 || p.MinProductsPerYear != 50 {
		t.Errorf("expected default thresholds, got %v/%v/%d", p.CloudCoverMax, p.CloudCoverMin, p.MinProductsPerYear)
	}
	if p.OrbitTieBreak != sar.Descending {
		t.Errorf("expected DES tie break, got %s", p.OrbitTieBreak)
	}
	if len(p.Providers) != 1 || p.Providers[0] != "creodias" {
		t.Errorf("expected creodias provider, got %v", p.Providers)
	}
	if p.WindowStart.Year() != 2021 || p.WindowEnd.Month() != 12 {
		t.Errorf("unexpected window %s..%s", p.WindowStart, p.WindowEnd)
	}
}

func TestReadPolicy_Overrides(t *testing.T) {
	doc := `
cloud_cover_max: 80
cloud_cover_min: 0
min_products_per_year: 10
season_start: "2020-03-01"
season_end: "2020-10-31"
providers: [creodias, aws_cog]
strategy: [L1C, L2A]
orbit_tie_break: ASC
remove_l1c: true
`
	p, err := ReadPolicy(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("ReadPolicy failed: %v", err)
	}

	if p.CloudCoverMax != 80 || p.CloudCoverMin != 0 || p.MinProductsPerYear != 10 {
		t.Errorf("expected overridden thresholds, got %v/%v/%d", p.CloudCoverMax, p.CloudCoverMin, p.MinProductsPerYear)
	}
	if p.OrbitTieBreak != sar.Ascending || !p.RemoveL1C {
		t.Errorf("expected ASC and remove_l1c, got %s %v", p.OrbitTieBreak, p.RemoveL1C)
	}
	if len(p.Strategy) != 2 || p.Strategy[1] != "L2A" {
		t.Errorf("expected strategy [L1C L2A], got %v", p.Strategy)
	}
}

func TestReadPolicy_WithoutWindow(t *testing.T) {
	p, err := ReadPolicy(strings.NewReader("cloud_cover_min: 40\nproviders: [creodias, creodias]\nstrategy: [L1C, L2A]\n"))
	if err != nil {
		t.Fatalf("ReadPolicy failed: %v", err)
	}
	if p.CloudCoverMin != 40 || len(p.Providers) != 2 {
		t.Errorf("expected file thresholds and providers, got %+v", p)
	}
	if !p.WindowStart.IsZero() || !p.WindowEnd.IsZero() {
		t.Errorf("expected no window, got %s..%s", p.WindowStart, p.WindowEnd)
	}
	if err := p.Validate(); !errors.Is(err, workplan.ErrInvalidConfig) {
		t.Errorf("expected the window to be required before building, got %v", err)
	}

	p.WindowStart = time.Date(2020, 3, 1, 0, 0, 0, 0, time.UTC)
	p.WindowEnd = time.Date(2020, 10, 31, 0, 0, 0, 0, time.UTC)
	if err := p.Validate(); err != nil {
		t.Errorf("expected a valid policy once the window is set, got %v", err)
	}
}

func TestReadPolicy_Errors(t *testing.T) {
	tests := []struct {
		name  string
		doc   string
		field string
	}{
		{name: "end before start", doc: "season_start: \"2020-10-31\"\nseason_end: \"2020-03-01\"\n", field: "policy"},
		{name: "bad end", doc: "season_start: \"2020-03-01\"\nseason_end: \"31/10/2020\"\n", field: "season_end"},
		{name: "bad tie break", doc: "season_start: \"2020-03-01\"\nseason_end: \"2020-10-31\"\norbit_tie_break: UP\n", field: "orbit_tie_break"},
		{name: "strategy mismatch", doc: "season_start: \"2020-03-01\"\nseason_end: \"2020-10-31\"\nproviders: [creodias, aws_cog]\n", field: "policy"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadPolicy(strings.NewReader(tt.doc))
			var pe *PolicyError
			if !errors.As(err, &pe) {
				t.Fatalf("expected PolicyError, got %v", err)
			}
			if pe.Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, pe.Field)
			}
		})
	}

	_, err := ReadPolicy(strings.NewReader("season_start: \"2020-03-01\"\nseason_end: \"2020-10-31\"\nproviders: [creodias, aws_cog]\n"))
	if !errors.Is(err, workplan.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}

	if _, err := ReadPolicy(strings.NewReader("unknown_key: 1\n")); err == nil {
		t.Error("expected error for unknown key")
	}
}

func TestLoadPolicy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte("season_start: \"2020-03-01\"\nseason_end: \"2020-10-31\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := LoadPolicy(path); err != nil {
		t.Errorf("LoadPolicy failed: %v", err)
	}
	if _, err := LoadPolicy(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

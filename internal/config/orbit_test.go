package config

import (
	"strings"
	"testing"

	"github.com/robert-malhotra/ewoc-work-plan/internal/sar"
)

func TestReadOrbitOverrides(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      map[string]sar.Direction
		wantError bool
	}{
		{
			name:  "header and rows",
			input: "tile;orbit_dir\n31TCJ;ASC\nT30TYP;DESCENDING\n",
			want:  map[string]sar.Direction{"31TCJ": sar.Ascending, "30TYP": sar.Descending},
		},
		{
			name:  "header only",
			input: "tile;orbit_dir\n",
			want:  map[string]sar.Direction{},
		},
		{
			name:  "empty file",
			input: "",
			want:  map[string]sar.Direction{},
		},
		{
			name:      "invalid direction",
			input:     "tile;orbit_dir\n31TCJ;NORTH\n",
			wantError: true,
		},
		{
			name:      "missing direction",
			input:     "tile;orbit_dir\n31TCJ\n",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ReadOrbitOverrides(strings.NewReader(tt.input))
			if (err != nil) != tt.wantError {
				t.Fatalf("ReadOrbitOverrides() error = %v, wantError %v", err, tt.wantError)
			}
			if tt.wantError {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("expected %d overrides, got %d", len(tt.want), len(got))
			}
			for tile, dir := range tt.want {
				if got[tile] != dir {
					t.Errorf("expected %s for %s, got %s", dir, tile, got[tile])
				}
			}
		})
	}
}

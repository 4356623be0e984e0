package config

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/robert-malhotra/ewoc-work-plan/internal/sar"
	"github.com/robert-malhotra/ewoc-work-plan/internal/tiles"
)

// ReadOrbitOverrides reads a ';' separated tile;direction file. The first
// line is a header.
func ReadOrbitOverrides(r io.Reader) (map[string]sar.Direction, error) {
	cr := csv.NewReader(r)
	cr.Comma = ';'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	if _, err := cr.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return map[string]sar.Direction{}, nil
		}
		return nil, fmt.Errorf("read orbit file header: %w", err)
	}

	overrides := make(map[string]sar.Direction)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read orbit file: %w", err)
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("orbit file line %d: expected tile;direction", line)
		}
		dir, err := sar.ParseDirection(rec[1])
		if err != nil {
			return nil, fmt.Errorf("orbit file line %d: %w", line, err)
		}
		overrides[tiles.Normalize(rec[0])] = dir
	}
	return overrides, nil
}

// LoadOrbitOverrides reads an orbit override file.
func LoadOrbitOverrides(path string) (map[string]sar.Direction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open orbit file: %w", err)
	}
	defer f.Close()
	return ReadOrbitOverrides(f)
}

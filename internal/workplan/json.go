package workplan

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Encode writes the plan as indented JSON.
func (wp *WorkPlan) Encode(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	if err := enc.Encode(wp); err != nil {
		return fmt.Errorf("encode work plan: %w", err)
	}
	return nil
}

// Bytes returns the indented JSON document of the plan.
func (wp *WorkPlan) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := wp.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Save writes the plan to path.
func (wp *WorkPlan) Save(path string) error {
	data, err := wp.Bytes()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write work plan: %w", err)
	}
	return nil
}

// Decode reads a plan document and validates it against the plan schema.
func Decode(r io.Reader) (*WorkPlan, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read work plan: %w", err)
	}
	if err := Validate(data); err != nil {
		return nil, err
	}

	var wp WorkPlan
	if err := json.Unmarshal(data, &wp); err != nil {
		return nil, fmt.Errorf("decode work plan: %w", err)
	}
	return &wp, nil
}

// Load reads a plan saved with Save.
func Load(path string) (*WorkPlan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open work plan: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

package workplan

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// ErrInvalidDocument is returned for a plan document that does not match
// the plan schema.
var ErrInvalidDocument = errors.New("invalid work plan document")

// Schema is the JSON schema of a plan document.
const Schema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["version", "user", "visibility", "generated", "aez_id", "season_start", "season_end", "tiles"],
  "properties": {
    "plan_id": {"type": "string"},
    "version": {"type": "string"},
    "user": {"type": "string"},
    "visibility": {"type": "string"},
    "generated": {"type": "string"},
    "aez_id": {"type": "integer"},
    "season_start": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
    "season_end": {"type": "string", "pattern": "^[0-9]{4}-[0-9]{2}-[0-9]{2}$"},
    "season_type": {"type": "string"},
    "wp_processing_start": {"type": "string"},
    "wp_processing_end": {"type": "string"},
    "s1_provider": {"type": "string"},
    "s2_provider": {"type": "array", "items": {"type": "string"}},
    "strategy": {"type": "array", "items": {"type": "string", "enum": ["L1C", "L2A"]}},
    "l8_provider": {"type": "string"},
    "detector_set": {"type": "string"},
    "enable_sw": {"type": "boolean"},
    "tiles": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["tile_id", "s1_ids", "s2_ids", "l8_ids", "s1_nb", "s2_nb", "l8_nb"],
        "properties": {
          "tile_id": {"type": "string", "minLength": 1},
          "s1_ids": {"type": "array", "items": {"type": "array", "items": {"type": "string"}}},
          "s1_orbit_dir": {"type": "string", "enum": ["", "ASC", "DES"]},
          "s2_ids": {
            "type": "array",
            "items": {"type": "array", "items": {"type": "string"}, "minItems": 2, "maxItems": 2}
          },
          "l8_ids": {"type": "array", "items": {"type": "array", "items": {"type": "string"}}},
          "s1_nb": {"type": "integer", "minimum": 0},
          "s2_nb": {"type": "integer", "minimum": 0},
          "l8_nb": {"type": "integer", "minimum": 0},
          "geometry": {"type": "string"},
          "l8_enable_sr": {"type": "boolean"}
        }
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(Schema)

// Validate checks a plan document against Schema.
func Validate(data []byte) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewBytesLoader(data))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	if result.Valid() {
		return nil
	}

	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s", ErrInvalidDocument, strings.Join(msgs, "; "))
}

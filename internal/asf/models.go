package asf

import "encoding/json"

// SearchResponse is the GeoJSON FeatureCollection returned by ASF search.
type SearchResponse struct {
	Type     string    `json:"type"` // "FeatureCollection"
	Features []Feature `json:"features"`
}

// Feature is a single ASF search hit.
type Feature struct {
	Type       string     `json:"type"` // "Feature"
	Geometry   *Geometry  `json:"geometry"`
	Properties Properties `json:"properties"`
}

// Geometry represents a GeoJSON geometry
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

// Properties holds the granule metadata the planner reads.
type Properties struct {
	SceneName string `json:"sceneName"`
	FileID    string `json:"fileID"`
	Platform  string `json:"platform"`

	BeamModeType string `json:"beamModeType"`
	Polarization string `json:"polarization"`

	// ASCENDING or DESCENDING
	FlightDirection string `json:"flightDirection"`
	AbsoluteOrbit   *int   `json:"absoluteOrbit"`
	RelativeOrbit   *int   `json:"pathNumber"`

	ProcessingLevel string `json:"processingLevel"`

	StartTime string `json:"startTime"`
	StopTime  string `json:"stopTime"`

	URL      string `json:"url"`
	FileName string `json:"fileName"`
}

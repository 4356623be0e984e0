package asf

import (
	"net/url"
	"strconv"
	"strings"
	"time"
)

// SearchParams represents parameters for ASF search queries
type SearchParams struct {
	Dataset  []string // e.g. "SENTINEL-1"
	Platform []string // e.g. "Sentinel-1A"

	// WKT geometry string
	IntersectsWith string

	// Inclusive bounds
	Start *time.Time
	End   *time.Time

	BeamMode     []string // e.g. "IW"
	Polarization []string // e.g. "VV+VH"

	// "ASCENDING" or "DESCENDING"
	FlightDirection string

	ProcessingLevel []string // e.g. "GRD_HD"

	MaxResults int
	Output     string // defaults to "geojson"
}

// ToQueryString converts SearchParams to a URL query string
func (p *SearchParams) ToQueryString() string {
	return p.ToURLValues().Encode()
}

// ToURLValues converts SearchParams to url.Values for query string building
func (p *SearchParams) ToURLValues() url.Values {
	values := url.Values{}

	for _, d := range p.Dataset {
		values.Add("dataset", d)
	}
	for _, pl := range p.Platform {
		values.Add("platform", pl)
	}

	if p.IntersectsWith != "" {
		values.Set("intersectsWith", p.IntersectsWith)
	}
	if p.Start != nil {
		values.Set("start", formatASFTime(*p.Start))
	}
	if p.End != nil {
		values.Set("end", formatASFTime(*p.End))
	}

	for _, bm := range p.BeamMode {
		values.Add("beamMode", bm)
	}
	if len(p.Polarization) > 0 {
		values.Set("polarization", strings.Join(p.Polarization, ","))
	}
	if p.FlightDirection != "" {
		values.Set("flightDirection", p.FlightDirection)
	}
	if len(p.ProcessingLevel) > 0 {
		values.Set("processingLevel", strings.Join(p.ProcessingLevel, ","))
	}

	if p.MaxResults > 0 {
		values.Set("maxResults", strconv.Itoa(p.MaxResults))
	}

	output := p.Output
	if output == "" {
		output = "geojson"
	}
	values.Set("output", output)

	return values
}

// formatASFTime formats a time for ASF API queries (ISO 8601, UTC).
func formatASFTime(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05Z")
}

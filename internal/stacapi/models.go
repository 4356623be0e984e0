package stacapi

import (
	"encoding/json"

	gostac "github.com/planetlabs/go-stac"
)

// ItemCollection is a page of a STAC API item search.
type ItemCollection struct {
	Type           string         `json:"type"` // "FeatureCollection"
	Features       []*gostac.Item `json:"features"`
	Links          []*Link        `json:"links"`
	NumberMatched  *int           `json:"numberMatched,omitempty"`
	NumberReturned int            `json:"numberReturned"`
}

// Link is a STAC API link. Paging links may carry a method and a request
// body to send instead of a plain GET.
type Link struct {
	Rel    string          `json:"rel"`
	Href   string          `json:"href"`
	Type   string          `json:"type,omitempty"`
	Method string          `json:"method,omitempty"`
	Body   json.RawMessage `json:"body,omitempty"`
	Merge  bool            `json:"merge,omitempty"`
}

// Next returns the rel=next link, or nil.
func (ic *ItemCollection) Next() *Link {
	for _, l := range ic.Links {
		if l != nil && l.Rel == "next" {
			return l
		}
	}
	return nil
}

// SearchRequest is the body of POST /search.
type SearchRequest struct {
	Collections []string                  `json:"collections"`
	Intersects  any                       `json:"intersects,omitempty"`
	Datetime    string                    `json:"datetime,omitempty"`
	Limit       int                       `json:"limit,omitempty"`
	Query       map[string]map[string]any `json:"query,omitempty"`
}

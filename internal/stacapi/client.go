// Package stacapi searches STAC APIs (Earth Search, USGS, Astraea) and maps
// their items to catalog records.
package stacapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	gostac "github.com/planetlabs/go-stac"

	"github.com/robert-malhotra/ewoc-work-plan/internal/catalog"
	"github.com/robert-malhotra/ewoc-work-plan/internal/objstore"
	"github.com/robert-malhotra/ewoc-work-plan/pkg/geojson"
)

// Client searches one STAC API described by a profile.
type Client struct {
	profile    Profile
	baseURL    string
	httpClient *http.Client
	pageSize   int
	maxPages   int
	logger     *slog.Logger
}

// NewClient creates a client for profile. An empty baseURL selects the
// profile default.
func NewClient(profile Profile, baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = profile.DefaultBaseURL
	}
	return &Client{
		profile: profile,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		pageSize: 250,
		maxPages: 100,
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger for the client
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// WithPageSize sets the requested page size.
func (c *Client) WithPageSize(n int) *Client {
	c.pageSize = n
	return c
}

// Name implements catalog.Searcher.
func (c *Client) Name() string {
	return c.profile.Name
}

// WithMaxPages bounds the number of pages fetched per search.
func (c *Client) WithMaxPages(n int) *Client {
	c.maxPages = n
	return c
}

// Search implements catalog.Searcher. Pages are followed through rel=next
// links. A next link left at the page limit is logged as a truncated search.
func (c *Client) Search(ctx context.Context, q catalog.Query) ([]catalog.Record, error) {
	collection, ok := c.profile.Collections[q.Family]
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", catalog.ErrUnsupportedFamily, q.Family, c.profile.Name)
	}

	req := SearchRequest{
		Collections: []string{collection},
		Datetime:    q.Start.UTC().Format(time.RFC3339) + "/" + q.End.UTC().Format(time.RFC3339),
		Limit:       c.pageSize,
	}
	if q.Geometry != "" {
		geom, err := geojson.FromWKT(q.Geometry)
		if err != nil {
			return nil, fmt.Errorf("search geometry: %w", err)
		}
		req.Intersects = geom
	}
	if c.profile.CloudProperty != "" && q.CloudCover != nil {
		req.Query = map[string]map[string]any{
			c.profile.CloudProperty: {"lte": *q.CloudCover},
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}

	var records []catalog.Record
	link := &Link{Href: c.baseURL + "/search", Method: http.MethodPost, Body: body}
	for page := 0; link != nil; page++ {
		if page >= c.maxPages {
			c.logger.WarnContext(ctx, "STAC search truncated at page limit",
				slog.String("provider", c.profile.Name),
				slog.String("collection", collection),
				slog.Int("max_pages", c.maxPages),
				slog.Int("record_count", len(records)),
			)
			break
		}
		ic, err := c.fetch(ctx, link, body)
		if err != nil {
			return nil, err
		}
		for _, item := range ic.Features {
			if rec, ok := c.toRecord(ctx, q.Family, item); ok {
				records = append(records, rec)
			}
		}
		if len(ic.Features) == 0 {
			break
		}
		link = ic.Next()
	}

	c.logger.DebugContext(ctx, "STAC search completed",
		slog.String("provider", c.profile.Name),
		slog.String("collection", collection),
		slog.Int("record_count", len(records)),
	)
	return records, nil
}

// fetch follows a search or paging link. POST links with merge set overlay
// their body on the original request.
func (c *Client) fetch(ctx context.Context, link *Link, original []byte) (*ItemCollection, error) {
	method := strings.ToUpper(link.Method)
	if method == "" {
		method = http.MethodGet
	}

	var reqBody io.Reader
	if method == http.MethodPost {
		payload := link.Body
		if link.Merge {
			merged, err := mergeJSON(original, link.Body)
			if err != nil {
				return nil, err
			}
			payload = merged
		}
		reqBody = bytes.NewReader(payload)
	}

	c.logger.DebugContext(ctx, "executing STAC search",
		slog.String("method", method),
		slog.String("url", link.Href),
	)

	req, err := http.NewRequestWithContext(ctx, method, link.Href, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json")
	req.Header.Set("User-Agent", "ewoc-work-plan/1.0")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "STAC API request failed",
			slog.String("error", err.Error()),
			slog.String("url", link.Href),
		)
		return nil, fmt.Errorf("STAC API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		c.logger.ErrorContext(ctx, "STAC API returned non-200 status",
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(data)),
		)
		return nil, fmt.Errorf("STAC API returned status %d: %s", resp.StatusCode, string(data))
	}

	var ic ItemCollection
	if err := json.NewDecoder(resp.Body).Decode(&ic); err != nil {
		return nil, fmt.Errorf("failed to decode STAC response: %w", err)
	}
	return &ic, nil
}

func mergeJSON(base, overlay []byte) ([]byte, error) {
	out := map[string]any{}
	if err := json.Unmarshal(base, &out); err != nil {
		return nil, fmt.Errorf("decode search request: %w", err)
	}
	patch := map[string]any{}
	if len(overlay) > 0 {
		if err := json.Unmarshal(overlay, &patch); err != nil {
			return nil, fmt.Errorf("decode next link body: %w", err)
		}
	}
	for k, v := range patch {
		out[k] = v
	}
	return json.Marshal(out)
}

func (c *Client) toRecord(ctx context.Context, family catalog.Family, item *gostac.Item) (catalog.Record, bool) {
	if item == nil {
		return catalog.Record{}, false
	}
	id := c.profile.ProductID(item)
	acquired, err := itemTime(item)
	if id == "" || err != nil {
		c.logger.DebugContext(ctx, "skipping STAC item", slog.String("item_id", item.Id))
		return catalog.Record{}, false
	}

	rec := catalog.Record{
		ID:          id,
		Provider:    c.profile.Name,
		Level:       family.Level(),
		Acquisition: acquired,
		CloudCover:  floatProperty(item, "eo:cloud_cover"),
		Assets:      make(map[string]string, len(item.Assets)),
	}
	for key, a := range item.Assets {
		if a != nil {
			rec.Assets[key] = a.Href
		}
	}

	switch family {
	case catalog.FamilyS1GRD:
		rec.CloudCover = nil
		rec.ManifestRef = objstore.ManifestRef(rec.Assets["vv"])
	case catalog.FamilyLandsat:
		rec.LandCloudCover = floatProperty(item, "landsat:cloud_cover_land")
		rec.Correction, _ = item.Properties["landsat:correction"].(string)
		rec.Path = stringProperty(item, "landsat:wrs_path")
		rec.Row = stringProperty(item, "landsat:wrs_row")
	}
	return rec, true
}

func itemTime(item *gostac.Item) (time.Time, error) {
	for _, key := range []string{"datetime", "start_datetime"} {
		if s, ok := item.Properties[key].(string); ok && s != "" {
			return time.Parse(time.RFC3339Nano, s)
		}
	}
	return time.Time{}, fmt.Errorf("item %s has no datetime", item.Id)
}

func floatProperty(item *gostac.Item, key string) *float64 {
	switch v := item.Properties[key].(type) {
	case float64:
		return &v
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return &f
		}
	}
	return nil
}

func stringProperty(item *gostac.Item, key string) string {
	switch v := item.Properties[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}

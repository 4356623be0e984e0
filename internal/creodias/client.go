// Package creodias searches the CREODIAS finder (resto) catalog for
// Sentinel-1, Sentinel-2 and Landsat-8 products.
package creodias

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/robert-malhotra/ewoc-work-plan/internal/catalog"
	"github.com/robert-malhotra/ewoc-work-plan/internal/product"
)

// ProviderName is the name the client is registered under.
const ProviderName = "creodias"

// DefaultBaseURL is the public finder endpoint.
const DefaultBaseURL = "https://finder.creodias.eu"

// Client queries the finder search API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	pageSize   int
	maxPages   int
	logger     *slog.Logger
}

// NewClient creates a finder client.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		pageSize: 500,
		maxPages: 50,
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger for the client
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// WithPageSize sets the number of records requested per page.
func (c *Client) WithPageSize(n int) *Client {
	c.pageSize = n
	return c
}

// Name implements catalog.Searcher.
func (c *Client) Name() string {
	return ProviderName
}

// searchSpec is the finder collection and filters for a family.
type searchSpec struct {
	collection string
	filters    url.Values
	cloudy     bool
}

func specFor(f catalog.Family) (searchSpec, error) {
	switch f {
	case catalog.FamilyS1GRD:
		return searchSpec{collection: "Sentinel1", filters: url.Values{"productType": {"GRD"}, "sensorMode": {"IW"}}}, nil
	case catalog.FamilyS2L1C:
		return searchSpec{collection: "Sentinel2", filters: url.Values{"productType": {"L1C"}}, cloudy: true}, nil
	case catalog.FamilyS2L2A:
		return searchSpec{collection: "Sentinel2", filters: url.Values{"productType": {"L2A"}}, cloudy: true}, nil
	case catalog.FamilyLandsat:
		return searchSpec{collection: "Landsat8", filters: url.Values{}, cloudy: true}, nil
	default:
		return searchSpec{}, fmt.Errorf("%w: %s on %s", catalog.ErrUnsupportedFamily, f, ProviderName)
	}
}

// WithMaxPages bounds the number of pages fetched per search.
func (c *Client) WithMaxPages(n int) *Client {
	c.maxPages = n
	return c
}

// Search implements catalog.Searcher. Pages are followed until a short
// page is returned. Reaching the page limit on a full page is logged as a
// truncated search.
func (c *Client) Search(ctx context.Context, q catalog.Query) ([]catalog.Record, error) {
	spec, err := specFor(q.Family)
	if err != nil {
		return nil, err
	}

	var records []catalog.Record
	for page := 1; ; page++ {
		resp, err := c.fetchPage(ctx, spec, q, page)
		if err != nil {
			return nil, err
		}
		for _, f := range resp.Features {
			if rec, ok := c.toRecord(ctx, q.Family, f.Properties); ok {
				records = append(records, rec)
			}
		}
		if len(resp.Features) < c.pageSize {
			break
		}
		if page >= c.maxPages {
			c.logger.WarnContext(ctx, "finder search truncated at page limit",
				slog.String("family", string(q.Family)),
				slog.Int("max_pages", c.maxPages),
				slog.Int("record_count", len(records)),
			)
			break
		}
	}

	c.logger.DebugContext(ctx, "finder search completed",
		slog.String("family", string(q.Family)),
		slog.Int("record_count", len(records)),
	)
	return records, nil
}

func (c *Client) fetchPage(ctx context.Context, spec searchSpec, q catalog.Query, page int) (*SearchResponse, error) {
	searchURL, err := c.buildSearchURL(spec, q, page)
	if err != nil {
		return nil, fmt.Errorf("failed to build search URL: %w", err)
	}

	c.logger.DebugContext(ctx, "executing finder search", slog.String("url", searchURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "ewoc-work-plan/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "finder request failed",
			slog.String("error", err.Error()),
			slog.String("url", searchURL),
		)
		return nil, fmt.Errorf("finder request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.ErrorContext(ctx, "finder returned non-200 status",
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(body)),
		)
		return nil, fmt.Errorf("finder returned status %d: %s", resp.StatusCode, string(body))
	}

	var result SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode finder response: %w", err)
	}
	return &result, nil
}

func (c *Client) buildSearchURL(spec searchSpec, q catalog.Query, page int) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	base.Path = "/resto/api/collections/" + spec.collection + "/search.json"

	values := url.Values{}
	for k, v := range spec.filters {
		values[k] = v
	}
	values.Set("startDate", q.Start.UTC().Format("2006-01-02T15:04:05Z"))
	values.Set("completionDate", q.End.UTC().Format("2006-01-02T15:04:05Z"))
	if q.Geometry != "" {
		values.Set("geometry", q.Geometry)
	}
	if spec.cloudy && q.CloudCover != nil {
		values.Set("cloudCover", "[0,"+strconv.FormatFloat(*q.CloudCover, 'f', -1, 64)+"]")
	}
	values.Set("status", "all")
	values.Set("sortParam", "startDate")
	values.Set("sortOrder", "ascending")
	values.Set("maxRecords", strconv.Itoa(c.pageSize))
	values.Set("page", strconv.Itoa(page))

	base.RawQuery = values.Encode()
	return base.String(), nil
}

func (c *Client) toRecord(ctx context.Context, family catalog.Family, p Properties) (catalog.Record, bool) {
	id := strings.TrimSuffix(p.Title, product.SafeSuffix)
	if id == "" {
		return catalog.Record{}, false
	}
	acquired, err := time.Parse(time.RFC3339Nano, p.StartDate)
	if err != nil {
		c.logger.DebugContext(ctx, "skipping product with bad start date",
			slog.String("product_id", id),
			slog.String("start_date", p.StartDate),
		)
		return catalog.Record{}, false
	}

	rec := catalog.Record{
		ID:          id,
		Provider:    ProviderName,
		Level:       family.Level(),
		Acquisition: acquired,
		Assets:      map[string]string{"product": p.ProductIdentifier},
	}

	switch family {
	case catalog.FamilyS1GRD:
		rec.OrbitDirection = strings.ToUpper(p.OrbitDirection)
		rec.Timeliness = p.Timeliness
	case catalog.FamilyS2L1C, catalog.FamilyS2L2A:
		rec.CloudCover = p.CloudCover
	case catalog.FamilyLandsat:
		rec.CloudCover = p.CloudCover
		rec.LandCloudCover = p.LandCloudCover
		rec.Path = string(p.Path)
		rec.Row = string(p.Row)
		if lid, err := product.ParseLandsat(id); err == nil {
			rec.Correction = lid.Correction
		}
	}
	return rec, true
}

// SearchResponse is the finder GeoJSON response.
type SearchResponse struct {
	Type       string    `json:"type"`
	Features   []Feature `json:"features"`
	Properties struct {
		TotalResults *int `json:"totalResults"`
		ItemsPerPage int  `json:"itemsPerPage"`
	} `json:"properties"`
}

// Feature is a single finder search hit.
type Feature struct {
	Type       string     `json:"type"`
	ID         string     `json:"id"`
	Properties Properties `json:"properties"`
}

// Properties holds the resto metadata the planner reads.
type Properties struct {
	Title             string     `json:"title"`
	ProductIdentifier string     `json:"productIdentifier"`
	ProductType       string     `json:"productType"`
	StartDate         string     `json:"startDate"`
	CompletionDate    string     `json:"completionDate"`
	CloudCover        *float64   `json:"cloudCover"`
	LandCloudCover    *float64   `json:"landCloudCover"`
	OrbitDirection    string     `json:"orbitDirection"`
	Timeliness        string     `json:"timeliness"`
	Path              flexString `json:"path"`
	Row               flexString `json:"row"`
}

// flexString decodes a JSON string or number into its text.
type flexString string

func (f *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

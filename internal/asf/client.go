// Package asf searches Sentinel-1 GRD products on the ASF search API, which
// reports the orbit direction of every granule.
package asf

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/robert-malhotra/ewoc-work-plan/internal/catalog"
)

// ProviderName is the name the client is registered under.
const ProviderName = "asf"

// Client handles communication with the ASF Search API
type Client struct {
	baseURL    string
	httpClient *http.Client
	maxResults int
	logger     *slog.Logger
}

// NewClient creates a new ASF API client
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
		maxResults: 2000,
		logger:     slog.Default(),
	}
}

// WithLogger sets a custom logger for the client
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// WithMaxResults caps the number of granules returned by one search.
func (c *Client) WithMaxResults(n int) *Client {
	c.maxResults = n
	return c
}

// Name implements catalog.Searcher.
func (c *Client) Name() string {
	return ProviderName
}

// Search implements catalog.Searcher for Sentinel-1 GRD products.
func (c *Client) Search(ctx context.Context, q catalog.Query) ([]catalog.Record, error) {
	if q.Family != catalog.FamilyS1GRD {
		return nil, fmt.Errorf("%w: %s on %s", catalog.ErrUnsupportedFamily, q.Family, ProviderName)
	}

	start, end := q.Start, q.End
	params := SearchParams{
		Dataset:         []string{"SENTINEL-1"},
		IntersectsWith:  q.Geometry,
		Start:           &start,
		End:             &end,
		BeamMode:        []string{"IW"},
		Polarization:    []string{"VV+VH"},
		ProcessingLevel: []string{"GRD_HD"},
		MaxResults:      c.maxResults,
	}

	result, err := c.query(ctx, params)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(result.Features))
	records := make([]catalog.Record, 0, len(result.Features))
	for _, f := range result.Features {
		p := f.Properties
		if p.SceneName == "" || seen[p.SceneName] {
			continue
		}
		seen[p.SceneName] = true

		acquired, err := time.Parse(time.RFC3339Nano, p.StartTime)
		if err != nil {
			c.logger.DebugContext(ctx, "skipping granule with bad start time",
				slog.String("scene", p.SceneName),
				slog.String("start_time", p.StartTime),
			)
			continue
		}

		records = append(records, catalog.Record{
			ID:             p.SceneName,
			Provider:       ProviderName,
			Level:          p.ProcessingLevel,
			Acquisition:    acquired,
			OrbitDirection: p.FlightDirection,
			Assets:         map[string]string{"product": p.URL},
		})
	}
	return records, nil
}

// query performs a search against the ASF API
func (c *Client) query(ctx context.Context, params SearchParams) (*SearchResponse, error) {
	searchURL, err := c.buildSearchURL(params)
	if err != nil {
		return nil, fmt.Errorf("failed to build search URL: %w", err)
	}

	c.logger.DebugContext(ctx, "executing ASF search",
		slog.String("url", searchURL),
	)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "ewoc-work-plan/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "ASF API request failed",
			slog.String("error", err.Error()),
			slog.String("url", searchURL),
		)
		return nil, fmt.Errorf("ASF API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		c.logger.ErrorContext(ctx, "ASF API returned non-200 status",
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(body)),
		)
		return nil, fmt.Errorf("ASF API returned status %d: %s", resp.StatusCode, string(body))
	}

	var result SearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		c.logger.ErrorContext(ctx, "failed to decode ASF response",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("failed to decode ASF response: %w", err)
	}

	c.logger.DebugContext(ctx, "ASF search completed",
		slog.Int("feature_count", len(result.Features)),
	)
	return &result, nil
}

// buildSearchURL constructs the full search URL with query parameters
func (c *Client) buildSearchURL(params SearchParams) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base URL: %w", err)
	}
	base.Path = "/services/search/param"
	base.RawQuery = params.ToQueryString()
	return base.String(), nil
}

package stacapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/robert-malhotra/ewoc-work-plan/internal/catalog"
)

func query(f catalog.Family) catalog.Query {
	return catalog.Query{
		Family:     f,
		Geometry:   "POLYGON((0 43,1 43,1 44,0 44,0 43))",
		Start:      time.Date(2020, 4, 1, 0, 0, 0, 0, time.UTC),
		End:        time.Date(2020, 5, 1, 0, 0, 0, 0, time.UTC),
		CloudCover: catalog.Float(80),
	}
}

func itemJSON(id, datetime, props, assets string) string {
	return fmt.Sprintf(`{"type":"Feature","stac_version":"1.0.0","id":%q,"collection":"c",
		"geometry":null,"properties":{"datetime":%q%s},"links":[],"assets":{%s}}`, id, datetime, props, assets)
}

func TestClient_Search_Paginates(t *testing.T) {
	var bodies []map[string]any
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/search" {
			t.Errorf("Expected POST /search, got %s %s", r.Method, r.URL.Path)
		}
		data, _ := io.ReadAll(r.Body)
		body := map[string]any{}
		if err := json.Unmarshal(data, &body); err != nil {
			t.Fatalf("invalid request body: %v", err)
		}
		bodies = append(bodies, body)

		w.Header().Set("Content-Type", "application/geo+json")
		if _, ok := body["next"]; !ok {
			fmt.Fprintf(w, `{"type":"FeatureCollection","features":[%s],
				"links":[{"rel":"next","href":%q,"method":"POST","body":{"next":"page2"},"merge":true}]}`,
				itemJSON("S2B_31TCJ_20200401_0_L2A", "2020-04-01T10:56:47Z",
					`,"eo:cloud_cover":10.5,"s2:product_uri":"S2B_MSIL2A_20200401T105029_N0214_R051_T31TCJ_20200401T121012.SAFE"`, ""),
				server.URL+"/search")
			return
		}
		fmt.Fprintf(w, `{"type":"FeatureCollection","features":[%s],"links":[]}`,
			itemJSON("S2B_31TCJ_20200411_0_L2A", "2020-04-11T10:56:47Z", `,"eo:cloud_cover":40`, ""))
	}))
	defer server.Close()

	client := NewClient(EarthSearchCOG, server.URL, 30*time.Second)
	records, err := client.Search(context.Background(), query(catalog.FamilyS2L2A))
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(bodies) != 2 {
		t.Fatalf("Expected 2 requests, got %d", len(bodies))
	}
	if cols := bodies[0]["collections"].([]any); cols[0] != "sentinel-2-l2a" {
		t.Errorf("Expected sentinel-2-l2a collection, got %v", cols)
	}
	if bodies[0]["datetime"] != "2020-04-01T00:00:00Z/2020-05-01T00:00:00Z" {
		t.Errorf("Unexpected datetime %v", bodies[0]["datetime"])
	}
	if geom := bodies[0]["intersects"].(map[string]any); geom["type"] != "Polygon" {
		t.Errorf("Expected Polygon intersects, got %v", geom)
	}
	if q := bodies[0]["query"].(map[string]any); q["eo:cloud_cover"] == nil {
		t.Errorf("Expected cloud cover query, got %v", q)
	}
	if bodies[1]["collections"] == nil {
		t.Error("Expected next body merged onto the original request")
	}

	if len(records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(records))
	}
	if records[0].ID != "S2B_MSIL2A_20200401T105029_N0214_R051_T31TCJ_20200401T121012" {
		t.Errorf("Expected product uri as id, got %s", records[0].ID)
	}
	if records[1].ID != "S2B_31TCJ_20200411_0_L2A" {
		t.Errorf("Expected item id fallback, got %s", records[1].ID)
	}
	if records[0].Level != "L2A" || records[0].Provider != "aws_cog" {
		t.Errorf("Unexpected level/provider %s/%s", records[0].Level, records[0].Provider)
	}
	if *records[0].CloudCover != 10.5 {
		t.Errorf("Expected cloud cover 10.5, got %v", *records[0].CloudCover)
	}
}

func TestClient_Search_PageLimit(t *testing.T) {
	requests := 0
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.Header().Set("Content-Type", "application/geo+json")
		fmt.Fprintf(w, `{"type":"FeatureCollection","features":[%s],
			"links":[{"rel":"next","href":%q,"method":"POST","body":{"next":"more"},"merge":true}]}`,
			itemJSON(fmt.Sprintf("S2B_31TCJ_202004%02d_0_L2A", requests), fmt.Sprintf("2020-04-%02dT10:56:47Z", requests), "", ""),
			server.URL+"/search")
	}))
	defer server.Close()

	var logs bytes.Buffer
	client := NewClient(EarthSearchCOG, server.URL, 30*time.Second).
		WithMaxPages(2).
		WithLogger(slog.New(slog.NewTextHandler(&logs, nil)))
	records, err := client.Search(context.Background(), query(catalog.FamilyS2L2A))
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if requests != 2 || len(records) != 2 {
		t.Errorf("Expected 2 pages and 2 records, got %d and %d", requests, len(records))
	}
	if !strings.Contains(logs.String(), "truncated") {
		t.Errorf("Expected a truncation warning, got %q", logs.String())
	}
}

func TestClient_Search_S1Manifest(t *testing.T) {
	product := "S1A_IW_GRDH_1SDV_20200601T174512_20200601T174537_032834_03CD9A_8E21"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		if strings.Contains(string(data), "eo:cloud_cover") {
			t.Error("Expected no cloud cover filter for SAR")
		}
		fmt.Fprintf(w, `{"type":"FeatureCollection","features":[%s],"links":[]}`,
			itemJSON("S1A_IW_GRDH_1SDV_20200601T174512", "2020-06-01T17:45:12Z", "",
				`"vv":{"href":"s3://sentinel-s1-l1c/GRD/2020/6/1/IW/DV/`+product+`/measurement/iw-vv.tiff"}`))
	}))
	defer server.Close()

	records, err := NewClient(EarthSearchS1, server.URL, 30*time.Second).Search(context.Background(), query(catalog.FamilyS1GRD))
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("Expected 1 record, got %d", len(records))
	}
	rec := records[0]
	if rec.ID != product {
		t.Errorf("Expected product %s, got %s", product, rec.ID)
	}
	if rec.ManifestRef != "s3://sentinel-s1-l1c/GRD/2020/6/1/IW/DV/"+product+"/manifest.safe" {
		t.Errorf("Unexpected manifest ref %s", rec.ManifestRef)
	}
	if rec.OrbitDirection != "" || rec.CloudCover != nil {
		t.Errorf("Expected no direction and no cloud cover, got %+v", rec)
	}
}

func TestClient_Search_Landsat(t *testing.T) {
	id := "LC08_L1TP_198030_20200405_20200410_02_T1"
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"type":"FeatureCollection","features":[%s],"links":[]}`,
			itemJSON(id, "2020-04-05T10:30:00Z",
				`,"eo:cloud_cover":30,"landsat:cloud_cover_land":12,"landsat:correction":"L1TP","landsat:wrs_path":"198","landsat:wrs_row":"030"`,
				`"blue":{"href":"https://landsatlook.usgs.gov/data/collection02/level-1/standard/oli-tirs/2020/198/030/`+id+`/`+id+`_B2.TIF"}`))
	}))
	defer server.Close()

	records, err := NewClient(USGSLandsat, server.URL, 30*time.Second).Search(context.Background(), query(catalog.FamilyLandsat))
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	rec := records[0]
	if rec.Correction != "L1TP" || rec.Path != "198" || rec.Row != "030" {
		t.Errorf("Unexpected landsat metadata %+v", rec)
	}
	if rec.LandCloudCover == nil || *rec.LandCloudCover != 12 {
		t.Errorf("Expected land cloud cover 12, got %v", rec.LandCloudCover)
	}
	if !strings.HasSuffix(rec.Assets["blue"], "_B2.TIF") {
		t.Errorf("Expected blue asset, got %v", rec.Assets)
	}
}

func TestClient_Search_Errors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(EarthSearchCOG, server.URL, 30*time.Second)
	if _, err := client.Search(context.Background(), query(catalog.FamilyS2L1C)); err == nil || !strings.Contains(err.Error(), "502") {
		t.Errorf("Expected status error, got %v", err)
	}
	if _, err := client.Search(context.Background(), query(catalog.FamilyS1GRD)); !errors.Is(err, catalog.ErrUnsupportedFamily) {
		t.Errorf("Expected ErrUnsupportedFamily, got %v", err)
	}

	q := query(catalog.FamilyS2L1C)
	q.Geometry = "POINT(1 2)"
	if _, err := client.Search(context.Background(), q); err == nil {
		t.Error("Expected geometry error")
	}
}

func TestNewClient_DefaultBaseURL(t *testing.T) {
	c := NewClient(USGSLandsat, "", time.Second)
	if c.baseURL != USGSLandsat.DefaultBaseURL {
		t.Errorf("Expected default base URL, got %s", c.baseURL)
	}
	if c.Name() != "usgs_satapi_aws" {
		t.Errorf("Expected name usgs_satapi_aws, got %s", c.Name())
	}
	if len(Profiles) != 4 {
		t.Errorf("Expected 4 profiles, got %d", len(Profiles))
	}
}

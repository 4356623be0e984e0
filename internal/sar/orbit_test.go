package sar

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/robert-malhotra/ewoc-work-plan/internal/catalog"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// s1ID builds a valid IW/DV product id acquired on the given day.
func s1ID(mission string, date time.Time, uid string) string {
	return mission + "_IW_GRDH_1SDV_" + date.Format("20060102") + "T055000_" + date.Format("20060102") + "T055025_032823_03CD2E_" + uid
}

func rec(id, dir string) catalog.Record {
	return catalog.Record{ID: id, OrbitDirection: dir, Provider: "creodias", Timeliness: "Fast-24h"}
}

type fakeManifests struct {
	docs map[string]string
	errs map[string]error
}

func (f *fakeManifests) Fetch(_ context.Context, ref string) ([]byte, error) {
	if err := f.errs[ref]; err != nil {
		return nil, err
	}
	doc, ok := f.docs[ref]
	if !ok {
		return nil, errors.New("not found")
	}
	return []byte(doc), nil
}

func manifestDoc(pass string) string {
	return `<?xml version="1.0" encoding="UTF-8"?>
<xfdu:XFDU xmlns:xfdu="urn:ccsds:schema:xfdu:1" xmlns:safe="http://www.esa.int/safe/sentinel-1.0" xmlns:s1="http://www.esa.int/safe/sentinel-1.0/sentinel-1">
  <metadataSection>
    <metadataObject ID="measurementOrbitReference">
      <metadataWrap><xmlData>
        <safe:orbitReference>
          <safe:extension><s1:orbitProperties><s1:pass>` + pass + `</s1:pass></s1:orbitProperties></safe:extension>
        </safe:orbitReference>
      </xmlData></metadataWrap>
    </metadataObject>
  </metadataSection>
</xfdu:XFDU>`
}

func TestMaxGap(t *testing.T) {
	w := Window{Start: day(2020, 6, 1), End: day(2020, 6, 30)}

	tests := []struct {
		name  string
		dates []time.Time
		want  time.Duration
	}{
		{
			name: "empty returns sentinel",
			want: NoCoverageGap,
		},
		{
			name:  "regular twelve day revisit",
			dates: []time.Time{day(2020, 6, 1), day(2020, 6, 13), day(2020, 6, 25)},
			want:  12 * 24 * time.Hour,
		},
		{
			name:  "unsorted input",
			dates: []time.Time{day(2020, 6, 25), day(2020, 6, 1)},
			want:  24 * 24 * time.Hour,
		},
		{
			name:  "gap to window end",
			dates: []time.Time{day(2020, 6, 3)},
			want:  27 * 24 * time.Hour,
		},
		{
			name:  "date before window start counts absolute distance",
			dates: []time.Time{day(2020, 5, 20), day(2020, 6, 20)},
			want:  31 * 24 * time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MaxGap(tt.dates, w); got != tt.want {
				t.Errorf("expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestSelect_AllAscending(t *testing.T) {
	w := Window{Start: day(2020, 6, 1), End: day(2020, 6, 30)}
	records := []catalog.Record{
		rec(s1ID("S1A", day(2020, 6, 1), "0001"), "ascending"),
		rec(s1ID("S1A", day(2020, 6, 13), "0002"), "ascending"),
		rec(s1ID("S1A", day(2020, 6, 25), "0003"), "ascending"),
	}

	sel := NewSelector("creodias", nil, testLogger()).Select(context.Background(), records, w, "")

	if sel.Direction != Ascending {
		t.Errorf("expected ASC, got %s", sel.Direction)
	}
	if len(sel.Products) != 3 {
		t.Errorf("expected 3 products, got %d", len(sel.Products))
	}
	if sel.Descending != 0 || sel.Ascending != 3 {
		t.Errorf("unexpected counts asc=%d desc=%d", sel.Ascending, sel.Descending)
	}
}

func TestSelect_SmallerGapWins(t *testing.T) {
	w := Window{Start: day(2020, 6, 1), End: day(2020, 6, 30)}
	records := []catalog.Record{
		rec(s1ID("S1A", day(2020, 6, 15), "0001"), "ascending"),
		rec(s1ID("S1A", day(2020, 6, 2), "0002"), "descending"),
		rec(s1ID("S1B", day(2020, 6, 8), "0003"), "descending"),
		rec(s1ID("S1A", day(2020, 6, 14), "0004"), "descending"),
		rec(s1ID("S1B", day(2020, 6, 20), "0005"), "descending"),
		rec(s1ID("S1A", day(2020, 6, 26), "0006"), "descending"),
	}

	sel := NewSelector("creodias", nil, testLogger()).Select(context.Background(), records, w, "")

	if sel.Direction != Descending {
		t.Errorf("expected DES, got %s", sel.Direction)
	}
	if len(sel.Products) != 5 {
		t.Errorf("expected 5 products, got %d", len(sel.Products))
	}
}

func TestSelect_TieBreak(t *testing.T) {
	w := Window{Start: day(2020, 6, 1), End: day(2020, 6, 30)}
	records := []catalog.Record{
		rec(s1ID("S1A", day(2020, 6, 15), "0001"), "ascending"),
		rec(s1ID("S1B", day(2020, 6, 15), "0002"), "descending"),
	}

	sel := NewSelector("creodias", nil, testLogger()).Select(context.Background(), records, w, "")
	if sel.Direction != Descending {
		t.Errorf("expected default tie-break DES, got %s", sel.Direction)
	}

	sel = NewSelector("creodias", nil, testLogger()).WithTieBreak(Ascending).Select(context.Background(), records, w, "")
	if sel.Direction != Ascending {
		t.Errorf("expected configured tie-break ASC, got %s", sel.Direction)
	}
}

func TestSelect_EmptyInputsTieToDescending(t *testing.T) {
	w := Window{Start: day(2020, 6, 1), End: day(2020, 6, 30)}

	sel := NewSelector("creodias", nil, testLogger()).Select(context.Background(), nil, w, "")
	if sel.Direction != Descending {
		t.Errorf("expected DES, got %s", sel.Direction)
	}
	if len(GroupByDate(sel.Products)) != 0 {
		t.Errorf("expected no groups, got %v", GroupByDate(sel.Products))
	}
}

func TestSelect_Override(t *testing.T) {
	w := Window{Start: day(2020, 6, 1), End: day(2020, 6, 30)}
	records := []catalog.Record{
		rec(s1ID("S1A", day(2020, 6, 1), "0001"), "ascending"),
		rec(s1ID("S1A", day(2020, 6, 13), "0002"), "ascending"),
		rec(s1ID("S1A", day(2020, 6, 20), "0003"), "descending"),
	}

	sel := NewSelector("creodias", nil, testLogger()).Select(context.Background(), records, w, Descending)

	if !sel.Forced {
		t.Error("expected forced selection")
	}
	if sel.Direction != Descending {
		t.Errorf("expected DES, got %s", sel.Direction)
	}
	if len(sel.Products) != 1 {
		t.Errorf("expected 1 product, got %d", len(sel.Products))
	}
}

func TestIsValid(t *testing.T) {
	s := NewSelector("creodias", nil, testLogger())
	ctx := context.Background()

	tests := []struct {
		name string
		rec  catalog.Record
		want bool
	}{
		{
			name: "valid after cutoff",
			rec:  catalog.Record{ID: s1ID("S1A", day(2021, 3, 1), "0001"), Timeliness: "NRT-3h"},
			want: true,
		},
		{
			name: "early fast-24h kept",
			rec:  catalog.Record{ID: s1ID("S1A", day(2020, 3, 1), "0001"), Timeliness: "Fast-24h"},
			want: true,
		},
		{
			name: "early nrt dropped",
			rec:  catalog.Record{ID: s1ID("S1A", day(2020, 3, 1), "0001"), Timeliness: "NRT-3h"},
			want: false,
		},
		{
			name: "single polarisation dropped",
			rec:  catalog.Record{ID: "S1A_IW_GRDH_1SSV_20210301T055000_20210301T055025_032823_03CD2E_0001"},
			want: false,
		},
		{
			name: "extra wide swath dropped",
			rec:  catalog.Record{ID: "S1A_EW_GRDM_1SDH_20210301T055000_20210301T055025_032823_03CD2E_0001"},
			want: false,
		},
		{
			name: "unparseable dropped",
			rec:  catalog.Record{ID: "garbage"},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.IsValid(ctx, tt.rec); got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestIsValid_TimelinessOnlyForMixedCatalog(t *testing.T) {
	s := NewSelector("aws", nil, testLogger())
	r := catalog.Record{ID: s1ID("S1A", day(2020, 3, 1), "0001")}
	if !s.IsValid(context.Background(), r) {
		t.Error("expected early product without timeliness to be valid outside creodias")
	}
}

func TestClassify_Manifest(t *testing.T) {
	manifests := &fakeManifests{
		docs: map[string]string{
			"s3://bucket/a/manifest.safe": manifestDoc("ASCENDING"),
			"s3://bucket/b/manifest.safe": manifestDoc("DESCENDING"),
			"s3://bucket/d/manifest.safe": "<not-xml",
		},
		errs: map[string]error{
			"s3://bucket/c/manifest.safe": errors.New("access denied"),
		},
	}
	s := NewSelector("aws", manifests, testLogger())

	records := []catalog.Record{
		{ID: s1ID("S1A", day(2020, 6, 1), "000A"), ManifestRef: "s3://bucket/a/manifest.safe"},
		{ID: s1ID("S1A", day(2020, 6, 2), "000B"), ManifestRef: "s3://bucket/b/manifest.safe"},
		{ID: s1ID("S1A", day(2020, 6, 3), "000C"), ManifestRef: "s3://bucket/c/manifest.safe"},
		{ID: s1ID("S1A", day(2020, 6, 4), "000D"), ManifestRef: "s3://bucket/d/manifest.safe"},
		{ID: s1ID("S1A", day(2020, 6, 5), "000E")},
	}

	asc, desc := s.Classify(context.Background(), records)

	if len(asc) != 1 || asc[0].ID != records[0].ID {
		t.Errorf("expected one ascending product, got %v", asc)
	}
	if len(desc) != 1 || desc[0].ID != records[1].ID {
		t.Errorf("expected one descending product, got %v", desc)
	}
}

func TestParseManifestPass(t *testing.T) {
	pass, err := ParseManifestPass([]byte(manifestDoc(" DESCENDING ")))
	if err != nil {
		t.Fatalf("ParseManifestPass failed: %v", err)
	}
	if pass != "DESCENDING" {
		t.Errorf("expected DESCENDING, got %q", pass)
	}

	_, err = ParseManifestPass([]byte(`<root xmlns:s1="urn:other"><s1:pass>ASCENDING</s1:pass></root>`))
	if !errors.Is(err, ErrNoPassElement) {
		t.Errorf("expected ErrNoPassElement for foreign namespace, got %v", err)
	}
}

func TestParseDirection(t *testing.T) {
	tests := map[string]Direction{
		"ASC":        Ascending,
		"ascending":  Ascending,
		"DES":        Descending,
		"Descending": Descending,
		" desc ":     Descending,
	}
	for in, want := range tests {
		got, err := ParseDirection(in)
		if err != nil || got != want {
			t.Errorf("ParseDirection(%q): expected %s, got %s (%v)", in, want, got, err)
		}
	}
	if _, err := ParseDirection("north"); err == nil {
		t.Error("expected error for invalid direction")
	}
}

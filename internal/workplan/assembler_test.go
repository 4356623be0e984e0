package workplan

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/robert-malhotra/ewoc-work-plan/internal/catalog"
	"github.com/robert-malhotra/ewoc-work-plan/internal/catalog/catalogtest"
	"github.com/robert-malhotra/ewoc-work-plan/internal/sar"
	"github.com/robert-malhotra/ewoc-work-plan/internal/tiles"
)

const footprint = "POLYGON((0 43,1 43,1 44,0 44,0 43))"

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeMasks struct {
	known map[string]bool
}

func (f fakeMasks) Exists(_ context.Context, path, row string, date time.Time) (bool, error) {
	return f.known[path+row+date.Format("20060102")], nil
}

type recorder struct {
	mu     sync.Mutex
	built  []string
	failed []string
}

func (r *recorder) TileBuilt(tp TilePlan, _ bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.built = append(r.built, tp.TileID)
}

func (r *recorder) TileFailed(tile string, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, tile)
}

func june(d int) time.Time {
	return time.Date(2020, 6, d, 10, 50, 31, 0, time.UTC)
}

func s1(d int, dir string) catalog.Record {
	t := june(d)
	return catalog.Record{
		ID:             fmt.Sprintf("S1A_IW_GRDH_1SDV_%s_%s_032823_03CD2E_1234", t.Format("20060102T150405"), t.Add(25*time.Second).Format("20060102T150405")),
		Acquisition:    t,
		OrbitDirection: dir,
	}
}

func s2(level, tile string, d int, cc float64) catalog.Record {
	t := june(d)
	return catalog.Record{
		ID:          fmt.Sprintf("S2A_MSI%s_%s_N0214_R051_T%s_%s", level, t.Format("20060102T150405"), tile, t.Add(2*time.Hour).Format("20060102T150405")),
		Acquisition: t,
		CloudCover:  catalog.Float(cc),
	}
}

func l8(d int) catalog.Record {
	t := june(d)
	return catalog.Record{
		ID:             fmt.Sprintf("LC08_L1TP_198030_%s_20200710_02_T1", t.Format("20060102")),
		Acquisition:    t,
		LandCloudCover: catalog.Float(10),
		Path:           "198",
		Row:            "30",
	}
}

func request(tileIDs ...string) Request {
	policy := DefaultPolicy()
	policy.WindowStart = time.Date(2020, 6, 1, 0, 0, 0, 0, time.UTC)
	policy.WindowEnd = time.Date(2020, 6, 30, 0, 0, 0, 0, time.UTC)
	policy.Providers = []string{"creodias", "creodias"}
	policy.Strategy = []string{"L1C", "L2A"}
	policy.MinProductsPerYear = 0
	return Request{
		Tiles:      tileIDs,
		Policy:     policy,
		S1Provider: "asf",
		L8Provider: "creodias",
	}
}

type fixture struct {
	asf      *catalogtest.Fake
	creodias *catalogtest.Fake
	rec      *recorder
	asm      *Assembler
}

func newFixture(tileIDs ...string) *fixture {
	asf := catalogtest.NewFake("asf").With(catalog.FamilyS1GRD,
		s1(1, catalog.Ascending), s1(13, catalog.Ascending), s1(25, catalog.Ascending))
	creodias := catalogtest.NewFake("creodias")
	footprints := make(map[string]string)
	for _, id := range tileIDs {
		footprints[id] = footprint
		creodias.With(catalog.FamilyS2L1C, s2("L1C", id, 2, 10), s2("L1C", id, 12, 20), s2("L1C", id, 22, 30))
		creodias.With(catalog.FamilyS2L2A, s2("L2A", id, 2, 10), s2("L2A", id, 12, 20))
	}
	creodias.With(catalog.FamilyLandsat, l8(5), l8(21))

	rec := &recorder{}
	asm := NewAssembler(catalog.NewRegistry(asf, creodias), tiles.NewGrid(footprints), testLogger()).
		WithMasks(fakeMasks{known: map[string]bool{"19803020200605": true}}).
		WithRecorder(rec)
	asm.now = func() time.Time { return time.Date(2021, 1, 2, 3, 4, 5, 0, time.UTC) }
	asm.newID = func() string { return "plan-1" }

	return &fixture{asf: asf, creodias: creodias, rec: rec, asm: asm}
}

func TestBuild_FullMode(t *testing.T) {
	f := newFixture("31TCJ")
	req := request("T31TCJ")
	req.Meta.AEZID = 46172

	wp, err := f.asm.Build(context.Background(), req)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if wp.ID != "plan-1" || wp.Version != Version || wp.Generated != "2021-01-02 03:04:05 UTC" {
		t.Errorf("unexpected metadata %+v", wp.Metadata)
	}
	if wp.User != DefaultUser || wp.Visibility != DefaultVisibility || wp.SeasonType != DefaultSeasonType {
		t.Errorf("expected default user/visibility/season type, got %+v", wp.Metadata)
	}
	if wp.SeasonStart != "2020-06-01" || wp.ProcessingEnd != "2020-06-30" || wp.AEZID != 46172 {
		t.Errorf("unexpected window metadata %+v", wp.Metadata)
	}

	if len(wp.Tiles) != 1 {
		t.Fatalf("expected 1 tile, got %d", len(wp.Tiles))
	}
	tp := wp.Tiles[0]
	if tp.TileID != "31TCJ" || tp.Geometry != footprint {
		t.Errorf("unexpected tile %s / %s", tp.TileID, tp.Geometry)
	}

	// Only ascending products: the empty descending set has the largest gap.
	if tp.S1OrbitDir != "ASC" || tp.S1Nb != 3 {
		t.Errorf("expected 3 ascending groups, got %s/%d", tp.S1OrbitDir, tp.S1Nb)
	}

	want := [][2]string{
		{"creodias", s2("L2A", "31TCJ", 2, 0).ID},
		{"creodias", s2("L2A", "31TCJ", 12, 0).ID},
		{"creodias", s2("L1C", "31TCJ", 22, 0).ID},
	}
	if !reflect.DeepEqual(tp.S2IDs, want) || tp.S2Nb != 3 {
		t.Errorf("expected %v, got %v", want, tp.S2IDs)
	}

	if !reflect.DeepEqual(tp.L8IDs, [][]string{{l8(5).ID}}) || tp.L8Nb != 1 {
		t.Errorf("expected only the masked landsat product, got %v", tp.L8IDs)
	}

	if !reflect.DeepEqual(f.rec.built, []string{"31TCJ"}) {
		t.Errorf("expected recorder to see 31TCJ, got %v", f.rec.built)
	}
}

func TestBuild_NoOpticalIsFatal(t *testing.T) {
	f := newFixture("31TCJ", "31TDJ")
	req := request("31TCJ", "32ABC")

	f.asm.footprints = tiles.NewGrid(map[string]string{"31TCJ": footprint, "32ABC": footprint})

	wp, err := f.asm.Build(context.Background(), req)
	if wp != nil {
		t.Error("expected no plan on a fatal tile error")
	}
	if !errors.Is(err, ErrNoOpticalProducts) {
		t.Fatalf("expected ErrNoOpticalProducts, got %v", err)
	}
	var tileErr *TileError
	if !errors.As(err, &tileErr) || tileErr.Tile != "32ABC" {
		t.Errorf("expected tile error for 32ABC, got %v", err)
	}
	if !reflect.DeepEqual(f.rec.failed, []string{"32ABC"}) {
		t.Errorf("expected failure recorded for 32ABC, got %v", f.rec.failed)
	}
}

func TestBuild_Modes(t *testing.T) {
	tests := []struct {
		mode            Mode
		s1, s2, landsat bool
	}{
		{ModeOnlyS1, true, false, false},
		{ModeOnlyS2, false, true, false},
		{ModeOnlyL8, false, false, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			f := newFixture("31TCJ")
			req := request("31TCJ")
			req.Mode = tt.mode

			wp, err := f.asm.Build(context.Background(), req)
			if err != nil {
				t.Fatalf("Build failed: %v", err)
			}
			tp := wp.Tiles[0]
			if (tp.S1Nb > 0) != tt.s1 || (tp.S2Nb > 0) != tt.s2 || (tp.L8Nb > 0) != tt.landsat {
				t.Errorf("unexpected counts s1=%d s2=%d l8=%d", tp.S1Nb, tp.S2Nb, tp.L8Nb)
			}
			if got := f.asf.QueriesFor(catalog.FamilyS1GRD) > 0; got != tt.s1 {
				t.Errorf("expected sentinel-1 searched=%v, got %v", tt.s1, got)
			}
			if got := f.creodias.QueriesFor(catalog.FamilyS2L1C) > 0; got != tt.s2 {
				t.Errorf("expected sentinel-2 searched=%v, got %v", tt.s2, got)
			}
		})
	}
}

func TestBuild_OnlyS1WithoutOptical(t *testing.T) {
	f := newFixture()
	f.asm.footprints = tiles.NewGrid(map[string]string{"32ABC": footprint})
	req := request("32ABC")
	req.Mode = ModeOnlyS1

	wp, err := f.asm.Build(context.Background(), req)
	if err != nil {
		t.Fatalf("expected no error without optical products in only_s1 mode, got %v", err)
	}
	if wp.Tiles[0].S2IDs == nil || wp.Tiles[0].L8IDs == nil {
		t.Error("expected empty, non-nil id lists")
	}
}

func TestBuild_ConfigErrorsBeforeSearch(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
		target error
	}{
		{
			name:   "strategy length mismatch",
			mutate: func(r *Request) { r.Policy.Strategy = []string{"L1C"} },
			target: ErrInvalidConfig,
		},
		{
			name:   "unsupported sentinel-2 provider",
			mutate: func(r *Request) { r.Policy.Providers = []string{"creodias", "peps"} },
			target: catalog.ErrUnsupportedProvider,
		},
		{
			name:   "unsupported landsat provider",
			mutate: func(r *Request) { r.L8Provider = "asf" },
			target: catalog.ErrUnsupportedProvider,
		},
		{
			name:   "unknown tile",
			mutate: func(r *Request) { r.Tiles = append(r.Tiles, "99ZZZ") },
			target: tiles.ErrUnknownTile,
		},
		{
			name:   "unknown strategy level",
			mutate: func(r *Request) { r.Policy.Strategy = []string{"L1C", "L3"} },
			target: catalog.ErrUnsupportedFamily,
		},
		{
			name:   "bad mode",
			mutate: func(r *Request) { r.Mode = "only_s3" },
			target: ErrInvalidConfig,
		},
		{
			name:   "sr flag for another tile",
			mutate: func(r *Request) { r.L8EnableSRByTile = map[string]bool{"30TXT": true} },
			target: ErrInvalidConfig,
		},
		{
			name:   "window reversed",
			mutate: func(r *Request) { r.Policy.WindowEnd = r.Policy.WindowStart.AddDate(0, 0, -1) },
			target: ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture("31TCJ")
			req := request("31TCJ")
			tt.mutate(&req)

			_, err := f.asm.Build(context.Background(), req)
			if !errors.Is(err, tt.target) {
				t.Fatalf("expected %v, got %v", tt.target, err)
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected a configuration error, got %v", err)
			}
			if n := len(f.asf.Queries()) + len(f.creodias.Queries()); n != 0 {
				t.Errorf("expected no catalog call, got %d", n)
			}
		})
	}
}

func TestBuild_MissingMaskIndex(t *testing.T) {
	f := newFixture("31TCJ")
	f.asm.masks = nil

	_, err := f.asm.Build(context.Background(), request("31TCJ"))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestBuild_ConcurrentKeepsOrder(t *testing.T) {
	ids := []string{"31TCJ", "31TDJ", "31TCH", "30TYP", "31UDP"}
	f := newFixture(ids...)
	f.asm.WithConcurrency(3)

	wp, err := f.asm.Build(context.Background(), request(ids...))
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	for i, tp := range wp.Tiles {
		if tp.TileID != ids[i] {
			t.Errorf("expected tile %d to be %s, got %s", i, ids[i], tp.TileID)
		}
		if tp.S2Nb != 3 {
			t.Errorf("expected 3 sentinel-2 products for %s, got %d", tp.TileID, tp.S2Nb)
		}
	}
}

func TestBuild_SearchErrorAborts(t *testing.T) {
	f := newFixture("31TCJ")
	f.asf.Failing(catalog.FamilyS1GRD, errors.New("connection refused"))

	_, err := f.asm.Build(context.Background(), request("31TCJ"))
	var tileErr *TileError
	if !errors.As(err, &tileErr) {
		t.Fatalf("expected a tile error, got %v", err)
	}
	if errors.Is(err, ErrInvalidConfig) || errors.Is(err, ErrNoOpticalProducts) {
		t.Errorf("expected a catalog error, got %v", err)
	}
}

func TestBuild_TileOptions(t *testing.T) {
	f := newFixture("31TCJ", "31TDJ")
	req := request("31TCJ", "31TDJ")
	req.Policy.RemoveL1C = true
	req.L8EnableSR = true
	req.L8EnableSRByTile = map[string]bool{"T31TDJ": false}
	req.OrbitOverrides = map[string]sar.Direction{"31TDJ": sar.Descending}

	wp, err := f.asm.Build(context.Background(), req)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	cj, _ := wp.Tile("31TCJ")
	dj, _ := wp.Tile("31TDJ")
	if !cj.L8EnableSR || dj.L8EnableSR {
		t.Errorf("expected l8_enable_sr true/false, got %v/%v", cj.L8EnableSR, dj.L8EnableSR)
	}
	if cj.S1OrbitDir != "ASC" || dj.S1OrbitDir != "DES" || dj.S1Nb != 0 {
		t.Errorf("expected ASC and forced DES without products, got %s and %s/%d", cj.S1OrbitDir, dj.S1OrbitDir, dj.S1Nb)
	}
	for _, pair := range cj.S2IDs {
		if pair[1][7:10] == "L1C" {
			t.Errorf("expected L1C products removed, found %s", pair[1])
		}
	}
	if cj.S2Nb != 2 {
		t.Errorf("expected 2 L2A products, got %d", cj.S2Nb)
	}
}

func TestParseMode(t *testing.T) {
	for in, want := range map[string]Mode{"": ModeFull, "full": ModeFull, "ONLY_S1": ModeOnlyS1, " only_l8 ": ModeOnlyL8} {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Errorf("ParseMode(%q): expected %s, got %s (%v)", in, want, got, err)
		}
	}
	if _, err := ParseMode("s1"); !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

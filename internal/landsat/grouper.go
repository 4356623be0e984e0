// Package landsat filters Landsat-8 candidates and groups them by WRS path
// and acquisition day.
package landsat

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/robert-malhotra/ewoc-work-plan/internal/catalog"
	"github.com/robert-malhotra/ewoc-work-plan/internal/product"
)

// Providers able to serve Landsat-8 products.
const (
	ProviderCreodias   = "creodias"
	ProviderUSGS       = "usgs_satapi_aws"
	ProviderAstraeaEOD = "astraea_eod"
)

// CorrectionL1GT is the systematic terrain correction level, unusable by
// the surface reflectance processors.
const CorrectionL1GT = "L1GT"

// invalidCloudCover is the catalog value for an unknown land cloud cover.
const invalidCloudCover = -1.0

// MaskIndex reports whether a cloud mask was computed for a scene.
type MaskIndex interface {
	Exists(ctx context.Context, path, row string, date time.Time) (bool, error)
}

// Grouper turns raw Landsat search results into path+date groups.
type Grouper struct {
	provider string
	masks    MaskIndex
	logger   *slog.Logger
}

// NewGrouper creates a grouper for records coming from provider.
func NewGrouper(provider string, masks MaskIndex, logger *slog.Logger) (*Grouper, error) {
	switch provider {
	case ProviderCreodias, ProviderUSGS, ProviderAstraeaEOD:
	default:
		return nil, fmt.Errorf("%w: landsat provider %q", catalog.ErrUnsupportedProvider, provider)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Grouper{provider: provider, masks: masks, logger: logger}, nil
}

// Group keeps the Landsat-8 products with a valid land cloud cover at most
// cloudCoverMax, a correction other than L1GT and an existing cloud mask, and
// groups their ids by path and acquisition day. Groups are sorted by key and
// ids lose their surface reflectance suffix.
func (g *Grouper) Group(ctx context.Context, records []catalog.Record, cloudCoverMax float64) ([][]string, error) {
	groups := make(map[string][]string)

	for _, rec := range records {
		if !strings.HasPrefix(rec.ID, product.L8Prefix) {
			g.logger.DebugContext(ctx, "skipping non landsat-8 product", slog.String("product_id", rec.ID))
			continue
		}

		cc := landCloudCover(rec)
		if cc == invalidCloudCover || cc > cloudCoverMax {
			g.logger.DebugContext(ctx, "skipping landsat product on land cloud cover",
				slog.String("product_id", rec.ID),
				slog.Float64("land_cloud_cover", cc),
			)
			continue
		}

		if correction(rec) == CorrectionL1GT {
			g.logger.DebugContext(ctx, "skipping L1GT landsat product", slog.String("product_id", rec.ID))
			continue
		}

		path, row, err := g.PathRow(rec)
		if err != nil {
			g.logger.WarnContext(ctx, "cannot derive path/row", slog.String("product_id", rec.ID), slog.String("error", err.Error()))
			continue
		}
		date := rec.Acquisition.UTC()

		ok, err := g.masks.Exists(ctx, path, row, date)
		if err != nil {
			return nil, fmt.Errorf("check cloud mask %s/%s/%s: %w", path, row, date.Format("20060102"), err)
		}
		if !ok {
			g.logger.WarnContext(ctx, "missing cloud mask, product excluded",
				slog.String("product_id", rec.ID),
				slog.String("path", path),
				slog.String("row", row),
			)
			continue
		}

		key := path + date.Format("20060102")
		groups[key] = append(groups[key], strings.TrimSuffix(rec.ID, product.SRSuffix))
	}

	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([][]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, groups[k])
	}
	return out, nil
}

// PathRow derives the zero-padded WRS path and row of a record following the
// provider convention. The product id is used when the convention yields
// nothing.
func (g *Grouper) PathRow(rec catalog.Record) (string, string, error) {
	var path, row string
	switch g.provider {
	case ProviderCreodias:
		path, row = rec.Path, rec.Row
	case ProviderUSGS:
		path, row = hrefPathRow(rec.Assets["blue"])
	case ProviderAstraeaEOD:
		path, row = hrefPathRow(rec.Assets["B5"])
	}

	if path == "" || row == "" {
		id, err := product.ParseLandsat(rec.ID)
		if err != nil {
			return "", "", err
		}
		return id.Path, id.Row, nil
	}
	return product.PadPathRow(path), product.PadPathRow(row), nil
}

// hrefPathRow reads path and row from a collection object href such as
// s3://usgs-landsat/collection02/level-1/standard/oli-tirs/2020/198/030/<id>/<file>.
// Segments are located from the collection directory, or at fixed positions
// 8 and 9 when there is none.
func hrefPathRow(href string) (string, string) {
	parts := strings.Split(href, "/")
	for i, p := range parts {
		if strings.HasPrefix(p, "collection0") && i+6 < len(parts) {
			return parts[i+5], parts[i+6]
		}
	}
	if len(parts) < 10 {
		return "", ""
	}
	return parts[8], parts[9]
}

func landCloudCover(rec catalog.Record) float64 {
	switch {
	case rec.LandCloudCover != nil:
		return *rec.LandCloudCover
	case rec.CloudCover != nil:
		return *rec.CloudCover
	default:
		return invalidCloudCover
	}
}

func correction(rec catalog.Record) string {
	if rec.Correction != "" {
		return rec.Correction
	}
	if id, err := product.ParseLandsat(rec.ID); err == nil {
		return id.Correction
	}
	return ""
}

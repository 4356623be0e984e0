// Package mask answers whether a Landsat cloud mask was precomputed for a
// WRS path, row and acquisition day.
package mask

import (
	"context"
	"strings"
	"time"
)

// Index reports mask availability.
type Index interface {
	Exists(ctx context.Context, path, row string, date time.Time) (bool, error)
}

// DefaultKeyTemplate lays masks out by path, row and day.
const DefaultKeyTemplate = "L8/{path}/{row}/{year}/{date}/L8_{path}{row}_{date}_MASK.tif"

// RenderKey expands {path}, {row}, {date} (YYYYMMDD) and {year} in tmpl.
func RenderKey(tmpl, path, row string, date time.Time) string {
	return strings.NewReplacer(
		"{path}", path,
		"{row}", row,
		"{date}", date.Format("20060102"),
		"{year}", date.Format("2006"),
	).Replace(tmpl)
}

// ObjectProber checks for object existence.
type ObjectProber interface {
	Exists(ctx context.Context, bucket, key string) (bool, error)
}

// S3Index looks masks up as objects of a bucket.
type S3Index struct {
	store    ObjectProber
	bucket   string
	template string
}

// NewS3Index creates an index over bucket. An empty template selects
// DefaultKeyTemplate.
func NewS3Index(store ObjectProber, bucket, template string) *S3Index {
	if template == "" {
		template = DefaultKeyTemplate
	}
	return &S3Index{store: store, bucket: bucket, template: template}
}

// Exists implements Index.
func (s *S3Index) Exists(ctx context.Context, path, row string, date time.Time) (bool, error) {
	return s.store.Exists(ctx, s.bucket, RenderKey(s.template, path, row, date))
}

// Package catalogtest provides an in-memory catalog searcher for tests.
package catalogtest

import (
	"context"
	"sync"

	"github.com/robert-malhotra/ewoc-work-plan/internal/catalog"
)

// Fake returns canned records per product family and records every query.
type Fake struct {
	name string

	mu      sync.Mutex
	results map[catalog.Family][]catalog.Record
	errs    map[catalog.Family]error
	queries []catalog.Query
}

// NewFake creates a fake searcher registered under name.
func NewFake(name string) *Fake {
	return &Fake{
		name:    name,
		results: make(map[catalog.Family][]catalog.Record),
		errs:    make(map[catalog.Family]error),
	}
}

// With sets the records returned for a family. Provider and Level are filled
// in when left empty.
func (f *Fake) With(family catalog.Family, records ...catalog.Record) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range records {
		if records[i].Provider == "" {
			records[i].Provider = f.name
		}
		if records[i].Level == "" {
			records[i].Level = family.Level()
		}
	}
	f.results[family] = append(f.results[family], records...)
	return f
}

// Failing makes searches for family return err.
func (f *Fake) Failing(family catalog.Family, err error) *Fake {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[family] = err
	return f
}

// Name implements catalog.Searcher.
func (f *Fake) Name() string {
	return f.name
}

// Search implements catalog.Searcher.
func (f *Fake) Search(_ context.Context, q catalog.Query) ([]catalog.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if err := f.errs[q.Family]; err != nil {
		return nil, err
	}
	out := make([]catalog.Record, len(f.results[q.Family]))
	copy(out, f.results[q.Family])
	return out, nil
}

// Queries returns the queries received so far.
func (f *Fake) Queries() []catalog.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]catalog.Query, len(f.queries))
	copy(out, f.queries)
	return out
}

// QueriesFor returns the number of queries received for a family.
func (f *Fake) QueriesFor(family catalog.Family) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, q := range f.queries {
		if q.Family == family {
			n++
		}
	}
	return n
}

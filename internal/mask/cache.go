package mask

import (
	"context"
	"fmt"
	"time"

	"github.com/maypok86/otter"
)

// Cached memoizes the answers of another index. Errors are not cached.
type Cached struct {
	next  Index
	cache otter.Cache[string, bool]
}

// NewCached wraps next with a cache bounded to maxEntries answers kept for ttl.
func NewCached(next Index, maxEntries int, ttl time.Duration) (*Cached, error) {
	cache, err := otter.MustBuilder[string, bool](maxEntries).
		Cost(func(_ string, _ bool) uint32 { return 1 }).
		WithTTL(ttl).
		Build()
	if err != nil {
		return nil, fmt.Errorf("build mask cache: %w", err)
	}
	return &Cached{next: next, cache: cache}, nil
}

// Exists implements Index.
func (c *Cached) Exists(ctx context.Context, path, row string, date time.Time) (bool, error) {
	key := path + "/" + row + "/" + date.Format("20060102")
	if ok, hit := c.cache.Get(key); hit {
		return ok, nil
	}

	ok, err := c.next.Exists(ctx, path, row, date)
	if err != nil {
		return false, err
	}
	c.cache.Set(key, ok)
	return ok, nil
}

// Close stops the cache maintenance goroutines.
func (c *Cached) Close() {
	c.cache.Close()
}

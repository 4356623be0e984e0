package catalog

import (
	"fmt"
	"sort"
)

// Registry resolves provider names to searchers.
type Registry struct {
	searchers map[string]Searcher
}

// NewRegistry creates a registry holding the given searchers keyed by Name().
func NewRegistry(searchers ...Searcher) *Registry {
	r := &Registry{searchers: make(map[string]Searcher)}
	for _, s := range searchers {
		r.Register(s)
	}
	return r
}

// Register adds or replaces a searcher.
func (r *Registry) Register(s Searcher) {
	r.searchers[s.Name()] = s
}

// Alias registers an existing searcher under a second name, e.g. "astraea_eod" for the
// Landsat STAC endpoint.
func (r *Registry) Alias(alias, name string) error {
	s, ok := r.searchers[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedProvider, name)
	}
	r.searchers[alias] = s
	return nil
}

// Get returns the searcher registered for provider.
func (r *Registry) Get(provider string) (Searcher, error) {
	s, ok := r.searchers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedProvider, provider)
	}
	return s, nil
}

// Has reports whether a provider is registered.
func (r *Registry) Has(provider string) bool {
	_, ok := r.searchers[provider]
	return ok
}

// Names returns the registered provider names in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.searchers))
	for name := range r.searchers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Wrap returns a registry with every searcher, aliases included, passed
// through wrap. Searchers shared by several names are wrapped once.
func (r *Registry) Wrap(wrap func(Searcher) Searcher) *Registry {
	out := &Registry{searchers: make(map[string]Searcher, len(r.searchers))}
	wrapped := make(map[Searcher]Searcher)
	for name, s := range r.searchers {
		w, ok := wrapped[s]
		if !ok {
			w = wrap(s)
			wrapped[s] = w
		}
		out.searchers[name] = w
	}
	return out
}

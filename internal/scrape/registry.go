package scrape

import (
	"fmt"
	"sort"
	"sync"

	"github.com/setgraph/setgraph/internal/domain"
)

// Registry holds the configured adapters, keyed by source.
type Registry struct {
	mu       sync.RWMutex
	adapters map[domain.Source]Adapter
}

func NewRegistry() *Registry {
	return &Registry{
		adapters: make(map[domain.Source]Adapter),
	}
}

func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	r.adapters[a.Name()] = a
	r.mu.Unlock()
}

func (r *Registry) Get(source domain.Source) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[source]
	if !ok {
		return nil, fmt.Errorf("no adapter registered for source %q", source)
	}
	return a, nil
}

// All returns the registered adapters ordered by priority hint, highest
// first, with source name as tie-break so the order is stable.
func (r *Registry) All() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].PriorityHint() != out[j].PriorityHint() {
			return out[i].PriorityHint() > out[j].PriorityHint()
		}
		return out[i].Name() < out[j].Name()
	})
	return out
}

func (r *Registry) Sources() []domain.Source {
	all := r.All()
	out := make([]domain.Source, len(all))
	for i, a := range all {
		out[i] = a.Name()
	}
	return out
}

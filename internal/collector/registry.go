package collector

import (
	"fmt"

	"PersonaCollector/internal/domain"
)

// Registry keeps a mapping from source names to their workers.
type Registry struct {
	workers map[domain.SourceName]Worker
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{workers: map[domain.SourceName]Worker{}}
}

// Register adds or replaces a worker implementation.
func (r *Registry) Register(w Worker) {
	if r.workers == nil {
		r.workers = map[domain.SourceName]Worker{}
	}
	r.workers[w.Name()] = w
}

// Resolve returns a worker by source name or an error if it is absent.
func (r *Registry) Resolve(name domain.SourceName) (Worker, error) {
	if w, ok := r.workers[name]; ok {
		return w, nil
	}
	return nil, fmt.Errorf("worker %s is not registered", name)
}

// Ordered returns the registered workers in collection order.
func (r *Registry) Ordered() []Worker {
	out := make([]Worker, 0, len(r.workers))
	for _, name := range domain.CollectionOrder {
		if w, ok := r.workers[name]; ok {
			out = append(out, w)
		}
	}
	return out
}

// Sources lists the registered source names in collection order.
func (r *Registry) Sources() []domain.SourceName {
	var out []domain.SourceName
	for _, w := range r.Ordered() {
		out = append(out, w.Name())
	}
	return out
}

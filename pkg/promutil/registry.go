package promutil

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Registry is used for registering metrics on behalf of owners, so that
// everything an owner registered can be dropped at once.
type Registry struct {
	mu sync.Mutex
	*prometheus.Registry

	collectorsByOwner map[string][]prometheus.Collector
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		Registry:          prometheus.NewRegistry(),
		collectorsByOwner: make(map[string][]prometheus.Collector),
	}
}

// MustRegister registers the provided Collector on behalf of owner.
func (r *Registry) MustRegister(owner string, c prometheus.Collector) {
	if c == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.Registry.MustRegister(c)
	r.collectorsByOwner[owner] = append(r.collectorsByOwner[owner], c)
}

// Unregister unregisters all Collectors of owner.
func (r *Registry) Unregister(owner string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, c := range r.collectorsByOwner[owner] {
		r.Registry.Unregister(c)
	}
	delete(r.collectorsByOwner, owner)
}

// Gather implements prometheus.Gatherer.
func (r *Registry) Gather() ([]*dto.MetricFamily, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.Registry.Gather()
}

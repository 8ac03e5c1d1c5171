package promutil

import "github.com/prometheus/client_golang/prometheus"

// Factory produces native prometheus metric objects that are registered
// automatically, similar to promauto. Every metric produced by a Factory is
// owned by one run and can be unregistered in one call when the run ends.
type Factory interface {
	// NewCounterVec works like the function of the same name in the
	// prometheus package, but it automatically registers the CounterVec with
	// the Factory's Registry. Panic if it can't register successfully.
	NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec

	// NewGauge works like the function of the same name in the prometheus
	// package, but it automatically registers the Gauge with the Factory's
	// Registry. Panic if it can't register successfully.
	NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge

	// NewHistogramVec works like the function of the same name in the
	// prometheus package but it automatically registers the HistogramVec
	// with the Factory's Registry. Panic if it can't register successfully.
	NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec
}

// NewFactory returns a Factory registering into r on behalf of owner.
// prefix is prepended to the namespace of every metric and constLabels are
// attached to every metric.
func NewFactory(r *Registry, owner string, prefix string, constLabels prometheus.Labels) Factory {
	return &wrappingFactory{
		r:           r,
		owner:       owner,
		prefix:      prefix,
		constLabels: constLabels,
	}
}

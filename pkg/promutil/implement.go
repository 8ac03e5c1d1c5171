package promutil

import (
	"github.com/prometheus/client_golang/prometheus"
)

type wrappingFactory struct {
	r *Registry
	// owner identifies the run the factory produces metrics for.
	owner string
	// prefix is added to the metric namespace,
	// e.g. $prefix_$namespace_$subsystem_$name
	prefix      string
	constLabels prometheus.Labels
}

func (f *wrappingFactory) NewCounterVec(opts prometheus.CounterOpts, labelNames []string) *prometheus.CounterVec {
	opts.Namespace = wrapNamespace(f.prefix, opts.Namespace)
	opts.ConstLabels = wrapConstLabels(f.constLabels, opts.ConstLabels)
	c := prometheus.NewCounterVec(opts, labelNames)
	f.r.MustRegister(f.owner, c)
	return c
}

func (f *wrappingFactory) NewGauge(opts prometheus.GaugeOpts) prometheus.Gauge {
	opts.Namespace = wrapNamespace(f.prefix, opts.Namespace)
	opts.ConstLabels = wrapConstLabels(f.constLabels, opts.ConstLabels)
	c := prometheus.NewGauge(opts)
	f.r.MustRegister(f.owner, c)
	return c
}

func (f *wrappingFactory) NewHistogramVec(opts prometheus.HistogramOpts, labelNames []string) *prometheus.HistogramVec {
	opts.Namespace = wrapNamespace(f.prefix, opts.Namespace)
	opts.ConstLabels = wrapConstLabels(f.constLabels, opts.ConstLabels)
	c := prometheus.NewHistogramVec(opts, labelNames)
	f.r.MustRegister(f.owner, c)
	return c
}

func wrapNamespace(prefix, namespace string) string {
	switch {
	case prefix == "":
		return namespace
	case namespace == "":
		return prefix
	default:
		return prefix + "_" + namespace
	}
}

// wrapConstLabels merges the factory labels into a copy of the metric's
// own labels. A label defined on both sides is a programming error.
func wrapConstLabels(factoryLabels, metricLabels prometheus.Labels) prometheus.Labels {
	if len(factoryLabels) == 0 {
		return metricLabels
	}
	ret := make(prometheus.Labels, len(factoryLabels)+len(metricLabels))
	for name, value := range metricLabels {
		ret[name] = value
	}
	for name, value := range factoryLabels {
		if _, exists := ret[name]; exists {
			panic("duplicate label name: " + name)
		}
		ret[name] = value
	}
	return ret
}

package metrics

import (
	"errors"
	"slices"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus adapts the tag-based Metrics interface to Prometheus vectors.
// Collectors are created lazily on first use; the label set of a metric is
// fixed by the tags of its first observation.
type Prometheus struct {
	namespace string
	reg       prometheus.Registerer

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	histograms map[string]*prometheus.HistogramVec
	gauges     map[string]*prometheus.GaugeVec
}

// NewPrometheus creates a collector registering into reg. A nil reg uses the
// default registerer.
func NewPrometheus(namespace string, reg prometheus.Registerer) *Prometheus {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &Prometheus{
		namespace:  namespace,
		reg:        reg,
		counters:   make(map[string]*prometheus.CounterVec),
		histograms: make(map[string]*prometheus.HistogramVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
	}
}

// IncrementCounter adds value to the named counter.
func (p *Prometheus) IncrementCounter(name string, tags map[string]string, value float64) {
	keys := labelKeys(tags)
	p.mu.Lock()
	vec, ok := p.counters[name]
	if !ok {
		vec = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: p.namespace,
			Name:      metricName(name),
			Help:      name,
		}, keys)
		vec = register(p.reg, vec)
		p.counters[name] = vec
	}
	p.mu.Unlock()
	if c, err := vec.GetMetricWith(labels(tags)); err == nil {
		c.Add(value)
	}
}

// RecordHistogram observes value on the named histogram.
func (p *Prometheus) RecordHistogram(name string, tags map[string]string, value float64) {
	keys := labelKeys(tags)
	p.mu.Lock()
	vec, ok := p.histograms[name]
	if !ok {
		vec = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: p.namespace,
			Name:      metricName(name),
			Help:      name,
			Buckets:   prometheus.ExponentialBuckets(1, 2, 16),
		}, keys)
		vec = register(p.reg, vec)
		p.histograms[name] = vec
	}
	p.mu.Unlock()
	if h, err := vec.GetMetricWith(labels(tags)); err == nil {
		h.Observe(value)
	}
}

// SetGauge sets the named gauge.
func (p *Prometheus) SetGauge(name string, tags map[string]string, value float64) {
	keys := labelKeys(tags)
	p.mu.Lock()
	vec, ok := p.gauges[name]
	if !ok {
		vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: p.namespace,
			Name:      metricName(name),
			Help:      name,
		}, keys)
		vec = register(p.reg, vec)
		p.gauges[name] = vec
	}
	p.mu.Unlock()
	if g, err := vec.GetMetricWith(labels(tags)); err == nil {
		g.Set(value)
	}
}

// register adds c to reg, reusing an already registered equivalent collector.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
	}
	return c
}

func metricName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}

func labelKeys(tags map[string]string) []string {
	keys := make([]string, 0, len(tags))
	for k := range tags {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

func labels(tags map[string]string) prometheus.Labels {
	if tags == nil {
		return prometheus.Labels{}
	}
	return prometheus.Labels(tags)
}

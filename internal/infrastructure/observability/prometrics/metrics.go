package prometrics

import (
	"errors"
	"sync"

	"github.com/Zhima-Mochi/minishop-orders/internal/observability"
	"github.com/prometheus/client_golang/prometheus"
)

// Registry exposes the subset of Prometheus registry functionality needed by the application.
type Registry interface {
	Counter(name observability.MetricKey, help string, labelKeys ...string) observability.Counter
	Histogram(name observability.MetricKey, help string, buckets []float64, labelKeys ...string) observability.Histogram
}

type registry struct {
	mu         sync.Mutex
	reg        prometheus.Registerer
	counters   map[observability.MetricKey]*prometheus.CounterVec
	histograms map[observability.MetricKey]*prometheus.HistogramVec
	namespace  string
	subsystem  string
}

// New returns a Registry that registers vectors on reg (prometheus.DefaultRegisterer when nil).
func New(reg prometheus.Registerer, namespace, subsystem string) Registry {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	return &registry{
		reg:        reg,
		counters:   make(map[observability.MetricKey]*prometheus.CounterVec),
		histograms: make(map[observability.MetricKey]*prometheus.HistogramVec),
		namespace:  namespace,
		subsystem:  subsystem,
	}
}

type counter struct{ v *prometheus.CounterVec }

func (c *counter) Add(d float64, labels ...observability.Label) {
	c.v.With(labelMap(labels)).Add(d)
}

func (c *counter) Bind(labels ...observability.Label) observability.BoundCounter {
	return &boundCounter{v: c.v, labels: labelMap(labels)}
}

type boundCounter struct {
	v      *prometheus.CounterVec
	labels prometheus.Labels
}

func (c *boundCounter) Add(d float64) {
	if c == nil || c.v == nil {
		return
	}
	c.v.With(c.labels).Add(d)
}

type histogram struct{ v *prometheus.HistogramVec }

func (h *histogram) Observe(v float64, labels ...observability.Label) {
	h.v.With(labelMap(labels)).Observe(v)
}

func (h *histogram) Bind(labels ...observability.Label) observability.BoundHistogram {
	return &boundHistogram{v: h.v, labels: labelMap(labels)}
}

type boundHistogram struct {
	v      *prometheus.HistogramVec
	labels prometheus.Labels
}

func (h *boundHistogram) Observe(v float64) {
	if h == nil || h.v == nil {
		return
	}
	h.v.With(h.labels).Observe(v)
}

func labelMap(ls []observability.Label) prometheus.Labels {
	m := make(prometheus.Labels, len(ls))
	for _, l := range ls {
		m[l.Key] = l.Value
	}
	return m
}

func (r *registry) Counter(name observability.MetricKey, help string, labelKeys ...string) observability.Counter {
	r.mu.Lock()
	defer r.mu.Unlock()

	// ensure only registered once
	if v, ok := r.counters[name]; ok {
		return &counter{v: v}
	}
	cv := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace, Subsystem: r.subsystem, Name: string(name), Help: help,
	}, labelKeys)
	if err := r.reg.Register(cv); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			panic(err)
		}
		cv = are.ExistingCollector.(*prometheus.CounterVec)
	}
	r.counters[name] = cv
	return &counter{v: cv}
}

func (r *registry) Histogram(name observability.MetricKey, help string, buckets []float64, labelKeys ...string) observability.Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.histograms[name]; ok {
		return &histogram{v: v}
	}
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	hv := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: r.namespace, Subsystem: r.subsystem, Name: string(name), Help: help, Buckets: buckets,
	}, labelKeys)
	if err := r.reg.Register(hv); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			panic(err)
		}
		hv = are.ExistingCollector.(*prometheus.HistogramVec)
	}
	r.histograms[name] = hv
	return &histogram{v: hv}
}

// RegisterDefaults creates every instrument the service records and returns them keyed for the provider.
func RegisterDefaults(r Registry) (map[observability.MetricKey]observability.Counter, map[observability.MetricKey]observability.Histogram) {
	counters := map[observability.MetricKey]observability.Counter{
		observability.MUsecaseRequests:   r.Counter(observability.MUsecaseRequests, "Total number of use case invocations.", "use_case", "outcome"),
		observability.MHTTPRequests:      r.Counter(observability.MHTTPRequests, "Total number of HTTP requests.", "method", "route", "status"),
		observability.MExternalRequests:  r.Counter(observability.MExternalRequests, "Total number of calls to external peers.", "peer", "endpoint", "outcome"),
		observability.MInventoryLowStock: r.Counter(observability.MInventoryLowStock, "Count of low stock alerts per product.", "product_id"),
		observability.MOrdersExpired:     r.Counter(observability.MOrdersExpired, "Count of unpaid orders handled by the reaper.", "outcome"),
	}
	histograms := map[observability.MetricKey]observability.Histogram{
		observability.MUsecaseDuration:         r.Histogram(observability.MUsecaseDuration, "Duration of use case execution in seconds.", nil, "use_case"),
		observability.MHTTPRequestDuration:     r.Histogram(observability.MHTTPRequestDuration, "Duration of HTTP requests in seconds.", nil, "method", "route", "status"),
		observability.MExternalRequestDuration: r.Histogram(observability.MExternalRequestDuration, "Duration of calls to external peers in seconds.", nil, "peer", "endpoint"),
	}
	return counters, histograms
}

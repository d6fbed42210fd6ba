package metric

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "jetconf"

// Registry holds all application metrics.
type Registry struct {
	// Connection metrics
	ConnectionsActive Gauge
	ConnectionsTotal  Counter

	// Request metrics
	RequestsTotal   CounterVec   // method, status_class
	HandlerDuration HistogramVec // method
	UnroutableTotal Counter

	// Stream tracking metrics
	PendingRequests Gauge
	DiscardedTotal  CounterVec // reason

	prom *prometheus.Registry
}

// Counter is a cumulative metric that only increases.
type Counter interface {
	Inc()
	Add(float64)
}

// CounterVec is a Counter with labels.
type CounterVec interface {
	WithLabelValues(lvs ...string) Counter
}

// Gauge is a metric that can go up and down.
type Gauge interface {
	Set(float64)
	Inc()
	Dec()
	Add(float64)
	Sub(float64)
}

// Histogram samples observations and counts them in buckets.
type Histogram interface {
	Observe(float64)
}

// HistogramVec is a Histogram with labels.
type HistogramVec interface {
	WithLabelValues(lvs ...string) Histogram
}

// NewRegistry creates the application metrics on a private Prometheus
// registry, together with the Go runtime and process collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	connActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "connections_active",
		Help:      "Number of open client connections.",
	})
	connTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "connections_total",
		Help:      "Number of accepted client connections.",
	})
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "requests_total",
		Help:      "Number of answered requests by method and status class.",
	}, []string{"method", "status_class"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "handler_duration_seconds",
		Help:      "Time spent in request handlers.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})
	unroutable := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "unroutable_total",
		Help:      "Number of requests that matched no route.",
	})
	pending := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "pending_requests",
		Help:      "Number of write requests waiting for their body.",
	})
	discarded := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "discarded_requests_total",
		Help:      "Number of pending write requests dropped before dispatch.",
	}, []string{"reason"})

	reg.MustRegister(
		connActive, connTotal, requests, duration, unroutable, pending, discarded,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		NewCollector(),
	)

	return &Registry{
		ConnectionsActive: connActive,
		ConnectionsTotal:  connTotal,
		RequestsTotal:     counterVec{requests},
		HandlerDuration:   histogramVec{duration},
		UnroutableTotal:   unroutable,
		PendingRequests:   pending,
		DiscardedTotal:    counterVec{discarded},
		prom:              reg,
	}
}

// Nop returns a Registry whose metrics record nothing.
func Nop() *Registry {
	return &Registry{
		ConnectionsActive: nopMetric{},
		ConnectionsTotal:  nopMetric{},
		RequestsTotal:     nopCounterVec{},
		HandlerDuration:   nopHistogramVec{},
		UnroutableTotal:   nopMetric{},
		PendingRequests:   nopMetric{},
		DiscardedTotal:    nopCounterVec{},
	}
}

// Gatherer returns the underlying Prometheus gatherer, nil for Nop.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r.prom == nil {
		return nil
	}
	return r.prom
}

// Handler returns the /metrics HTTP handler.
func (r *Registry) Handler() http.Handler {
	if r.prom == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.prom, promhttp.HandlerOpts{})
}

// StatusClass maps a status code to its label, e.g. 404 -> "4xx".
func StatusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}

type counterVec struct{ v *prometheus.CounterVec }

func (c counterVec) WithLabelValues(lvs ...string) Counter { return c.v.WithLabelValues(lvs...) }

type histogramVec struct{ v *prometheus.HistogramVec }

func (h histogramVec) WithLabelValues(lvs ...string) Histogram { return h.v.WithLabelValues(lvs...) }

type nopMetric struct{}

func (nopMetric) Inc()            {}
func (nopMetric) Dec()            {}
func (nopMetric) Add(float64)     {}
func (nopMetric) Sub(float64)     {}
func (nopMetric) Set(float64)     {}
func (nopMetric) Observe(float64) {}

type nopCounterVec struct{}

func (nopCounterVec) WithLabelValues(...string) Counter { return nopMetric{} }

type nopHistogramVec struct{}

func (nopHistogramVec) WithLabelValues(...string) Histogram { return nopMetric{} }

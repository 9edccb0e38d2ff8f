package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce         sync.Once
	requestsTotal        *prometheus.CounterVec
	latencySeconds       *prometheus.HistogramVec
	errorsTotal          *prometheus.CounterVec
	cacheRequestsTotal   *prometheus.CounterVec
	eventsPublishedTotal *prometheus.CounterVec
	streamClients        prometheus.Gauge
)

// RegisterMetrics initialises the Prometheus collectors used by the roster service.
func RegisterMetrics() {
	registerOnce.Do(func() {
		requestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_requests_total",
			Help: "Total number of roster API requests served.",
		}, []string{"method", "route", "status"})

		latencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "roster_latency_seconds",
			Help:    "Latency distribution for roster API requests.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		}, []string{"method", "route"})

		errorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_errors_total",
			Help: "Total number of error responses returned by roster endpoints.",
		}, []string{"method", "route", "status"})

		cacheRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_cache_requests_total",
			Help: "Roster list cache lookups partitioned by result.",
		}, []string{"result"})

		eventsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "roster_events_published_total",
			Help: "Roster change events delivered to local subscribers.",
		}, []string{"type"})

		streamClients = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "roster_stream_clients",
			Help: "Connected roster change stream clients.",
		})

		prometheus.MustRegister(requestsTotal, latencySeconds, errorsTotal, cacheRequestsTotal, eventsPublishedTotal, streamClients)
	})
}

// Requests exposes the counter for API requests.
func Requests() *prometheus.CounterVec {
	RegisterMetrics()
	return requestsTotal
}

// Latency exposes the latency histogram for API requests.
func Latency() *prometheus.HistogramVec {
	RegisterMetrics()
	return latencySeconds
}

// Errors exposes the counter for error responses.
func Errors() *prometheus.CounterVec {
	RegisterMetrics()
	return errorsTotal
}

// CacheRequests exposes the list cache lookup counter.
func CacheRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return cacheRequestsTotal
}

// EventsPublished exposes the change event counter.
func EventsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return eventsPublishedTotal
}

// StreamClients exposes the connected stream client gauge.
func StreamClients() prometheus.Gauge {
	RegisterMetrics()
	return streamClients
}

// Package metrics exposes Prometheus collectors for the progress client's
// outbound HTTP traffic and serves the exposition endpoint.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	clientRequestsTotal   *prometheus.CounterVec
	clientRequestDuration *prometheus.HistogramVec
	clientInFlight        prometheus.Gauge

	once sync.Once
)

// Init initializes the Prometheus metrics collectors on the default registry.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		clientRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "progress_poller_http_client_requests_total",
				Help: "Total progress requests issued, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		clientRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "progress_poller_http_client_request_duration_seconds",
				Help:    "Histogram of progress request latencies, labeled by method.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method"},
		)

		clientInFlight = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "progress_poller_http_client_in_flight_requests",
				Help: "Progress requests currently awaiting a response.",
			},
		)
	})
}

// InstrumentRoundTripper wraps next with request count, latency and in-flight
// collectors. A nil next wraps http.DefaultTransport.
func InstrumentRoundTripper(next http.RoundTripper) http.RoundTripper {
	Init()
	if next == nil {
		next = http.DefaultTransport
	}
	return promhttp.InstrumentRoundTripperInFlight(clientInFlight,
		promhttp.InstrumentRoundTripperCounter(clientRequestsTotal,
			promhttp.InstrumentRoundTripperDuration(clientRequestDuration, next),
		),
	)
}

// Handler returns an http.Handler exposing the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// HandlerFor exposes a specific gatherer, e.g. a test registry.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

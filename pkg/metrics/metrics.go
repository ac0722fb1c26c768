// Package metrics holds the Prometheus collectors shared across the service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	LabelMethod  = "method"
	LabelRoute   = "route"
	LabelStatus  = "status"
	LabelOutcome = "outcome"
	LabelSyncer  = "syncer"
)

var (
	// RequestsTotal counts inbound HTTP requests.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{LabelMethod, LabelRoute, LabelStatus},
	)

	// RequestDuration tracks inbound HTTP latency.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assistant_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{LabelMethod, LabelRoute},
	)

	// AuthValidationsTotal counts validate outcomes (allowed, unauthorized, user_not_found, timeout, error).
	AuthValidationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_auth_validations_total",
			Help: "Total number of token validations by outcome",
		},
		[]string{LabelOutcome},
	)

	// ReadinessWaitSeconds records how long the companion service took to become routable.
	ReadinessWaitSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "assistant_readiness_wait_seconds",
			Help:    "Time spent waiting for a companion service to become ready",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300},
		},
		[]string{LabelOutcome},
	)

	// SyncRunsTotal counts startup sync routine runs per syncer and outcome.
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "assistant_startup_sync_total",
			Help: "Total number of startup sync routine runs",
		},
		[]string{LabelSyncer, LabelOutcome},
	)
)

func ObserveRequest(method, route string, status int, d time.Duration) {
	RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	processStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devorch",
			Subsystem: "process",
			Name:      "starts_total",
			Help:      "Number of successful process spawns per role.",
		}, []string{"role"},
	)
	spawnFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devorch",
			Subsystem: "process",
			Name:      "spawn_failures_total",
			Help:      "Number of spawn attempts rejected by the OS per role.",
		}, []string{"role"},
	)
	processStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devorch",
			Subsystem: "process",
			Name:      "stops_total",
			Help:      "Number of termination signals sent per role.",
		}, []string{"role"},
	)
	processExits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devorch",
			Subsystem: "process",
			Name:      "exits_total",
			Help:      "Number of observed process exits per role and outcome (clean, error).",
		}, []string{"role", "outcome"},
	)
	processUptime = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "devorch",
			Subsystem: "process",
			Name:      "uptime_seconds",
			Help:      "Lifetime of exited processes.",
			Buckets:   []float64{1, 5, 30, 60, 300, 900, 3600, 4 * 3600},
		}, []string{"role"},
	)
	processRunning = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "devorch",
			Subsystem: "process",
			Name:      "running",
			Help:      "1 when the role has a live process, 0 otherwise.",
		}, []string{"role"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "devorch",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Handled HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "devorch",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{processStarts, spawnFailures, processStops, processExits, processUptime, processRunning, httpRequests, httpDuration}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
func Handler() http.Handler { return promhttp.Handler() }

// HandlerFor serves the metrics of a specific gatherer.
func HandlerFor(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncStart(role string) {
	if regOK.Load() {
		processStarts.WithLabelValues(role).Inc()
		processRunning.WithLabelValues(role).Set(1)
	}
}

func IncSpawnFailure(role string) {
	if regOK.Load() {
		spawnFailures.WithLabelValues(role).Inc()
	}
}

func IncStop(role string) {
	if regOK.Load() {
		processStops.WithLabelValues(role).Inc()
		processRunning.WithLabelValues(role).Set(0)
	}
}

// ObserveExit records an exit; clean reports a zero exit status.
func ObserveExit(role string, clean bool, uptime time.Duration) {
	if !regOK.Load() {
		return
	}
	outcome := "error"
	if clean {
		outcome = "clean"
	}
	processExits.WithLabelValues(role, outcome).Inc()
	processUptime.WithLabelValues(role).Observe(uptime.Seconds())
	processRunning.WithLabelValues(role).Set(0)
}

func ObserveRequest(route, method string, code int, d time.Duration) {
	if !regOK.Load() {
		return
	}
	httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

// SetRunning overrides the running gauge of role.
func SetRunning(role string, running bool) {
	if !regOK.Load() {
		return
	}
	v := 0.0
	if running {
		v = 1
	}
	processRunning.WithLabelValues(role).Set(v)
}

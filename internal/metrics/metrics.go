package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "orbit"

// Registry holds every Orbit metric. It is served by Handler.
var Registry = prometheus.NewRegistry()

// AppInfo is always 1; the build is carried in the labels.
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Build information for the running server",
	},
	[]string{"version", "commit", "build_date", "database"},
)

// HealthStatus is the last readiness result: 0 unhealthy, 1 degraded, 2 healthy.
var HealthStatus = promauto.With(Registry).NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "health_status",
		Help:      "Overall server health status (0=unhealthy, 1=degraded, 2=healthy)",
	},
)

var HealthCheckLatency = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "health_check_latency_ms",
		Help:      "Health check latency in milliseconds",
	},
	[]string{"check"},
)

// Domain metrics

// EventActions counts event operations by outcome.
var EventActions = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_actions_total",
		Help:      "Total number of event operations by action and result",
	},
	[]string{"action", "result"}, // action: create|join|leave|delete|comment, result: ok or an error kind
)

// AuthAttempts counts registrations and logins by outcome.
var AuthAttempts = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "auth_attempts_total",
		Help:      "Total number of registration and login attempts",
	},
	[]string{"action", "result"}, // action: register|login
)

// RetentionSweeps counts retention sweep runs by trigger and result.
var RetentionSweeps = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retention_sweeps_total",
		Help:      "Total number of retention sweeps",
	},
	[]string{"trigger", "result"}, // trigger: request|job|cli
)

// RetentionEventsDeleted counts events removed by the retention sweep.
var RetentionEventsDeleted = promauto.With(Registry).NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "retention_events_deleted_total",
		Help:      "Total number of expired events deleted by the retention sweep",
	},
	[]string{"trigger"},
)

var RetentionSweepDuration = promauto.With(Registry).NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "retention_sweep_duration_seconds",
		Help:      "Duration of retention sweeps in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
	},
	[]string{"trigger"},
)

var runtimeCollectors sync.Once

// Init registers the Go runtime and process collectors and records the build info.
// Safe to call more than once.
func Init(version, commit, buildDate, database string) {
	runtimeCollectors.Do(func() {
		Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	})
	AppInfo.Reset()
	AppInfo.WithLabelValues(version, commit, buildDate, database).Set(1)
}

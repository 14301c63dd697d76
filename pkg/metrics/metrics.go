package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all application metrics
type Metrics struct {
	// Notification related metrics
	NotificationsScheduled prometheus.Counter
	NotificationsCancelled *prometheus.CounterVec
	NotificationErrors     *prometheus.CounterVec
	PendingNotifications   prometheus.Gauge
	LoadLatency            prometheus.Histogram
	SkippedOnLoad          *prometheus.CounterVec
	AuthorizationChecks    *prometheus.CounterVec

	// Worker metrics
	PrunedRequests prometheus.Counter

	// Backend metrics
	BackendOperations *prometheus.CounterVec
	BackendLatency    *prometheus.HistogramVec
}

// NewMetrics creates and registers all application metrics with reg.
// A nil reg registers with the default registry.
func NewMetrics(namespace, subsystem string, reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		NotificationsScheduled: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notifications_scheduled_total",
			Help:      "Total number of successfully scheduled notifications",
		}),
		NotificationsCancelled: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notifications_cancelled_total",
			Help:      "Total number of cancel operations",
		}, []string{"scope"}),
		NotificationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "notification_errors_total",
			Help:      "Total number of errors recorded by the scheduling service",
		}, []string{"kind"}),
		PendingNotifications: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pending_notifications",
			Help:      "Current number of pending notifications",
		}),
		LoadLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "load_pending_duration_seconds",
			Help:      "Time spent reloading pending notifications",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		SkippedOnLoad: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pending_skipped_total",
			Help:      "Pending requests dropped during reconstruction",
		}, []string{"reason"}),
		AuthorizationChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "authorization_checks_total",
			Help:      "Authorization status checks by observed status",
		}, []string{"status"}),

		PrunedRequests: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "pruned_requests_total",
			Help:      "Fired one-shot requests removed by the pruner",
		}),

		BackendOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "backend_operations_total",
			Help:      "Total number of notification backend operations",
		}, []string{"operation", "status"}),
		BackendLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "backend_operation_duration_seconds",
			Help:      "Duration of notification backend operations",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
	}
}

// New registers nothing; handy for tests and tools that do not export metrics.
func New(namespace string) *Metrics {
	return NewMetrics(namespace, "", prometheus.NewRegistry())
}

// ObserveBackend records the outcome of one backend call.
func (m *Metrics) ObserveBackend(operation string, err error, seconds float64) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	m.BackendOperations.WithLabelValues(operation, status).Inc()
	m.BackendLatency.WithLabelValues(operation).Observe(seconds)
}

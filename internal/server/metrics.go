package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus collectors of the API server. Each instance
// owns its registry, so several servers can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	FragmentVersions  prometheus.Counter
	FragmentsDeleted  prometheus.Counter
	DeletesBlocked    prometheus.Counter
	SetVersions       prometheus.Counter
	Renders           prometheus.Counter
	UnderstoodRecords prometheus.Counter

	WebhookDeliveries *prometheus.CounterVec
}

// NewMetrics creates and registers the collectors under namespace.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		FragmentVersions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragment_versions_total",
			Help:      "Fragment versions created, including initial versions",
		}),
		FragmentsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_deleted_total",
			Help:      "Fragments deleted",
		}),
		DeletesBlocked: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragment_deletes_blocked_total",
			Help:      "Fragment deletes refused because term sets reference the fragment",
		}),
		SetVersions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "term_set_versions_total",
			Help:      "Term set versions created by reference list replacement",
		}),
		Renders: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "term_set_renders_total",
			Help:      "Term sets rendered",
		}),
		UnderstoodRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "understood_records_total",
			Help:      "Understood records added",
		}),
		WebhookDeliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_deliveries_total",
			Help:      "Webhook delivery attempts by outcome",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.HTTPRequests,
		m.HTTPDuration,
		m.FragmentVersions,
		m.FragmentsDeleted,
		m.DeletesBlocked,
		m.SetVersions,
		m.Renders,
		m.UnderstoodRecords,
		m.WebhookDeliveries,
	)
	return m
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

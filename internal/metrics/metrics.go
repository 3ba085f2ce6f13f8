package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the API
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// ChangeEvents counts published entity change events
	ChangeEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "entity_change_events_total", Help: "Entity change events by destination and change type."},
		[]string{"destination", "change_type"},
	)
	// ReconciledChildren counts children touched by aggregate reconciliation
	ReconciledChildren = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "reconciled_children_total", Help: "Owned children created, updated or removed during reconciliation."},
		[]string{"aggregate", "outcome"},
	)
	// DroppedFilters counts filter parameters that did not compile to a clause
	DroppedFilters = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dropped_filter_params_total", Help: "Filter parameters ignored because they did not resolve or coerce."},
		[]string{"entity"},
	)
	// WebhookDeliveries counts outbound webhook outcomes
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Outbound webhook deliveries by outcome."},
		[]string{"outcome"},
	)
)

// RegisterDefault registers collectors to the default registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(ChangeEvents)
		Registry.MustRegister(ReconciledChildren)
		Registry.MustRegister(DroppedFilters)
		Registry.MustRegister(WebhookDeliveries)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once

// Reconciled records one reconciliation outcome.
func Reconciled(aggregate string, created, updated, removed int) {
	ReconciledChildren.WithLabelValues(aggregate, "created").Add(float64(created))
	ReconciledChildren.WithLabelValues(aggregate, "updated").Add(float64(updated))
	ReconciledChildren.WithLabelValues(aggregate, "removed").Add(float64(removed))
}

// Package metrics exposes Prometheus counters for HTTP traffic and listing
// moderation. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry        *prometheus.Registry
	requests        *prometheus.CounterVec
	duration        *prometheus.HistogramVec
	moderation      *prometheus.CounterVec
	changesRecorded prometheus.Counter
	changesApplied  prometheus.Counter
	listingsSold    prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carmarket",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "carmarket",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		moderation: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "carmarket",
			Name:      "moderation_decisions_total",
			Help:      "Listing moderation decisions.",
		}, []string{"decision"}),
		changesRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "carmarket",
			Name:      "pending_changes_recorded_total",
			Help:      "Seller edits staged for moderation.",
		}),
		changesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "carmarket",
			Name:      "pending_changes_applied_total",
			Help:      "Staged edits applied on approval.",
		}),
		listingsSold: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "carmarket",
			Name:      "listings_sold_total",
			Help:      "Listings marked as sold.",
		}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requests,
		m.duration,
		m.moderation,
		m.changesRecorded,
		m.changesApplied,
		m.listingsSold,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(method, path string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	route := Route(path)
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// ModerationDecision counts an approve or reject and the edits it applied.
func (m *Metrics) ModerationDecision(decision string, applied int) {
	if m == nil {
		return
	}
	m.moderation.WithLabelValues(decision).Inc()
	if applied > 0 {
		m.changesApplied.Add(float64(applied))
	}
}

func (m *Metrics) PendingChangeRecorded() {
	if m == nil {
		return
	}
	m.changesRecorded.Inc()
}

func (m *Metrics) ListingSold() {
	if m == nil {
		return
	}
	m.listingsSold.Inc()
}

// Route collapses ids in a request path so label cardinality stays bounded.
func Route(path string) string {
	parts := strings.Split(strings.Trim(path, "/"), "/")
	for i, part := range parts {
		if _, err := uuid.Parse(part); err == nil {
			parts[i] = ":id"
		}
	}
	return "/" + strings.Join(parts, "/")
}

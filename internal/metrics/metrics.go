// Package metrics holds the service's Prometheus collectors on a dedicated
// registry so tests never fight over the global one.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	Registry = prometheus.NewRegistry()
	once     sync.Once

	HTTPRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "homeroute_http_requests_total",
		Help: "HTTP requests by method, route and status code.",
	}, []string{"method", "route", "code"})

	HTTPDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "homeroute_http_request_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})

	QuoteOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "homeroute_quote_outcomes_total",
		Help: "Address validation outcomes; label is 'valid' or the rejection code.",
	}, []string{"outcome"})

	OptimizeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "homeroute_route_optimize_seconds",
		Help:    "Route optimization latency.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	})

	WebhookDeliveries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "homeroute_webhook_deliveries_total",
		Help: "Webhook delivery attempts by terminal status.",
	}, []string{"status"})
)

// RegisterDefault registers all collectors once; safe to call from every
// entry point.
func RegisterDefault() {
	once.Do(func() {
		Registry.MustRegister(HTTPRequests, HTTPDuration, QuoteOutcomes, OptimizeDuration, WebhookDeliveries)
	})
}

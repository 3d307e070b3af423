// Package metrics holds the Prometheus collectors exported at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Feed load outcomes
const (
	FeedApplied = "applied"
	FeedDropped = "dropped" // rejected while another load was in flight
	FeedStale   = "stale"   // response for a superseded generation
	FeedFailed  = "failed"
)

var (
	// CatalogRequests counts TMDB requests by endpoint and outcome (ok, error).
	CatalogRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_requests_total",
			Help: "Total number of remote catalog requests",
		},
		[]string{"endpoint", "outcome"},
	)

	// CatalogRequestDuration tracks TMDB latency by endpoint.
	CatalogRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "catalog_request_duration_seconds",
			Help:    "Remote catalog request latency in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"endpoint"},
	)

	FavoritesMutations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "favorites_mutations_total",
			Help: "Favorites store mutations by operation and outcome",
		},
		[]string{"operation", "outcome"},
	)

	FavoritesCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "favorites_count",
			Help: "Number of movies in the latest published favorites snapshot",
		},
	)

	FeedLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "feed_loads_total",
			Help: "Feed page loads by outcome",
		},
		[]string{"outcome"},
	)

	StreamConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "stream_connections",
			Help: "Active websocket stream connections",
		},
	)
)

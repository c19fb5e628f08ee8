package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "shared_ride"

var (
	PathLookups   = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "path_lookups_total", Help: "Path lookups by source (cache, oracle, fallback)"}, []string{"source"})
	OracleLatency = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "routing_oracle_latency_seconds", Help: "Routing oracle call latency"})

	CandidatesFound       = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "candidates_found", Help: "Nearby candidates per search", Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100}})
	GeoQueryErrors        = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "geo_query_errors_total", Help: "Failed geospatial store queries"})
	MatchesRanked         = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "matches_ranked_total", Help: "Candidates that cleared the overlap and detour thresholds"})
	MatchLatency          = promauto.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "match_latency_seconds", Help: "Share-finding pipeline latency"})
	OpportunityTransition = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "opportunity_transitions_total", Help: "Opportunity lifecycle events by type"}, []string{"event"})
	AcceptOutcomes        = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "accept_outcomes_total", Help: "Accept calls by outcome"}, []string{"outcome"})
	Notifications         = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "notifications_total", Help: "Share notifications by result (sent, suppressed, failed)"}, []string{"result"})
	RequestsConsumed      = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "ride_requests_consumed_total", Help: "Ride request messages consumed by result (applied, invalid, failed)"}, []string{"result"})
	RequestWrites         = promauto.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "ride_request_writes_total", Help: "Pending-request store writes by source (api, consumer) and action (upsert, remove)"}, []string{"source", "action"})

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Store action outcomes
const (
	OutcomeConfirmed  = "confirmed"
	OutcomeRolledBack = "rolled_back"
	OutcomeStale      = "stale"
	OutcomeRejected   = "rejected" // failed validation before any optimistic state
)

// ApplicationMetrics tracks the feed cache store and realtime bridge
type ApplicationMetrics struct {
	// Feed cache store
	StoreActionsTotal   *prometheus.CounterVec
	StoreActionDuration *prometheus.HistogramVec
	PageLoadsTotal      *prometheus.CounterVec
	StoreRecords        prometheus.Gauge

	// Realtime bridge
	RealtimeEventsTotal *prometheus.CounterVec
	AuthorCacheLookups  *prometheus.CounterVec

	// Social engagement, server side
	PostsCreated   *prometheus.CounterVec
	ReactionsTotal *prometheus.CounterVec
	VotesTotal     prometheus.Counter
	CommentsTotal  prometheus.Counter
	SharesTotal    prometheus.Counter
	SparkEdits     *prometheus.CounterVec
}

var (
	appInstance *ApplicationMetrics
	appOnce     sync.Once
)

// App returns the application metrics, registering them on first use
func App() *ApplicationMetrics {
	appOnce.Do(func() {
		appInstance = &ApplicationMetrics{
			StoreActionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "feed_store_actions_total",
					Help: "Optimistic store actions by outcome",
				},
				[]string{"action", "outcome"},
			),
			StoreActionDuration: promauto.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "feed_store_action_duration_seconds",
					Help:    "Time from optimistic apply to settle",
					Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
				},
				[]string{"action"},
			),
			PageLoadsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "feed_page_loads_total",
					Help: "Feed page loads by result",
				},
				[]string{"mode", "status"},
			),
			StoreRecords: promauto.NewGauge(
				prometheus.GaugeOpts{
					Name: "feed_store_records",
					Help: "Records held by the feed cache store",
				},
			),

			RealtimeEventsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "realtime_events_total",
					Help: "Change events received by the bridge and what was done with them",
				},
				[]string{"op", "result"},
			),
			AuthorCacheLookups: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "author_cache_lookups_total",
					Help: "Author metadata lookups by tier",
				},
				[]string{"tier"},
			),

			PostsCreated: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "posts_created_total",
					Help: "Total number of posts created",
				},
				[]string{"kind", "visibility"},
			),
			ReactionsTotal: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "reactions_total",
					Help: "Total reaction changes",
				},
				[]string{"kind"},
			),
			VotesTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "poll_votes_total",
					Help: "Total poll votes cast",
				},
			),
			CommentsTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "comments_total",
					Help: "Total number of comments",
				},
			),
			SharesTotal: promauto.NewCounter(
				prometheus.CounterOpts{
					Name: "shares_total",
					Help: "Total number of shares",
				},
			),
			SparkEdits: promauto.NewCounterVec(
				prometheus.CounterOpts{
					Name: "spark_edits_total",
					Help: "Knowledge Spark edits by op and result",
				},
				[]string{"op", "result"},
			),
		}
	})
	return appInstance
}

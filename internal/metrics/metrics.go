// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HttpRequestsTotal counts handled HTTP requests.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of http requests handled by the service.",
		},
		[]string{"path", "method", "code"},
	)

	// FeedEventsTotal counts change-feed events seen by a list engine.
	// outcome is applied, noop or ignored.
	FeedEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobboard_feed_events_total",
			Help: "Total number of change feed events received by the listing engine.",
		},
		[]string{"kind", "outcome"},
	)

	// SnapshotLoadsTotal counts snapshot fetches by status (success/failed).
	SnapshotLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobboard_snapshot_loads_total",
			Help: "Total number of posting snapshot loads.",
		},
		[]string{"status"},
	)

	// PostingsLoaded is the size of the canonical collection.
	PostingsLoaded = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jobboard_postings_loaded",
			Help: "Number of postings held by the listing engine.",
		},
	)

	// AdminMutationsTotal counts admin create/update/delete calls.
	AdminMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobboard_admin_mutations_total",
			Help: "Total number of admin mutations.",
		},
		[]string{"op", "status"},
	)

	// NotificationsTotal counts channel notifications by status.
	NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobboard_notifications_total",
			Help: "Total number of posting notifications sent to the messaging channel.",
		},
		[]string{"status"},
	)

	// FeedEventsRelayedTotal counts events forwarded to remote readers.
	FeedEventsRelayedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobboard_feed_events_relayed_total",
			Help: "Total number of change feed events relayed to remote readers.",
		},
		[]string{"status"},
	)

	// IsLeader is 1 while this node relays the change feed.
	IsLeader = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "is_leader",
			Help: "Is this node currently the relay leader. 1 if leader, 0 otherwise.",
		},
		[]string{"node_id"},
	)
)

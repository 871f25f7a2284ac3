package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsOpened   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "dispatch", Name: "requests_opened_total", Help: "Ride requests that entered bidding"})
	RequestsExpired  = promauto.NewCounter(prometheus.CounterOpts{Namespace: "dispatch", Name: "requests_expired_total", Help: "Ride requests that expired with no accepted bid"})
	RequestsCanceled = promauto.NewCounter(prometheus.CounterOpts{Namespace: "dispatch", Name: "requests_cancelled_total", Help: "Ride requests cancelled before completion"})
	BidsSubmitted    = promauto.NewCounter(prometheus.CounterOpts{Namespace: "dispatch", Name: "bids_submitted_total", Help: "Driver bids accepted by the collector"})
	BidsRejected     = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "dispatch", Name: "bids_rejected_total", Help: "Driver bids rejected at submission"},
		[]string{"reason"},
	)
	MatchesCommitted = promauto.NewCounter(prometheus.CounterOpts{Namespace: "dispatch", Name: "matches_committed_total", Help: "Exclusive bid accepts that created an active ride"})
	AcceptLatency    = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "dispatch",
		Name:      "accept_bid_latency_seconds",
		Help:      "Latency of the accept-bid critical section",
		Buckets:   prometheus.DefBuckets,
	})
	CodeFailures     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "dispatch", Name: "pickup_code_failures_total", Help: "Failed pickup-code verification attempts"})
	SupportEscalated = promauto.NewCounter(prometheus.CounterOpts{Namespace: "dispatch", Name: "rides_needs_support_total", Help: "Rides escalated after repeated code failures"})
	RidesCompleted   = promauto.NewCounter(prometheus.CounterOpts{Namespace: "dispatch", Name: "rides_completed_total", Help: "Rides completed"})
	ChatMessages     = promauto.NewCounter(prometheus.CounterOpts{Namespace: "dispatch", Name: "chat_messages_total", Help: "Chat messages accepted"})

	OpenRequests = promauto.NewGauge(prometheus.GaugeOpts{Namespace: "dispatch", Name: "open_requests", Help: "Requests currently open for bidding"})
)

// RegisterLiveConnections exposes the transport hub's connection count
// as a gauge. Called once at startup.
func RegisterLiveConnections(count func() int) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "dispatch",
		Name:      "live_connections",
		Help:      "Live websocket connections",
	}, func() float64 {
		return float64(count())
	})
}

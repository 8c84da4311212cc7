package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RidesCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "glide", Name: "rides_created_total", Help: "Rides created, by service type"},
		[]string{"service_type"},
	)
	RideTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "glide", Name: "ride_transitions_total", Help: "Committed ride status transitions"},
		[]string{"to"},
	)
	BidsSubmitted = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "glide", Name: "bids_submitted_total", Help: "Bids submitted"},
	)
	BidAcceptConflicts = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "glide", Name: "bid_accept_conflicts_total", Help: "Lost acceptBid races"},
	)
	EventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "glide", Name: "change_events_published_total", Help: "Change events fanned out"},
		[]string{"entity"},
	)
	SubscribersActive = promauto.NewGauge(
		prometheus.GaugeOpts{Namespace: "glide", Name: "subscribers_active", Help: "Live change-feed subscribers"},
	)
	SubscriberResyncs = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "glide", Name: "subscriber_resyncs_total", Help: "Subscriber reconnect/resync operations"},
	)
	PricingFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{Namespace: "glide", Name: "pricing_config_fallbacks_total", Help: "Fare computations served from built-in defaults"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: "glide", Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "glide",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

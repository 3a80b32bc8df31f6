// Package metrics declares the prometheus collectors of the poll backend.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors. Tests build one on a private registry.
type Metrics struct {
	StancesRecorded       *prometheus.CounterVec
	PollsClosed           *prometheus.CounterVec
	NotificationsSent     *prometheus.CounterVec
	NotificationsFailed   *prometheus.CounterVec
	ClosingSoonClaims     *prometheus.CounterVec
	ConsistencyViolations prometheus.Counter
	HTTPRequestDuration   *prometheus.HistogramVec
}

// New registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		StancesRecorded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "polls",
			Name:      "stances_recorded_total",
			Help:      "Stances appended to the ledger, by poll type.",
		}, []string{"poll_type"}),
		PollsClosed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "polls",
			Name:      "closed_total",
			Help:      "Polls closed, by reason.",
		}, []string{"reason"}),
		NotificationsSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "polls",
			Name:      "notifications_sent_total",
			Help:      "Notifications handed to the dispatcher.",
		}, []string{"kind"}),
		NotificationsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "polls",
			Name:      "notifications_failed_total",
			Help:      "Notifications dropped after retries.",
		}, []string{"kind"}),
		ClosingSoonClaims: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "polls",
			Name:      "closing_soon_claims_total",
			Help:      "Closing-soon claim attempts, by outcome.",
		}, []string{"outcome"}),
		ConsistencyViolations: f.NewCounter(prometheus.CounterOpts{
			Namespace: "polls",
			Name:      "consistency_violations_total",
			Help:      "Ledger invariant breaches detected.",
		}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "polls",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}
}

// NewNop returns metrics registered nowhere.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

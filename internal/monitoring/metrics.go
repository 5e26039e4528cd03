package monitoring

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	requestOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "connection_request_outcomes_total",
			Help: "Connection requests by terminal outcome",
		},
		[]string{"type", "outcome"},
	)

	activeRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "connection_requests_active",
			Help: "Requests currently tracked by the gateway",
		},
	)

	pollErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "status_poll_errors_total",
			Help: "Transient status poll failures tolerated by trackers",
		},
	)

	activeSessions = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Live sessions per type",
		},
		[]string{"type"},
	)

	messagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_sent_total",
			Help: "Optimistic message sends by final status",
		},
		[]string{"status"},
	)

	waitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "request_wait_duration_seconds",
			Help:    "Time from request creation to a terminal status",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"outcome"},
	)
)

type Monitor struct {
	redis *redis.Client
}

func NewMonitor(redisClient *redis.Client) *Monitor {
	monitor := &Monitor{redis: redisClient}

	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.collectRequestMetrics(context.Background())
	}
}

func (m *Monitor) collectRequestMetrics(ctx context.Context) {
	var count int64
	iter := m.redis.Scan(ctx, 0, "request:active:*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if iter.Err() == nil {
		activeRequests.Set(float64(count))
	}
}

// TrackOutcome records a request reaching a terminal status and how long
// the user waited to get there.
func TrackOutcome(sessionType, outcome string, waited time.Duration) {
	requestOutcomes.WithLabelValues(sessionType, outcome).Inc()
	waitDuration.WithLabelValues(outcome).Observe(waited.Seconds())
}

// TrackPollError counts a tolerated transient poll failure.
func TrackPollError() {
	pollErrors.Inc()
}

// TrackSessionStart and TrackSessionEnd maintain the live session gauge.
func TrackSessionStart(sessionType string) {
	activeSessions.WithLabelValues(sessionType).Inc()
}

func TrackSessionEnd(sessionType string) {
	activeSessions.WithLabelValues(sessionType).Dec()
}

// TrackMessage records the final status of an optimistic send.
func TrackMessage(status string) {
	messagesSent.WithLabelValues(status).Inc()
}

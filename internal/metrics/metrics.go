// Package metrics provides Prometheus metrics for contentver
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for contentver. It satisfies both
// version.Recorder and outbox.Recorder.
type Metrics struct {
	// Version operation metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	PrunedTotal       prometheus.Counter

	// Event metrics
	EventsPublishedTotal *prometheus.CounterVec

	// Outbox metrics
	OutboxPending       prometheus.Gauge
	OutboxReplayedTotal *prometheus.CounterVec

	// Server metrics
	ServerUptimeSeconds prometheus.Gauge
	ServerStartTime     time.Time
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	m := &Metrics{
		ServerStartTime: time.Now(),
	}

	m.OperationsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentver_operations_total",
			Help: "Total number of version operations by outcome kind",
		},
		[]string{"operation", "kind"},
	)

	m.OperationDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "contentver_operation_duration_seconds",
			Help:    "Duration of version operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"operation"},
	)

	m.PrunedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "contentver_versions_pruned_total",
			Help: "Total number of versions deleted by retention",
		},
	)

	m.EventsPublishedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentver_events_published_total",
			Help: "Total number of change events by publish status",
		},
		[]string{"type", "status"},
	)

	m.OutboxPending = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "contentver_outbox_pending",
			Help: "Number of saves waiting in the outbox",
		},
	)

	m.OutboxReplayedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "contentver_outbox_replayed_total",
			Help: "Total number of outbox replay attempts by outcome",
		},
		[]string{"outcome"},
	)

	m.ServerUptimeSeconds = factory.NewGauge(
		prometheus.GaugeOpts{
			Name: "contentver_server_uptime_seconds",
			Help: "Server uptime in seconds",
		},
	)

	return m
}

// RunUptime updates the uptime gauge every interval until ctx is done
func (m *Metrics) RunUptime(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.ServerUptimeSeconds.Set(time.Since(m.ServerStartTime).Seconds())
		}
	}
}

// ObserveOperation records a version operation and its outcome kind
func (m *Metrics) ObserveOperation(op, kind string, d time.Duration) {
	m.OperationsTotal.WithLabelValues(op, kind).Inc()
	m.OperationDuration.WithLabelValues(op).Observe(d.Seconds())
}

// VersionsPruned counts versions deleted by retention
func (m *Metrics) VersionsPruned(n int) {
	m.PrunedTotal.Add(float64(n))
}

// EventPublished records one publish attempt
func (m *Metrics) EventPublished(eventType string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.EventsPublishedTotal.WithLabelValues(eventType, status).Inc()
}

// OutboxDepth sets the number of pending outbox saves
func (m *Metrics) OutboxDepth(n int) {
	m.OutboxPending.Set(float64(n))
}

// OutboxReplayed records one replayed save by outcome
func (m *Metrics) OutboxReplayed(outcome string) {
	m.OutboxReplayedTotal.WithLabelValues(outcome).Inc()
}

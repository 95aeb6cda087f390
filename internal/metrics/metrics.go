// Package metrics holds the Prometheus collectors of the game server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "pewpew"

// Send failure reasons.
const (
	ReasonClosed = "closed"
	ReasonFull   = "full"
)

type Metrics struct {
	ActiveConnections   prometheus.Gauge
	AcceptedConnections prometheus.Counter
	RejectedConnections *prometheus.CounterVec
	WriteErrors         prometheus.Counter

	BroadcastTicks    prometheus.Counter
	SnapshotFailures  prometheus.Counter
	BroadcastBytes    prometheus.Counter
	SendFailures      *prometheus.CounterVec
	BroadcastDuration prometheus.Histogram
}

// New creates the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "active_connections",
			Help:      "Number of registered client connections.",
		}),
		AcceptedConnections: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "accepted_connections_total",
			Help:      "Total number of accepted client connections.",
		}),
		RejectedConnections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "rejected_connections_total",
			Help:      "Total number of connections closed right after accept, by reason.",
		}, []string{"reason"}),
		WriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "write_errors_total",
			Help:      "Total number of socket writes that failed and dropped their connection.",
		}),
		BroadcastTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "ticks_total",
			Help:      "Total number of broadcast ticks.",
		}),
		SnapshotFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "snapshot_failures_total",
			Help:      "Total number of ticks skipped because the snapshot failed.",
		}),
		BroadcastBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "enqueued_bytes_total",
			Help:      "Total number of framed bytes enqueued to clients.",
		}),
		SendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "send_failures_total",
			Help:      "Total number of per-client enqueue failures, by reason.",
		}, []string{"reason"}),
		BroadcastDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "broadcast",
			Name:      "tick_duration_seconds",
			Help:      "Time spent snapshotting and fanning out one tick.",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05},
		}),
	}

	reg.MustRegister(
		m.ActiveConnections,
		m.AcceptedConnections,
		m.RejectedConnections,
		m.WriteErrors,
		m.BroadcastTicks,
		m.SnapshotFailures,
		m.BroadcastBytes,
		m.SendFailures,
		m.BroadcastDuration,
	)
	return m
}

// OrDiscard returns m, or metrics registered nowhere if m is nil (which might
// be true in tests).
func OrDiscard(m *Metrics) *Metrics {
	if m != nil {
		return m
	}
	return New(prometheus.NewRegistry())
}

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Metrics groups the collectors of one process on a private registry.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	flushEntries  *prometheus.CounterVec
	flushDuration prometheus.Histogram
	pending       prometheus.Gauge
	stalled       prometheus.Gauge
	serverWrites  *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		flushEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "actas",
			Subsystem: "sync",
			Name:      "entries_total",
			Help:      "Queue entries processed by flushes, by result.",
		}, []string{"result"}),
		flushDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "actas",
			Subsystem: "sync",
			Name:      "flush_duration_seconds",
			Help:      "Duration of queue flushes.",
			Buckets:   prometheus.DefBuckets,
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "actas",
			Subsystem: "sync",
			Name:      "pending_entries",
			Help:      "Entries waiting in the local queue.",
		}),
		stalled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "actas",
			Subsystem: "sync",
			Name:      "stalled_entries",
			Help:      "Entries at or above the attempt ceiling.",
		}),
		serverWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "actas",
			Subsystem: "server",
			Name:      "writes_total",
			Help:      "Version-guarded writes handled by the server, by operation and result.",
		}, []string{"op", "result"}),
	}
	reg.MustRegister(
		m.flushEntries, m.flushDuration, m.pending, m.stalled, m.serverWrites,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) FlushEntry(result string) {
	if m == nil {
		return
	}
	m.flushEntries.WithLabelValues(result).Inc()
}

func (m *Metrics) FlushDone(d time.Duration) {
	if m == nil {
		return
	}
	m.flushDuration.Observe(d.Seconds())
}

func (m *Metrics) SetQueue(pending, stalled int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(pending))
	m.stalled.Set(float64(stalled))
}

func (m *Metrics) ServerWrite(op, result string) {
	if m == nil {
		return
	}
	m.serverWrites.WithLabelValues(op, result).Inc()
}

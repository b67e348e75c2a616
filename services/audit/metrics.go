package audit

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the Prometheus collectors exported by the audit trail.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	written       *prometheus.CounterVec
	writeFailures prometheus.Counter
	published     *prometheus.CounterVec
	purged        prometheus.Counter
	sweeps        *prometheus.CounterVec
	sweepDuration prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg when it is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		written: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_records_written_total",
			Help: "Audit records appended, by action.",
		}, []string{"action"}),
		writeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_write_failures_total",
			Help: "Audit appends rejected by the store.",
		}),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_notifications_total",
			Help: "Audit notifications published to the bus, by result.",
		}, []string{"result"}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "audit_records_purged_total",
			Help: "Audit records removed by retention sweeps.",
		}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "audit_sweeps_total",
			Help: "Retention sweeps, by result.",
		}, []string{"result"}),
		sweepDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "audit_sweep_duration_seconds",
			Help:    "Duration of retention sweeps.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	if reg != nil {
		reg.MustRegister(m.written, m.writeFailures, m.published, m.purged, m.sweeps, m.sweepDuration)
	}
	return m
}

func (m *Metrics) recordWrite(action Action) {
	if m == nil {
		return
	}
	m.written.WithLabelValues(string(action)).Inc()
}

func (m *Metrics) recordWriteFailure() {
	if m == nil {
		return
	}
	m.writeFailures.Inc()
}

func (m *Metrics) recordPublish(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.published.WithLabelValues(result).Inc()
}

func (m *Metrics) recordSweep(deleted int64, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(elapsed.Seconds())
	if err != nil {
		m.sweeps.WithLabelValues("error").Inc()
		return
	}
	m.sweeps.WithLabelValues("ok").Inc()
	m.purged.Add(float64(deleted))
}

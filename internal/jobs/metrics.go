package jobs

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vrsandeep/collections-go/internal/models"
)

// Metrics exposes job counters to Prometheus. A nil *Metrics records
// nothing.
type Metrics struct {
	submitted   *prometheus.CounterVec
	finished    *prometheus.CounterVec
	running     prometheus.Gauge
	rowsWritten *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	throughput  *prometheus.HistogramVec
}

// NewMetrics creates the job collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "collections",
			Name:      "jobs_submitted_total",
			Help:      "Bulk membership jobs accepted, by strategy.",
		}, []string{"strategy"}),
		finished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "collections",
			Name:      "jobs_finished_total",
			Help:      "Bulk membership jobs that reached a terminal state.",
		}, []string{"strategy", "state"}),
		running: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "collections",
			Name:      "jobs_running",
			Help:      "Jobs currently executing.",
		}),
		rowsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "collections",
			Name:      "membership_rows_added_total",
			Help:      "Membership rows newly inserted by bulk jobs.",
		}, []string{"strategy"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "collections",
			Name:      "job_duration_seconds",
			Help:      "Wall time from start to terminal state.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}, []string{"strategy"}),
		throughput: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "collections",
			Name:      "job_throughput_rows_per_second",
			Help:      "Rows processed per second by completed jobs.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}, []string{"strategy"}),
	}
	reg.MustRegister(m.submitted, m.finished, m.running, m.rowsWritten, m.duration, m.throughput)
	return m
}

func (m *Metrics) jobSubmitted(kind models.StrategyKind) {
	if m == nil {
		return
	}
	m.submitted.WithLabelValues(string(kind)).Inc()
}

func (m *Metrics) jobStarted() {
	if m == nil {
		return
	}
	m.running.Inc()
}

func (m *Metrics) jobFinished(job models.Job, added int, seconds float64, rowsPerSecond float64, started bool) {
	if m == nil {
		return
	}
	kind := string(job.Strategy)
	if started {
		m.running.Dec()
		m.duration.WithLabelValues(kind).Observe(seconds)
	}
	m.finished.WithLabelValues(kind, string(job.State)).Inc()
	m.rowsWritten.WithLabelValues(kind).Add(float64(added))
	if job.State == models.JobCompleted {
		m.throughput.WithLabelValues(kind).Observe(rowsPerSecond)
	}
}

// RowsAdded returns the rows-added counter for a strategy.
func (m *Metrics) RowsAdded(kind models.StrategyKind) prometheus.Counter {
	return m.rowsWritten.WithLabelValues(string(kind))
}

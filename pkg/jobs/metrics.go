package jobs

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus collectors shared by every engine created with
// WithMetrics. Each series is labelled with the engine name. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	submitted   *prometheus.CounterVec
	finished    *prometheus.CounterVec
	queueDepth  *prometheus.GaugeVec
	pending     *prometheus.GaugeVec
	timerArms   *prometheus.CounterVec
	jobDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		submitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slimjob_jobs_submitted_total",
				Help: "Total number of jobs accepted by an engine.",
			},
			[]string{"engine"},
		),
		finished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slimjob_jobs_finished_total",
				Help: "Total number of jobs that reached a terminal state.",
			},
			[]string{"engine", "state"},
		),
		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "slimjob_queue_depth",
				Help: "Number of jobs waiting in an engine's run queue.",
			},
			[]string{"engine"},
		),
		pending: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "slimjob_pending_delayed",
				Help: "Number of delayed jobs whose deadline has not elapsed.",
			},
			[]string{"engine"},
		),
		timerArms: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slimjob_timer_arms_total",
				Help: "Total number of times the coalesced delay timer was armed.",
			},
			[]string{"engine"},
		),
		jobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "slimjob_job_duration_seconds",
				Help:    "Execution time of jobs that ran on the worker, in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"engine"},
		),
	}

	reg.MustRegister(m.submitted, m.finished, m.queueDepth, m.pending, m.timerArms, m.jobDuration)
	return m
}

func (m *Metrics) jobSubmitted(engine string) {
	if m == nil {
		return
	}
	m.submitted.WithLabelValues(engine).Inc()
}

func (m *Metrics) jobFinished(engine string, state State, d time.Duration) {
	if m == nil {
		return
	}
	m.finished.WithLabelValues(engine, state.String()).Inc()
	if d > 0 {
		m.jobDuration.WithLabelValues(engine).Observe(d.Seconds())
	}
}

func (m *Metrics) setQueueDepth(engine string, n int) {
	if m == nil {
		return
	}
	m.queueDepth.WithLabelValues(engine).Set(float64(n))
}

func (m *Metrics) setPending(engine string, n int) {
	if m == nil {
		return
	}
	m.pending.WithLabelValues(engine).Set(float64(n))
}

func (m *Metrics) timerArmed(engine string) {
	if m == nil {
		return
	}
	m.timerArms.WithLabelValues(engine).Inc()
}

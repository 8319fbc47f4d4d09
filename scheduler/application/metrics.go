package application

import (
	"github.com/AzielCF/az-post/scheduler/domain"
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the scheduler's Prometheus collectors.
type Metrics struct {
	// Ticks counts scheduler passes. Labels: result (ran, skipped)
	Ticks *prometheus.CounterVec
	// Outcomes counts per-post results. Labels: outcome
	Outcomes     *prometheus.CounterVec
	Recovered    prometheus.Counter
	TickDuration prometheus.Histogram
}

// NewMetrics builds the collectors and registers them on reg when it is not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Ticks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "azpost",
			Subsystem: "scheduler",
			Name:      "ticks_total",
			Help:      "Scheduler passes by result.",
		}, []string{"result"}),
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "azpost",
			Subsystem: "scheduler",
			Name:      "post_outcomes_total",
			Help:      "Per-post scheduler outcomes.",
		}, []string{"outcome"}),
		Recovered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "azpost",
			Subsystem: "scheduler",
			Name:      "recovered_total",
			Help:      "Overdue posts rescheduled by the recovery sweep.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "azpost",
			Subsystem: "scheduler",
			Name:      "tick_duration_seconds",
			Help:      "Wall time of scheduler passes that ran.",
			Buckets:   []float64{0.05, 0.25, 1, 5, 15, 30, 60, 120},
		}),
	}
	if reg != nil {
		reg.MustRegister(m.Ticks, m.Outcomes, m.Recovered, m.TickDuration)
	}
	return m
}

func (m *Metrics) tick(skipped bool, seconds float64) {
	if m == nil {
		return
	}
	if skipped {
		m.Ticks.WithLabelValues("skipped").Inc()
		return
	}
	m.Ticks.WithLabelValues("ran").Inc()
	m.TickDuration.Observe(seconds)
}

func (m *Metrics) outcome(o domain.Outcome) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(string(o)).Inc()
}

func (m *Metrics) recovered(n int) {
	if m == nil || n == 0 {
		return
	}
	m.Recovered.Add(float64(n))
}

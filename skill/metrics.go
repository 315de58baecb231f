package skill

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the package's prometheus collectors. A nil *Metrics is valid
// everywhere and records nothing, so tests and library embedders can opt
// out.
type Metrics struct {
	ratingUpdates   prometheus.Counter
	sandbagFlags    prometheus.Counter
	assignments     *prometheus.CounterVec
	predictions     *prometheus.CounterVec
	trainRuns       *prometheus.CounterVec
	balanceDuration prometheus.Histogram
	trainDuration   prometheus.Histogram
}

// NewMetrics builds and registers the collectors.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ratingUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "courtiq", Subsystem: "rating", Name: "updates_total",
			Help: "Player rating updates applied.",
		}),
		sandbagFlags: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "courtiq", Subsystem: "rating", Name: "sandbag_flags_total",
			Help: "Updates dampened by the sandbagging detector.",
		}),
		assignments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "courtiq", Subsystem: "balancer", Name: "assignments_total",
			Help: "Team assignments by mode (model or greedy).",
		}, []string{"mode"}),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "courtiq", Subsystem: "predictor", Name: "predictions_total",
			Help: "Win probability predictions by winning strategy.",
		}, []string{"strategy"}),
		trainRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "courtiq", Subsystem: "trainer", Name: "runs_total",
			Help: "Training runs by outcome.",
		}, []string{"outcome"}),
		balanceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "courtiq", Subsystem: "balancer", Name: "search_seconds",
			Help:    "Split search duration.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		trainDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "courtiq", Subsystem: "trainer", Name: "run_seconds",
			Help:    "Training run duration.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		}),
	}
	reg.MustRegister(
		m.ratingUpdates, m.sandbagFlags, m.assignments, m.predictions,
		m.trainRuns, m.balanceDuration, m.trainDuration,
	)
	return m
}

func (m *Metrics) RatingUpdate(n int) {
	if m == nil {
		return
	}
	m.ratingUpdates.Add(float64(n))
}

func (m *Metrics) SandbagFlag() {
	if m == nil {
		return
	}
	m.sandbagFlags.Inc()
}

func (m *Metrics) Assignment(mode string, took time.Duration) {
	if m == nil {
		return
	}
	m.assignments.WithLabelValues(mode).Inc()
	m.balanceDuration.Observe(took.Seconds())
}

func (m *Metrics) Prediction(strategy string) {
	if m == nil {
		return
	}
	m.predictions.WithLabelValues(strategy).Inc()
}

func (m *Metrics) TrainRun(outcome string, took time.Duration) {
	if m == nil {
		return
	}
	m.trainRuns.WithLabelValues(outcome).Inc()
	m.trainDuration.Observe(took.Seconds())
}

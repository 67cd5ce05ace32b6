// Package metrics exposes Prometheus collectors for refinement runs and grid
// searches.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "hqga"

// Run outcomes used as the status label.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Metrics groups the collectors recorded by the server.
type Metrics struct {
	runs         *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	rounds       prometheus.Counter
	activeRuns   prometheus.Gauge
	bestFitness  *prometheus.GaugeVec
	gridSearches *prometheus.CounterVec
	gridPoints   prometheus.Histogram
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refinement",
			Name:      "runs_total",
			Help:      "Refinement runs by elitism policy and outcome",
		}, []string{"elitism", "status"}),
		runDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "refinement",
			Name:      "run_duration_seconds",
			Help:      "Wall time of refinement runs",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"elitism"}),
		rounds: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "refinement",
			Name:      "rounds_total",
			Help:      "Completed refinement rounds",
		}),
		activeRuns: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "refinement",
			Name:      "active_runs",
			Help:      "Refinement runs currently executing",
		}),
		bestFitness: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "refinement",
			Name:      "best_fitness",
			Help:      "Global best fitness of the last completed run per problem",
		}, []string{"problem"}),
		gridSearches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "gridsearch",
			Name:      "searches_total",
			Help:      "Grid searches by outcome",
		}, []string{"status"}),
		gridPoints: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "gridsearch",
			Name:      "points",
			Help:      "Number of grid points evaluated per search",
			Buckets:   prometheus.ExponentialBuckets(10, 10, 6),
		}),
	}
}

// RunStarted marks a refinement run as active.
func (m *Metrics) RunStarted() {
	m.activeRuns.Inc()
}

// RunFinished records the outcome of a refinement run started with RunStarted.
func (m *Metrics) RunFinished(elitism, status string, elapsed time.Duration) {
	m.activeRuns.Dec()
	m.runs.WithLabelValues(elitism, status).Inc()
	m.runDuration.WithLabelValues(elitism).Observe(elapsed.Seconds())
}

// RoundCompleted counts one refinement round.
func (m *Metrics) RoundCompleted() {
	m.rounds.Inc()
}

// BestFitness records the global best of a completed run.
func (m *Metrics) BestFitness(problem string, fitness float64) {
	m.bestFitness.WithLabelValues(problem).Set(fitness)
}

// GridSearch records a grid search outcome and, on success, its size.
func (m *Metrics) GridSearch(status string, points int) {
	m.gridSearches.WithLabelValues(status).Inc()
	if status == StatusCompleted {
		m.gridPoints.Observe(float64(points))
	}
}

package metric

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stressrefine"

// AnalysisMetrics holds the metrics of adaptive runs. A nil
// *AnalysisMetrics is valid and records nothing.
type AnalysisMetrics struct {
	Passes          prometheus.Counter
	Equations       prometheus.Gauge
	GlobalError     prometheus.Gauge
	MaxStress       prometheus.Gauge
	MaxP            prometheus.Gauge
	SpilledElements prometheus.Counter
	Failures        *prometheus.CounterVec
	PhaseDuration   *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewAnalysisMetrics creates the metrics in a private registry
func NewAnalysisMetrics() *AnalysisMetrics {
	m := &AnalysisMetrics{
		Passes: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "adapt",
				Name:      "passes_total",
				Help:      "Total number of adaptive passes started",
			},
		),

		Equations: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "adapt",
				Name:      "equations",
				Help:      "Number of equations of the last pass",
			},
		),

		GlobalError: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "adapt",
				Name:      "global_error",
				Help:      "Estimated global relative error of the last pass",
			},
		),

		MaxStress: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "adapt",
				Name:      "max_von_mises",
				Help:      "Largest sampled von Mises stress of the last pass",
			},
		),

		MaxP: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Subsystem: "adapt",
				Name:      "max_p",
				Help:      "Highest element polynomial order of the last pass",
			},
		),

		SpilledElements: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "assembly",
				Name:      "spilled_elements_total",
				Help:      "Element stiffness matrices written to scratch files",
			},
		),

		Failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Subsystem: "adapt",
				Name:      "failures_total",
				Help:      "Failed runs by error class",
			},
			[]string{"class"},
		),

		PhaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Subsystem: "adapt",
				Name:      "phase_duration_seconds",
				Help:      "Duration of controller phases in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"phase"},
		),

		registry: prometheus.NewRegistry(),
	}
	m.registry.MustRegister(
		m.Passes,
		m.Equations,
		m.GlobalError,
		m.MaxStress,
		m.MaxP,
		m.SpilledElements,
		m.Failures,
		m.PhaseDuration,
	)
	return m
}

// Registry returns the registry holding the metrics
func (m *AnalysisMetrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// StartPass counts a new pass
func (m *AnalysisMetrics) StartPass() {
	if m == nil {
		return
	}
	m.Passes.Inc()
}

// ObservePass records the outcome of a finished pass
func (m *AnalysisMetrics) ObservePass(equations int, globalError, maxStress float64, maxP int) {
	if m == nil {
		return
	}
	m.Equations.Set(float64(equations))
	m.GlobalError.Set(globalError)
	m.MaxStress.Set(maxStress)
	m.MaxP.Set(float64(maxP))
}

func (m *AnalysisMetrics) ObservePhase(phase string, d time.Duration) {
	if m == nil {
		return
	}
	m.PhaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func (m *AnalysisMetrics) AddSpilled(n int) {
	if m == nil {
		return
	}
	m.SpilledElements.Add(float64(n))
}

func (m *AnalysisMetrics) Failure(class string) {
	if m == nil {
		return
	}
	m.Failures.WithLabelValues(class).Inc()
}

// WriteToTextfile writes every metric in the node exporter textfile format
func (m *AnalysisMetrics) WriteToTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

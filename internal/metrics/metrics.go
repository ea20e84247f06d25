// Package metrics provides Prometheus metrics for the fall-sensor daemon.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fall_sensor"

// Metrics holds all Prometheus metrics for the daemon.
// All Record methods are safe to call on a nil *Metrics.
type Metrics struct {
	// Ingestion
	SamplesIngested *prometheus.CounterVec
	SamplesRejected prometheus.Counter
	WindowsFilled   prometheus.Counter

	// Inference
	InferenceErrors  prometheus.Counter
	InferenceLatency prometheus.Histogram

	// Decisions
	Detections prometheus.Counter
	Suppressed prometheus.Counter

	// Dispatch and persistence
	DispatchOutcomes  *prometheus.CounterVec
	DispatchLatency   prometheus.Histogram
	PersistenceErrors *prometheus.CounterVec

	// Session
	SessionState *prometheus.GaugeVec
	ModelLoaded  prometheus.Gauge
}

// Default is the process-wide metrics instance registered with the default registry.
var Default = New(prometheus.DefaultRegisterer)

// New creates and registers all metrics with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SamplesIngested: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_ingested_total",
			Help:      "Total number of sensor samples accepted by the session",
		}, []string{"source"}),
		SamplesRejected: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "samples_rejected_total",
			Help:      "Samples delivered while the session was not running",
		}),
		WindowsFilled: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "windows_filled_total",
			Help:      "Total number of completed feature windows",
		}),

		InferenceErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_errors_total",
			Help:      "Windows discarded because inference failed",
		}),
		InferenceLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_latency_seconds",
			Help:      "Classifier latency per window",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05},
		}),

		Detections: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_total",
			Help:      "Confirmed fall detections",
		}),
		Suppressed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detections_suppressed_total",
			Help:      "Qualifying windows swallowed by the cooldown",
		}),

		DispatchOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_outcomes_total",
			Help:      "Per-recipient alert outcomes",
		}, []string{"result"}),
		DispatchLatency: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "dispatch_latency_seconds",
			Help:      "Time to alert every recipient for one event",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}),
		PersistenceErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "persistence_errors_total",
			Help:      "Event store failures",
		}, []string{"op"}),

		SessionState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_state",
			Help:      "1 for the current monitoring session state, 0 otherwise",
		}, []string{"state"}),
		ModelLoaded: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "model_loaded",
			Help:      "1 when the classifier loaded, 0 in degraded mode",
		}),
	}
}

// RecordSample records an accepted sample.
func (m *Metrics) RecordSample(source string) {
	if m == nil {
		return
	}
	m.SamplesIngested.WithLabelValues(source).Inc()
}

// RecordRejectedSample records a sample delivered outside the Running state.
func (m *Metrics) RecordRejectedSample() {
	if m == nil {
		return
	}
	m.SamplesRejected.Inc()
}

// RecordWindow records a completed window.
func (m *Metrics) RecordWindow() {
	if m == nil {
		return
	}
	m.WindowsFilled.Inc()
}

// RecordInference records one classifier call.
func (m *Metrics) RecordInference(err error, latencySeconds float64) {
	if m == nil {
		return
	}
	m.InferenceLatency.Observe(latencySeconds)
	if err != nil {
		m.InferenceErrors.Inc()
	}
}

// RecordDetection records a confirmed detection.
func (m *Metrics) RecordDetection() {
	if m == nil {
		return
	}
	m.Detections.Inc()
}

// RecordSuppressed records a detection swallowed by the cooldown.
func (m *Metrics) RecordSuppressed() {
	if m == nil {
		return
	}
	m.Suppressed.Inc()
}

// RecordDispatch records the outcome of alerting one recipient.
func (m *Metrics) RecordDispatch(delivered bool) {
	if m == nil {
		return
	}
	result := "failed"
	if delivered {
		result = "delivered"
	}
	m.DispatchOutcomes.WithLabelValues(result).Inc()
}

// RecordDispatchDuration records how long alerting every recipient took.
func (m *Metrics) RecordDispatchDuration(seconds float64) {
	if m == nil {
		return
	}
	m.DispatchLatency.Observe(seconds)
}

// RecordPersistenceError records an event store failure.
func (m *Metrics) RecordPersistenceError(op string) {
	if m == nil {
		return
	}
	m.PersistenceErrors.WithLabelValues(op).Inc()
}

// SetSessionState marks state as current and clears the others.
func (m *Metrics) SetSessionState(state string, all []string) {
	if m == nil {
		return
	}
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		m.SessionState.WithLabelValues(s).Set(v)
	}
}

// SetModelLoaded records whether the classifier is available.
func (m *Metrics) SetModelLoaded(loaded bool) {
	if m == nil {
		return
	}
	if loaded {
		m.ModelLoaded.Set(1)
	} else {
		m.ModelLoaded.Set(0)
	}
}

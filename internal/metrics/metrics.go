// Package metrics provides Prometheus instrumentation for handsign.
//
// Metrics exposed:
//   - handsign_frames_total: frames processed by the inference loop
//   - handsign_frames_no_hand_total: frames where no hand region was found
//   - handsign_classify_seconds: histogram of classifier latency
//   - handsign_display_changes_total: times the smoothed label changed
//   - handsign_display_confidence: raw confidence of the latest frame
//   - handsign_samples_captured_total: raw samples written, by label
//   - handsign_samples_removed_total: samples deleted by balancing, by label
//   - handsign_preprocess_total: preprocessed images, by label and outcome
//   - handsign_errors_total: errors by component
//
// Each Metrics owns its registry so several instances can coexist in tests.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
type Metrics struct {
	Registry *prometheus.Registry

	FramesTotal         prometheus.Counter
	NoHandFramesTotal   prometheus.Counter
	ClassifySeconds     prometheus.Histogram
	DisplayChangesTotal prometheus.Counter
	DisplayConfidence   prometheus.Gauge
	SamplesCaptured     *prometheus.CounterVec
	SamplesRemoved      *prometheus.CounterVec
	Preprocessed        *prometheus.CounterVec
	ErrorsTotal         *prometheus.CounterVec
}

// New creates and registers all metrics on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		FramesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "handsign_frames_total",
			Help: "Frames processed by the inference loop",
		}),

		NoHandFramesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "handsign_frames_no_hand_total",
			Help: "Frames where no hand region was found",
		}),

		ClassifySeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "handsign_classify_seconds",
			Help:    "Time spent classifying one region",
			Buckets: []float64{.001, .0025, .005, .01, .025, .05, .1, .25, .5, 1},
		}),

		DisplayChangesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "handsign_display_changes_total",
			Help: "Number of times the smoothed display label changed",
		}),

		DisplayConfidence: factory.NewGauge(prometheus.GaugeOpts{
			Name: "handsign_display_confidence",
			Help: "Raw classifier confidence of the latest frame",
		}),

		SamplesCaptured: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "handsign_samples_captured_total",
			Help: "Raw samples written by capture sessions",
		}, []string{"label"}),

		SamplesRemoved: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "handsign_samples_removed_total",
			Help: "Samples deleted while balancing label classes",
		}, []string{"label"}),

		Preprocessed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "handsign_preprocess_total",
			Help: "Images handled by preprocessing",
		}, []string{"label", "outcome"}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "handsign_errors_total",
			Help: "Errors by component",
		}, []string{"component"}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// RecordError increments the error counter for component. Safe on nil.
func (m *Metrics) RecordError(component string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(component).Inc()
}

// Package metrics exposes the wall's Prometheus instruments.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	sourceRestarts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "piframe_source_restarts_total",
		Help: "Restart requests per source, by trigger reason and outcome",
	}, []string{"source", "reason", "outcome"})

	sourceState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "piframe_source_state",
		Help: "Source lifecycle state (1 for the current state, 0 otherwise)",
	}, []string{"source", "state"})

	deferredDestroy = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "piframe_deferred_destroy_total",
		Help: "Deferred subgraph stop transitions by result",
	}, []string{"result"})

	runtimeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "piframe_runtime_events_total",
		Help: "Events received from the media runtime by type",
	}, []string{"type"})

	sourceErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "piframe_source_errors_total",
		Help: "Runtime errors attributed to a source, by category",
	}, []string{"source", "category"})

	sourceFrames = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "piframe_source_frames_total",
		Help: "Frames leaving each source subgraph",
	}, []string{"source"})

	sourceFPS = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "piframe_source_fps",
		Help: "Mean output frame rate of each source over the recent window",
	}, []string{"source"})
)

var sourceStates = []string{"pending", "active", "restarting", "dark"}

// RecordRestart counts one restart request.
func RecordRestart(source, reason, outcome string) {
	sourceRestarts.WithLabelValues(source, reason, outcome).Inc()
}

// SetSourceState records the current lifecycle state of a source.
func SetSourceState(source, state string) {
	for _, s := range sourceStates {
		value := 0.0
		if s == state {
			value = 1.0
		}
		sourceState.WithLabelValues(source, s).Set(value)
	}
}

// RecordDeferredDestroy counts a completed deferred stop ("ok" or "failed").
func RecordDeferredDestroy(result string) {
	deferredDestroy.WithLabelValues(result).Inc()
}

// RecordEvent counts one runtime event.
func RecordEvent(eventType string) {
	runtimeEvents.WithLabelValues(eventType).Inc()
}

// RecordSourceError counts one categorised error for a source.
func RecordSourceError(source, category string) {
	sourceErrors.WithLabelValues(source, category).Inc()
}

// RecordFrame counts one frame leaving a source subgraph.
func RecordFrame(source string) {
	sourceFrames.WithLabelValues(source).Inc()
}

// SetSourceFPS records the measured frame rate of a source.
func SetSourceFPS(source string, fps float64) {
	sourceFPS.WithLabelValues(source).Set(fps)
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

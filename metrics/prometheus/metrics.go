// Package prometheus exposes gateway metrics in Prometheus format.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "attune"

var (
	// sessionsActive is a gauge of currently connected sessions.
	sessionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active counseling sessions",
		},
	)

	// framesTotal is a counter of accepted inbound frames by type.
	framesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Total number of inbound frames accepted by sessions",
		},
		[]string{"type"}, // type: audio, video, control
	)

	// frameRejectionsTotal is a counter of rejected inbound frames.
	frameRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frame_rejections_total",
			Help:      "Total number of inbound frames rejected before processing",
		},
		[]string{"reason"}, // reason: malformed, unknown_session, busy
	)

	// stageDuration is a histogram of pipeline stage duration in seconds.
	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Histogram of pipeline stage duration in seconds",
			Buckets:   prometheus.DefBuckets, // .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10
		},
		[]string{"stage"},
	)

	// stageFailuresTotal is a counter of failed pipeline stage invocations.
	stageFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stage_failures_total",
			Help:      "Total number of failed pipeline stage invocations",
		},
		[]string{"stage"},
	)

	// utteranceFlushesTotal is a counter of utterance boundary flushes.
	utteranceFlushesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterance_flushes_total",
			Help:      "Total number of audio buffer flushes by trigger",
		},
		[]string{"reason"}, // reason: silence, explicit, overflow
	)

	// turnsTotal is a counter of completed conversation turns.
	turnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of conversation turns",
		},
		[]string{"status"}, // status: success, error
	)

	// turnDuration is a histogram of end-to-end turn duration.
	turnDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "turn_duration_seconds",
			Help:      "Histogram of end-to-end conversation turn duration in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"status"},
	)

	// allMetrics is a list of all metrics for registration.
	allMetrics = []prometheus.Collector{
		sessionsActive,
		framesTotal,
		frameRejectionsTotal,
		stageDuration,
		stageFailuresTotal,
		utteranceFlushesTotal,
		turnsTotal,
		turnDuration,
	}
)

// RecordSessionCount sets the active session gauge.
func RecordSessionCount(active int) {
	sessionsActive.Set(float64(active))
}

// RecordFrame records an accepted inbound frame.
func RecordFrame(frameType string) {
	framesTotal.WithLabelValues(frameType).Inc()
}

// RecordFrameRejection records a rejected inbound frame.
func RecordFrameRejection(reason string) {
	frameRejectionsTotal.WithLabelValues(reason).Inc()
}

// RecordStage records one pipeline stage invocation.
func RecordStage(stage, status string, durationSeconds float64) {
	stageDuration.WithLabelValues(stage).Observe(durationSeconds)
	if status == statusError {
		stageFailuresTotal.WithLabelValues(stage).Inc()
	}
}

// RecordUtteranceFlush records an utterance boundary.
func RecordUtteranceFlush(reason string) {
	utteranceFlushesTotal.WithLabelValues(reason).Inc()
}

// RecordTurn records a completed or failed conversation turn.
func RecordTurn(status string, durationSeconds float64) {
	turnsTotal.WithLabelValues(status).Inc()
	turnDuration.WithLabelValues(status).Observe(durationSeconds)
}

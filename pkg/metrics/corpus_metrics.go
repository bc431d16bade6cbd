// Package metrics provides Prometheus metrics for the corpus pipeline stages.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Stage metrics
var (
	// chunkOutcomesTotal records per-chunk results of each stage.
	// Labels:
	//   - stage: Pipeline stage (e.g., "split", "transcribe", "align")
	//   - status: Outcome status (e.g., "ok", "skipped", "failed")
	//   - reason: Failure reason code, empty on success
	chunkOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corpus_chunk_outcomes_total",
			Help: "Total number of chunk outcomes by stage, status and reason",
		},
		[]string{"stage", "status", "reason"},
	)

	// chunkDuration records per-chunk processing time.
	// Buckets: 10ms .. 2 minutes
	chunkDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "corpus_chunk_duration_seconds",
			Help:    "Per-chunk processing duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	// stageDuration records the wall time of a full stage pass.
	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "corpus_stage_duration_seconds",
			Help:    "Duration of a full stage pass in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 300, 900, 3600},
		},
		[]string{"stage"},
	)

	// backendRequestsTotal records transcription backend calls.
	// Labels:
	//   - backend: Backend name (e.g., "yandex", "google", "whisper")
	//   - status: "success", "no_speech", "error", "retry", "rejected"
	backendRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corpus_backend_requests_total",
			Help: "Total number of transcription backend requests",
		},
		[]string{"backend", "status"},
	)

	// degradationEventsTotal records switches from the primary backend to the fallback.
	degradationEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "corpus_backend_degradation_events_total",
			Help: "Total number of backend degradation events (e.g., yandex -> whisper)",
		},
		[]string{"from_backend", "to_backend"},
	)

	// breakerState exposes circuit breaker state per backend (0=closed, 1=half-open, 2=open).
	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "corpus_backend_breaker_state",
			Help: "Circuit breaker state per backend (0=closed, 1=half-open, 2=open)",
		},
		[]string{"backend"},
	)

	// alignRounds records how many search rounds the aligner needed per chunk.
	alignRounds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "corpus_align_search_rounds",
			Help:    "Number of fuzzy search rounds per aligned chunk",
			Buckets: []float64{1, 2, 3, 5, 8, 13, 21},
		},
	)

	// alignDistance records the edit distance of accepted matches.
	alignDistance = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "corpus_align_distance",
			Help:    "Levenshtein distance of accepted alignment matches",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 40, 70},
		},
	)
)

func init() {
	prometheus.MustRegister(chunkOutcomesTotal)
	prometheus.MustRegister(chunkDuration)
	prometheus.MustRegister(stageDuration)
	prometheus.MustRegister(backendRequestsTotal)
	prometheus.MustRegister(degradationEventsTotal)
	prometheus.MustRegister(breakerState)
	prometheus.MustRegister(alignRounds)
	prometheus.MustRegister(alignDistance)
}

// RecordChunkOutcome records one chunk result.
func RecordChunkOutcome(stage, status, reason string) {
	chunkOutcomesTotal.WithLabelValues(stage, status, reason).Inc()
}

// RecordChunkDuration records per-chunk processing time in seconds.
func RecordChunkDuration(stage string, seconds float64) {
	chunkDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordStageDuration records the duration of a stage pass in seconds.
func RecordStageDuration(stage string, seconds float64) {
	stageDuration.WithLabelValues(stage).Observe(seconds)
}

// RecordBackendRequest records a transcription backend call.
func RecordBackendRequest(backend, status string) {
	backendRequestsTotal.WithLabelValues(backend, status).Inc()
}

// RecordDegradationEvent records a switch from one backend to another.
func RecordDegradationEvent(fromBackend, toBackend string) {
	degradationEventsTotal.WithLabelValues(fromBackend, toBackend).Inc()
}

// SetBreakerState sets the circuit breaker gauge for backend.
func SetBreakerState(backend string, state int) {
	breakerState.WithLabelValues(backend).Set(float64(state))
}

// RecordAlignment records the search rounds and accepted distance of one match.
func RecordAlignment(rounds, distance int) {
	alignRounds.Observe(float64(rounds))
	alignDistance.Observe(float64(distance))
}

// WriteTextfile dumps the default registry in the node_exporter textfile
// format. An empty path is a no-op.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, prometheus.DefaultGatherer); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the transcription service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Transcription runs
	RunsStarted   prometheus.Counter
	RunsCompleted prometheus.Counter
	RunsFailed    *prometheus.CounterVec
	RunDuration   prometheus.Histogram
	AudioSeconds  prometheus.Counter

	// Chunk inference
	ChunksInferred prometheus.Counter
	ChunkDuration  prometheus.Histogram

	// Model lifecycle
	ModelLoads *prometheus.CounterVec
	ModelState prometheus.Gauge

	// Live path
	LiveSessions       prometheus.Gauge
	LiveRetranscribes  prometheus.Counter
	LiveDeferredBuffer prometheus.Counter

	// HTTP API
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RunsStarted: f.NewCounter(prometheus.CounterOpts{
			Name: "thale_transcription_runs_started_total",
			Help: "Total number of transcription runs started",
		}),
		RunsCompleted: f.NewCounter(prometheus.CounterOpts{
			Name: "thale_transcription_runs_completed_total",
			Help: "Total number of transcription runs completed successfully",
		}),
		RunsFailed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "thale_transcription_runs_failed_total",
			Help: "Total number of failed transcription runs by cause",
		}, []string{"reason"}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "thale_transcription_run_duration_seconds",
			Help:    "Wall-clock duration of transcription runs",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12), // 0.5s to ~17 minutes
		}),
		AudioSeconds: f.NewCounter(prometheus.CounterOpts{
			Name: "thale_audio_seconds_transcribed_total",
			Help: "Total seconds of audio transcribed",
		}),

		ChunksInferred: f.NewCounter(prometheus.CounterOpts{
			Name: "thale_chunks_inferred_total",
			Help: "Total number of chunks run through the model",
		}),
		ChunkDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "thale_chunk_inference_duration_seconds",
			Help:    "Time spent on one chunk inference call",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1 minute
		}),

		ModelLoads: f.NewCounterVec(prometheus.CounterOpts{
			Name: "thale_model_loads_total",
			Help: "Model load attempts by outcome",
		}, []string{"outcome"}),
		ModelState: f.NewGauge(prometheus.GaugeOpts{
			Name: "thale_model_state",
			Help: "Model lifecycle state (0 unloaded, 1 loading, 2 loaded)",
		}),

		LiveSessions: f.NewGauge(prometheus.GaugeOpts{
			Name: "thale_live_sessions",
			Help: "Current number of live websocket sessions",
		}),
		LiveRetranscribes: f.NewCounter(prometheus.CounterOpts{
			Name: "thale_live_retranscriptions_total",
			Help: "Total number of whole-buffer re-transcriptions on the live path",
		}),
		LiveDeferredBuffer: f.NewCounter(prometheus.CounterOpts{
			Name: "thale_live_deferred_total",
			Help: "Cadence ticks skipped because the buffer was not decodable yet",
		}),

		HTTPRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "thale_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status_code"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "thale_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// RecordRunStarted increments the started runs counter
func (m *Metrics) RecordRunStarted() {
	if m == nil {
		return
	}
	m.RunsStarted.Inc()
}

// RecordRunCompleted records a successful run and the audio it covered
func (m *Metrics) RecordRunCompleted(durationSeconds, audioSeconds float64) {
	if m == nil {
		return
	}
	m.RunsCompleted.Inc()
	m.RunDuration.Observe(durationSeconds)
	m.AudioSeconds.Add(audioSeconds)
}

// RecordRunFailed records a failed run; reason is a short label such as "inference"
func (m *Metrics) RecordRunFailed(reason string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.RunsFailed.WithLabelValues(reason).Inc()
	m.RunDuration.Observe(durationSeconds)
}

// RecordChunk records one chunk inference
func (m *Metrics) RecordChunk(durationSeconds float64) {
	if m == nil {
		return
	}
	m.ChunksInferred.Inc()
	m.ChunkDuration.Observe(durationSeconds)
}

// RecordModelLoad records a load attempt outcome ("success" or "failure")
func (m *Metrics) RecordModelLoad(outcome string) {
	if m == nil {
		return
	}
	m.ModelLoads.WithLabelValues(outcome).Inc()
}

// SetModelState sets the lifecycle gauge
func (m *Metrics) SetModelState(state int) {
	if m == nil {
		return
	}
	m.ModelState.Set(float64(state))
}

// LiveSessionOpened increments the live sessions gauge
func (m *Metrics) LiveSessionOpened() {
	if m == nil {
		return
	}
	m.LiveSessions.Inc()
}

// LiveSessionClosed decrements the live sessions gauge
func (m *Metrics) LiveSessionClosed() {
	if m == nil {
		return
	}
	m.LiveSessions.Dec()
}

// RecordLiveTick records one cadence tick; deferred is true when the buffer was not ready
func (m *Metrics) RecordLiveTick(deferred bool) {
	if m == nil {
		return
	}
	if deferred {
		m.LiveDeferredBuffer.Inc()
		return
	}
	m.LiveRetranscribes.Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, route, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(durationSeconds)
}

// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ai_live_hints"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Stream metrics
	StreamsTotal   prometheus.Counter
	StreamsActive  prometheus.Gauge
	StreamsSuccess prometheus.Counter
	StreamsFailed  prometheus.Counter
	StreamDuration prometheus.Histogram

	// Audio metrics
	AudioSamplesReceived prometheus.Counter
	AudioFramesReceived  prometheus.Counter
	AudioFramesDropped   prometheus.Counter

	// Buffer / segment metrics
	BufferFlushes      *prometheus.CounterVec
	SegmentsProduced   prometheus.Counter
	SegmentsDropped    *prometheus.CounterVec
	SegmentDuration    prometheus.Histogram
	TranscribeLatency  prometheus.Histogram
	EndToEndLatency    prometheus.Histogram
	TranscriptionError *prometheus.CounterVec

	// Cache metrics
	CacheLookups      *prometheus.CounterVec
	CacheWrites       *prometheus.CounterVec
	SemanticFallbacks prometheus.Counter
	TierLatency       *prometheus.HistogramVec

	// Inference metrics
	InferenceRequests *prometheus.CounterVec
	InferenceErrors   *prometheus.CounterVec
	InferenceTTFT     prometheus.Histogram
	InferenceTotal    prometheus.Histogram
	AnswerLatency     *prometheus.HistogramVec
	ContextDegraded   prometheus.Counter

	// API metrics
	RPCRequests     *prometheus.CounterVec
	RPCLatency      *prometheus.HistogramVec
	RPCPanics       prometheus.Counter
	HTTPRateLimited prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		// Stream metrics
		StreamsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_total",
			Help:      "Total number of audio streams started",
		}),
		StreamsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Number of currently active audio streams",
		}),
		StreamsSuccess: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_success_total",
			Help:      "Total number of successfully completed streams",
		}),
		StreamsFailed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_failed_total",
			Help:      "Total number of failed streams",
		}),
		StreamDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Duration of audio streams in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 300, 900, 1800, 3600},
		}),

		// Audio metrics
		AudioSamplesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_samples_received_total",
			Help:      "Total audio samples received",
		}),
		AudioFramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_received_total",
			Help:      "Total audio frames received",
		}),
		AudioFramesDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_dropped_total",
			Help:      "Audio frames dropped because the frame queue was full",
		}),

		// Buffer / segment metrics
		BufferFlushes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffer_flushes_total",
			Help:      "Flush requests raised by the speech buffer",
		}, []string{"trigger"}),
		SegmentsProduced: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_produced_total",
			Help:      "Transcript segments produced",
		}),
		SegmentsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_dropped_total",
			Help:      "Speech segments discarded without a transcript",
		}, []string{"reason"}),
		SegmentDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "segment_duration_seconds",
			Help:      "Audio duration of transcribed segments",
			Buckets:   []float64{0.25, 0.5, 1, 2, 3, 4, 6, 10},
		}),
		TranscribeLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcribe_latency_seconds",
			Help:      "Time spent in the transcription backend",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),
		EndToEndLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stt_end_to_end_latency_seconds",
			Help:      "Time from last detected sound to transcript ready",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		TranscriptionError: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_errors_total",
			Help:      "Total number of transcription backend errors",
		}, []string{"provider"}),

		// Cache metrics
		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Answer cache lookups by tier and result",
		}, []string{"tier", "result"}),
		CacheWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_writes_total",
			Help:      "Answer cache writes by tier",
		}, []string{"tier"}),
		SemanticFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "semantic_fallback_total",
			Help:      "Semantic cache lookups served by exact string match because embeddings were unavailable",
		}),
		TierLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cache_tier_latency_seconds",
			Help:      "Latency of a single cache tier lookup",
			Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"tier"}),

		// Inference metrics
		InferenceRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_requests_total",
			Help:      "Inference calls issued by question category",
		}, []string{"category"}),
		InferenceErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inference_errors_total",
			Help:      "Inference failures by kind",
		}, []string{"kind"}),
		InferenceTTFT: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_ttft_seconds",
			Help:      "Time to first token from the language model",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		InferenceTotal: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "inference_total_seconds",
			Help:      "Total generation time of the language model",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		AnswerLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "answer_latency_seconds",
			Help:      "Latency of getAnswer by answer source",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"source"}),
		ContextDegraded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "context_degraded_total",
			Help:      "Context assemblies that fell back to the recent-turns window",
		}),

		// API metrics
		RPCRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_requests_total",
			Help:      "Unary gRPC calls by method and status code",
		}, []string{"method", "code"}),
		RPCLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_latency_seconds",
			Help:      "Unary gRPC call latency",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"method"}),
		RPCPanics: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_panics_total",
			Help:      "gRPC handlers that panicked",
		}),
		HTTPRateLimited: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_rate_limited_total",
			Help:      "HTTP requests rejected by the per-client rate limit",
		}),

		// Kafka publish metrics
		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),
	}
}

// RecordStreamStart records a new stream starting.
func (m *Metrics) RecordStreamStart() {
	m.StreamsTotal.Inc()
	m.StreamsActive.Inc()
}

// RecordStreamEnd records a stream ending.
func (m *Metrics) RecordStreamEnd(success bool, durationSeconds float64) {
	m.StreamsActive.Dec()
	m.StreamDuration.Observe(durationSeconds)
	if success {
		m.StreamsSuccess.Inc()
	} else {
		m.StreamsFailed.Inc()
	}
}

// RecordAudioReceived records one audio frame of the given sample count.
func (m *Metrics) RecordAudioReceived(samples int) {
	m.AudioSamplesReceived.Add(float64(samples))
	m.AudioFramesReceived.Inc()
}

// RecordFrameDropped records a frame rejected by a full queue.
func (m *Metrics) RecordFrameDropped() {
	m.AudioFramesDropped.Inc()
}

// RecordFlush records a flush request raised by the buffer.
// trigger is one of "silence", "max_duration", "grace_exhausted".
func (m *Metrics) RecordFlush(trigger string) {
	m.BufferFlushes.WithLabelValues(trigger).Inc()
}

// RecordSegment records a transcribed segment.
func (m *Metrics) RecordSegment(durationSeconds, transcribeSeconds, endToEndSeconds float64) {
	m.SegmentsProduced.Inc()
	m.SegmentDuration.Observe(durationSeconds)
	m.TranscribeLatency.Observe(transcribeSeconds)
	m.EndToEndLatency.Observe(endToEndSeconds)
}

// RecordSegmentDropped records a segment discarded without transcription.
func (m *Metrics) RecordSegmentDropped(reason string) {
	m.SegmentsDropped.WithLabelValues(reason).Inc()
}

// RecordTranscriptionError records an STT backend error.
func (m *Metrics) RecordTranscriptionError(provider string) {
	m.TranscriptionError.WithLabelValues(provider).Inc()
}

// RecordCacheLookup records the outcome of a single tier lookup.
func (m *Metrics) RecordCacheLookup(tier string, hit bool, latencySeconds float64) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(tier, result).Inc()
	m.TierLatency.WithLabelValues(tier).Observe(latencySeconds)
}

// RecordCacheWrite records a write into a cache tier.
func (m *Metrics) RecordCacheWrite(tier string) {
	m.CacheWrites.WithLabelValues(tier).Inc()
}

// RecordSemanticFallback records a semantic lookup served by string match.
func (m *Metrics) RecordSemanticFallback() {
	m.SemanticFallbacks.Inc()
}

// RecordInference records an issued inference call.
func (m *Metrics) RecordInference(category string) {
	m.InferenceRequests.WithLabelValues(category).Inc()
}

// RecordInferenceDone records TTFT and total generation time.
func (m *Metrics) RecordInferenceDone(ttftSeconds, totalSeconds float64) {
	m.InferenceTTFT.Observe(ttftSeconds)
	m.InferenceTotal.Observe(totalSeconds)
}

// RecordInferenceError records a failed inference call.
// kind is one of "timeout", "backend_down", "stream".
func (m *Metrics) RecordInferenceError(kind string) {
	m.InferenceErrors.WithLabelValues(kind).Inc()
}

// RecordAnswer records the latency of a completed getAnswer call.
func (m *Metrics) RecordAnswer(source string, latencySeconds float64) {
	m.AnswerLatency.WithLabelValues(source).Observe(latencySeconds)
}

// RecordContextDegraded records an assembly without knowledge retrieval.
func (m *Metrics) RecordContextDegraded() {
	m.ContextDegraded.Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordRPC records a finished unary call.
func (m *Metrics) RecordRPC(method, code string, latencySeconds float64) {
	m.RPCRequests.WithLabelValues(method, code).Inc()
	m.RPCLatency.WithLabelValues(method).Observe(latencySeconds)
}

// RecordPanic records a recovered handler panic.
func (m *Metrics) RecordPanic() {
	m.RPCPanics.Inc()
}

// RecordRateLimited records a request rejected by the rate limiter.
func (m *Metrics) RecordRateLimited() {
	m.HTTPRateLimited.Inc()
}

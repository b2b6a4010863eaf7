// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "voice_pipeline"

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	// Recording session metrics
	SessionsTotal  prometheus.Counter
	SessionsActive prometheus.Gauge
	SessionsFailed *prometheus.CounterVec

	// Chunk extraction metrics
	ChunksEmitted  *prometheus.CounterVec
	ChunkPeak      prometheus.Histogram
	ExtractorWaits prometheus.Histogram

	// Stream metrics
	StreamsTotal   prometheus.Counter
	StreamsActive  prometheus.Gauge
	StreamsFailed  *prometheus.CounterVec
	StreamDuration prometheus.Histogram

	// Recognition result metrics
	ResultsInterim prometheus.Counter
	ResultsFinal   prometheus.Counter

	// Downstream service metrics
	Classifications      *prometheus.CounterVec
	ClassificationErrors prometheus.Counter
	Translations         prometheus.Counter
	TranslationErrors    prometheus.Counter
	DownstreamLatency    *prometheus.HistogramVec

	// Event bus metrics
	BusEventsPublished *prometheus.CounterVec
	WorldActions       *prometheus.CounterVec

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// gRPC server metrics
	GRPCCalls        *prometheus.CounterVec
	GRPCCallDuration *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
// Registration is global, so it must only be called once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recording_sessions_total",
			Help:      "Total number of recording sessions started",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recording_sessions_active",
			Help:      "Number of currently active recording sessions",
		}),
		SessionsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recording_sessions_failed_total",
			Help:      "Total number of recording sessions terminated by an error",
		}, []string{"reason"}),

		ChunksEmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_emitted_total",
			Help:      "Total number of half-buffer chunks extracted",
		}, []string{"half"}),
		ChunkPeak: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_peak_amplitude",
			Help:      "Peak amplitude of extracted chunks",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 0.75, 1},
		}),
		ExtractorWaits: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extractor_wait_seconds",
			Help:      "Backoff durations chosen by the chunk extractor",
			Buckets:   []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}),

		StreamsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_total",
			Help:      "Total number of recognition streams started",
		}),
		StreamsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "streams_active",
			Help:      "Number of currently active recognition streams",
		}),
		StreamsFailed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "streams_failed_total",
			Help:      "Total number of recognition streams that ended with an error",
		}, []string{"provider"}),
		StreamDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stream_duration_seconds",
			Help:      "Duration of recognition streams in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}),

		ResultsInterim: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_interim_total",
			Help:      "Total number of interim recognition results received",
		}),
		ResultsFinal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "results_final_total",
			Help:      "Total number of final recognition results received",
		}),

		Classifications: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classifications_total",
			Help:      "Total number of intents classified",
		}, []string{"intent"}),
		ClassificationErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "classification_errors_total",
			Help:      "Total number of failed classification calls",
		}),
		Translations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translations_total",
			Help:      "Total number of successful translations",
		}),
		TranslationErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "translation_errors_total",
			Help:      "Total number of failed translation calls",
		}),
		DownstreamLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "downstream_latency_seconds",
			Help:      "Latency of classification and translation calls",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"service"}),

		BusEventsPublished: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bus_events_published_total",
			Help:      "Total number of named events published on the event bus",
		}, []string{"event"}),
		WorldActions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "world_actions_total",
			Help:      "Total number of world actions performed",
		}, []string{"action"}),

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

		GRPCCalls: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_calls_total",
			Help:      "Total number of gRPC calls handled",
		}, []string{"method", "code"}),
		GRPCCallDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_call_duration_seconds",
			Help:      "gRPC call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// RecordSessionStart records a recording session starting.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a recording session ending. An empty reason means a clean stop.
func (m *Metrics) RecordSessionEnd(reason string) {
	m.SessionsActive.Dec()
	if reason != "" {
		m.SessionsFailed.WithLabelValues(reason).Inc()
	}
}

// RecordChunk records one extracted chunk.
func (m *Metrics) RecordChunk(half string, peak float32) {
	m.ChunksEmitted.WithLabelValues(half).Inc()
	m.ChunkPeak.Observe(float64(peak))
}

// RecordWait records an extractor backoff.
func (m *Metrics) RecordWait(seconds float64) {
	m.ExtractorWaits.Observe(seconds)
}

// RecordStreamStart records a new recognition stream starting.
func (m *Metrics) RecordStreamStart() {
	m.StreamsTotal.Inc()
	m.StreamsActive.Inc()
}

// RecordStreamEnd records a recognition stream ending.
func (m *Metrics) RecordStreamEnd(provider string, failed bool, durationSeconds float64) {
	m.StreamsActive.Dec()
	m.StreamDuration.Observe(durationSeconds)
	if failed {
		m.StreamsFailed.WithLabelValues(provider).Inc()
	}
}

// RecordInterim records an interim result received.
func (m *Metrics) RecordInterim() {
	m.ResultsInterim.Inc()
}

// RecordFinal records a final result received.
func (m *Metrics) RecordFinal() {
	m.ResultsFinal.Inc()
}

// RecordClassification records a classification call outcome.
func (m *Metrics) RecordClassification(intent string, err error, latencySeconds float64) {
	m.DownstreamLatency.WithLabelValues("classification").Observe(latencySeconds)
	if err != nil {
		m.ClassificationErrors.Inc()
		return
	}
	if intent != "" {
		m.Classifications.WithLabelValues(intent).Inc()
	}
}

// RecordTranslation records a translation call outcome.
func (m *Metrics) RecordTranslation(err error, latencySeconds float64) {
	m.DownstreamLatency.WithLabelValues("translation").Observe(latencySeconds)
	if err != nil {
		m.TranslationErrors.Inc()
		return
	}
	m.Translations.Inc()
}

// RecordBusEvent records a named event published on the bus.
func (m *Metrics) RecordBusEvent(name string) {
	m.BusEventsPublished.WithLabelValues(name).Inc()
}

// RecordWorldAction records a world action performed by the side-effect controller.
func (m *Metrics) RecordWorldAction(action string) {
	m.WorldActions.WithLabelValues(action).Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordGRPCCall records one handled gRPC call.
func (m *Metrics) RecordGRPCCall(method, code string, durationSeconds float64) {
	m.GRPCCalls.WithLabelValues(method, code).Inc()
	m.GRPCCallDuration.WithLabelValues(method).Observe(durationSeconds)
}

package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "audio_transcription"

// Metrics contains the Prometheus collectors for the upload pipeline
type Metrics struct {
	registry *prometheus.Registry

	// Upload metrics
	Uploads   *prometheus.CounterVec
	ChunkSize prometheus.Histogram

	// Transcription metrics
	TranscriptionDuration *prometheus.HistogramVec

	// Broadcast metrics
	Broadcasts prometheus.Counter
}

// New creates the collectors on a dedicated registry. clients reports the
// number of connected websocket clients and may be nil.
func New(clients func() int) *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	m := &Metrics{
		registry: registry,
		Uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Total number of audio chunk uploads by outcome",
		}, []string{"outcome"}),
		ChunkSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "chunk_size_bytes",
			Help:      "Size of uploaded audio chunks in bytes",
			Buckets:   prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),
		TranscriptionDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_duration_seconds",
			Help:      "Duration of transcription requests by outcome",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1 minute
		}, []string{"outcome"}),
		Broadcasts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "broadcasts_total",
			Help:      "Total number of transcriptions pushed to listeners",
		}),
	}

	if clients != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connected_clients",
			Help:      "Current number of connected websocket clients",
		}, func() float64 { return float64(clients()) })
	}

	return m
}

// RecordUpload counts an upload and, when it carried audio, its size
func (m *Metrics) RecordUpload(outcome string, chunkBytes int) {
	m.Uploads.WithLabelValues(outcome).Inc()
	if chunkBytes > 0 {
		m.ChunkSize.Observe(float64(chunkBytes))
	}
}

// RecordTranscription records how long a transcription call took
func (m *Metrics) RecordTranscription(outcome string, elapsed time.Duration) {
	m.TranscriptionDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// RecordBroadcast increments the broadcast counter
func (m *Metrics) RecordBroadcast() {
	m.Broadcasts.Inc()
}

// Handler exposes the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

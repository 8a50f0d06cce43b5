package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics records pipeline activity on its own registry.
type Metrics struct {
	registry *prometheus.Registry

	// Recording metrics
	Recordings    prometheus.Counter
	RecordingSize prometheus.Histogram

	// Upload metrics
	Uploads *prometheus.CounterVec

	// Transcription metrics
	Polls          *prometheus.CounterVec
	Transcriptions *prometheus.CounterVec

	// Completion metrics
	Completions        *prometheus.CounterVec
	CompletionDuration prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Recordings: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_total",
			Help:      "Total number of finished recordings",
		}),
		RecordingSize: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recording_size_bytes",
			Help:      "Size of finished recordings in bytes",
			Buckets:   prometheus.ExponentialBuckets(4096, 2, 12), // 4KB to ~8MB
		}),

		Uploads: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "uploads_total",
			Help:      "Total number of clip uploads by result",
		}, []string{"result"}),

		Polls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcript_polls_total",
			Help:      "Total number of transcript status polls by result",
		}, []string{"result"}),
		Transcriptions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcriptions_total",
			Help:      "Total number of finished transcription jobs by outcome",
		}, []string{"outcome"}),

		Completions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "completions_total",
			Help:      "Total number of chat completion requests by result",
		}, []string{"result"}),
		CompletionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "completion_duration_seconds",
			Help:      "Latency of chat completion requests",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 8), // 250ms to ~32s
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRecording(bytes int) {
	m.Recordings.Inc()
	m.RecordingSize.Observe(float64(bytes))
}

func (m *Metrics) ObserveUpload(err error) {
	m.Uploads.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) ObservePoll(err error) {
	m.Polls.WithLabelValues(result(err)).Inc()
}

func (m *Metrics) ObserveTranscription(outcome string) {
	m.Transcriptions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveCompletion(elapsed time.Duration, err error) {
	m.Completions.WithLabelValues(result(err)).Inc()
	m.CompletionDuration.Observe(elapsed.Seconds())
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

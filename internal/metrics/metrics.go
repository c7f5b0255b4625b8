// Package metrics declares the Prometheus collectors of the abai service.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "abai"

// Answer pipeline outcomes, used as the "path" label.
const (
	PathFAQ       = "faq"
	PathGenerated = "generated"
	PathFallback  = "fallback"
	PathEmpty     = "empty"
)

var (
	AnswersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "answers_total",
			Help:      "Answers produced by the pipeline, by path",
		},
		[]string{"path"},
	)

	RetrievedChunks = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retrieved_chunks",
			Help:      "Knowledge chunks injected into a prompt",
			Buckets:   []float64{0, 1, 2, 3, 4, 5, 8},
		},
	)

	WarmupDuration = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "warmup_duration_seconds",
			Help:      "Time spent embedding FAQ phrases and knowledge chunks at startup",
		},
	)

	WarmupReady = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "warmup_ready",
			Help:      "1 once the embedding snapshot is published",
		},
	)
)

var pipelineMetricsRegistered bool

// RegisterPipelineMetrics registers answer pipeline and warmup metrics. Must be called once from main.
func RegisterPipelineMetrics() {
	if pipelineMetricsRegistered {
		return
	}
	prometheus.MustRegister(AnswersTotal)
	prometheus.MustRegister(RetrievedChunks)
	prometheus.MustRegister(WarmupDuration)
	prometheus.MustRegister(WarmupReady)
	pipelineMetricsRegistered = true
}

// Package metrics defines the Prometheus collectors for the transcription and rollup pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SummariesGenerated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nikki_summaries_generated_total",
			Help: "Summaries written, by level",
		},
		[]string{"level"},
	)

	SummaryCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nikki_summary_cache_hits_total",
			Help: "Summary requests skipped because the input hash was unchanged, by level",
		},
		[]string{"level"},
	)

	GuardSkips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nikki_generation_guard_skips_total",
			Help: "Rollups skipped because the same period was already being generated",
		},
		[]string{"level"},
	)

	RollupFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nikki_rollup_failures_total",
			Help: "Rollups or session summaries that failed and were skipped",
		},
		[]string{"level"},
	)

	EngineLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "nikki_summarizer_latency_seconds",
			Help:    "Summarization engine call latency in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"operation"},
	)

	Transcriptions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nikki_transcriptions_total",
			Help: "Chunk transcriptions by outcome",
		},
		[]string{"outcome"},
	)

	ActiveTranscriptions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nikki_transcriptions_active",
			Help: "Chunks currently being transcribed",
		},
	)

	QueuedChunks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nikki_transcription_queue_length",
			Help: "Chunks waiting for a transcription slot",
		},
	)
)

package ingestion_engine

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	batchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "knowledge_ingest_batches_total",
		Help: "Chunk batches processed, by outcome.",
	}, []string{"outcome"})

	chunksWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "knowledge_ingest_chunks_written_total",
		Help: "Knowledge records written.",
	})

	rollbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "knowledge_ingest_rollbacks_total",
		Help: "Compensations run after a failed ingestion.",
	})

	pdfFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "knowledge_extract_vision_fallbacks_total",
		Help: "PDF extractions that fell back to the vision model.",
	})

	enrichDegraded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "knowledge_enrich_degraded_total",
		Help: "Chunks written with placeholder enrichment.",
	})

	archiveRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "knowledge_archive_retries_total",
		Help: "Blob upload attempts beyond the first.",
	})

	embedLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "knowledge_embed_duration_seconds",
		Help:    "Latency of batch embedding calls.",
		Buckets: prometheus.DefBuckets,
	})
)

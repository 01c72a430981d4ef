// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "docqa"

var (
	// IngestedChunks counts chunks written to the vector index.
	IngestedChunks = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingested_chunks_total",
		Help:      "Chunks embedded and stored by /ingest",
	})

	// IngestFailures counts failed ingests by the stage that failed.
	IngestFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "ingest_failures_total",
		Help:      "Failed ingests by stage",
	}, []string{"stage"})

	// Questions counts answered questions.
	Questions = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "questions_total",
		Help:      "Questions answered by /ask",
	})

	// EmbeddingCache counts query-embedding cache lookups with label "result" (hit/miss).
	EmbeddingCache = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "embedding_cache_total",
		Help:      "Query embedding cache lookups",
	}, []string{"result"})

	// ReconciledObjects counts orphaned blobs removed by the reconciler.
	ReconciledObjects = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "reconciled_objects_total",
		Help:      "Orphaned objects removed by the reconciler",
	})
)

func init() {
	prometheus.MustRegister(
		httpRequestDuration,
		httpRequestsTotal,
		IngestedChunks,
		IngestFailures,
		Questions,
		EmbeddingCache,
		ReconciledObjects,
	)
}

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pagesmith"

var (
	// Requests counts served HTTP requests by route and status code.
	Requests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Served HTTP requests by route and status.",
	}, []string{"route", "status"})

	// CacheLookups counts page cache lookups by result (hit, miss, expired, error).
	CacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_lookups_total",
		Help:      "Page cache lookups by result.",
	}, []string{"result"})

	// CacheWrites counts page cache writes by status.
	CacheWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_writes_total",
		Help:      "Page cache writes by status.",
	}, []string{"status"})

	// CacheEvictions counts entries removed to stay under the key limit.
	CacheEvictions = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "cache_evictions_total",
		Help:      "Entries evicted to stay under the key limit.",
	})

	// CacheKeys tracks the number of cached pages.
	CacheKeys = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "cache_keys",
		Help:      "Current number of cached pages.",
	})

	// AdmissionDecisions counts crawler admission outcomes per stage.
	AdmissionDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "admission_decisions_total",
		Help:      "Admission outcomes per stage.",
	}, []string{"stage", "result"})

	// CrawlerWindows tracks requester keys with a live rate window.
	CrawlerWindows = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "crawler_windows",
		Help:      "Requester keys with a live rate window.",
	})

	// Generations counts content generation attempts by source and status.
	Generations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "generations_total",
		Help:      "Content generations by source and status.",
	}, []string{"source", "status"})

	// GenerationDuration records backend generation latency.
	GenerationDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "generation_duration_seconds",
		Help:      "Text-generation backend latency in seconds.",
		Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 40, 60, 120},
	})

	// GenerationsShared counts requests that joined an in-flight generation.
	GenerationsShared = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "generations_shared_total",
		Help:      "Requests served by an in-flight generation for the same path.",
	})

	// EnrichmentCalls counts encyclopedia API calls by endpoint and status.
	EnrichmentCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "enrichment_calls_total",
		Help:      "Encyclopedia API calls by endpoint and status.",
	}, []string{"endpoint", "status"})

	// EnrichmentDuration records encyclopedia API latency.
	EnrichmentDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "enrichment_duration_seconds",
		Help:      "Encyclopedia API latency in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
	}, []string{"endpoint"})

	// EnrichmentResults counts lookups by the step that produced the extract.
	EnrichmentResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "enrichment_results_total",
		Help:      "Enrichment lookups by resolving step (summary, search, empty).",
	}, []string{"step"})

	// JobsEnqueued counts jobs placed into the worker channel.
	JobsEnqueued = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_enqueued_total",
		Help:      "Jobs placed into worker channel.",
	}, []string{"kind"})

	// JobsDropped counts jobs discarded before processing.
	JobsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_dropped_total",
		Help:      "Jobs discarded before processing.",
	}, []string{"reason"})

	// JobsProcessed counts worker completions.
	JobsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "jobs_processed_total",
		Help:      "Worker job completions.",
	}, []string{"kind", "status"})

	// DBSizeBytes tracks bbolt on-disk file size.
	DBSizeBytes = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "db_size_bytes",
		Help:      "bbolt on-disk file size in bytes.",
	})

	// WorkerQueueDepth tracks current job channel length.
	WorkerQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "worker_queue_depth",
		Help:      "Current job channel buffer depth.",
	})
)

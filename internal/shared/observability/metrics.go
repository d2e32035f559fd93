package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	ParseDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rtinfer_parse_duration_seconds",
		Help:    "Time spent parsing and converting a Ruby source file.",
		Buckets: prometheus.DefBuckets,
	})

	QueriesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtinfer_queries_total",
		Help: "Total number of return-type queries, by outcome (typed, empty, error).",
	}, []string{"result"})

	InferenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "rtinfer_inference_duration_seconds",
		Help:    "Time spent answering one top-level return-type query.",
		Buckets: prometheus.DefBuckets,
	})

	DiagnosticsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtinfer_diagnostics_total",
		Help: "Total number of distinct diagnostics reported, by kind.",
	}, []string{"kind"})

	FieldWritesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtinfer_field_writes_total",
		Help: "Total number of writes into global and instance field types.",
	})

	FormCacheEntries = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "rtinfer_form_cache_entries",
		Help: "Current number of cached control-flow/SSA forms.",
	})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "rtinfer_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})

	HistoryWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rtinfer_history_writes_total",
		Help: "Total number of run records persisted, by outcome.",
	}, []string{"result"})
)

package indexer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// filesTotal counts files processed by index runs.
	// Labels: outcome (written, unchanged, failed)
	filesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jsguide",
		Subsystem: "indexer",
		Name:      "files_total",
		Help:      "Files processed by index runs by outcome",
	}, []string{"outcome"})

	runSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "jsguide",
		Subsystem: "indexer",
		Name:      "run_seconds",
		Help:      "Duration of complete index runs",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
	})

	// summaryLookupsTotal counts summary retrievals.
	// Labels: source (cache, store, derived)
	summaryLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "jsguide",
		Subsystem: "indexer",
		Name:      "summary_lookups_total",
		Help:      "Summary retrievals by the source that served them",
	}, []string{"source"})
)

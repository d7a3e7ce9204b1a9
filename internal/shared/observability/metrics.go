package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics definitions
var (
	ParsingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pydeps_parsing_seconds",
		Help:    "Time spent parsing a Python source file.",
		Buckets: prometheus.DefBuckets,
	})

	ParseCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pydeps_parse_cache_lookups_total",
		Help: "Parse cache lookups by result.",
	}, []string{"result"})

	GraphNodes = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pydeps_graph_nodes_total",
		Help: "Total number of modules in the import graph.",
	})

	GraphEdges = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pydeps_graph_edges_total",
		Help: "Total number of classified import edges.",
	})

	GraphDiagnostics = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pydeps_graph_diagnostics_total",
		Help: "Non-fatal diagnostics recorded by the last build.",
	})

	AnalysisDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pydeps_analysis_seconds",
		Help:    "Time spent on high-level tasks such as scan, build and resolve.",
		Buckets: prometheus.DefBuckets,
	}, []string{"task"})

	ResolvedPackages = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "pydeps_resolved_packages",
		Help: "External packages reached by a resolver group.",
	}, []string{"group"})

	WatcherEventsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pydeps_watcher_events_total",
		Help: "Total number of file system events received by the watcher.",
	})

	RescansTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pydeps_rescans_total",
		Help: "Watch-mode rescans by outcome.",
	}, []string{"outcome"})
)

package render

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the panel pipeline. Registered once at package
// init on the default registry.
var (
	panelsRendered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "trellis",
			Subsystem: "render",
			Name:      "panels_total",
			Help:      "Total panels processed, by collection and outcome",
		},
		[]string{"collection", "status"},
	)

	renderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trellis",
			Subsystem: "render",
			Name:      "panel_seconds",
			Help:      "Per-panel render latency distribution",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
		},
		[]string{"collection", "format"},
	)

	batchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "trellis",
			Subsystem: "render",
			Name:      "batch_seconds",
			Help:      "Whole-batch render duration",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		},
		[]string{"collection"},
	)

	activeWorkers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "trellis",
			Subsystem: "render",
			Name:      "active_workers",
			Help:      "Workers currently processing panel chunks",
		},
		[]string{"collection"},
	)
)

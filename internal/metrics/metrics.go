// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScanOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qrattend",
		Name:      "scan_outcomes_total",
		Help:      "Processed scan frames by outcome.",
	}, []string{"outcome"})

	LedgerAppendSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "qrattend",
		Name:      "ledger_append_seconds",
		Help:      "Latency of attendance event appends.",
		Buckets:   prometheus.DefBuckets,
	})

	SummaryCache = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qrattend",
		Name:      "summary_cache_total",
		Help:      "Summary cache lookups by result (hit, miss, error).",
	}, []string{"result"})

	OpenScanSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "qrattend",
		Name:      "scan_sessions_open",
		Help:      "Scan sessions currently open in this process.",
	})

	NotificationsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qrattend",
		Name:      "worker_notifications_total",
		Help:      "Recorded-event notifications handled by the worker.",
	}, []string{"status"})
)

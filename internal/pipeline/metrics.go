package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	stageTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "txpipe",
		Name:      "stage_total",
		Help:      "Pipeline stages run, by transaction kind, stage and outcome.",
	}, []string{"kind", "stage", "outcome"})

	stageDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "txpipe",
		Name:      "stage_duration_seconds",
		Help:      "Time spent in each pipeline stage.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"kind", "stage"})

	pollAttempts = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "txpipe",
		Name:      "poll_attempts",
		Help:      "Lookups needed before a transaction was found or polling gave up.",
		Buckets:   prometheus.LinearBuckets(1, 2, 10),
	}, []string{"kind"})

	terminalTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "txpipe",
		Name:      "terminal_total",
		Help:      "Terminal renderings emitted, by transaction kind and phase.",
	}, []string{"kind", "phase"})
)

package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// JobMetrics background job instrumentation
type JobMetrics struct {
	RunsTotal       *prometheus.CounterVec
	RunDuration     *prometheus.HistogramVec
	LastSuccess     *prometheus.GaugeVec
	RatesReconciled *prometheus.CounterVec
	FeedRows        prometheus.Gauge
}

var jobMetrics = &JobMetrics{
	RunsTotal: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "currency_job_runs_total",
			Help: "Background job runs by job and outcome",
		},
		[]string{"job", "status"},
	),
	RunDuration: promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "currency_job_duration_seconds",
			Help:    "Background job run time",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"job"},
	),
	LastSuccess: promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "currency_job_last_success_timestamp_seconds",
			Help: "Unix time of the last successful run",
		},
		[]string{"job"},
	),
	RatesReconciled: promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "currency_rates_reconciled_total",
			Help: "Rate rows handled by reconciliation by action",
		},
		[]string{"action"},
	),
	FeedRows: promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "currency_feed_rows",
			Help: "Rows in the most recently fetched feed",
		},
	),
}

// Metrics returns the package job metrics
func Metrics() *JobMetrics {
	return jobMetrics
}

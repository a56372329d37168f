package reconciler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "securebox_reconciler_runs_total",
		Help: "Completed reconciler task executions.",
	}, []string{"task"})
	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "securebox_reconciler_errors_total",
		Help: "Reconciler task executions that exhausted their retries.",
	}, []string{"task"})
	runDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "securebox_reconciler_duration_seconds",
		Help:    "Duration of reconciler task executions.",
		Buckets: prometheus.DefBuckets,
	}, []string{"task"})
)

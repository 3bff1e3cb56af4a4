package listctl

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch outcomes.
const (
	outcomeApplied = "applied"
	outcomeStale   = "stale"
	outcomeFailed  = "failed"
	outcomeOK      = "ok"
)

// Prometheus metrics for list controllers.
var (
	listFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_list_fetches_total",
		Help: "Total list fetches by resource and outcome (applied, stale, failed)",
	}, []string{"resource", "outcome"})

	listFetchDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "crm_list_fetch_duration_seconds",
		Help:    "List fetch duration in seconds by resource",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"resource"})

	listMutationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "crm_list_mutations_total",
		Help: "Total create/update/delete calls by resource, operation and outcome",
	}, []string{"resource", "op", "outcome"})
)

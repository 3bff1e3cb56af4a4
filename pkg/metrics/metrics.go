// Package metrics exposes the Prometheus metrics of the CRM admin client.
// All metrics are defined in their respective packages (listctl, client,
// cache, ratelimit) and registered via promauto on the default registry.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// Prefix is shared by every metric of this module.
const Prefix = "crm_"

// Registry is the registerer the packages register on.
var Registry = prometheus.DefaultRegisterer

// Gatherer reads back what Registry collected.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the metrics in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{})
}

// Serve exposes Handler at /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Serving metrics")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Sample is one counter or gauge value.
type Sample struct {
	Name   string
	Labels map[string]string
	Value  float64
}

// Summary returns the non-zero counters and gauges carrying Prefix, sorted by
// name. Histograms report their sample count.
func Summary(g prometheus.Gatherer) ([]Sample, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}

	var out []Sample
	for _, mf := range families {
		if !strings.HasPrefix(mf.GetName(), Prefix) {
			continue
		}
		for _, m := range mf.GetMetric() {
			var v float64
			switch {
			case m.GetCounter() != nil:
				v = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				v = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				v = float64(m.GetHistogram().GetSampleCount())
			default:
				continue
			}
			if v == 0 {
				continue
			}

			labels := make(map[string]string, len(m.GetLabel()))
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			out = append(out, Sample{Name: mf.GetName(), Labels: labels, Value: v})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Metrics Documentation
//
// List Controller Metrics (pkg/listctl):
//   - crm_list_fetches_total{resource, outcome} (Counter): applied, stale or failed fetches
//   - crm_list_fetch_duration_seconds{resource} (Histogram): List call duration
//   - crm_list_mutations_total{resource, op, outcome} (Counter): create, update and delete results
//
// Rate Limit Metrics (pkg/ratelimit):
//   - crm_rate_limit_remaining (Gauge): Requests remaining in the current window
//   - crm_rate_limit_blocks_total (Counter): Requests blocked below the critical threshold
//   - crm_rate_limit_throttles_total (Counter): Requests delayed below the warning threshold
//
// Cache Metrics (pkg/cache):
//   - crm_cache_hits_total{layer="redis"} (Counter): Cache hits by layer
//   - crm_cache_misses_total (Counter): Cache misses
//   - crm_cache_size_bytes{layer="redis"} (Gauge): Bytes written by the last store
//   - crm_cache_not_modified_total (Counter): 304 Not Modified responses
//   - crm_cache_conditional_requests_total (Counter): Requests sent with If-None-Match
//   - crm_cache_errors_total{operation} (Counter): Cache operation errors
//   - crm_cache_invalidations_total (Counter): Entries dropped after mutations
//
// Request Metrics (pkg/client):
//   - crm_requests_total{endpoint, status} (Counter): Requests by endpoint and HTTP status
//   - crm_request_duration_seconds{endpoint} (Histogram): Request duration by endpoint
//   - crm_errors_total{class} (Counter): Errors by class (client, server, rate_limit, network)
//   - crm_retries_total, crm_retry_backoff_seconds, crm_retry_exhausted_total: retry behaviour
//
// Example Prometheus Queries:
//
//	# Stale response ratio per collection
//	sum by (resource) (rate(crm_list_fetches_total{outcome="stale"}[5m]))
//	  / sum by (resource) (rate(crm_list_fetches_total[5m]))
//
//	# Cache Hit Rate
//	sum(rate(crm_cache_hits_total[5m])) /
//	(sum(rate(crm_cache_hits_total[5m])) + sum(rate(crm_cache_misses_total[5m])))
//
//	# P95 Request Latency
//	histogram_quantile(0.95, rate(crm_request_duration_seconds_bucket[5m]))

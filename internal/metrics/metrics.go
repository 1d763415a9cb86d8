// Package metrics holds the process-wide prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AuthAttempts counts authenticate() calls by outcome (ok, failed, unavailable).
	AuthAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wbp_auth_attempts_total",
		Help: "Authentication attempts by outcome",
	}, []string{"outcome"})

	// LedgerOperations counts budget ledger calls by operation and outcome.
	LedgerOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wbp_ledger_operations_total",
		Help: "Budget ledger operations by operation and outcome",
	}, []string{"operation", "outcome"})

	// CacheInvalidations counts invalidation requests by requested scope and
	// the scope actually applied (prefix, all, error).
	CacheInvalidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wbp_cache_invalidations_total",
		Help: "Cache invalidations by requested scope and outcome",
	}, []string{"scope", "outcome"})

	ModelFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "wbp_model_fetch_total",
		Help: "Embedding model provisioning runs by outcome",
	}, []string{"outcome"})
)

func Handler() http.Handler {
	return promhttp.Handler()
}

// Package monitor exposes Prometheus metrics for the matching service.
package monitor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ordersCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_orders_created_total",
		Help: "Orders accepted and stored as OPEN",
	})
	ordersCancelled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_orders_cancelled_total",
		Help: "Orders cancelled by their owner",
	})
	matchesCommitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_matches_committed_total",
		Help: "Matches committed to the store",
	})
	matchConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_match_conflicts_total",
		Help: "Match transactions retried after a concurrency conflict",
	})
	settlementsConfirmed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "marketplace_settlements_confirmed_total",
		Help: "Matches confirmed settled on chain",
	})
	matchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "marketplace_match_duration_seconds",
		Help:    "Wall time of a match call including retries",
		Buckets: prometheus.DefBuckets,
	})
)

// Convenience helpers so callers never touch the collectors directly.

func IncOrdersCreated()        { ordersCreated.Inc() }
func IncOrdersCancelled()      { ordersCancelled.Inc() }
func IncMatchesCommitted()     { matchesCommitted.Inc() }
func IncMatchConflicts()       { matchConflicts.Inc() }
func IncSettlementsConfirmed() { settlementsConfirmed.Inc() }

func ObserveMatchDuration(seconds float64) { matchDuration.Observe(seconds) }

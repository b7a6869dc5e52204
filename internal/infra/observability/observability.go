// Package observability defines the Prometheus metrics for the StepCoin
// backend. Metrics are package-level promauto collectors registered on the
// default registry and exposed at /metrics by the API server.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Ledger Metrics ─────────────────────────────────────────────────────────

// AccrualsTotal counts processed step observations (including zero-delta).
var AccrualsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "stepcoin",
	Subsystem: "ledger",
	Name:      "accruals_total",
	Help:      "Total step observations processed by the ledger.",
})

// StepDelta tracks the distribution of positive step deltas per observation.
var StepDelta = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "stepcoin",
	Subsystem: "ledger",
	Name:      "step_delta",
	Help:      "Step delta per accrual observation.",
	Buckets:   []float64{10, 50, 100, 500, 1000, 5000, 10000, 50000},
})

// CoinsEarnedTotal counts StepCoins credited, by source.
var CoinsEarnedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "stepcoin",
	Subsystem: "ledger",
	Name:      "coins_earned_total",
	Help:      "Total StepCoins credited, by source.",
}, []string{"source"})

// CoinsSpentTotal counts StepCoins debited by redemptions.
var CoinsSpentTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "stepcoin",
	Subsystem: "ledger",
	Name:      "coins_spent_total",
	Help:      "Total StepCoins spent on reward redemptions.",
})

// BonusClaimsTotal counts daily bonus claims by outcome.
var BonusClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "stepcoin",
	Subsystem: "ledger",
	Name:      "bonus_claims_total",
	Help:      "Total daily bonus claims by outcome (granted, duplicate, invalid).",
}, []string{"outcome"})

// RedemptionsTotal counts redemption attempts by outcome.
var RedemptionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "stepcoin",
	Subsystem: "ledger",
	Name:      "redemptions_total",
	Help:      "Total redemption attempts by outcome (ok, unknown_item, insufficient_funds).",
}, []string{"outcome"})

// ─── Poller Metrics ─────────────────────────────────────────────────────────

// PollerCycles counts completed poll cycles.
var PollerCycles = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "stepcoin",
	Subsystem: "poller",
	Name:      "cycles_total",
	Help:      "Total completed step-source poll cycles.",
})

// PollerSourceErrors counts step-source query failures (skipped, retried
// next cycle).
var PollerSourceErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "stepcoin",
	Subsystem: "poller",
	Name:      "source_errors_total",
	Help:      "Total step-source query failures.",
})

// ─── Anomaly Metrics ────────────────────────────────────────────────────────

// AnomalousDeltas counts step deltas flagged as implausible.
var AnomalousDeltas = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "stepcoin",
	Subsystem: "anomaly",
	Name:      "deltas_flagged_total",
	Help:      "Total step deltas flagged as implausible, by reason.",
}, []string{"reason"})

package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	closingComputations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_closing_computations_total",
		Help: "Closing balance computations, labeled by trigger and outcome",
	}, []string{"trigger", "outcome"})

	closingComputeDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledger_closing_compute_duration_seconds",
		Help:    "Latency of one day's read-fold-write",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})

	carryForwardChainLength = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ledger_carry_forward_chain_days",
		Help:    "Days materialized to answer one closing balance read",
		Buckets: []float64{1, 2, 5, 10, 30, 90, 180, 365},
	})

	closingAdjustments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_closing_adjustments_total",
		Help: "Direct-add adjustments, labeled by path",
	}, []string{"path"})

	reconciliationMismatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ledger_reconciliation_mismatches_total",
		Help: "Accounts whose ledger flow disagreed with payment line items",
	})
)

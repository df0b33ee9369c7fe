// Package observability holds the Prometheus metrics for the credit and
// exchange core. All metrics are registered at package load via promauto
// and exported on the API server's /metrics endpoint.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Credit Metrics ─────────────────────────────────────────────────────────

// TransfersTotal counts successful credit transfers by transaction type.
var TransfersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "skillforge",
	Subsystem: "credits",
	Name:      "transfers_total",
	Help:      "Total successful credit transfers by transaction type.",
}, []string{"type"})

// TransferFailuresTotal counts refused transfers by failure kind.
var TransferFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "skillforge",
	Subsystem: "credits",
	Name:      "transfer_failures_total",
	Help:      "Total refused credit transfers by failure kind.",
}, []string{"reason"})

// CreditsMoved tracks the volume of credits moved by successful transfers.
var CreditsMoved = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "skillforge",
	Subsystem: "credits",
	Name:      "moved_total",
	Help:      "Total time-credits moved by successful transfers.",
})

// ─── Exchange Metrics ───────────────────────────────────────────────────────

// ExchangeTransitionsTotal counts applied exchange transitions by target state.
var ExchangeTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "skillforge",
	Subsystem: "exchanges",
	Name:      "transitions_total",
	Help:      "Total applied exchange transitions by target status.",
}, []string{"to"})

// InvalidTransitionsTotal counts refused transitions.
var InvalidTransitionsTotal = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "skillforge",
	Subsystem: "exchanges",
	Name:      "invalid_transitions_total",
	Help:      "Total refused exchange transitions.",
})

// ─── Sweeper Metrics ────────────────────────────────────────────────────────

// SweeperRuns counts sweeper runs by result.
var SweeperRuns = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "skillforge",
	Subsystem: "sweeper",
	Name:      "runs_total",
	Help:      "Total sweeper runs by result.",
}, []string{"result"})

// SweeperResolved counts exchanges the sweeper resolved by outcome.
var SweeperResolved = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "skillforge",
	Subsystem: "sweeper",
	Name:      "resolved_total",
	Help:      "Total overdue exchanges resolved by the sweeper, by outcome.",
}, []string{"outcome"})

// SweeperBatchSize tracks how many candidates each run picked up.
var SweeperBatchSize = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "skillforge",
	Subsystem: "sweeper",
	Name:      "batch_size",
	Help:      "Candidates picked up per sweeper run.",
	Buckets:   []float64{0, 1, 5, 10, 25, 50},
})

// ─── Presence Metrics ───────────────────────────────────────────────────────

// OnlineUsers tracks currently connected users.
var OnlineUsers = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "skillforge",
	Subsystem: "presence",
	Name:      "online_users",
	Help:      "Number of users with at least one live connection.",
})

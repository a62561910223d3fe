// Package metrics holds the Prometheus collectors for ledger and batch job
// activity. Collectors register on the default registry at init.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "pvetax"

// ─── Jobs ───────────────────────────────────────────────────────────────────

// JobUnits counts per-unit outcomes of batch jobs.
var JobUnits = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "jobs",
	Name:      "units_total",
	Help:      "Batch job units processed, by job and outcome.",
}, []string{"job", "outcome"})

// JobDuration tracks wall time of whole batch runs.
var JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "jobs",
	Name:      "duration_seconds",
	Help:      "Duration of batch job runs.",
	Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600},
}, []string{"job"})

// ─── Ledger ─────────────────────────────────────────────────────────────────

// IncomeEntries counts RecordIncome outcomes.
var IncomeEntries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "income_entries_total",
	Help:      "Income journal rows seen, by outcome (created, duplicate, ignored).",
}, []string{"outcome"})

// CreditsPosted counts credit entries by category.
var CreditsPosted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "credits_posted_total",
	Help:      "Credit entries posted, by category.",
}, []string{"category"})

// RateFallbacks counts resolutions that used the fallback rate.
var RateFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "rate_fallbacks_total",
	Help:      "Tax rate resolutions that fell back to the default rate, by reason.",
}, []string{"reason"})

// ─── Reconciliation ─────────────────────────────────────────────────────────

var PaymentsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "reconcile",
	Name:      "payments_total",
	Help:      "Corporation wallet payments seen, by outcome (stored, duplicate, filtered, failed).",
}, []string{"outcome"})

var PaymentsMatched = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "reconcile",
	Name:      "matches_total",
	Help:      "Payment matching attempts, by outcome (matched, unmatched).",
}, []string{"outcome"})

// ─── Notifications ──────────────────────────────────────────────────────────

var Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "notify",
	Name:      "deliveries_total",
	Help:      "Notification deliveries, by channel and outcome.",
}, []string{"channel", "outcome"})

// ─── HTTP ───────────────────────────────────────────────────────────────────

// AccessDenied counts requests rejected by the auth and admin middleware.
var AccessDenied = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "access_denied_total",
	Help:      "Requests rejected before reaching a handler, by reason.",
}, []string{"reason"})

var BalanceSockets = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "http",
	Name:      "balance_sockets",
	Help:      "Open balance websocket connections.",
})

// ─── Database ───────────────────────────────────────────────────────────────

var TxRetries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "db",
	Name:      "tx_retries_total",
	Help:      "Serializable transactions retried, by Postgres error code.",
}, []string{"code"})

// ─── Stats ──────────────────────────────────────────────────────────────────

var StatsRefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "stats",
	Name:      "refresh_duration_seconds",
	Help:      "Time spent rebuilding the stats snapshot.",
	Buckets:   prometheus.DefBuckets,
})

// Package metrics holds the Prometheus collectors of the ledger. They are
// registered on the default registry and served by promhttp at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FolioAllocations counts numbers handed out, by scope (legacy, cash,
	// transfer, card).
	FolioAllocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "folio_allocations_total",
		Help:      "Folio numbers reserved, by counter scope.",
	}, []string{"scope"})

	// FolioReleases counts paid transactions that went back to unpaid.
	FolioReleases = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "folio_releases_total",
		Help:      "Transactions whose folios were cleared on unpay.",
	})

	// DegradedAllocations counts allocations forced onto the general path
	// because a campus or card lookup failed.
	DegradedAllocations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "folio_degraded_allocations_total",
		Help:      "Allocations that fell back to general numbering after a lookup failure.",
	}, []string{"lookup"})

	// Conflicts counts units of work that hit a lock or uniqueness failure.
	Conflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "folio_conflicts_total",
		Help:      "Folio allocation conflicts, by outcome (retried, failed).",
	}, []string{"outcome"})

	AuditRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "folio_audit_runs_total",
		Help:      "Folio audits run, by mode.",
	}, []string{"mode"})

	AuditDiffs = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "folio_audit_diffs_total",
		Help:      "Folio mismatches found by audits, by channel.",
	}, []string{"channel"})

	ImportRows = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "folio_import_rows_total",
		Help:      "Legacy folio import rows, by result.",
	}, []string{"result"})

	DebtRecomputes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ledger",
		Name:      "debt_recomputes_total",
		Help:      "Debt aggregate recomputations, by resulting status.",
	}, []string{"status"})

	UnitOfWorkDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ledger",
		Name:      "unit_of_work_duration_seconds",
		Help:      "Duration of transaction write units of work.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"operation"})
)

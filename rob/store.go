/*
store.go - Persistence interfaces for reports, ledger rows, and dosing events

PURPOSE:
  Defines the interface between the domain logic and the database. The ledger
  side is append-only: there is no update or delete on ledger rows, ever.
  Report masters are mutable while Draft; their child lines are replaced
  wholesale on every save.

ATOMICITY:
  TxStore.WithTx brackets one causal event (a report submission or a dosing
  event) in a single store transaction. Every read-latest/compute/append
  sequence runs inside it, which is what serializes concurrent producers on
  the same partition key.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite store
  - rob/store: in-memory store for tests and dev

SEE ALSO:
  - posting.go: runs inside WithTx
  - workflow.go: brackets submit in WithTx
*/
package rob

import (
	"context"
	"time"
)

// =============================================================================
// REPORT STORE
// =============================================================================

// ReportStore persists report masters and their child lines.
type ReportStore interface {
	// SaveReport upserts the master record and replaces ALL child lines
	// (delete-then-reinsert). Never merges.
	SaveReport(ctx context.Context, r *Report) error

	// GetReport returns a report by ID, or nil if absent or soft-deleted.
	GetReport(ctx context.Context, id ReportID) (*Report, error)

	// MarkSubmitted flips the status to Submitted and records the derived
	// duration. The caller guarantees the report is currently Draft.
	MarkSubmitted(ctx context.Context, id ReportID, durationHrs float64) error

	// SoftDeleteReport marks the report Deleted and cascades to its child
	// lines. Ledger rows already posted are untouched.
	SoftDeleteReport(ctx context.Context, id ReportID) error

	// LatestSubmitted returns the ship's most recent Submitted report by UTC
	// time, or nil if the ship has none.
	LatestSubmitted(ctx context.Context, shipID ShipID) (*Report, error)

	// LatestBefore returns the ship's most recent non-deleted report with
	// UTC strictly before the given instant, excluding excludeID (the report
	// under submission), or nil.
	LatestBefore(ctx context.Context, shipID ShipID, before time.Time, excludeID ReportID) (*Report, error)

	// ListReports returns the ship's non-deleted reports ordered by UTC time.
	ListReports(ctx context.Context, shipID ShipID) ([]Report, error)
}

// =============================================================================
// LEDGER STORE - Append-only
// =============================================================================

// LedgerStore persists ledger rows. Append-only: no update, no delete.
type LedgerStore interface {
	// AppendLedgerEntry inserts a row and assigns its insertion sequence.
	AppendLedgerEntry(ctx context.Context, e *LedgerEntry) error

	// LatestLedgerEntry returns the chain head for a partition key (highest
	// insertion sequence), or nil if the chain is empty.
	LatestLedgerEntry(ctx context.Context, key PartitionKey) (*LedgerEntry, error)

	// LedgerHistory returns the full chain for a partition key ordered by
	// insertion sequence ascending.
	LedgerHistory(ctx context.Context, key PartitionKey) ([]LedgerEntry, error)

	// ConsumptionsSince returns rows with Consumed > 0 for a partition key
	// whose event timestamp is >= since, ordered by event timestamp then
	// insertion sequence. Used by the depletion-timeline reconstruction.
	ConsumptionsSince(ctx context.Context, key PartitionKey, since time.Time) ([]LedgerEntry, error)
}

// =============================================================================
// DOSING STORE
// =============================================================================

// DosingStore persists dosing events received from the additive service.
type DosingStore interface {
	SaveDosingEvent(ctx context.Context, e *DosingEvent) error

	// GetDosingEvent returns a dosing event by ID, or nil if absent.
	GetDosingEvent(ctx context.Context, id DosingEventID) (*DosingEvent, error)
}

// =============================================================================
// COMBINED / TRANSACTIONAL STORE
// =============================================================================

// Store is the full persistence surface the engine needs.
type Store interface {
	ReportStore
	LedgerStore
	DosingStore
}

// TxStore wraps Store with transaction support. If fn returns an error the
// transaction rolls back and no partial state is visible.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}

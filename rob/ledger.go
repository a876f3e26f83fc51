/*
ledger.go - Append-only ROB ledger rows

PURPOSE:
  The ledger is the immutable source of truth for fuel and lube-oil balances.
  Every bunkering receipt, report consumption, and dosing allocation is
  recorded as one row per (partition key, causal event). Balance is a chain:
  each row's InitialQuantity equals the previous row's FinalQuantity.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: rows are never updated or deleted; corrections are
     compensating rows.
  2. CHAIN MONOTONICITY: for a fixed partition key, ordered by insertion
     sequence, Final(n) == Initial(n+1).
  3. NO CLAMPING: FinalQuantity may legitimately go negative when upstream
     data is inconsistent. A negative balance surfaces the data-entry error;
     hiding it would corrupt the audit trail.

TWO PRODUCERS:
  Report submission and additive dosing both append to the same chains. Each
  producer reads the latest FinalQuantity at write time inside one store
  transaction, so concurrent posts against the same lot are serialized by the
  chain itself rather than by optimistic versioning.

SEE ALSO:
  - posting.go: the only writer of ledger rows
  - audit.go: availability and depletion-timeline reconstruction
*/
package rob

import "time"

// CausalKind names the producer that caused a ledger row.
type CausalKind string

const (
	CausalReport CausalKind = "report"
	CausalDosing CausalKind = "dosing"
)

// LedgerEntry is one posting against one partition key. Seq is the insertion
// sequence assigned by the store; it, not EventTimestamp, orders the chain.
type LedgerEntry struct {
	ID        LedgerEntryID
	Seq       int64
	Partition PartitionKey
	Category  Category

	EventTimestamp time.Time

	Bunkered Quantity // receipts
	Consumed Quantity // depletions
	Initial  Quantity // prior entry's Final, or 0 if none
	Final    Quantity // Initial + Bunkered - Consumed

	CausalKind CausalKind
	CausalRef  string // ReportID or DosingEventID

	CreatedAt time.Time
}

// Chain validates that entries form a monotonic chain when ordered by Seq.
// Returns the first offending index, or -1 if the chain is intact.
func ChainBreak(entries []LedgerEntry) int {
	for i := 1; i < len(entries); i++ {
		if !entries[i].Initial.Equal(entries[i-1].Final) {
			return i
		}
	}
	return -1
}

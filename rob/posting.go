/*
posting.go - Ledger Posting Engine

PURPOSE:
  The only writer of ledger rows. Given one causal event (a whole report or a
  whole dosing event), it aggregates the event's lines into one delta per
  partition key, then for each key executes read-latest, compute, append:

    prior = chain head's FinalQuantity (0 for an empty chain)
    final = prior + bunkered - consumed
    insert new row

  The caller brackets the whole event in a single store transaction, so every
  chain the event touches either gains exactly one row or none at all.

DETERMINISM:
  Quantities are never negative-clamped. A lot can legitimately go negative
  when upstream data is inconsistent - the negative balance is the signal.

IDEMPOTENCY:
  Posting happens exactly once, on the Draft → Submitted transition. Later
  edits to a Submitted report replace its child lines but never retract or
  repost ledger rows (see workflow.go).
*/
package rob

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// PostingEngine turns causal events into ledger rows.
type PostingEngine struct{}

// partitionDelta accumulates an event's net effect on one chain.
type partitionDelta struct {
	key      PartitionKey
	bunkered Quantity
	consumed Quantity
}

// PostReport posts every consumption and bunker line of a finalized report.
// Must run inside the submit transaction.
func (pe *PostingEngine) PostReport(ctx context.Context, store LedgerStore, r *Report) ([]LedgerEntry, error) {
	deltas := map[string]*partitionDelta{}

	accumulate := func(key PartitionKey, bunkered, consumed Quantity) {
		d, ok := deltas[key.String()]
		if !ok {
			d = &partitionDelta{key: key, bunkered: ZeroQuantity(), consumed: ZeroQuantity()}
			deltas[key.String()] = d
		}
		d.bunkered = d.bunkered.Add(bunkered)
		d.consumed = d.consumed.Add(consumed)
	}

	for _, line := range r.ConsumptionLines {
		for _, key := range line.PartitionKeys(r.ShipID) {
			accumulate(key, ZeroQuantity(), line.Quantity)
		}
	}
	for _, line := range r.BunkerLines {
		for _, key := range line.PartitionKeys(r.ShipID) {
			accumulate(key, line.Quantity, ZeroQuantity())
		}
	}

	return pe.postDeltas(ctx, store, deltas, r.UTC, CausalReport, string(r.ID))
}

// PostDosing posts every BDN-lot allocation of a dosing event. Must run
// inside the dosing transaction.
func (pe *PostingEngine) PostDosing(ctx context.Context, store LedgerStore, e *DosingEvent) ([]LedgerEntry, error) {
	deltas := map[string]*partitionDelta{}

	for _, alloc := range e.Allocations {
		for _, key := range alloc.PartitionKeys(e.ShipID) {
			d, ok := deltas[key.String()]
			if !ok {
				d = &partitionDelta{key: key, bunkered: ZeroQuantity(), consumed: ZeroQuantity()}
				deltas[key.String()] = d
			}
			d.consumed = d.consumed.Add(alloc.Quantity)
		}
	}

	return pe.postDeltas(ctx, store, deltas, e.Timestamp, CausalDosing, string(e.ID))
}

// postDeltas writes one row per touched partition key in deterministic order.
func (pe *PostingEngine) postDeltas(
	ctx context.Context,
	store LedgerStore,
	deltas map[string]*partitionDelta,
	at time.Time,
	kind CausalKind,
	causalRef string,
) ([]LedgerEntry, error) {
	keys := make([]string, 0, len(deltas))
	for k := range deltas {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]LedgerEntry, 0, len(keys))
	for _, k := range keys {
		d := deltas[k]
		entry, err := pe.post(ctx, store, d.key, at, d.bunkered, d.consumed, kind, causalRef)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

// post executes one read-latest, compute, append against a single chain.
func (pe *PostingEngine) post(
	ctx context.Context,
	store LedgerStore,
	key PartitionKey,
	at time.Time,
	bunkered, consumed Quantity,
	kind CausalKind,
	causalRef string,
) (*LedgerEntry, error) {
	latest, err := store.LatestLedgerEntry(ctx, key)
	if err != nil {
		return nil, &PostingError{Partition: key, Cause: fmt.Errorf("reading chain head: %w", err)}
	}

	initial := ZeroQuantity()
	if latest != nil {
		initial = latest.Final
	}

	entry := &LedgerEntry{
		ID:             LedgerEntryID(uuid.NewString()),
		Partition:      key,
		Category:       key.Category(),
		EventTimestamp: at,
		Bunkered:       bunkered,
		Consumed:       consumed,
		Initial:        initial,
		Final:          initial.Add(bunkered).Sub(consumed),
		CausalKind:     kind,
		CausalRef:      causalRef,
		CreatedAt:      time.Now().UTC(),
	}

	if err := store.AppendLedgerEntry(ctx, entry); err != nil {
		return nil, &PostingError{Partition: key, Cause: err}
	}
	return entry, nil
}

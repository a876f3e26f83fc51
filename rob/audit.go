/*
audit.go - Availability and depletion-timeline reconstruction

PURPOSE:
  Read-side audit queries over the ledger, off the write path. Two contracts:

  AvailableQuantity - "how much of lot X is left now". Sums bunkered and
  consumed across ALL ledger rows for the lot regardless of producer,
  starting from the lot's first recorded initial quantity. This is a
  cross-check computation independent of the chain order: when the chain is
  uninterrupted it agrees with the chain head's FinalQuantity, and a
  disagreement means the chain was broken.

  DepletionTimeline - "how was dosing event Y's treated batch consumed".
  For each lot the event drew from, every consumption posting at or after
  the event's timestamp forms one row; a running cumulative sum gives
  remaining = blendedQuantity - cumulative. Rows where the batch is already
  exhausted (remaining <= 0) are dropped - fully depleted history is noise.
*/
package rob

import (
	"context"
	"fmt"
	"time"
)

// =============================================================================
// AVAILABILITY
// =============================================================================

// LotAvailability is the cross-checked balance summary for one lot.
type LotAvailability struct {
	Partition PartitionKey
	Initial   Quantity
	Bunkered  Quantity
	Consumed  Quantity
	Available Quantity
}

// DepletionRow is one consumption posting against a dosing event's batch.
type DepletionRow struct {
	LotRef             LotRef
	RowNumber          int
	Timestamp          time.Time // the posting's event timestamp
	ConsumedThisEvent  Quantity
	CumulativeConsumed Quantity
	Remaining          Quantity
	CausalKind         CausalKind
	CausalRef          string
}

// Reconstructor answers audit queries from the ledger.
type Reconstructor struct {
	Store Store
}

func NewReconstructor(store Store) *Reconstructor {
	return &Reconstructor{Store: store}
}

// AvailableQuantity sums the lot's full chain. Repeated calls without
// intervening writes return identical results.
func (rc *Reconstructor) AvailableQuantity(ctx context.Context, key PartitionKey) (*LotAvailability, error) {
	entries, err := rc.Store.LedgerHistory(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("loading ledger history for %s: %w", key, err)
	}

	avail := &LotAvailability{
		Partition: key,
		Initial:   ZeroQuantity(),
		Bunkered:  ZeroQuantity(),
		Consumed:  ZeroQuantity(),
		Available: ZeroQuantity(),
	}
	if len(entries) == 0 {
		return avail, nil
	}

	avail.Initial = entries[0].Initial
	for _, e := range entries {
		avail.Bunkered = avail.Bunkered.Add(e.Bunkered)
		avail.Consumed = avail.Consumed.Add(e.Consumed)
	}
	avail.Available = avail.Initial.Add(avail.Bunkered).Sub(avail.Consumed)
	return avail, nil
}

// DepletionTimeline reconstructs the consumption curve of a dosing event's
// treated batches, one row set per allocated lot.
func (rc *Reconstructor) DepletionTimeline(ctx context.Context, id DosingEventID) ([]DepletionRow, error) {
	event, err := rc.Store.GetDosingEvent(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading dosing event: %w", err)
	}
	if event == nil {
		return nil, ErrDosingEventNotFound
	}

	var rows []DepletionRow
	for _, alloc := range event.Allocations {
		key := FuelLotKey(event.ShipID, alloc.LotRef)
		if alloc.Category == CategoryLubeOil {
			key = LubeLotKey(event.ShipID, alloc.LotRef)
		}

		postings, err := rc.Store.ConsumptionsSince(ctx, key, event.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("loading consumption postings for %s: %w", key, err)
		}

		cumulative := ZeroQuantity()
		rowNum := 0
		for _, p := range postings {
			rowNum++
			cumulative = cumulative.Add(p.Consumed)
			remaining := alloc.BlendedQuantity.Sub(cumulative)
			if !remaining.IsPositive() {
				continue
			}
			rows = append(rows, DepletionRow{
				LotRef:             alloc.LotRef,
				RowNumber:          rowNum,
				Timestamp:          p.EventTimestamp.UTC(),
				ConsumedThisEvent:  p.Consumed,
				CumulativeConsumed: cumulative,
				Remaining:          remaining,
				CausalKind:         p.CausalKind,
				CausalRef:          p.CausalRef,
			})
		}
	}
	return rows, nil
}

// History returns a partition's full chain ordered by insertion sequence.
func (rc *Reconstructor) History(ctx context.Context, key PartitionKey) ([]LedgerEntry, error) {
	return rc.Store.LedgerHistory(ctx, key)
}

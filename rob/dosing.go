/*
dosing.go - Additive dosing events, the second ledger producer

PURPOSE:
  A dosing event is an additive-blending operation produced by an independent
  service: an additive is blended into fuel drawn from one or more BDN lots.
  The engine treats the event as an opaque causal posting - each lot
  allocation depletes that lot's chain through the same posting engine the
  report pipeline uses, so both producers always chain from the same latest
  FinalQuantity.

  BlendedQuantity on an allocation records the size of the treated batch
  attributed to that lot; the depletion timeline (audit.go) reconstructs how
  that batch was consumed afterwards.
*/
package rob

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// DOSING EVENT
// =============================================================================

// LotAllocation is one BDN lot an additive dosing drew from.
type LotAllocation struct {
	LotRef   LotRef
	Category Category
	ItemType string   // optional; when set the per-type aggregate chain is posted too
	Quantity Quantity // drawn from the lot, posted as consumption

	// BlendedQuantity is the treated-batch size the depletion timeline
	// measures against.
	BlendedQuantity Quantity
}

// PartitionKeys returns the chains the allocation depletes: the lot chain
// always, the per-type aggregate chain when the item type is known.
func (a LotAllocation) PartitionKeys(shipID ShipID) []PartitionKey {
	keys := make([]PartitionKey, 0, 2)
	if a.Category == CategoryLubeOil {
		keys = append(keys, LubeLotKey(shipID, a.LotRef))
		if a.ItemType != "" {
			keys = append(keys, LubeTypeKey(shipID, a.ItemType))
		}
		return keys
	}
	keys = append(keys, FuelLotKey(shipID, a.LotRef))
	if a.ItemType != "" {
		keys = append(keys, FuelTypeKey(shipID, a.ItemType))
	}
	return keys
}

// DosingEvent is the intake contract from the additive service.
type DosingEvent struct {
	ID             DosingEventID
	ShipID         ShipID
	Timestamp      time.Time
	AdditiveTypeID string
	DosingQuantity Quantity // additive dosed, informational
	Allocations    []LotAllocation
	MachineryIDs   []string

	CreatedAt time.Time
}

// =============================================================================
// DOSING SERVICE
// =============================================================================

// DosingService records dosing events and posts their allocations.
type DosingService struct {
	Store   TxStore
	Posting *PostingEngine
}

func NewDosingService(store TxStore) *DosingService {
	return &DosingService{Store: store, Posting: &PostingEngine{}}
}

// PostEvent validates, persists, and posts a dosing event atomically. Either
// the event and every allocation row land, or nothing does.
func (ds *DosingService) PostEvent(ctx context.Context, e *DosingEvent) ([]LedgerEntry, error) {
	if err := validateDosing(e); err != nil {
		return nil, err
	}
	if e.ID == "" {
		e.ID = DosingEventID(uuid.NewString())
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	var entries []LedgerEntry
	err := ds.Store.WithTx(ctx, func(s Store) error {
		if err := s.SaveDosingEvent(ctx, e); err != nil {
			return fmt.Errorf("saving dosing event: %w", err)
		}
		posted, err := ds.Posting.PostDosing(ctx, s, e)
		if err != nil {
			return err
		}
		entries = posted
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func validateDosing(e *DosingEvent) error {
	errs := ValidationErrors{}
	if e.ShipID == "" {
		errs.Add("shipId", "ship is required")
	}
	if e.Timestamp.IsZero() {
		errs.Add("timestamp", "timestamp is required")
	}
	if e.AdditiveTypeID == "" {
		errs.Add("additiveTypeId", "additive type is required")
	}
	if len(e.Allocations) == 0 {
		errs.Add("bdnAllocations", "at least one lot allocation is required")
	}
	for i, a := range e.Allocations {
		path := fmt.Sprintf("bdnAllocations[%d]", i)
		if a.LotRef == "" {
			errs.Add(path+".lotId", "lot reference is required")
		}
		if a.Quantity.IsNegative() {
			errs.Add(path+".qty", "allocation quantity must be >= 0")
		}
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

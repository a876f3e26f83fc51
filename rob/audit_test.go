package rob_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborline/voyage-engine/rob"
)

// =============================================================================
// AVAILABLE QUANTITY
// =============================================================================

func TestAudit_AvailableQuantity_SumsFullChain(t *testing.T) {
	// GIVEN: A lot chain - receipt 100, consumptions 20 and 15
	// WHEN: Computing availability
	// THEN: initial 0, bunkered 100, consumed 35, available 65,
	//       matching the chain head's Final

	w, store := newTestWorkflow(t)
	ctx := context.Background()

	bunkering := arrivalAt("ship-1", baseUTC.Add(-40*time.Hour))
	bunkering.TypeKey = rob.TypeBunkering
	bunkering.BunkerLines = []rob.BunkerLine{hfoReceipt("100", "BDN-1")}
	submitNew(t, w, bunkering)

	for i, qty := range []string{"20", "15"} {
		burn := arrivalAt("ship-1", baseUTC.Add(time.Duration(i-1)*20*time.Hour))
		burn.ConsumptionLines = []rob.ConsumptionLine{hfoConsumption(qty, "BDN-1")}
		submitNew(t, w, burn)
	}

	key := rob.FuelLotKey("ship-1", "BDN-1")
	rc := rob.NewReconstructor(store)

	avail, err := rc.AvailableQuantity(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "0", avail.Initial.String())
	assert.Equal(t, "100", avail.Bunkered.String())
	assert.Equal(t, "35", avail.Consumed.String())
	assert.Equal(t, "65", avail.Available.String())

	head, err := store.LatestLedgerEntry(ctx, key)
	require.NoError(t, err)
	assert.True(t, avail.Available.Equal(head.Final),
		"reconstruction must agree with the chain head when the chain is intact")
}

func TestAudit_AvailableQuantity_EmptyChainIsZero(t *testing.T) {
	rc := rob.NewReconstructor(newTestStore())

	avail, err := rc.AvailableQuantity(context.Background(), rob.FuelLotKey("ship-1", "BDN-none"))
	require.NoError(t, err)
	assert.True(t, avail.Available.IsZero())
	assert.True(t, avail.Bunkered.IsZero())
}

func TestAudit_AvailableQuantity_RepeatableReads(t *testing.T) {
	// GIVEN: A populated chain
	// WHEN: Computing availability twice without intervening writes
	// THEN: Identical results - reconstruction never mutates state

	w, store := newTestWorkflow(t)
	ctx := context.Background()

	bunkering := arrivalAt("ship-1", baseUTC)
	bunkering.TypeKey = rob.TypeBunkering
	bunkering.BunkerLines = []rob.BunkerLine{hfoReceipt("42.5", "BDN-1")}
	submitNew(t, w, bunkering)

	rc := rob.NewReconstructor(store)
	key := rob.FuelLotKey("ship-1", "BDN-1")

	first, err := rc.AvailableQuantity(ctx, key)
	require.NoError(t, err)
	second, err := rc.AvailableQuantity(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

// =============================================================================
// DEPLETION TIMELINE
// =============================================================================

func TestAudit_DepletionTimeline(t *testing.T) {
	// GIVEN: A dosing event treating a 100 MT blended batch of lot BDN-1,
	//        followed by consumptions of 30 and 30
	// WHEN: Reconstructing the depletion timeline
	// THEN: Two rows - remaining 70 then 40, cumulative running sum

	w, store := newTestWorkflow(t)
	ds := rob.NewDosingService(store)
	ctx := context.Background()

	bunkering := arrivalAt("ship-1", baseUTC.Add(-20*time.Hour))
	bunkering.TypeKey = rob.TypeBunkering
	bunkering.BunkerLines = []rob.BunkerLine{hfoReceipt("500", "BDN-1")}
	submitNew(t, w, bunkering)

	event := &rob.DosingEvent{
		ShipID:         "ship-1",
		Timestamp:      baseUTC.Add(-10 * time.Hour),
		AdditiveTypeID: "ADD-1",
		DosingQuantity: rob.MustParseQuantity("0.5"),
		Allocations: []rob.LotAllocation{{
			LotRef:          "BDN-1",
			Category:        rob.CategoryFuel,
			ItemType:        "HFO",
			Quantity:        rob.MustParseQuantity("5"),
			BlendedQuantity: rob.MustParseQuantity("100"),
		}},
	}
	_, err := ds.PostEvent(ctx, event)
	require.NoError(t, err)

	for i, qty := range []string{"30", "30"} {
		burn := arrivalAt("ship-1", baseUTC.Add(time.Duration(i)*24*time.Hour))
		burn.ConsumptionLines = []rob.ConsumptionLine{hfoConsumption(qty, "BDN-1")}
		submitNew(t, w, burn)
	}

	rc := rob.NewReconstructor(store)
	rows, err := rc.DepletionTimeline(ctx, event.ID)
	require.NoError(t, err)

	// The dosing's own 5 MT allocation is itself a consumption at the event
	// instant, so it opens the timeline.
	require.Len(t, rows, 3)

	assert.Equal(t, "5", rows[0].CumulativeConsumed.String())
	assert.Equal(t, "95", rows[0].Remaining.String())
	assert.Equal(t, rob.CausalDosing, rows[0].CausalKind)
	assert.True(t, rows[0].Timestamp.Equal(event.Timestamp), "row carries the posting instant")

	assert.Equal(t, "30", rows[1].ConsumedThisEvent.String())
	assert.Equal(t, "35", rows[1].CumulativeConsumed.String())
	assert.Equal(t, "65", rows[1].Remaining.String())
	assert.Equal(t, rob.CausalReport, rows[1].CausalKind)

	assert.Equal(t, "65", rows[2].CumulativeConsumed.String())
	assert.Equal(t, "35", rows[2].Remaining.String())
}

func TestAudit_DepletionTimeline_DropsExhaustedRows(t *testing.T) {
	// GIVEN: A 50 MT blended batch and consumptions of 30, 30
	// WHEN: Reconstructing the timeline
	// THEN: Rows at or past exhaustion (remaining <= 0) are dropped

	w, store := newTestWorkflow(t)
	ds := rob.NewDosingService(store)
	ctx := context.Background()

	bunkering := arrivalAt("ship-1", baseUTC.Add(-20*time.Hour))
	bunkering.TypeKey = rob.TypeBunkering
	bunkering.BunkerLines = []rob.BunkerLine{hfoReceipt("500", "BDN-1")}
	submitNew(t, w, bunkering)

	event := &rob.DosingEvent{
		ShipID:         "ship-1",
		Timestamp:      baseUTC.Add(-10 * time.Hour),
		AdditiveTypeID: "ADD-1",
		Allocations: []rob.LotAllocation{{
			LotRef:          "BDN-1",
			Category:        rob.CategoryFuel,
			Quantity:        rob.MustParseQuantity("0"),
			BlendedQuantity: rob.MustParseQuantity("50"),
		}},
	}
	_, err := ds.PostEvent(ctx, event)
	require.NoError(t, err)

	for i, qty := range []string{"30", "30"} {
		burn := arrivalAt("ship-1", baseUTC.Add(time.Duration(i)*24*time.Hour))
		burn.ConsumptionLines = []rob.ConsumptionLine{hfoConsumption(qty, "BDN-1")}
		submitNew(t, w, burn)
	}

	rc := rob.NewReconstructor(store)
	rows, err := rc.DepletionTimeline(ctx, event.ID)
	require.NoError(t, err)

	// First burn leaves 20. Second burn takes the batch to -10 and is dropped.
	require.Len(t, rows, 1)
	assert.Equal(t, "20", rows[0].Remaining.String())
}

func TestAudit_DepletionTimeline_IgnoresPreEventConsumption(t *testing.T) {
	// GIVEN: A consumption posted before the dosing event's timestamp
	// WHEN: Reconstructing the timeline
	// THEN: Only postings at or after the event count

	w, store := newTestWorkflow(t)
	ds := rob.NewDosingService(store)
	ctx := context.Background()

	bunkering := arrivalAt("ship-1", baseUTC.Add(-40*time.Hour))
	bunkering.TypeKey = rob.TypeBunkering
	bunkering.BunkerLines = []rob.BunkerLine{hfoReceipt("500", "BDN-1")}
	submitNew(t, w, bunkering)

	early := arrivalAt("ship-1", baseUTC.Add(-20*time.Hour))
	early.ConsumptionLines = []rob.ConsumptionLine{hfoConsumption("40", "BDN-1")}
	submitNew(t, w, early)

	event := &rob.DosingEvent{
		ShipID:         "ship-1",
		Timestamp:      baseUTC.Add(-10 * time.Hour),
		AdditiveTypeID: "ADD-1",
		Allocations: []rob.LotAllocation{{
			LotRef:          "BDN-1",
			Category:        rob.CategoryFuel,
			Quantity:        rob.MustParseQuantity("0"),
			BlendedQuantity: rob.MustParseQuantity("100"),
		}},
	}
	_, err := ds.PostEvent(ctx, event)
	require.NoError(t, err)

	late := arrivalAt("ship-1", baseUTC)
	late.ConsumptionLines = []rob.ConsumptionLine{hfoConsumption("25", "BDN-1")}
	submitNew(t, w, late)

	rc := rob.NewReconstructor(store)
	rows, err := rc.DepletionTimeline(ctx, event.ID)
	require.NoError(t, err)

	require.Len(t, rows, 1)
	assert.Equal(t, "25", rows[0].ConsumedThisEvent.String())
	assert.Equal(t, "75", rows[0].Remaining.String())
}

func TestAudit_DepletionTimeline_UnknownEvent(t *testing.T) {
	rc := rob.NewReconstructor(newTestStore())
	_, err := rc.DepletionTimeline(context.Background(), "nope")
	assert.ErrorIs(t, err, rob.ErrDosingEventNotFound)
}

// =============================================================================
// DOSING SERVICE
// =============================================================================

func TestDosingService_PostsAtomically(t *testing.T) {
	// GIVEN: A dosing event drawing from two lots
	// WHEN: Posting
	// THEN: The event is stored and each lot chain (plus the type chain)
	//       gains exactly one row

	store := newTestStore()
	ds := rob.NewDosingService(store)
	ctx := context.Background()

	event := &rob.DosingEvent{
		ShipID:         "ship-1",
		Timestamp:      baseUTC,
		AdditiveTypeID: "ADD-1",
		Allocations: []rob.LotAllocation{
			{LotRef: "BDN-1", Category: rob.CategoryFuel, ItemType: "HFO",
				Quantity: rob.MustParseQuantity("3"), BlendedQuantity: rob.MustParseQuantity("60")},
			{LotRef: "BDN-2", Category: rob.CategoryFuel, ItemType: "HFO",
				Quantity: rob.MustParseQuantity("2"), BlendedQuantity: rob.MustParseQuantity("40")},
		},
	}
	posted, err := ds.PostEvent(ctx, event)
	require.NoError(t, err)
	assert.Len(t, posted, 3, "two lot chains plus the shared HFO type chain")

	stored, err := store.GetDosingEvent(ctx, event.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Len(t, stored.Allocations, 2)

	typeHead, err := store.LatestLedgerEntry(ctx, rob.FuelTypeKey("ship-1", "HFO"))
	require.NoError(t, err)
	assert.Equal(t, "-5", typeHead.Final.String(), "both allocations aggregate on the type chain")
}

func TestDosingService_ValidationErrors(t *testing.T) {
	ds := rob.NewDosingService(newTestStore())

	_, err := ds.PostEvent(context.Background(), &rob.DosingEvent{})
	var verrs rob.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.Contains(t, verrs, "shipId")
	assert.Contains(t, verrs, "timestamp")
	assert.Contains(t, verrs, "additiveTypeId")
	assert.Contains(t, verrs, "bdnAllocations")
}

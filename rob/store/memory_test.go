package store_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborline/voyage-engine/rob"
	memstore "github.com/harborline/voyage-engine/rob/store"
)

var at = time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)

func entry(key rob.PartitionKey, bunkered, consumed, initial, final string, ts time.Time) *rob.LedgerEntry {
	return &rob.LedgerEntry{
		ID:             rob.LedgerEntryID("e-" + ts.Format("150405") + "-" + key.Ref),
		Partition:      key,
		Category:       key.Category(),
		EventTimestamp: ts,
		Bunkered:       rob.MustParseQuantity(bunkered),
		Consumed:       rob.MustParseQuantity(consumed),
		Initial:        rob.MustParseQuantity(initial),
		Final:          rob.MustParseQuantity(final),
		CausalKind:     rob.CausalReport,
		CausalRef:      "r-1",
		CreatedAt:      ts,
	}
}

func TestMemory_LedgerSeqAndHead(t *testing.T) {
	m := memstore.NewMemory()
	ctx := context.Background()
	key := rob.FuelLotKey("ship-1", "BDN-1")

	e1 := entry(key, "100", "0", "0", "100", at)
	e2 := entry(key, "0", "30", "100", "70", at.Add(time.Hour))
	require.NoError(t, m.AppendLedgerEntry(ctx, e1))
	require.NoError(t, m.AppendLedgerEntry(ctx, e2))

	assert.Less(t, e1.Seq, e2.Seq, "seq assigned in insertion order")

	head, err := m.LatestLedgerEntry(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, e2.ID, head.ID)

	history, err := m.LedgerHistory(ctx, key)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, e1.ID, history[0].ID)
}

func TestMemory_ConsumptionsSince(t *testing.T) {
	m := memstore.NewMemory()
	ctx := context.Background()
	key := rob.FuelLotKey("ship-1", "BDN-1")

	require.NoError(t, m.AppendLedgerEntry(ctx, entry(key, "100", "0", "0", "100", at.Add(-2*time.Hour))))
	require.NoError(t, m.AppendLedgerEntry(ctx, entry(key, "0", "10", "100", "90", at.Add(-time.Hour))))
	require.NoError(t, m.AppendLedgerEntry(ctx, entry(key, "0", "20", "90", "70", at)))
	require.NoError(t, m.AppendLedgerEntry(ctx, entry(key, "0", "5", "70", "65", at.Add(time.Hour))))

	got, err := m.ConsumptionsSince(ctx, key, at)
	require.NoError(t, err)
	require.Len(t, got, 2, "receipts and pre-cutoff rows excluded; cutoff inclusive")
	assert.Equal(t, "20", got[0].Consumed.String())
	assert.Equal(t, "5", got[1].Consumed.String())
}

func TestMemory_GetReport_CloneIsolation(t *testing.T) {
	m := memstore.NewMemory()
	ctx := context.Background()

	r := &rob.Report{
		ID: "r-1", ShipID: "ship-1", TypeKey: rob.TypeNoon, Status: rob.StatusDraft,
		UTC: at, Local: at.Add(2 * time.Hour), VoyageID: "voy-1",
		ConsumptionLines: []rob.ConsumptionLine{
			{Category: rob.CategoryFuel, ItemType: "HFO", Quantity: rob.MustParseQuantity("10")},
		},
	}
	require.NoError(t, m.SaveReport(ctx, r))

	got, err := m.GetReport(ctx, "r-1")
	require.NoError(t, err)
	got.ConsumptionLines[0].ItemType = "MUTATED"

	again, err := m.GetReport(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, "HFO", again.ConsumptionLines[0].ItemType,
		"callers must not be able to mutate stored state through returned copies")
}

func TestTxMemory_RollbackRestoresEverything(t *testing.T) {
	// GIVEN: A store with one report and one ledger row
	// WHEN: A transaction writes more of each and then fails
	// THEN: All of its writes are rolled back

	tm := memstore.NewTxMemory()
	ctx := context.Background()
	key := rob.FuelLotKey("ship-1", "BDN-1")

	seed := &rob.Report{ID: "r-1", ShipID: "ship-1", TypeKey: rob.TypeNoon,
		Status: rob.StatusSubmitted, UTC: at, Local: at.Add(2 * time.Hour), VoyageID: "voy-1"}
	require.NoError(t, tm.SaveReport(ctx, seed))
	require.NoError(t, tm.AppendLedgerEntry(ctx, entry(key, "100", "0", "0", "100", at)))

	boom := errors.New("boom")
	err := tm.WithTx(ctx, func(s rob.Store) error {
		if err := s.SaveReport(ctx, &rob.Report{ID: "r-2", ShipID: "ship-1",
			TypeKey: rob.TypeNoon, Status: rob.StatusDraft, UTC: at.Add(time.Hour),
			Local: at.Add(3 * time.Hour), VoyageID: "voy-1"}); err != nil {
			return err
		}
		if err := s.AppendLedgerEntry(ctx, entry(key, "0", "30", "100", "70", at.Add(time.Hour))); err != nil {
			return err
		}
		if err := s.SaveDosingEvent(ctx, &rob.DosingEvent{ID: "d-1", ShipID: "ship-1", Timestamp: at}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	gone, err := tm.GetReport(ctx, "r-2")
	require.NoError(t, err)
	assert.Nil(t, gone)

	history, err := tm.LedgerHistory(ctx, key)
	require.NoError(t, err)
	assert.Len(t, history, 1)

	dose, err := tm.GetDosingEvent(ctx, "d-1")
	require.NoError(t, err)
	assert.Nil(t, dose)
}

func TestTxMemory_CommitKeepsWrites(t *testing.T) {
	tm := memstore.NewTxMemory()
	ctx := context.Background()
	key := rob.FuelLotKey("ship-1", "BDN-1")

	err := tm.WithTx(ctx, func(s rob.Store) error {
		return s.AppendLedgerEntry(ctx, entry(key, "100", "0", "0", "100", at))
	})
	require.NoError(t, err)

	head, err := tm.LatestLedgerEntry(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, "100", head.Final.String())
}

func TestMemory_MarkSubmitted(t *testing.T) {
	m := memstore.NewMemory()
	ctx := context.Background()

	err := m.MarkSubmitted(ctx, "missing", 12)
	assert.ErrorIs(t, err, rob.ErrReportNotFound)

	r := &rob.Report{ID: "r-1", ShipID: "ship-1", TypeKey: rob.TypeNoon,
		Status: rob.StatusDraft, UTC: at, Local: at.Add(2 * time.Hour), VoyageID: "voy-1"}
	require.NoError(t, m.SaveReport(ctx, r))
	require.NoError(t, m.MarkSubmitted(ctx, "r-1", 12.5))

	got, err := m.GetReport(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, rob.StatusSubmitted, got.Status)
	assert.Equal(t, 12.5, got.DurationHrs)
}

package sqlite_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborline/voyage-engine/rob"
	"github.com/harborline/voyage-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

var at = time.Date(2026, time.March, 10, 10, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func sampleReport(id rob.ReportID, utc time.Time, status rob.ReportStatus) *rob.Report {
	power := 8200.0
	rpm := 92.0
	loaded := rob.MustParseQuantity("18500")
	discharged := rob.MustParseQuantity("0")
	return &rob.Report{
		ID:            id,
		ShipID:        "ship-1",
		TypeKey:       rob.TypeNoon,
		Status:        status,
		UTC:           utc,
		Local:         utc.Add(2 * time.Hour),
		OffsetMinutes: 120,
		VoyageID:      "voy-1",
		CargoLoadedMT:    &loaded,
		CargoDischargedMT: &discharged,
		ConsumptionLines: []rob.ConsumptionLine{
			{Category: rob.CategoryFuel, ItemType: "HFO", LotRef: "BDN-1", Quantity: rob.MustParseQuantity("22.5")},
			{Category: rob.CategoryLubeOil, ItemType: "ME-CYL", Quantity: rob.MustParseQuantity("0.8")},
		},
		BunkerLines: []rob.BunkerLine{
			{Category: rob.CategoryFuel, ItemType: "HFO", LotRef: "BDN-2", Quantity: rob.MustParseQuantity("300")},
		},
		MachineryLines: []rob.MachineryLine{
			{MachineryID: "ME-1", Class: rob.MachineryEngine, RunningHours: 24, Power: &power, RPM: &rpm},
			{MachineryID: "AE-1", Class: rob.MachineryAuxiliary, RunningHours: 20},
		},
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func sampleEntry(key rob.PartitionKey, bunkered, consumed, initial, final string, ts time.Time, id string) *rob.LedgerEntry {
	return &rob.LedgerEntry{
		ID:             rob.LedgerEntryID(id),
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

// =============================================================================
// REPORT STORE
// =============================================================================

func TestSQLiteStore_ReportRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	r := sampleReport("r-1", at, rob.StatusDraft)
	require.NoError(t, store.SaveReport(ctx, r))

	got, err := store.GetReport(ctx, "r-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, r.ShipID, got.ShipID)
	assert.Equal(t, r.TypeKey, got.TypeKey)
	assert.True(t, r.UTC.Equal(got.UTC))
	assert.Equal(t, "2026-03-10T12:00:00", got.Local.Format("2006-01-02T15:04:05"))
	assert.Equal(t, 120, got.OffsetMinutes)
	require.NotNil(t, got.CargoLoadedMT)
	assert.Equal(t, "18500", got.CargoLoadedMT.String())

	require.Len(t, got.ConsumptionLines, 2)
	assert.Equal(t, "22.5", got.ConsumptionLines[0].Quantity.String())
	assert.Equal(t, rob.LotRef(""), got.ConsumptionLines[1].LotRef, "missing lot stays empty")
	require.Len(t, got.BunkerLines, 1)
	require.Len(t, got.MachineryLines, 2)
	require.NotNil(t, got.MachineryLines[0].Power)
	assert.Equal(t, 8200.0, *got.MachineryLines[0].Power)
	assert.Nil(t, got.MachineryLines[1].Power)
}

func TestSQLiteStore_SaveReplacesChildLines(t *testing.T) {
	// Child lines are delete-all, re-insert on every save.
	store := newTestStore(t)
	ctx := context.Background()

	r := sampleReport("r-1", at, rob.StatusDraft)
	require.NoError(t, store.SaveReport(ctx, r))

	r.ConsumptionLines = []rob.ConsumptionLine{
		{Category: rob.CategoryFuel, ItemType: "MGO", Quantity: rob.MustParseQuantity("4")},
	}
	r.BunkerLines = nil
	r.MachineryLines = nil
	require.NoError(t, store.SaveReport(ctx, r))

	got, err := store.GetReport(ctx, "r-1")
	require.NoError(t, err)
	require.Len(t, got.ConsumptionLines, 1)
	assert.Equal(t, "MGO", got.ConsumptionLines[0].ItemType)
	assert.Empty(t, got.BunkerLines)
	assert.Empty(t, got.MachineryLines)
}

func TestSQLiteStore_MarkSubmittedOnlyFlipsDrafts(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveReport(ctx, sampleReport("r-1", at, rob.StatusDraft)))
	require.NoError(t, store.MarkSubmitted(ctx, "r-1", 24.5))

	got, err := store.GetReport(ctx, "r-1")
	require.NoError(t, err)
	assert.Equal(t, rob.StatusSubmitted, got.Status)
	assert.Equal(t, 24.5, got.DurationHrs)

	// Second flip finds no draft row.
	err = store.MarkSubmitted(ctx, "r-1", 30)
	assert.ErrorIs(t, err, rob.ErrReportNotFound)

	err = store.MarkSubmitted(ctx, "missing", 1)
	assert.ErrorIs(t, err, rob.ErrReportNotFound)
}

func TestSQLiteStore_SoftDeleteHidesReport(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveReport(ctx, sampleReport("r-1", at, rob.StatusSubmitted)))
	require.NoError(t, store.SoftDeleteReport(ctx, "r-1"))

	got, err := store.GetReport(ctx, "r-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	list, err := store.ListReports(ctx, "ship-1")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSQLiteStore_LatestSubmittedAndBefore(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveReport(ctx, sampleReport("r-1", at.Add(-48*time.Hour), rob.StatusSubmitted)))
	require.NoError(t, store.SaveReport(ctx, sampleReport("r-2", at.Add(-24*time.Hour), rob.StatusSubmitted)))
	require.NoError(t, store.SaveReport(ctx, sampleReport("r-3", at, rob.StatusDraft)))

	latest, err := store.LatestSubmitted(ctx, "ship-1")
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, rob.ReportID("r-2"), latest.ID, "drafts don't count as latest submitted")

	// LatestBefore sees drafts too, excluding the candidate itself.
	prior, err := store.LatestBefore(ctx, "ship-1", at.Add(time.Hour), "r-candidate")
	require.NoError(t, err)
	require.NotNil(t, prior)
	assert.Equal(t, rob.ReportID("r-3"), prior.ID)

	prior, err = store.LatestBefore(ctx, "ship-1", at.Add(time.Hour), "r-3")
	require.NoError(t, err)
	require.NotNil(t, prior)
	assert.Equal(t, rob.ReportID("r-2"), prior.ID)

	none, err := store.LatestSubmitted(ctx, "other-ship")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestSQLiteStore_ListReportsChronological(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveReport(ctx, sampleReport("r-2", at, rob.StatusDraft)))
	require.NoError(t, store.SaveReport(ctx, sampleReport("r-1", at.Add(-24*time.Hour), rob.StatusSubmitted)))

	list, err := store.ListReports(ctx, "ship-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, rob.ReportID("r-1"), list[0].ID)
	assert.Equal(t, rob.ReportID("r-2"), list[1].ID)
	assert.Len(t, list[0].ConsumptionLines, 2, "children loaded for listings")
}

// =============================================================================
// LEDGER STORE
// =============================================================================

func TestSQLiteStore_LedgerAppendAssignsSeq(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := rob.FuelLotKey("ship-1", "BDN-1")

	e1 := sampleEntry(key, "100", "0", "0", "100", at, "e-1")
	e2 := sampleEntry(key, "0", "30", "100", "70", at.Add(time.Hour), "e-2")
	require.NoError(t, store.AppendLedgerEntry(ctx, e1))
	require.NoError(t, store.AppendLedgerEntry(ctx, e2))
	assert.Less(t, e1.Seq, e2.Seq)

	head, err := store.LatestLedgerEntry(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, head)
	assert.Equal(t, rob.LedgerEntryID("e-2"), head.ID)
	assert.Equal(t, "70", head.Final.String())

	history, err := store.LedgerHistory(ctx, key)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, -1, rob.ChainBreak(history))

	other, err := store.LatestLedgerEntry(ctx, rob.FuelLotKey("ship-1", "BDN-other"))
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestSQLiteStore_ConsumptionsSince(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := rob.FuelLotKey("ship-1", "BDN-1")

	require.NoError(t, store.AppendLedgerEntry(ctx, sampleEntry(key, "100", "0", "0", "100", at.Add(-2*time.Hour), "e-1")))
	require.NoError(t, store.AppendLedgerEntry(ctx, sampleEntry(key, "0", "10", "100", "90", at.Add(-time.Hour), "e-2")))
	require.NoError(t, store.AppendLedgerEntry(ctx, sampleEntry(key, "0", "20", "90", "70", at, "e-3")))

	got, err := store.ConsumptionsSince(ctx, key, at)
	require.NoError(t, err)
	require.Len(t, got, 1, "receipts and pre-cutoff rows excluded; cutoff inclusive")
	assert.Equal(t, "20", got[0].Consumed.String())
}

func TestSQLiteStore_LedgerPreservesDecimalText(t *testing.T) {
	// Quantities are stored as TEXT so awkward decimals survive unchanged.
	store := newTestStore(t)
	ctx := context.Background()
	key := rob.FuelLotKey("ship-1", "BDN-1")

	e := sampleEntry(key, "0.123456789", "0", "0", "0.123456789", at, "e-1")
	require.NoError(t, store.AppendLedgerEntry(ctx, e))

	head, err := store.LatestLedgerEntry(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, "0.123456789", head.Final.String())
}

func TestSQLiteStore_CorruptQuantityCellSurfacesError(t *testing.T) {
	// GIVEN: A ledger row whose consumed cell was mangled outside the store
	// WHEN: Reading the chain back
	// THEN: An error, never a silent zero in the middle of a balance chain

	path := filepath.Join(t.TempDir(), "voyage.db")
	store, err := sqlite.New(path)
	require.NoError(t, err)
	ctx := context.Background()
	key := rob.FuelLotKey("ship-1", "BDN-1")

	e := sampleEntry(key, "0", "30", "100", "70", at, "e-1")
	require.NoError(t, store.AppendLedgerEntry(ctx, e))
	require.NoError(t, store.Close())

	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = raw.Exec(`UPDATE ledger_entries SET consumed = 'garbage' WHERE id = 'e-1'`)
	require.NoError(t, err)
	require.NoError(t, raw.Close())

	store, err = sqlite.New(path)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.LatestLedgerEntry(ctx, key)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid quantity")

	_, err = store.LedgerHistory(ctx, key)
	require.Error(t, err)
}

// =============================================================================
// DOSING STORE
// =============================================================================

func TestSQLiteStore_DosingRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	e := &rob.DosingEvent{
		ID:             "d-1",
		ShipID:         "ship-1",
		Timestamp:      at,
		AdditiveTypeID: "ADD-1",
		DosingQuantity: rob.MustParseQuantity("0.5"),
		Allocations: []rob.LotAllocation{
			{LotRef: "BDN-1", Category: rob.CategoryFuel, ItemType: "HFO",
				Quantity: rob.MustParseQuantity("5"), BlendedQuantity: rob.MustParseQuantity("100")},
			{LotRef: "BDN-2", Category: rob.CategoryFuel,
				Quantity: rob.MustParseQuantity("3"), BlendedQuantity: rob.MustParseQuantity("60")},
		},
		MachineryIDs: []string{"ME-1", "AE-2"},
		CreatedAt:    at,
	}
	require.NoError(t, store.SaveDosingEvent(ctx, e))

	got, err := store.GetDosingEvent(ctx, "d-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rob.ShipID("ship-1"), got.ShipID)
	assert.True(t, at.Equal(got.Timestamp))
	assert.Equal(t, []string{"ME-1", "AE-2"}, got.MachineryIDs)
	require.Len(t, got.Allocations, 2)
	assert.Equal(t, "100", got.Allocations[0].BlendedQuantity.String())
	assert.Equal(t, "", got.Allocations[1].ItemType)

	missing, err := store.GetDosingEvent(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestSQLiteStore_WithTx_RollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := rob.FuelLotKey("ship-1", "BDN-1")

	boom := errors.New("boom")
	err := store.WithTx(ctx, func(s rob.Store) error {
		if err := s.SaveReport(ctx, sampleReport("r-1", at, rob.StatusDraft)); err != nil {
			return err
		}
		if err := s.AppendLedgerEntry(ctx, sampleEntry(key, "100", "0", "0", "100", at, "e-1")); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	gone, err := store.GetReport(ctx, "r-1")
	require.NoError(t, err)
	assert.Nil(t, gone)

	history, err := store.LedgerHistory(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestSQLiteStore_WithTx_CommitsOnSuccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := rob.FuelLotKey("ship-1", "BDN-1")

	err := store.WithTx(ctx, func(s rob.Store) error {
		if err := s.SaveReport(ctx, sampleReport("r-1", at, rob.StatusDraft)); err != nil {
			return err
		}
		if err := s.AppendLedgerEntry(ctx, sampleEntry(key, "100", "0", "0", "100", at, "e-1")); err != nil {
			return err
		}
		return s.MarkSubmitted(ctx, "r-1", 0)
	})
	require.NoError(t, err)

	got, err := store.GetReport(ctx, "r-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, rob.StatusSubmitted, got.Status)

	head, err := store.LatestLedgerEntry(ctx, key)
	require.NoError(t, err)
	require.NotNil(t, head)
}

func TestSQLiteStore_Reset(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveReport(ctx, sampleReport("r-1", at, rob.StatusDraft)))
	require.NoError(t, store.AppendLedgerEntry(ctx, sampleEntry(rob.FuelLotKey("ship-1", "BDN-1"), "1", "0", "0", "1", at, "e-1")))

	require.NoError(t, store.Reset(ctx))

	got, err := store.GetReport(ctx, "r-1")
	require.NoError(t, err)
	assert.Nil(t, got)

	history, err := store.LedgerHistory(ctx, rob.FuelLotKey("ship-1", "BDN-1"))
	require.NoError(t, err)
	assert.Empty(t, history)
}

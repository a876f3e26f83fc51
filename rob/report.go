/*
report.go - Report master record and its child lines

PURPOSE:
  A Report is one vessel operational event (noon position, departure,
  bunkering, ...). It is created as a Draft, mutated in place while Draft,
  and transitions exactly once to Submitted. Child lines (consumption,
  bunkering, machinery) are owned by the report and replaced wholesale on
  every edit - delete-all, re-insert, never patched field-by-field.

LIFECYCLE:
  Draft ──submit──▶ Submitted ──▶ (terminal)
    │                   │
    └──────delete───────┴──▶ Deleted (soft; ledger history stays immutable)

SEE ALSO:
  - workflow.go: enforces the transitions
  - posting.go: turns child lines into ledger rows on submit
*/
package rob

import "time"

// =============================================================================
// REPORT STATUS
// =============================================================================

type ReportStatus string

const (
	StatusDraft     ReportStatus = "draft"
	StatusSubmitted ReportStatus = "submitted"
	StatusDeleted   ReportStatus = "deleted"
)

// =============================================================================
// REPORT - Master record
// =============================================================================

type Report struct {
	ID            ReportID
	ShipID        ShipID
	TypeKey       ReportTypeKey
	Status        ReportStatus

	// Two timestamps are stored: the UTC instant drives all chronological
	// logic; the local wall clock is authoritative for the noon check and is
	// never re-derived from the offset.
	UTC           time.Time
	Local         time.Time
	OffsetMinutes int

	// Derived on submit: hours since the preceding Submitted report,
	// rounded to 2 decimals. Zero for the ship's first report.
	DurationHrs float64

	// Assigned by the external voyage-selection collaborator. One of the two
	// must be present at creation.
	VoyageID    string
	VoyageLegID string

	// Cargo quantities, mandatory at submit for departure-class types.
	CargoLoadedMT    *Quantity
	CargoDischargedMT *Quantity

	// Child lines, replaced wholesale on every update.
	ConsumptionLines []ConsumptionLine
	BunkerLines      []BunkerLine
	MachineryLines   []MachineryLine

	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// CHILD LINES
// =============================================================================

// ConsumptionLine records fuel or lube-oil burned since the previous report.
// LotRef is optional: consumption may or may not be attributable to a
// specific bunker lot. Only Submitted reports' lines post to the ledger.
type ConsumptionLine struct {
	Category Category
	ItemType string   // fuel-type code ("HFO", "MGO", ...) or lube-oil grade
	LotRef   LotRef   // optional source BDN lot
	Quantity Quantity // consumed, must be >= 0 at submit
}

// BunkerLine records a BDN receipt taken during the report period. Receipts
// post Bunkered quantities to the same chains consumption depletes.
type BunkerLine struct {
	Category Category
	ItemType string
	LotRef   LotRef // the delivered BDN lot, required
	Quantity Quantity
}

// MachineryClass distinguishes engines (Power/RPM mandatory at submit) from
// auxiliaries and other machinery.
type MachineryClass string

const (
	MachineryEngine    MachineryClass = "engine"
	MachineryAuxiliary MachineryClass = "auxiliary"
	MachineryOther     MachineryClass = "other"
)

type MachineryLine struct {
	MachineryID  string
	Class        MachineryClass
	RunningHours float64
	Power        *float64 // kW
	RPM          *float64
}

// PartitionKeys returns every ledger chain a consumption line touches:
// the per-type aggregate chain always, the per-lot chain when the line
// references a BDN lot.
func (l ConsumptionLine) PartitionKeys(shipID ShipID) []PartitionKey {
	keys := make([]PartitionKey, 0, 2)
	if l.Category == CategoryLubeOil {
		keys = append(keys, LubeTypeKey(shipID, l.ItemType))
		if l.LotRef != "" {
			keys = append(keys, LubeLotKey(shipID, l.LotRef))
		}
		return keys
	}
	keys = append(keys, FuelTypeKey(shipID, l.ItemType))
	if l.LotRef != "" {
		keys = append(keys, FuelLotKey(shipID, l.LotRef))
	}
	return keys
}

// PartitionKeys for a receipt: per-type aggregate plus the delivered lot.
func (l BunkerLine) PartitionKeys(shipID ShipID) []PartitionKey {
	if l.Category == CategoryLubeOil {
		return []PartitionKey{LubeTypeKey(shipID, l.ItemType), LubeLotKey(shipID, l.LotRef)}
	}
	return []PartitionKey{FuelTypeKey(shipID, l.ItemType), FuelLotKey(shipID, l.LotRef)}
}

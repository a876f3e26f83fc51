/*
Package rob implements the voyage report workflow and the Remaining-On-Board
(ROB) ledger engine.

PURPOSE:
  This package contains the core domain types and algorithms for a per-vessel
  stream of operational reports and the running-balance inventory ledgers they
  post to. A report moves Draft → Submitted under strict chronological
  constraints; submission posts consumption and bunkering lines to append-only
  ledger chains partitioned by ship × fuel-type, ship × bunker lot, and
  ship × lube-oil-type. An independent additive-dosing producer posts against
  the same chains through the same posting engine.

KEY CONCEPTS IN THIS FILE (types.go):
  - Quantity: a metric-ton amount backed by decimal.Decimal
  - PartitionKey: the dimension along which a running balance is maintained
  - Category: FUEL vs LUBE_OIL ledger classification
  - Ship/Report/Lot identifiers: type-safe IDs

DESIGN PRINCIPLES:
  1. Immutability: ledger rows are never updated, only appended
  2. Precision: decimal.Decimal throughout, no float arithmetic on balances
  3. Type safety: strong ID types prevent mixing ship/report/lot identifiers

SEE ALSO:
  - ledger.go: LedgerEntry and chain invariants
  - posting.go: read-latest, compute, append posting engine
  - workflow.go: the report state machine
*/
package rob

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// QUANTITY - Metric-ton amount with exact arithmetic
// =============================================================================

type Quantity struct {
	Value decimal.Decimal
}

func NewQuantity(v float64) Quantity {
	return Quantity{Value: decimal.NewFromFloat(v)}
}

func ZeroQuantity() Quantity {
	return Quantity{Value: decimal.Zero}
}

// ParseQuantity decodes a decimal string. Stores use it when reading
// quantities back, so a corrupted cell surfaces as an error instead of a
// silent zero in the middle of a chain.
func ParseQuantity(s string) (Quantity, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ZeroQuantity(), fmt.Errorf("invalid quantity %q: %w", s, err)
	}
	return Quantity{Value: d}, nil
}

// MustParseQuantity is ParseQuantity for literals; it panics on a bad input.
func MustParseQuantity(s string) Quantity {
	q, err := ParseQuantity(s)
	if err != nil {
		panic(err)
	}
	return q
}

func (q Quantity) Add(o Quantity) Quantity  { return Quantity{Value: q.Value.Add(o.Value)} }
func (q Quantity) Sub(o Quantity) Quantity  { return Quantity{Value: q.Value.Sub(o.Value)} }
func (q Quantity) Neg() Quantity            { return Quantity{Value: q.Value.Neg()} }
func (q Quantity) IsZero() bool             { return q.Value.IsZero() }
func (q Quantity) IsNegative() bool         { return q.Value.IsNegative() }
func (q Quantity) IsPositive() bool         { return q.Value.IsPositive() }
func (q Quantity) Equal(o Quantity) bool    { return q.Value.Equal(o.Value) }
func (q Quantity) GreaterThan(o Quantity) bool { return q.Value.GreaterThan(o.Value) }
func (q Quantity) String() string           { return q.Value.String() }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type ShipID string
type ReportID string
type DosingEventID string
type LedgerEntryID string

// LotRef identifies a Bunker Delivery Note lot (a delivered batch of fuel or
// lube oil) within a ship. Lot numbers are only unique per ship.
type LotRef string

// =============================================================================
// CATEGORY - Ledger classification
// =============================================================================

type Category string

const (
	CategoryFuel    Category = "FUEL"
	CategoryLubeOil Category = "LUBE_OIL"
)

// =============================================================================
// PARTITION KEY - One running-balance chain per key
// =============================================================================

// PartitionKind names the dimension a chain runs along.
type PartitionKind string

const (
	PartitionFuelType PartitionKind = "fuel_type" // ship × fuel type aggregate
	PartitionFuelLot  PartitionKind = "fuel_lot"  // ship × BDN lot
	PartitionLubeType PartitionKind = "lube_type" // ship × lube-oil type aggregate
	PartitionLubeLot  PartitionKind = "lube_lot"  // ship × lube-oil BDN lot
)

// PartitionKey identifies one ledger chain. Ref is the fuel-type code
// (e.g. "HFO", "MGO"), lube-oil grade, or the BDN lot number depending on Kind.
type PartitionKey struct {
	ShipID ShipID
	Kind   PartitionKind
	Ref    string
}

func FuelTypeKey(shipID ShipID, fuelType string) PartitionKey {
	return PartitionKey{ShipID: shipID, Kind: PartitionFuelType, Ref: fuelType}
}

func FuelLotKey(shipID ShipID, lot LotRef) PartitionKey {
	return PartitionKey{ShipID: shipID, Kind: PartitionFuelLot, Ref: string(lot)}
}

func LubeTypeKey(shipID ShipID, grade string) PartitionKey {
	return PartitionKey{ShipID: shipID, Kind: PartitionLubeType, Ref: grade}
}

func LubeLotKey(shipID ShipID, lot LotRef) PartitionKey {
	return PartitionKey{ShipID: shipID, Kind: PartitionLubeLot, Ref: string(lot)}
}

// Category returns the ledger category the chain belongs to.
func (k PartitionKey) Category() Category {
	switch k.Kind {
	case PartitionLubeType, PartitionLubeLot:
		return CategoryLubeOil
	default:
		return CategoryFuel
	}
}

// String renders the canonical storage form: "<ship>/<kind>/<ref>".
func (k PartitionKey) String() string {
	return fmt.Sprintf("%s/%s/%s", k.ShipID, k.Kind, k.Ref)
}

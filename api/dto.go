/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

QUANTITIES:
  All quantities cross the wire as decimal strings ("125.50"), never floats.
  Conversion to rob.Quantity happens here at the boundary.

TIMEZONE:
  Clients may send either offsetMinutes directly or a descriptive timeZone
  label like "(UTC+05:30) Mumbai". The label form is parsed once here via
  rob.ParseUTCOffset; everything downstream sees whole minutes.

SEE ALSO:
  - handlers.go: Uses these types
  - rob/timezone.go: Offset-label parsing
*/
package api

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/harborline/voyage-engine/rob"
)

const localLayout = "2006-01-02T15:04:05"

// =============================================================================
// REPORT TYPES
// =============================================================================

// ConsumptionLineDTO is one fuel or lube-oil consumption line.
type ConsumptionLineDTO struct {
	Category string `json:"category"` // "FUEL" or "LUBE_OIL"
	ItemType string `json:"itemType"`
	LotRef   string `json:"lotRef,omitempty"`
	Quantity string `json:"qty"`
}

// BunkerLineDTO is one BDN receipt line.
type BunkerLineDTO struct {
	Category string `json:"category"`
	ItemType string `json:"itemType"`
	LotRef   string `json:"lotRef"`
	Quantity string `json:"qty"`
}

// MachineryLineDTO is one machinery running-hours counter.
type MachineryLineDTO struct {
	MachineryID  string   `json:"machineryId"`
	Class        string   `json:"class"` // "engine", "auxiliary", "other"
	RunningHours float64  `json:"runningHours"`
	Power        *float64 `json:"power,omitempty"`
	RPM          *float64 `json:"rpm,omitempty"`
}

// SaveReportRequest creates or fully replaces a report. TargetStatus steers
// the lifecycle: "draft" saves, "submitted" runs the full submit pipeline.
type SaveReportRequest struct {
	ShipID        string `json:"shipId"`
	ReportTypeKey string `json:"reportTypeKey"`
	TargetStatus  string `json:"status"` // "draft" or "submitted"

	UTCTime   string `json:"utcTime"`   // RFC3339
	LocalTime string `json:"localTime"` // "2006-01-02T15:04:05", no zone

	// One of the two offset forms. TimeZone wins when both are present.
	OffsetMinutes *int   `json:"offsetMinutes,omitempty"`
	TimeZone      string `json:"timeZone,omitempty"` // "(UTC+05:30) Mumbai"

	VoyageID    string `json:"voyageId,omitempty"`
	VoyageLegID string `json:"voyageLegId,omitempty"`

	CargoLoadedMT    *string `json:"cargoLoadedMt,omitempty"`
	CargoDischargedMT *string `json:"cargoDischargedMt,omitempty"`

	ConsumptionLines []ConsumptionLineDTO `json:"consumptionLines,omitempty"`
	BunkerLines      []BunkerLineDTO      `json:"bunkerLines,omitempty"`
	MachineryLines   []MachineryLineDTO   `json:"machineryLines,omitempty"`
}

// ReportDTO represents a report in API responses.
type ReportDTO struct {
	ID            string  `json:"id"`
	ShipID        string  `json:"shipId"`
	ReportTypeKey string  `json:"reportTypeKey"`
	Status        string  `json:"status"`
	UTCTime       string  `json:"utcTime"`
	LocalTime     string  `json:"localTime"`
	TimeZone      string  `json:"timeZone"`
	OffsetMinutes int     `json:"offsetMinutes"`
	DurationHrs   float64 `json:"durationHrs"`
	VoyageID      string  `json:"voyageId,omitempty"`
	VoyageLegID   string  `json:"voyageLegId,omitempty"`

	CargoLoadedMT    *string `json:"cargoLoadedMt,omitempty"`
	CargoDischargedMT *string `json:"cargoDischargedMt,omitempty"`

	ConsumptionLines []ConsumptionLineDTO `json:"consumptionLines,omitempty"`
	BunkerLines      []BunkerLineDTO      `json:"bunkerLines,omitempty"`
	MachineryLines   []MachineryLineDTO   `json:"machineryLines,omitempty"`

	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

// SubmitResponseDTO is the response after a submit (or submit-shaped update).
type SubmitResponseDTO struct {
	Report      ReportDTO        `json:"report"`
	DurationHrs float64          `json:"durationHrs"`
	Posted      []LedgerEntryDTO `json:"posted,omitempty"`
}

// =============================================================================
// LEDGER TYPES
// =============================================================================

// LedgerEntryDTO represents one immutable ROB posting.
type LedgerEntryDTO struct {
	Seq        int64  `json:"seq"`
	ID         string `json:"id"`
	Partition  string `json:"partition"`
	ShipID     string `json:"shipId"`
	Kind       string `json:"kind"`
	Ref        string `json:"ref"`
	Category   string `json:"category"`
	EventAt    string `json:"eventAt"`
	Bunkered   string `json:"bunkeredQty"`
	Consumed   string `json:"consumedQty"`
	Initial    string `json:"initialQty"`
	Final      string `json:"finalQty"`
	CausalKind string `json:"causalKind"`
	CausalRef  string `json:"causalRef"`
	CreatedAt  string `json:"createdAt,omitempty"`
}

// AvailabilityDTO is the cross-checked balance summary for one partition.
type AvailabilityDTO struct {
	Partition string `json:"partition"`
	Initial   string `json:"initialQty"`
	Bunkered  string `json:"totalBunkered"`
	Consumed  string `json:"totalConsumed"`
	Available string `json:"availableQty"`
}

// =============================================================================
// DOSING TYPES
// =============================================================================

// LotAllocationDTO is one BDN lot an additive dosing drew from.
type LotAllocationDTO struct {
	LotRef          string `json:"lotId"`
	Category        string `json:"category,omitempty"` // default "FUEL"
	ItemType        string `json:"itemType,omitempty"`
	Quantity        string `json:"qty"`
	BlendedQuantity string `json:"blendedQty"`
}

// PostDosingRequest is the intake contract from the additive service.
type PostDosingRequest struct {
	ID             string             `json:"id,omitempty"` // caller-supplied for idempotency
	ShipID         string             `json:"shipId"`
	Timestamp      string             `json:"timestamp"` // RFC3339
	AdditiveTypeID string             `json:"additiveTypeId"`
	DosingQuantity string             `json:"dosingQty"`
	Allocations    []LotAllocationDTO `json:"bdnAllocations"`
	MachineryIDs   []string           `json:"machineryIds,omitempty"`
}

// PostDosingResponse returns the posted ledger rows.
type PostDosingResponse struct {
	EventID string           `json:"eventId"`
	Posted  []LedgerEntryDTO `json:"posted"`
}

// DepletionRowDTO is one consumption posting against a dosed batch.
type DepletionRowDTO struct {
	LotRef             string `json:"lotId"`
	RowNumber          int    `json:"rowNumber"`
	Timestamp          string `json:"timestamp"`
	ConsumedThisEvent  string `json:"consumedQty"`
	CumulativeConsumed string `json:"cumulativeQty"`
	Remaining          string `json:"remainingQty"`
	CausalKind         string `json:"causalKind"`
	CausalRef          string `json:"causalRef"`
}

// =============================================================================
// SCENARIOS / ERRORS
// =============================================================================

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

// toReport converts a save request into the domain model. The report ID is
// assigned by the workflow (create) or the URL (update).
func toReport(req *SaveReportRequest) (*rob.Report, error) {
	r := &rob.Report{
		ShipID:      rob.ShipID(req.ShipID),
		TypeKey:     rob.ReportTypeKey(req.ReportTypeKey),
		VoyageID:    req.VoyageID,
		VoyageLegID: req.VoyageLegID,
	}

	if req.UTCTime != "" {
		utc, err := time.Parse(time.RFC3339, req.UTCTime)
		if err != nil {
			return nil, fmt.Errorf("invalid utcTime (use RFC3339): %w", err)
		}
		r.UTC = utc.UTC()
	}
	if req.LocalTime != "" {
		local, err := time.Parse(localLayout, req.LocalTime)
		if err != nil {
			return nil, fmt.Errorf("invalid localTime (use YYYY-MM-DDTHH:MM:SS): %w", err)
		}
		r.Local = local
	}

	switch {
	case req.TimeZone != "":
		offset, err := rob.ParseUTCOffset(req.TimeZone)
		if err != nil {
			return nil, err
		}
		r.OffsetMinutes = offset
	case req.OffsetMinutes != nil:
		r.OffsetMinutes = *req.OffsetMinutes
	}

	var err error
	if r.CargoLoadedMT, err = parseOptionalQuantity("cargoLoadedMt", req.CargoLoadedMT); err != nil {
		return nil, err
	}
	if r.CargoDischargedMT, err = parseOptionalQuantity("cargoDischargedMt", req.CargoDischargedMT); err != nil {
		return nil, err
	}

	for i, l := range req.ConsumptionLines {
		qty, err := parseQuantity(fmt.Sprintf("consumptionLines[%d].qty", i), l.Quantity)
		if err != nil {
			return nil, err
		}
		r.ConsumptionLines = append(r.ConsumptionLines, rob.ConsumptionLine{
			Category: rob.Category(l.Category),
			ItemType: l.ItemType,
			LotRef:   rob.LotRef(l.LotRef),
			Quantity: qty,
		})
	}
	for i, l := range req.BunkerLines {
		qty, err := parseQuantity(fmt.Sprintf("bunkerLines[%d].qty", i), l.Quantity)
		if err != nil {
			return nil, err
		}
		r.BunkerLines = append(r.BunkerLines, rob.BunkerLine{
			Category: rob.Category(l.Category),
			ItemType: l.ItemType,
			LotRef:   rob.LotRef(l.LotRef),
			Quantity: qty,
		})
	}
	for _, l := range req.MachineryLines {
		r.MachineryLines = append(r.MachineryLines, rob.MachineryLine{
			MachineryID:  l.MachineryID,
			Class:        rob.MachineryClass(l.Class),
			RunningHours: l.RunningHours,
			Power:        l.Power,
			RPM:          l.RPM,
		})
	}

	return r, nil
}

func toDosingEvent(req *PostDosingRequest) (*rob.DosingEvent, error) {
	e := &rob.DosingEvent{
		ID:             rob.DosingEventID(req.ID),
		ShipID:         rob.ShipID(req.ShipID),
		AdditiveTypeID: req.AdditiveTypeID,
		MachineryIDs:   req.MachineryIDs,
	}

	if req.Timestamp != "" {
		ts, err := time.Parse(time.RFC3339, req.Timestamp)
		if err != nil {
			return nil, fmt.Errorf("invalid timestamp (use RFC3339): %w", err)
		}
		e.Timestamp = ts.UTC()
	}

	if req.DosingQuantity != "" {
		qty, err := parseQuantity("dosingQty", req.DosingQuantity)
		if err != nil {
			return nil, err
		}
		e.DosingQuantity = qty
	}

	for i, a := range req.Allocations {
		category := rob.CategoryFuel
		if a.Category != "" {
			category = rob.Category(a.Category)
		}
		qty, err := parseQuantity(fmt.Sprintf("bdnAllocations[%d].qty", i), a.Quantity)
		if err != nil {
			return nil, err
		}
		blended, err := parseQuantity(fmt.Sprintf("bdnAllocations[%d].blendedQty", i), a.BlendedQuantity)
		if err != nil {
			return nil, err
		}
		e.Allocations = append(e.Allocations, rob.LotAllocation{
			LotRef:          rob.LotRef(a.LotRef),
			Category:        category,
			ItemType:        a.ItemType,
			Quantity:        qty,
			BlendedQuantity: blended,
		})
	}

	return e, nil
}

func toReportDTO(r *rob.Report) ReportDTO {
	dto := ReportDTO{
		ID:            string(r.ID),
		ShipID:        string(r.ShipID),
		ReportTypeKey: string(r.TypeKey),
		Status:        string(r.Status),
		UTCTime:       r.UTC.UTC().Format(time.RFC3339),
		LocalTime:     r.Local.Format(localLayout),
		TimeZone:      rob.FormatUTCOffset(r.OffsetMinutes),
		OffsetMinutes: r.OffsetMinutes,
		DurationHrs:   r.DurationHrs,
		VoyageID:      r.VoyageID,
		VoyageLegID:   r.VoyageLegID,
		CreatedAt:     r.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:     r.UpdatedAt.UTC().Format(time.RFC3339),
	}

	if r.CargoLoadedMT != nil {
		s := r.CargoLoadedMT.String()
		dto.CargoLoadedMT = &s
	}
	if r.CargoDischargedMT != nil {
		s := r.CargoDischargedMT.String()
		dto.CargoDischargedMT = &s
	}

	for _, l := range r.ConsumptionLines {
		dto.ConsumptionLines = append(dto.ConsumptionLines, ConsumptionLineDTO{
			Category: string(l.Category),
			ItemType: l.ItemType,
			LotRef:   string(l.LotRef),
			Quantity: l.Quantity.String(),
		})
	}
	for _, l := range r.BunkerLines {
		dto.BunkerLines = append(dto.BunkerLines, BunkerLineDTO{
			Category: string(l.Category),
			ItemType: l.ItemType,
			LotRef:   string(l.LotRef),
			Quantity: l.Quantity.String(),
		})
	}
	for _, l := range r.MachineryLines {
		dto.MachineryLines = append(dto.MachineryLines, MachineryLineDTO{
			MachineryID:  l.MachineryID,
			Class:        string(l.Class),
			RunningHours: l.RunningHours,
			Power:        l.Power,
			RPM:          l.RPM,
		})
	}

	return dto
}

func toLedgerEntryDTO(e rob.LedgerEntry) LedgerEntryDTO {
	return LedgerEntryDTO{
		Seq:        e.Seq,
		ID:         string(e.ID),
		Partition:  e.Partition.String(),
		ShipID:     string(e.Partition.ShipID),
		Kind:       string(e.Partition.Kind),
		Ref:        e.Partition.Ref,
		Category:   string(e.Category),
		EventAt:    e.EventTimestamp.UTC().Format(time.RFC3339),
		Bunkered:   e.Bunkered.String(),
		Consumed:   e.Consumed.String(),
		Initial:    e.Initial.String(),
		Final:      e.Final.String(),
		CausalKind: string(e.CausalKind),
		CausalRef:  e.CausalRef,
		CreatedAt:  e.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func toLedgerEntryDTOs(entries []rob.LedgerEntry) []LedgerEntryDTO {
	dtos := make([]LedgerEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = toLedgerEntryDTO(e)
	}
	return dtos
}

func parseQuantity(field, value string) (rob.Quantity, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return rob.ZeroQuantity(), fmt.Errorf("invalid %s: %q is not a decimal", field, value)
	}
	return rob.Quantity{Value: d}, nil
}

func parseOptionalQuantity(field string, value *string) (*rob.Quantity, error) {
	if value == nil {
		return nil, nil
	}
	q, err := parseQuantity(field, *value)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

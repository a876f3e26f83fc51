/*
handlers.go - HTTP API handlers for the voyage report and ROB ledger engine

PURPOSE:
  Exposes the report workflow and ledger engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Reports:
    POST   /api/ships/{shipId}/reports       Create draft report
    GET    /api/ships/{shipId}/reports       List reports (chronological)
    GET    /api/reports/{id}                 Get report with child lines
    PUT    /api/reports/{id}                 Full replace, optional submit
    POST   /api/reports/{id}/submit          Submit stored draft as-is
    DELETE /api/reports/{id}                 Soft delete

  Dosing:
    POST   /api/dosing-events                Post additive dosing event
    GET    /api/dosing-events/{id}/depletion Depletion timeline

  Ledger:
    GET    /api/ships/{shipId}/ledger/{kind}/{ref}              Chain history
    GET    /api/ships/{shipId}/ledger/{kind}/{ref}/availability Balance summary

  Scenarios:
    GET    /api/scenarios                    List demo scenarios
    POST   /api/scenarios/load               Load a demo scenario

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed input, field-level validation failures (field map in details)
  - 404: Report or dosing event not found
  - 409: Attempt to revert a Submitted report
  - 422: Chronological sequencing violations (out of order, gap, noon rule,
         preceding draft, duplicate time)
  - 500: Store failures

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/harborline/voyage-engine/rob"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    rob.TxStore
	Workflow *rob.Workflow
	Dosing   *rob.DosingService
	Audit    *rob.Reconstructor
	Logger   *zap.Logger

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler wired to the given store.
func NewHandler(store rob.TxStore, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Store:    store,
		Workflow: rob.NewWorkflow(store),
		Dosing:   rob.NewDosingService(store),
		Audit:    rob.NewReconstructor(store),
		Logger:   logger,
	}
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// CreateReport creates a new draft report for a ship.
func (h *Handler) CreateReport(w http.ResponseWriter, r *http.Request) {
	shipID := chi.URLParam(r, "shipId")

	var req SaveReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	req.ShipID = shipID

	report, err := toReport(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	created, err := h.Workflow.CreateReport(r.Context(), report)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.Logger.Info("report created",
		zap.String("reportId", string(created.ID)),
		zap.String("shipId", shipID),
		zap.String("type", string(created.TypeKey)))

	writeJSON(w, http.StatusCreated, toReportDTO(created))
}

// ListReports returns a ship's non-deleted reports in chronological order.
func (h *Handler) ListReports(w http.ResponseWriter, r *http.Request) {
	shipID := rob.ShipID(chi.URLParam(r, "shipId"))

	reports, err := h.Store.ListReports(r.Context(), shipID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list reports", err)
		return
	}

	dtos := make([]ReportDTO, len(reports))
	for i := range reports {
		dtos[i] = toReportDTO(&reports[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetReport returns a single report with its child lines.
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	id := rob.ReportID(chi.URLParam(r, "id"))

	report, err := h.Store.GetReport(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get report", err)
		return
	}
	if report == nil {
		writeError(w, http.StatusNotFound, "Report not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, toReportDTO(report))
}

// UpdateReport applies a full replace and moves the report toward the
// requested target status.
func (h *Handler) UpdateReport(w http.ResponseWriter, r *http.Request) {
	id := rob.ReportID(chi.URLParam(r, "id"))

	var req SaveReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	target := rob.StatusDraft
	if req.TargetStatus == string(rob.StatusSubmitted) {
		target = rob.StatusSubmitted
	}

	updated, err := toReport(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	result, err := h.Workflow.UpdateReport(r.Context(), id, updated, target)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.Logger.Info("report updated",
		zap.String("reportId", string(id)),
		zap.String("status", string(result.Status)),
		zap.Int("ledgerRows", len(result.Posted)))

	writeJSON(w, http.StatusOK, SubmitResponseDTO{
		Report:      toReportDTO(updated),
		DurationHrs: result.DurationHrs,
		Posted:      toLedgerEntryDTOs(result.Posted),
	})
}

// SubmitReport submits a stored draft as-is.
func (h *Handler) SubmitReport(w http.ResponseWriter, r *http.Request) {
	id := rob.ReportID(chi.URLParam(r, "id"))

	result, err := h.Workflow.SubmitReport(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	report, err := h.Store.GetReport(r.Context(), id)
	if err != nil || report == nil {
		writeError(w, http.StatusInternalServerError, "Failed to reload report", err)
		return
	}

	h.Logger.Info("report submitted",
		zap.String("reportId", string(id)),
		zap.Float64("durationHrs", result.DurationHrs),
		zap.Int("ledgerRows", len(result.Posted)))

	writeJSON(w, http.StatusOK, SubmitResponseDTO{
		Report:      toReportDTO(report),
		DurationHrs: result.DurationHrs,
		Posted:      toLedgerEntryDTOs(result.Posted),
	})
}

// DeleteReport soft-deletes a report. Posted ledger rows stay.
func (h *Handler) DeleteReport(w http.ResponseWriter, r *http.Request) {
	id := rob.ReportID(chi.URLParam(r, "id"))

	if err := h.Workflow.DeleteReport(r.Context(), id); err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// =============================================================================
// DOSING HANDLERS
// =============================================================================

// PostDosingEvent records an additive dosing event and posts its lot
// allocations to the ledger atomically.
func (h *Handler) PostDosingEvent(w http.ResponseWriter, r *http.Request) {
	var req PostDosingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	event, err := toDosingEvent(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	posted, err := h.Dosing.PostEvent(r.Context(), event)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.Logger.Info("dosing event posted",
		zap.String("eventId", string(event.ID)),
		zap.String("shipId", string(event.ShipID)),
		zap.Int("ledgerRows", len(posted)))

	writeJSON(w, http.StatusCreated, PostDosingResponse{
		EventID: string(event.ID),
		Posted:  toLedgerEntryDTOs(posted),
	})
}

// GetDepletionTimeline reconstructs the consumption curve of a dosing event's
// treated batches.
func (h *Handler) GetDepletionTimeline(w http.ResponseWriter, r *http.Request) {
	id := rob.DosingEventID(chi.URLParam(r, "id"))

	rows, err := h.Audit.DepletionTimeline(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	dtos := make([]DepletionRowDTO, len(rows))
	for i, row := range rows {
		dtos[i] = DepletionRowDTO{
			LotRef:             string(row.LotRef),
			RowNumber:          row.RowNumber,
			Timestamp:          row.Timestamp.Format(time.RFC3339),
			ConsumedThisEvent:  row.ConsumedThisEvent.String(),
			CumulativeConsumed: row.CumulativeConsumed.String(),
			Remaining:          row.Remaining.String(),
			CausalKind:         string(row.CausalKind),
			CausalRef:          row.CausalRef,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// GetLedgerHistory returns a partition's full chain in insertion order.
func (h *Handler) GetLedgerHistory(w http.ResponseWriter, r *http.Request) {
	key, ok := h.partitionFromURL(w, r)
	if !ok {
		return
	}

	entries, err := h.Audit.History(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load ledger history", err)
		return
	}
	writeJSON(w, http.StatusOK, toLedgerEntryDTOs(entries))
}

// GetAvailability returns the cross-checked balance summary for a partition.
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	key, ok := h.partitionFromURL(w, r)
	if !ok {
		return
	}

	avail, err := h.Audit.AvailableQuantity(r.Context(), key)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute availability", err)
		return
	}

	writeJSON(w, http.StatusOK, AvailabilityDTO{
		Partition: avail.Partition.String(),
		Initial:   avail.Initial.String(),
		Bunkered:  avail.Bunkered.String(),
		Consumed:  avail.Consumed.String(),
		Available: avail.Available.String(),
	})
}

func (h *Handler) partitionFromURL(w http.ResponseWriter, r *http.Request) (rob.PartitionKey, bool) {
	shipID := rob.ShipID(chi.URLParam(r, "shipId"))
	kind := rob.PartitionKind(chi.URLParam(r, "kind"))
	ref := chi.URLParam(r, "ref")

	switch kind {
	case rob.PartitionFuelType, rob.PartitionFuelLot, rob.PartitionLubeType, rob.PartitionLubeLot:
	default:
		writeError(w, http.StatusBadRequest,
			"Invalid partition kind (use fuel_type, fuel_lot, lube_type, lube_lot)", nil)
		return rob.PartitionKey{}, false
	}

	return rob.PartitionKey{ShipID: shipID, Kind: kind, Ref: ref}, true
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

// writeDomainError maps domain errors onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var verrs rob.ValidationErrors
	if errors.As(err, &verrs) {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Validation failed",
			Code:    "VALIDATION",
			Details: verrs,
		})
		return
	}

	if rob.IsSequenceError(err) {
		code := "SEQUENCE"
		switch {
		case errors.Is(err, rob.ErrOutOfOrder):
			code = "OUT_OF_ORDER"
		case errors.Is(err, rob.ErrGapExceeded):
			code = "GAP_EXCEEDED"
		case errors.Is(err, rob.ErrPrecedingNotSubmitted):
			code = "PRECEDING_NOT_SUBMITTED"
		case errors.Is(err, rob.ErrInvalidNoonTime):
			code = "INVALID_NOON_TIME"
		case errors.Is(err, rob.ErrDuplicateReportTime):
			code = "DUPLICATE_REPORT_TIME"
		}
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{
			Error: err.Error(),
			Code:  code,
		})
		return
	}

	switch {
	case errors.Is(err, rob.ErrCannotRevertSubmitted):
		writeError(w, http.StatusConflict, err.Error(), nil)
	case errors.Is(err, rob.ErrReportNotFound), errors.Is(err, rob.ErrDosingEventNotFound):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	default:
		h.Logger.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

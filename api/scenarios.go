/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	voyage data for testing and demos. Each scenario creates reports,
	submits them through the full pipeline, and posts dosing events so the
	ledger chains are real, not hand-inserted rows.

AVAILABLE SCENARIOS:

	first-voyage:     Bunkering + first noon report, minimal chain
	noon-chain:       A week of noon reports depleting one HFO lot
	dosing-depletion: Additive dosing followed by consumptions, shows the
	                  depletion timeline against the blended batch

HOW SCENARIOS WORK:
 1. Reset store (when the backing store supports it)
 2. Create reports as drafts via the workflow
 3. Submit them in chronological order so sequencing rules hold
 4. Post dosing events through the dosing service

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "noon-chain"}

NOTE:

	Scenarios reset the store. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: LoadScenario, ListScenarios handlers
  - rob/workflow.go: the submit pipeline the loaders drive
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/harborline/voyage-engine/rob"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "first-voyage",
		Name:        "First Voyage",
		Description: "Bunkering receipt plus the ship's first noon report",
	},
	{
		ID:          "noon-chain",
		Name:        "Noon Report Chain",
		Description: "A week of noon reports depleting one HFO lot",
	},
	{
		ID:          "dosing-depletion",
		Name:        "Dosing Depletion",
		Description: "Additive dosing followed by consumptions, with depletion timeline",
	},
}

// resettable is implemented by stores that can wipe themselves (dev only).
type resettable interface {
	Reset(ctx context.Context) error
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          h.currentScenario,
		Name:        h.currentScenario,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	// Reset first
	if rs, ok := h.Store.(resettable); ok {
		if err := rs.Reset(ctx); err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to reset store", err)
			return
		}
	}
	h.currentScenario = ""

	var err error
	switch req.ScenarioID {
	case "first-voyage":
		err = h.loadFirstVoyageScenario(ctx)
	case "noon-chain":
		err = h.loadNoonChainScenario(ctx)
	case "dosing-depletion":
		err = h.loadDosingDepletionScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

const demoShip = "mv-aurora"

func (h *Handler) loadFirstVoyageScenario(ctx context.Context) error {
	base := noonAnchor()

	// Departure with the initial bunkering receipt. First report for the
	// ship, so no gap rules apply.
	departure := &rob.Report{
		ShipID:        demoShip,
		TypeKey:       rob.TypeDeparture,
		UTC:           base.Add(-20 * time.Hour),
		Local:         base.Add(-18 * time.Hour),
		OffsetMinutes: 120,
		VoyageID:      "voy-001",
		CargoLoadedMT:    quantityPtr("18500"),
		CargoDischargedMT: quantityPtr("0"),
		BunkerLines: []rob.BunkerLine{
			{Category: rob.CategoryFuel, ItemType: "HFO", LotRef: "BDN-2026-001", Quantity: rob.MustParseQuantity("500")},
			{Category: rob.CategoryLubeOil, ItemType: "ME-CYL", LotRef: "BDN-2026-L01", Quantity: rob.MustParseQuantity("40")},
		},
	}
	if err := h.createAndSubmit(ctx, departure); err != nil {
		return err
	}

	// First noon report, consuming from the delivered lot.
	noon := noonReport(demoShip, base, []rob.ConsumptionLine{
		{Category: rob.CategoryFuel, ItemType: "HFO", LotRef: "BDN-2026-001", Quantity: rob.MustParseQuantity("22.5")},
	})
	return h.createAndSubmit(ctx, noon)
}

func (h *Handler) loadNoonChainScenario(ctx context.Context) error {
	if err := h.loadFirstVoyageScenario(ctx); err != nil {
		return err
	}

	base := noonAnchor()
	for day := 1; day <= 6; day++ {
		noon := noonReport(demoShip, base.AddDate(0, 0, day), []rob.ConsumptionLine{
			{Category: rob.CategoryFuel, ItemType: "HFO", LotRef: "BDN-2026-001", Quantity: rob.MustParseQuantity("24")},
			{Category: rob.CategoryLubeOil, ItemType: "ME-CYL", LotRef: "BDN-2026-L01", Quantity: rob.MustParseQuantity("0.8")},
		})
		if err := h.createAndSubmit(ctx, noon); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadDosingDepletionScenario(ctx context.Context) error {
	if err := h.loadFirstVoyageScenario(ctx); err != nil {
		return err
	}

	base := noonAnchor()

	// Additive dosing drawing from the HFO lot shortly after the first noon.
	event := &rob.DosingEvent{
		ShipID:         demoShip,
		Timestamp:      base.Add(4 * time.Hour).UTC(),
		AdditiveTypeID: "ADD-FUELCARE-200",
		DosingQuantity: rob.MustParseQuantity("0.5"),
		Allocations: []rob.LotAllocation{
			{
				LotRef:          "BDN-2026-001",
				Category:        rob.CategoryFuel,
				ItemType:        "HFO",
				Quantity:        rob.MustParseQuantity("5"),
				BlendedQuantity: rob.MustParseQuantity("100"),
			},
		},
		MachineryIDs: []string{"ME-1"},
	}
	if _, err := h.Dosing.PostEvent(ctx, event); err != nil {
		return err
	}

	// Two noon reports after the dosing deplete the treated batch.
	for day := 1; day <= 2; day++ {
		noon := noonReport(demoShip, base.AddDate(0, 0, day), []rob.ConsumptionLine{
			{Category: rob.CategoryFuel, ItemType: "HFO", LotRef: "BDN-2026-001", Quantity: rob.MustParseQuantity("30")},
		})
		if err := h.createAndSubmit(ctx, noon); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

// noonAnchor returns a stable noon-UTC instant a few days back, so reloading
// the same scenario always builds the same chain.
func noonAnchor() time.Time {
	today := time.Now().UTC()
	anchor := time.Date(today.Year(), today.Month(), today.Day(), 10, 0, 0, 0, time.UTC)
	return anchor.AddDate(0, 0, -10)
}

// noonReport builds a noon report with local wall clock exactly 12:00:00 at
// UTC+02:00.
func noonReport(shipID rob.ShipID, utc time.Time, lines []rob.ConsumptionLine) *rob.Report {
	return &rob.Report{
		ShipID:           shipID,
		TypeKey:          rob.TypeNoon,
		UTC:              utc,
		Local:            utc.Add(2 * time.Hour),
		OffsetMinutes:    120,
		VoyageID:         "voy-001",
		ConsumptionLines: lines,
	}
}

func (h *Handler) createAndSubmit(ctx context.Context, r *rob.Report) error {
	created, err := h.Workflow.CreateReport(ctx, r)
	if err != nil {
		return fmt.Errorf("creating %s report: %w", r.TypeKey, err)
	}
	if _, err := h.Workflow.SubmitReport(ctx, created.ID); err != nil {
		return fmt.Errorf("submitting %s report: %w", r.TypeKey, err)
	}
	return nil
}

func quantityPtr(s string) *rob.Quantity {
	q := rob.MustParseQuantity(s)
	return &q
}

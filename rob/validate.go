/*
validate.go - Draft vs submit validation

PURPOSE:
  Two validation modes mirror the two save paths:

  Draft saves keep only the structural required-field checks (ship, type,
  both timestamps, and a voyage or voyage-leg reference). Numeric and range
  rules are skipped so partially-filled reports can be parked.

  Submit saves run the full rule set on top of the structural checks:
  non-negative quantities, mandatory cargo figures on departure-class types,
  mandatory Power/RPM on engine-class machinery, lot references on receipts.

  Errors accumulate into a field-path → message map so the caller can
  highlight every offending input in one round trip.
*/
package rob

import "fmt"

// ValidateDraft runs the structural checks that apply to every save.
func ValidateDraft(r *Report) error {
	errs := ValidationErrors{}
	validateStructural(r, errs)
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// ValidateSubmit runs the full rule set required before a report may post to
// the ledger.
func ValidateSubmit(r *Report) error {
	errs := ValidationErrors{}
	validateStructural(r, errs)
	validateLines(r, errs)
	validateCargo(r, errs)
	validateMachinery(r, errs)
	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateStructural(r *Report, errs ValidationErrors) {
	if r.ShipID == "" {
		errs.Add("shipId", "ship is required")
	}
	if r.TypeKey == "" {
		errs.Add("reportTypeKey", "report type is required")
	}
	if r.UTC.IsZero() {
		errs.Add("reportDateTimeUtc", "UTC timestamp is required")
	}
	if r.Local.IsZero() {
		errs.Add("reportDateTimeLocal", "local timestamp is required")
	}
	if r.VoyageID == "" && r.VoyageLegID == "" {
		errs.Add("voyageId", "a voyage or voyage leg is required")
	}
}

func validateLines(r *Report, errs ValidationErrors) {
	for i, line := range r.ConsumptionLines {
		path := fmt.Sprintf("consumptionLines[%d]", i)
		if line.ItemType == "" {
			errs.Add(path+".itemType", "item type is required")
		}
		if line.Quantity.IsNegative() {
			errs.Add(path+".quantity", "consumed quantity must be >= 0")
		}
	}
	for i, line := range r.BunkerLines {
		path := fmt.Sprintf("bunkerLines[%d]", i)
		if line.ItemType == "" {
			errs.Add(path+".itemType", "item type is required")
		}
		if line.LotRef == "" {
			errs.Add(path+".lotRef", "BDN lot reference is required on receipts")
		}
		if line.Quantity.IsNegative() {
			errs.Add(path+".quantity", "received quantity must be >= 0")
		}
	}
}

func validateCargo(r *Report, errs ValidationErrors) {
	if !TypeSpec(r.TypeKey).RequiresCargo {
		return
	}
	if r.CargoLoadedMT == nil {
		errs.Add("cargoLoadedMt", "cargo loaded is required for this report type")
	}
	if r.CargoDischargedMT == nil {
		errs.Add("cargoDischargedMt", "cargo discharged is required for this report type")
	}
}

func validateMachinery(r *Report, errs ValidationErrors) {
	for i, line := range r.MachineryLines {
		path := fmt.Sprintf("machineryLines[%d]", i)
		if line.MachineryID == "" {
			errs.Add(path+".machineryId", "machinery id is required")
		}
		if line.RunningHours < 0 {
			errs.Add(path+".runningHours", "running hours must be >= 0")
		}
		if line.Class == MachineryEngine {
			if line.Power == nil {
				errs.Add(path+".power", "power is required for engine machinery")
			}
			if line.RPM == nil {
				errs.Add(path+".rpm", "rpm is required for engine machinery")
			}
		}
	}
}

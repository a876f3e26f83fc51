/*
reporttype.go - Report type registry

PURPOSE:
  Classifies report types for the rules that depend on them: noon reports
  must carry a 12:00:00 local wall clock, departure-class reports must carry
  cargo figures. The registry is a fixed table; unknown type keys behave as
  plain position reports with no extra rules.
*/
package rob

type ReportTypeKey string

const (
	TypeNoon         ReportTypeKey = "NOON"
	TypeDeparture    ReportTypeKey = "DEPARTURE"
	TypeArrival      ReportTypeKey = "ARRIVAL"
	TypeAnchorAweigh ReportTypeKey = "ANCHOR_AWEIGH"
	TypeAnchorDrop   ReportTypeKey = "ANCHOR_DROP"
	TypeBunkering    ReportTypeKey = "BUNKERING"
)

// ReportTypeSpec carries the per-type rule flags.
type ReportTypeSpec struct {
	Key           ReportTypeKey
	Name          string
	IsNoon        bool
	RequiresCargo bool
}

var reportTypes = map[ReportTypeKey]ReportTypeSpec{
	TypeNoon:         {Key: TypeNoon, Name: "Noon Report", IsNoon: true},
	TypeDeparture:    {Key: TypeDeparture, Name: "Departure Report", RequiresCargo: true},
	TypeArrival:      {Key: TypeArrival, Name: "Arrival Report"},
	TypeAnchorAweigh: {Key: TypeAnchorAweigh, Name: "Anchor Aweigh Report", RequiresCargo: true},
	TypeAnchorDrop:   {Key: TypeAnchorDrop, Name: "Anchor Drop Report"},
	TypeBunkering:    {Key: TypeBunkering, Name: "Bunkering Report"},
}

// TypeSpec returns the registry entry for a key. Unknown keys get an empty
// spec with no special rules.
func TypeSpec(key ReportTypeKey) ReportTypeSpec {
	if spec, ok := reportTypes[key]; ok {
		return spec
	}
	return ReportTypeSpec{Key: key, Name: string(key)}
}

// KnownReportType reports whether the key is in the registry.
func KnownReportType(key ReportTypeKey) bool {
	_, ok := reportTypes[key]
	return ok
}

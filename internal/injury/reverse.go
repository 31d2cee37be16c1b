package injury

import (
	"encoding/json"
	"errors"
	"fmt"
)

var errEmptyBlob = errors.New("embedded section is empty")

// Reverse rebuilds a draft from a stored record. The embedded section blobs
// are used verbatim when all three decode; otherwise the first report and
// investigation are reconstructed from the flat fields and the root cause is
// left empty. The second result reports whether that lossy path was taken.
func Reverse(rec ExternalRecord) (FormState, bool) {
	state, err := decodeSections(rec)
	if err == nil {
		return state, false
	}
	return fromFlatFields(rec), true
}

// ReverseFields is Reverse for a raw store item, either the bare field map
// or an item envelope carrying a "fields" object. Values of unexpected types
// are ignored.
func ReverseFields(item map[string]any) (FormState, ExternalRecord, bool) {
	fields := item
	if nested, ok := item["fields"].(map[string]any); ok {
		fields = nested
	}
	rec := RecordFromFields(fields)
	state, fallback := Reverse(rec)
	return state, rec, fallback
}

// RecordFromFields reads the typed record out of a loosely typed field map.
func RecordFromFields(fields map[string]any) ExternalRecord {
	var rec ExternalRecord
	// Round-tripping through JSON keeps the field contract in one place (the
	// struct tags). Mistyped values fail the whole decode, so fall back to a
	// per-field copy in that case.
	if b, err := json.Marshal(fields); err == nil {
		if err := json.Unmarshal(b, &rec); err == nil {
			return rec
		}
	}
	rec = ExternalRecord{}
	str := func(key string) string {
		s, _ := fields[key].(string)
		return s
	}
	flag := func(key string) bool {
		b, _ := fields[key].(bool)
		return b
	}
	rec.Title = str("Title")
	rec.EmployeeName = str("EmployeeName")
	rec.EmployeeID = str("EmployeeID")
	rec.DateOfInjury = str("DateOfInjury")
	rec.TimeOfInjury = str("TimeOfInjury")
	rec.Location = str("Location")
	rec.Description = str("Description")
	rec.InvestigationCompleted = flag("InvestigationCompleted")
	rec.InvestigationCompletedAt = str("InvestigationCompletedAt")
	rec.IsSIF = flag("IsSIF")
	rec.AKOSHReportRequired = flag("AKOSHReportRequired")
	rec.AKOSHReportDeadline = str("AKOSHReportDeadline")
	rec.FirstReportData = str("FirstReportData")
	rec.InvestigationData = str("InvestigationData")
	rec.RootCauseData = str("RootCauseData")
	return rec
}

func decodeSections(rec ExternalRecord) (FormState, error) {
	var state FormState
	if err := decodeBlob("FirstReportData", rec.FirstReportData, &state.FirstReport); err != nil {
		return FormState{}, err
	}
	if err := decodeBlob("InvestigationData", rec.InvestigationData, &state.Investigation); err != nil {
		return FormState{}, err
	}
	if err := decodeBlob("RootCauseData", rec.RootCauseData, &state.RootCause); err != nil {
		return FormState{}, err
	}
	return state, nil
}

func decodeBlob(name, blob string, dst any) error {
	if blob == "" {
		return fmt.Errorf("%s: %w", name, errEmptyBlob)
	}
	if err := json.Unmarshal([]byte(blob), dst); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

func fromFlatFields(rec ExternalRecord) FormState {
	dateTime := rec.DateOfInjury
	if rec.DateOfInjury != "" && rec.TimeOfInjury != "" {
		dateTime = rec.DateOfInjury + "T" + rec.TimeOfInjury
	}
	return FormState{
		FirstReport: FirstReportSection{
			EmployeeName:         rec.EmployeeName,
			DateTimeOfIncident:   dateTime,
			WhereWereYou:         rec.Location,
			HowDidIncidentHappen: rec.Description,
		},
		Investigation: InvestigationSection{
			Employee:           rec.EmployeeName,
			EmployeeIDNumber:   rec.EmployeeID,
			LocationOfIncident: rec.Location,
			DateOfIncident:     rec.DateOfInjury,
			InvestigationDate:  rec.InvestigationCompletedAt,
		},
	}
}

package injury

import (
	"encoding/json"
	"strings"
	"time"

	"injury-report/internal/classifier"
)

// Timestamp layout used for every instant written to the record store.
const isoMillis = "2006-01-02T15:04:05.000Z"

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
)

// Layouts accepted for zone-less date-time inputs, most specific first.
var localLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	dateLayout,
}

// Mapper converts between the nested draft and the flat store record.
type Mapper struct {
	// Now stamps attestation fields. Defaults to time.Now.
	Now func() time.Time
	// Location is used for date-time inputs that carry no zone.
	Location *time.Location
}

// NewMapper returns a Mapper reading zone-less inputs in loc (UTC when nil).
func NewMapper(loc *time.Location) *Mapper {
	if loc == nil {
		loc = time.UTC
	}
	return &Mapper{Now: time.Now, Location: loc}
}

func (m *Mapper) location() *time.Location {
	if m == nil || m.Location == nil {
		return time.UTC
	}
	return m.Location
}

func (m *Mapper) now() time.Time {
	if m == nil || m.Now == nil {
		return time.Now()
	}
	return m.Now()
}

// Forward flattens a draft into the store record. prev carries stamps from
// earlier saves of the same draft; the returned Stamps must be kept with the
// draft for the next call. Forward never fails on partial input.
func (m *Mapper) Forward(state FormState, prev Stamps) (ExternalRecord, Stamps) {
	fr := state.FirstReport
	inv := state.Investigation

	incidentAt, dateOfInjury, timeOfInjury := m.resolveIncident(fr, inv)

	treatment := fr.TreatmentType
	if treatment == "" {
		treatment = classifier.DefaultTreatment
	}
	isSIF := classifier.IsSeriousOrFatal(treatment)
	required := classifier.IsExternalReportRequired(treatment)
	category := classifier.ExternalReportCategory(treatment)

	var deadline string
	if required && incidentAt != nil {
		if d := classifier.CalculateDeadline(category, incidentAt); d != nil {
			deadline = d.Format(isoMillis)
		}
	}

	description := joinNonEmpty("\n\n", fr.HowDidIncidentHappen, inv.IncidentDescription, inv.AccidentScene)
	if description == "" {
		description = fr.HowDidIncidentHappen
	}

	employee := firstNonEmpty(fr.EmployeeName, inv.Employee)
	titleName := employee
	if titleName == "" {
		titleName = "Unknown"
	}
	titleDate := dateOfInjury
	if titleDate == "" {
		titleDate = "No Date"
	}

	stamps := Stamps{
		ReportedToSupervisorAt: m.stampOnce(fr.ReportedRightAway == Yes, prev.ReportedToSupervisorAt),
		ReportedToCSMAt:        m.stampOnce(isSIF, prev.ReportedToCSMAt),
	}

	rec := ExternalRecord{
		Title:        titleName + " - " + titleDate,
		EmployeeName: employee,
		EmployeeID:   inv.EmployeeIDNumber,
		DateOfInjury: dateOfInjury,
		TimeOfInjury: timeOfInjury,
		Location:     firstNonEmpty(inv.LocationOfIncident, fr.WhereWereYou, fr.Plant),
		Description:  description,

		Severity:      classifier.DetermineSeverity(treatment, isSIF),
		TreatmentType: treatment,

		AKOSHReportRequired: required,
		AKOSHReportType:     category,
		AKOSHReportDeadline: deadline,

		ReportedToSupervisorAt: stamps.ReportedToSupervisorAt,
		ReportedToCSMAt:        stamps.ReportedToCSMAt,

		IsSIF:                    isSIF,
		InvestigationCompleted:   inv.InvestigationDate != "",
		InvestigationCompletedAt: m.instantOrRaw(inv.InvestigationDate),

		FirstReportData:   encodeSection(state.FirstReport),
		InvestigationData: encodeSection(state.Investigation),
		RootCauseData:     encodeSection(state.RootCause),
	}
	return rec, stamps
}

// resolveIncident prefers the combined first-report date-time and falls back
// to the investigation date with the first-report time. Date and time come
// out in UTC whenever a full instant is known. A bare date is kept as entered.
func (m *Mapper) resolveIncident(fr FirstReportSection, inv InvestigationSection) (*time.Time, string, string) {
	if t, ok := m.parseInstant(fr.DateTimeOfIncident); ok {
		utc := t.UTC()
		return &utc, utc.Format(dateLayout), utc.Format(timeLayout)
	}

	date := strings.TrimSpace(inv.DateOfIncident)
	clock := strings.TrimSpace(fr.TimeOfIncident)
	if date == "" {
		return nil, "", clock
	}
	if clock != "" {
		if t, ok := m.parseInstant(date + "T" + clock); ok {
			utc := t.UTC()
			return &utc, utc.Format(dateLayout), utc.Format(timeLayout)
		}
	}
	if t, ok := m.parseInstant(date); ok {
		utc := t.UTC()
		return &utc, date, clock
	}
	return nil, date, clock
}

func (m *Mapper) parseInstant(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	for _, layout := range localLayouts {
		if t, err := time.ParseInLocation(layout, s, m.location()); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func (m *Mapper) instantOrRaw(s string) string {
	if s == "" {
		return ""
	}
	if t, ok := m.parseInstant(s); ok {
		return t.UTC().Format(isoMillis)
	}
	return s
}

// stampOnce keeps an existing stamp while the condition holds, stamps now on
// the first transition, and clears it when the condition no longer holds.
func (m *Mapper) stampOnce(cond bool, prev string) string {
	if !cond {
		return ""
	}
	if prev != "" {
		return prev
	}
	return m.now().UTC().Format(isoMillis)
}

func encodeSection(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}

func joinNonEmpty(sep string, parts ...string) string {
	kept := parts[:0:0]
	for _, p := range parts {
		if p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, sep)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

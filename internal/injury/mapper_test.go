package injury

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"injury-report/internal/classifier"
)

func fixedMapper(now time.Time) *Mapper {
	m := NewMapper(time.UTC)
	m.Now = func() time.Time { return now }
	return m
}

func sampleState() FormState {
	return FormState{
		FirstReport: FirstReportSection{
			EmployeeName:         "Dana Reyes",
			Plant:                "Anchorage Plant 2",
			DateTimeOfIncident:   "2024-03-15T09:00",
			BodyPartInjured:      BodyPartMultiple,
			BodyPartInjuredOther: "left hand and forearm",
			HowDidIncidentHappen: "Hand caught in conveyor pinch point.",
			WhereWereYou:         "Line 3",
			Witness1Name:         "Sam Ito",
			Witness1Position:     "Operator",
			ReportedRightAway:    Yes,
			TreatmentType:        classifier.TreatmentHospitalized,
			Photos:               []string{"data:image/png;base64,AAAA"},
		},
		Investigation: InvestigationSection{
			Employee:                   "Dana Reyes",
			EmployeeIDNumber:           "E-1042",
			LocationOfIncident:         "Line 3 conveyor",
			DateOfIncident:             "2024-03-15",
			ShiftEmployeeWorked:        ShiftB,
			IncidentDescription:        "Guard removed for cleaning.",
			AccidentScene:              "Guard found on floor.",
			DidBreakSafetyRule:         Yes,
			BreakSafetyRuleExplanation: "Lockout not applied.",
			InvestigatedBy:             "P. Shaw",
			InvestigationDate:          "2024-03-16",
		},
		RootCause: RootCauseSection{
			RootCauseMethod:    MethodFiveWhys,
			ImmediateRootCause: "Unguarded pinch point",
			WhyAnalysis: []string{
				"Guard was off",
				"Cleaning required access",
				"No tool-less cleaning port",
				"Design predates standard",
				"No retrofit program",
			},
			CorrectiveActions: []CorrectiveAction{
				{Action: "Install interlocked guard", Responsible: "Maintenance", DueDate: "2024-04-01", Status: StatusInProgress},
				{Action: "Retrain line 3 on LOTO", Responsible: "EHS", DueDate: "2024-03-22", Status: StatusCompleted},
			},
			Effectiveness:  EffectivenessNotVerified,
			LessonsLearned: "Audit guards weekly.",
		},
	}
}

func TestForwardHospitalizedScenario(t *testing.T) {
	now := time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
	rec, stamps := fixedMapper(now).Forward(sampleState(), Stamps{})

	assert.Equal(t, "Dana Reyes - 2024-03-15", rec.Title)
	assert.Equal(t, "2024-03-15", rec.DateOfInjury)
	assert.Equal(t, "09:00:00", rec.TimeOfInjury)
	assert.Equal(t, classifier.TreatmentHospitalized, rec.TreatmentType)
	assert.True(t, rec.IsSIF)
	assert.Equal(t, classifier.SeveritySIF, rec.Severity)
	assert.True(t, rec.AKOSHReportRequired)
	assert.Equal(t, classifier.CategoryHospitalization, rec.AKOSHReportType)
	assert.Equal(t, "2024-03-15T17:00:00.000Z", rec.AKOSHReportDeadline)
	assert.Equal(t, "E-1042", rec.EmployeeID)
	assert.Equal(t, "Line 3 conveyor", rec.Location)
	assert.Equal(t, "Hand caught in conveyor pinch point.\n\nGuard removed for cleaning.\n\nGuard found on floor.", rec.Description)
	assert.True(t, rec.InvestigationCompleted)
	assert.Equal(t, "2024-03-16T00:00:00.000Z", rec.InvestigationCompletedAt)
	assert.Equal(t, "2024-03-15T10:30:00.000Z", rec.ReportedToSupervisorAt)
	assert.Equal(t, "2024-03-15T10:30:00.000Z", rec.ReportedToCSMAt)
	assert.Empty(t, rec.ReportedToAKOSHAt)
	assert.Empty(t, rec.AKOSHConfirmationNo)
	assert.Equal(t, rec.ReportedToSupervisorAt, stamps.ReportedToSupervisorAt)
}

func TestForwardEmptyState(t *testing.T) {
	rec, stamps := NewMapper(nil).Forward(FormState{}, Stamps{})

	assert.Equal(t, "Unknown - No Date", rec.Title)
	assert.Equal(t, "", rec.Description)
	assert.Equal(t, "", rec.EmployeeName)
	assert.Equal(t, "", rec.Location)
	assert.Equal(t, classifier.SeverityMinor, rec.Severity)
	assert.Equal(t, classifier.DefaultTreatment, rec.TreatmentType)
	assert.False(t, rec.AKOSHReportRequired)
	assert.Equal(t, classifier.CategoryNone, rec.AKOSHReportType)
	assert.Empty(t, rec.AKOSHReportDeadline)
	assert.False(t, rec.IsSIF)
	assert.False(t, rec.InvestigationCompleted)
	assert.Empty(t, rec.ReportedToSupervisorAt)
	assert.Equal(t, Stamps{}, stamps)
	assert.Equal(t, "{}", rec.FirstReportData)
	assert.Equal(t, "{}", rec.InvestigationData)
	assert.Equal(t, "{}", rec.RootCauseData)
}

func TestForwardIncidentFallback(t *testing.T) {
	state := FormState{
		FirstReport:   FirstReportSection{TimeOfIncident: "14:45", TreatmentType: classifier.TreatmentAmputation},
		Investigation: InvestigationSection{Employee: "Lee Park", DateOfIncident: "2024-06-01"},
	}
	rec, _ := NewMapper(time.UTC).Forward(state, Stamps{})

	assert.Equal(t, "Lee Park - 2024-06-01", rec.Title)
	assert.Equal(t, "2024-06-01", rec.DateOfInjury)
	assert.Equal(t, "14:45:00", rec.TimeOfInjury)
	assert.Equal(t, classifier.SeverityMinor, rec.Severity)
	assert.True(t, rec.AKOSHReportRequired)
	assert.Equal(t, "2024-06-01T22:45:00.000Z", rec.AKOSHReportDeadline)
}

func TestForwardIncidentFallbackIsUTC(t *testing.T) {
	anchorage := time.FixedZone("AKDT", -8*3600)

	split := FormState{
		FirstReport:   FirstReportSection{TimeOfIncident: "20:30"},
		Investigation: InvestigationSection{DateOfIncident: "2024-06-01"},
	}
	combined := FormState{FirstReport: FirstReportSection{DateTimeOfIncident: "2024-06-01T20:30"}}

	m := NewMapper(anchorage)
	fromSplit, _ := m.Forward(split, Stamps{})
	fromCombined, _ := m.Forward(combined, Stamps{})

	// 20:30 AKDT is 04:30 UTC the next day.
	assert.Equal(t, "2024-06-02", fromSplit.DateOfInjury)
	assert.Equal(t, "04:30:00", fromSplit.TimeOfInjury)
	assert.Equal(t, fromCombined.DateOfInjury, fromSplit.DateOfInjury)
	assert.Equal(t, fromCombined.TimeOfInjury, fromSplit.TimeOfInjury)
}

func TestForwardIncidentDateOnly(t *testing.T) {
	state := FormState{Investigation: InvestigationSection{DateOfIncident: "2024-06-01"}}
	rec, _ := NewMapper(time.UTC).Forward(state, Stamps{})
	assert.Equal(t, "2024-06-01", rec.DateOfInjury)
	assert.Empty(t, rec.TimeOfInjury)
}

func TestPatchFieldsSendsClearedValuesAsNull(t *testing.T) {
	m := fixedMapper(time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC))
	state := FormState{FirstReport: FirstReportSection{
		EmployeeName:       "Dana Reyes",
		DateTimeOfIncident: "2024-03-15T09:00",
		ReportedRightAway:  Yes,
		TreatmentType:      classifier.TreatmentFatality,
	}}
	first, stamps := m.Forward(state, Stamps{})
	require.NotEmpty(t, first.AKOSHReportDeadline)
	require.NotEmpty(t, first.ReportedToSupervisorAt)
	require.NotEmpty(t, first.ReportedToCSMAt)

	state.FirstReport.TreatmentType = classifier.TreatmentFirstAid
	state.FirstReport.ReportedRightAway = No
	second, _ := m.Forward(state, stamps)

	fields := second.PatchFields()
	for _, name := range []string{"AKOSHReportDeadline", "ReportedToSupervisorAt", "ReportedToCSMAt", "InvestigationCompletedAt"} {
		value, ok := fields[name]
		assert.True(t, ok, name)
		assert.Nil(t, value, name)
	}
	assert.Equal(t, false, fields["AKOSHReportRequired"])
	assert.Equal(t, "2024-03-15", fields["DateOfInjury"])
	assert.NotContains(t, fields, "ReportedToAKOSHAt")

	data, err := json.Marshal(fields)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"AKOSHReportDeadline":null`)
}

func TestForwardZoneAwareInput(t *testing.T) {
	state := FormState{FirstReport: FirstReportSection{
		DateTimeOfIncident: "2024-03-15T23:30:00-08:00",
		TreatmentType:      classifier.TreatmentFatality,
	}}
	rec, _ := NewMapper(time.UTC).Forward(state, Stamps{})

	assert.Equal(t, "2024-03-16", rec.DateOfInjury)
	assert.Equal(t, "07:30:00", rec.TimeOfInjury)
	assert.Equal(t, "2024-03-16T15:30:00.000Z", rec.AKOSHReportDeadline)
}

func TestForwardLocationPrecedence(t *testing.T) {
	m := NewMapper(nil)

	rec, _ := m.Forward(FormState{FirstReport: FirstReportSection{WhereWereYou: "Dock", Plant: "Plant 1"}}, Stamps{})
	assert.Equal(t, "Dock", rec.Location)

	rec, _ = m.Forward(FormState{FirstReport: FirstReportSection{Plant: "Plant 1"}}, Stamps{})
	assert.Equal(t, "Plant 1", rec.Location)
}

func TestForwardNameFallsBackToInvestigation(t *testing.T) {
	rec, _ := NewMapper(nil).Forward(FormState{Investigation: InvestigationSection{Employee: "Kim Cho"}}, Stamps{})
	assert.Equal(t, "Kim Cho", rec.EmployeeName)
	assert.Equal(t, "Kim Cho - No Date", rec.Title)
}

func TestForwardStampsAreSetOnce(t *testing.T) {
	first := time.Date(2024, 3, 15, 10, 0, 0, 0, time.UTC)
	later := first.Add(48 * time.Hour)
	state := FormState{FirstReport: FirstReportSection{ReportedRightAway: Yes}}

	_, stamps := fixedMapper(first).Forward(state, Stamps{})
	require.Equal(t, "2024-03-15T10:00:00.000Z", stamps.ReportedToSupervisorAt)

	rec, again := fixedMapper(later).Forward(state, stamps)
	assert.Equal(t, "2024-03-15T10:00:00.000Z", rec.ReportedToSupervisorAt)
	assert.Equal(t, stamps, again)

	state.FirstReport.ReportedRightAway = No
	rec, cleared := fixedMapper(later).Forward(state, again)
	assert.Empty(t, rec.ReportedToSupervisorAt)
	assert.Empty(t, cleared.ReportedToSupervisorAt)
}

func TestForwardUnparseableDatesDegrade(t *testing.T) {
	state := FormState{
		FirstReport:   FirstReportSection{DateTimeOfIncident: "last tuesday", TreatmentType: classifier.TreatmentFatality},
		Investigation: InvestigationSection{InvestigationDate: "soon"},
	}
	rec, _ := NewMapper(nil).Forward(state, Stamps{})

	assert.Equal(t, "Unknown - No Date", rec.Title)
	assert.True(t, rec.AKOSHReportRequired)
	assert.Empty(t, rec.AKOSHReportDeadline)
	assert.Equal(t, "soon", rec.InvestigationCompletedAt)
}

func TestForwardRecordFieldNames(t *testing.T) {
	rec, _ := NewMapper(nil).Forward(sampleState(), Stamps{})
	b, err := json.Marshal(rec)
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(b, &fields))
	for _, key := range []string{
		"Title", "EmployeeName", "EmployeeID", "DateOfInjury", "TimeOfInjury", "Location",
		"Description", "Severity", "TreatmentType", "AKOSHReportRequired", "AKOSHReportType",
		"AKOSHReportDeadline", "ReportedToSupervisorAt", "ReportedToCSMAt", "IsSIF",
		"InvestigationCompleted", "InvestigationCompletedAt", "FirstReportData",
		"InvestigationData", "RootCauseData",
	} {
		assert.Contains(t, fields, key)
	}
}

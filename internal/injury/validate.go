package injury

import (
	"fmt"
	"strings"

	"injury-report/internal/classifier"
)

// Warning is a non-blocking finding about a draft. Drafts with warnings can
// still be saved and submitted.
type Warning struct {
	Section string `json:"section"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("%s.%s: %s", w.Section, w.Field, w.Message)
}

const (
	sectionFirstReport   = "firstReport"
	sectionInvestigation = "investigation"
	sectionRootCause     = "rootCause"
)

// Validate reports inconsistencies the intake form does not prevent.
func Validate(state FormState) []Warning {
	var out []Warning
	add := func(section, field, format string, args ...any) {
		out = append(out, Warning{Section: section, Field: field, Message: fmt.Sprintf(format, args...)})
	}

	fr := state.FirstReport
	inv := state.Investigation
	rc := state.RootCause

	if fr.EmployeeName != "" && inv.Employee != "" &&
		!strings.EqualFold(strings.TrimSpace(fr.EmployeeName), strings.TrimSpace(inv.Employee)) {
		add(sectionInvestigation, "employee", "employee %q differs from first report %q; first report name is used", inv.Employee, fr.EmployeeName)
	}

	if fr.TreatmentType != "" && !fr.TreatmentType.Known() {
		add(sectionFirstReport, "treatmentType", "unknown treatment %q is treated as non-serious", fr.TreatmentType)
	}
	if fr.TreatmentType == "" {
		add(sectionFirstReport, "treatmentType", "treatment not recorded; defaulting to %q", classifier.DefaultTreatment)
	}
	if (fr.BodyPartInjured == BodyPartMultiple || fr.BodyPartInjured == BodyPartOther) && fr.BodyPartInjuredOther == "" {
		add(sectionFirstReport, "bodyPartInjuredOther", "describe the body parts when %q is selected", fr.BodyPartInjured)
	}
	if fr.ReportedRightAway == No && fr.WhyDelayedReport == "" {
		add(sectionFirstReport, "whyDelayedReport", "a delayed report needs a reason")
	}
	if len(fr.Photos) > MaxFirstReportPhotos {
		add(sectionFirstReport, "photos", "%d photos exceed the limit of %d", len(fr.Photos), MaxFirstReportPhotos)
	}

	switch inv.ShiftEmployeeWorked {
	case "", ShiftA, ShiftB, ShiftC:
	default:
		add(sectionInvestigation, "shiftEmployeeWorked", "unknown shift %q", inv.ShiftEmployeeWorked)
	}
	if inv.DidBreakSafetyRule == Yes && inv.BreakSafetyRuleExplanation == "" {
		add(sectionInvestigation, "breakSafetyRuleExplanation", "a safety rule violation needs an explanation")
	}
	if len(inv.Photos) > MaxInvestigationPhotos {
		add(sectionInvestigation, "photos", "%d photos exceed the limit of %d", len(inv.Photos), MaxInvestigationPhotos)
	}

	switch rc.RootCauseMethod {
	case "", MethodFiveWhys, MethodFishbone, MethodFaultTree, MethodBarrierAnalysis, MethodOther:
	default:
		add(sectionRootCause, "rootCauseMethod", "unknown method %q", rc.RootCauseMethod)
	}
	if n := len(rc.WhyAnalysis); n != 0 && n != WhyAnalysisDepth {
		add(sectionRootCause, "whyAnalysis", "expected %d answers, got %d", WhyAnalysisDepth, n)
	}
	for i, a := range rc.CorrectiveActions {
		switch a.Status {
		case "", StatusPending, StatusInProgress, StatusCompleted, StatusOverdue:
		default:
			add(sectionRootCause, fmt.Sprintf("correctiveActions[%d].status", i), "unknown status %q", a.Status)
		}
	}
	switch rc.Effectiveness {
	case "", EffectivenessNotVerified, EffectivenessEffective, EffectivenessPartial, EffectivenessNotEffective:
	default:
		add(sectionRootCause, "effectiveness", "unknown rating %q", rc.Effectiveness)
	}
	if len(rc.Photos) > MaxRootCausePhotos {
		add(sectionRootCause, "photos", "%d photos exceed the limit of %d", len(rc.Photos), MaxRootCausePhotos)
	}

	return out
}

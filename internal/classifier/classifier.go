// Package classifier derives the regulatory metadata of an injury report
// (severity tier, external-report obligation, report category and deadline)
// from the treatment outcome recorded at intake.
//
// Every function here is pure and total: unknown treatment strings are
// treated as non-serious, never as errors.
package classifier

import "time"

// TreatmentType is the treatment outcome captured on the first report.
type TreatmentType string

const (
	TreatmentFirstAid     TreatmentType = "First aid only"
	TreatmentClinic       TreatmentType = "Sent to clinic"
	TreatmentHospitalized TreatmentType = "Hospitalized"
	TreatmentFatality     TreatmentType = "Fatality"
	TreatmentAmputation   TreatmentType = "Amputation"
	TreatmentLossOfEye    TreatmentType = "Loss of Eye"

	// DefaultTreatment is used when the intake form leaves the outcome blank.
	DefaultTreatment = TreatmentFirstAid
)

// Treatments lists the outcomes offered by the intake form.
var Treatments = []TreatmentType{
	TreatmentFirstAid,
	TreatmentClinic,
	TreatmentHospitalized,
	TreatmentFatality,
	TreatmentAmputation,
	TreatmentLossOfEye,
}

// Known reports whether t is one of the intake form outcomes.
func (t TreatmentType) Known() bool {
	for _, known := range Treatments {
		if t == known {
			return true
		}
	}
	return false
}

// Category is the external (regulator) report category.
type Category string

const (
	CategoryFatality        Category = "Fatality"
	CategoryHospitalization Category = "Hospitalization"
	CategoryAmputation      Category = "Amputation"
	CategoryLossOfEye       Category = "LossOfEye"
	CategoryNone            Category = "None"
)

// Severity is the internal severity tier.
type Severity string

const (
	SeverityMinor   Severity = "Minor"
	SeveritySerious Severity = "Serious"
	SeveritySIF     Severity = "SIF"
)

// categoryByTreatment reconciles the two vocabularies in use: the intake
// outcomes ("Hospitalized", "Loss of Eye") and the report categories that
// older records carry as treatment strings ("Hospitalization", "LossOfEye").
var categoryByTreatment = map[TreatmentType]Category{
	TreatmentFatality:                CategoryFatality,
	TreatmentHospitalized:            CategoryHospitalization,
	TreatmentType("Hospitalization"): CategoryHospitalization,
	TreatmentAmputation:              CategoryAmputation,
	TreatmentLossOfEye:               CategoryLossOfEye,
	TreatmentType(CategoryLossOfEye): CategoryLossOfEye,
}

// deadlineHours holds the notification window per category. Categories that
// are reportable but absent from this table fall into the 24-hour tier.
var deadlineHours = map[Category]int{
	CategoryFatality:        8,
	CategoryHospitalization: 8,
	CategoryAmputation:      8,
	CategoryLossOfEye:       8,
}

const defaultDeadlineHours = 24

// IsSeriousOrFatal reports whether the outcome qualifies as a serious injury
// or fatality.
func IsSeriousOrFatal(t TreatmentType) bool {
	return t == TreatmentFatality || t == TreatmentHospitalized
}

// DetermineSeverity returns SIF when isSeriousOrFatal is set, Serious for
// hospitalizations and fatalities, and Minor otherwise.
func DetermineSeverity(t TreatmentType, isSeriousOrFatal bool) Severity {
	if isSeriousOrFatal {
		return SeveritySIF
	}
	if t == TreatmentHospitalized || t == TreatmentFatality {
		return SeveritySerious
	}
	return SeverityMinor
}

// ExternalReportCategory maps a treatment outcome to its report category.
func ExternalReportCategory(t TreatmentType) Category {
	if c, ok := categoryByTreatment[t]; ok {
		return c
	}
	return CategoryNone
}

// IsExternalReportRequired reports whether the outcome must be reported to
// the regulator. The category table decides, so "Hospitalized" and
// "Loss of Eye" are reportable along with their category spellings.
func IsExternalReportRequired(t TreatmentType) bool {
	return ExternalReportCategory(t) != CategoryNone
}

// DeadlineHours returns the notification window for c. The second result is
// false when c carries no obligation.
func DeadlineHours(c Category) (int, bool) {
	if c == "" || c == CategoryNone {
		return 0, false
	}
	if h, ok := deadlineHours[c]; ok {
		return h, true
	}
	return defaultDeadlineHours, true
}

// CalculateDeadline returns the instant by which the regulator must be
// notified, in UTC, or nil when there is no obligation or no incident time.
func CalculateDeadline(c Category, incidentAt *time.Time) *time.Time {
	if incidentAt == nil {
		return nil
	}
	hours, ok := DeadlineHours(c)
	if !ok {
		return nil
	}
	deadline := incidentAt.Add(time.Duration(hours) * time.Hour).UTC()
	return &deadline
}

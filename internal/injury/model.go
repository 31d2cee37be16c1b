package injury

import (
	"encoding/json"

	"injury-report/internal/classifier"
)

// YesNo is the Y/N radio value used across the forms.
type YesNo string

const (
	Yes YesNo = "Y"
	No  YesNo = "N"
)

type Shift string

const (
	ShiftA Shift = "A"
	ShiftB Shift = "B"
	ShiftC Shift = "C"
)

type RootCauseMethod string

const (
	MethodFiveWhys        RootCauseMethod = "5-whys"
	MethodFishbone        RootCauseMethod = "fishbone"
	MethodFaultTree       RootCauseMethod = "fault-tree"
	MethodBarrierAnalysis RootCauseMethod = "barrier-analysis"
	MethodOther           RootCauseMethod = "other"
)

type ActionStatus string

const (
	StatusPending    ActionStatus = "pending"
	StatusInProgress ActionStatus = "in-progress"
	StatusCompleted  ActionStatus = "completed"
	StatusOverdue    ActionStatus = "overdue"
)

type Effectiveness string

const (
	EffectivenessNotVerified  Effectiveness = "not-verified"
	EffectivenessEffective    Effectiveness = "effective"
	EffectivenessPartial      Effectiveness = "partially-effective"
	EffectivenessNotEffective Effectiveness = "not-effective"
)

// Body part values that need a free-text elaboration.
const (
	BodyPartMultiple = "Multiple Body Parts"
	BodyPartOther    = "Other"
)

// BodyParts is the injury-location taxonomy offered on the first report.
var BodyParts = []string{
	"Head", "Eyes", "Face", "Neck",
	"Shoulder - Left", "Shoulder - Right",
	"Arm - Left", "Arm - Right",
	"Elbow - Left", "Elbow - Right",
	"Wrist - Left", "Wrist - Right",
	"Hand - Left", "Hand - Right",
	"Finger(s) - Left", "Finger(s) - Right",
	"Chest", "Back - Upper", "Back - Lower", "Abdomen",
	"Hip - Left", "Hip - Right",
	"Leg - Left", "Leg - Right",
	"Knee - Left", "Knee - Right",
	"Ankle - Left", "Ankle - Right",
	"Foot - Left", "Foot - Right",
	"Toe(s) - Left", "Toe(s) - Right",
	BodyPartMultiple, BodyPartOther,
}

// Per-section limits enforced by the intake UI.
const (
	MaxWitnesses           = 3
	MaxFirstReportPhotos   = 10
	MaxInvestigationPhotos = 15
	MaxRootCausePhotos     = 10
	WhyAnalysisDepth       = 5
)

// FormState is a report draft: three sections edited independently.
type FormState struct {
	FirstReport   FirstReportSection   `json:"firstReport"`
	Investigation InvestigationSection `json:"investigation"`
	RootCause     RootCauseSection     `json:"rootCause"`
}

// FirstReportSection is filled in by the injured employee. JSON keys match
// the blobs stored by earlier versions of the intake form.
type FirstReportSection struct {
	EmployeeName              string `json:"employeeName,omitempty"`
	Plant                     string `json:"plant,omitempty"`
	DateOfReport              string `json:"dateOfReport,omitempty"`
	SocialSecurityNumber      string `json:"socialSecurityNumber,omitempty"`
	Sex                       string `json:"sex,omitempty"`
	DateTimeOfIncident        string `json:"dateTimeOfIncident,omitempty"`
	DateOfIncident            string `json:"dateOfIncident,omitempty"`
	TimeOfIncident            string `json:"timeOfIncident,omitempty"`
	AddressExcludingCity      string `json:"addressExcludingCity,omitempty"`
	PhoneNumber               string `json:"phoneNumber,omitempty"`
	EmailAddress              string `json:"emailAddress,omitempty"`
	EmergencyContactNamePhone string `json:"emergencyContactNamePhone,omitempty"`
	BodyPartInjured           string `json:"bodyPartInjured,omitempty"`
	BodyPartInjuredOther      string `json:"bodyPartInjuredOther,omitempty"`
	HowDidIncidentHappen      string `json:"howDidIncidentHappen,omitempty"`
	JobTitle                  string `json:"jobTitle,omitempty"`
	WhereWereYou              string `json:"whereWereYou,omitempty"`
	Witness1Name              string `json:"witness1Name,omitempty"`
	Witness1Position          string `json:"witness1Position,omitempty"`
	Witness2Name              string `json:"witness2Name,omitempty"`
	Witness2Position          string `json:"witness2Position,omitempty"`
	Witness3Name              string `json:"witness3Name,omitempty"`
	Witness3Position          string `json:"witness3Position,omitempty"`
	WhereWereWitnesses        string `json:"whereWereWitnesses,omitempty"`
	ReportedRightAway         YesNo  `json:"reportedRightAway,omitempty"`
	WhyDelayedReport          string `json:"whyDelayedReport,omitempty"`
	PreventionSuggestion      string `json:"preventionSuggestion,omitempty"`
	OSHA300CaseNumber         string `json:"osha300CaseNumber,omitempty"`
	OSHA300Applicable         YesNo  `json:"osha300Applicable,omitempty"`

	// TreatmentType drives every derived regulatory field.
	TreatmentType classifier.TreatmentType `json:"treatmentType,omitempty"`

	Photos []string `json:"photos,omitempty"`
}

// Witness is a name and role pair.
type Witness struct {
	Name     string `json:"name"`
	Position string `json:"position"`
}

// Witnesses returns the non-empty witness entries in form order.
func (f FirstReportSection) Witnesses() []Witness {
	all := []Witness{
		{f.Witness1Name, f.Witness1Position},
		{f.Witness2Name, f.Witness2Position},
		{f.Witness3Name, f.Witness3Position},
	}
	var out []Witness
	for _, w := range all {
		if w.Name != "" || w.Position != "" {
			out = append(out, w)
		}
	}
	return out
}

// InvestigationSection is completed by the supervisor.
type InvestigationSection struct {
	Employee                   string   `json:"employee,omitempty"`
	JobTitle                   string   `json:"jobTitle,omitempty"`
	EmployeeIDNumber           string   `json:"employeeIdNumber,omitempty"`
	OriginalDateOfHire         string   `json:"originalDateOfHire,omitempty"`
	LocationOfIncident         string   `json:"locationOfIncident,omitempty"`
	DateOfIncident             string   `json:"dateOfIncident,omitempty"`
	ShiftEmployeeWorked        Shift    `json:"shiftEmployeeWorked,omitempty"`
	NatureOfInjuryAndBodyParts string   `json:"natureOfInjuryAndBodyParts,omitempty"`
	Witness1                   string   `json:"witness1,omitempty"`
	Witness2                   string   `json:"witness2,omitempty"`
	Witness3                   string   `json:"witness3,omitempty"`
	LocationOfWitness          string   `json:"locationOfWitness,omitempty"`
	IncidentDescription        string   `json:"incidentDescription,omitempty"`
	AccidentScene              string   `json:"accidentScene,omitempty"`
	DidBreakSafetyRule         YesNo    `json:"didBreakSafetyRule,omitempty"`
	BreakSafetyRuleExplanation string   `json:"breakSafetyRuleExplanation,omitempty"`
	SupervisorCorrectiveAction string   `json:"supervisorCorrectiveAction,omitempty"`
	InvestigatedBy             string   `json:"investigatedBy,omitempty"`
	InvestigationDate          string   `json:"investigationDate,omitempty"`
	Photos                     []string `json:"photos,omitempty"`
}

// CorrectiveAction is one row of the action plan.
type CorrectiveAction struct {
	Action      string       `json:"action"`
	Responsible string       `json:"responsible"`
	DueDate     string       `json:"dueDate"`
	Status      ActionStatus `json:"status"`
}

// RootCauseSection holds the analysis and the action plan.
type RootCauseSection struct {
	RootCauseMethod     RootCauseMethod    `json:"rootCauseMethod,omitempty"`
	ImmediateRootCause  string             `json:"immediateRootCause,omitempty"`
	UnderlyingRootCause string             `json:"underlyingRootCause,omitempty"`
	SystemicIssues      string             `json:"systemicIssues,omitempty"`
	WhyAnalysis         []string           `json:"whyAnalysis,omitempty"`
	CorrectiveActions   []CorrectiveAction `json:"correctiveActions,omitempty"`
	PreventiveMeasures  string             `json:"preventiveMeasures,omitempty"`
	PolicyChanges       string             `json:"policyChanges,omitempty"`
	TrainingNeeds       string             `json:"trainingNeeds,omitempty"`
	VerificationMethod  string             `json:"verificationMethod,omitempty"`
	VerificationDate    string             `json:"verificationDate,omitempty"`
	Effectiveness       Effectiveness      `json:"effectiveness,omitempty"`
	LessonsLearned      string             `json:"lessonsLearned,omitempty"`
	Photos              []string           `json:"photos,omitempty"`
}

// ExternalRecord is the flat list item persisted in the record store. Field
// names are a fixed contract with the list schema.
type ExternalRecord struct {
	Title        string `json:"Title"`
	EmployeeName string `json:"EmployeeName"`
	EmployeeID   string `json:"EmployeeID"`
	DateOfInjury string `json:"DateOfInjury,omitempty"`
	TimeOfInjury string `json:"TimeOfInjury,omitempty"`
	Location     string `json:"Location"`
	Description  string `json:"Description"`

	Severity      classifier.Severity      `json:"Severity"`
	TreatmentType classifier.TreatmentType `json:"TreatmentType"`

	AKOSHReportRequired bool                `json:"AKOSHReportRequired"`
	AKOSHReportType     classifier.Category `json:"AKOSHReportType"`
	AKOSHReportDeadline string              `json:"AKOSHReportDeadline,omitempty"`

	ReportedToSupervisorAt string `json:"ReportedToSupervisorAt,omitempty"`
	ReportedToCSMAt        string `json:"ReportedToCSMAt,omitempty"`
	ReportedToAKOSHAt      string `json:"ReportedToAKOSHAt,omitempty"`
	AKOSHConfirmationNo    string `json:"AKOSHConfirmationNo,omitempty"`

	IsSIF                    bool   `json:"IsSIF"`
	InvestigationCompleted   bool   `json:"InvestigationCompleted"`
	InvestigationCompletedAt string `json:"InvestigationCompletedAt,omitempty"`

	FirstReportData   string `json:"FirstReportData"`
	InvestigationData string `json:"InvestigationData"`
	RootCauseData     string `json:"RootCauseData"`
}

// clearableFields are the record fields omitted when empty. A partial update
// only touches the fields it names, so these go out as null once cleared.
var clearableFields = []string{
	"DateOfInjury",
	"TimeOfInjury",
	"AKOSHReportDeadline",
	"ReportedToSupervisorAt",
	"ReportedToCSMAt",
	"InvestigationCompletedAt",
}

// PatchFields returns the record as a field map for an in-place update.
// Derived fields that are empty are present with a nil value.
func (r ExternalRecord) PatchFields() map[string]any {
	fields := map[string]any{}
	data, err := json.Marshal(r)
	if err == nil {
		err = json.Unmarshal(data, &fields)
	}
	if err != nil {
		return fields
	}
	for _, name := range clearableFields {
		if _, ok := fields[name]; !ok {
			fields[name] = nil
		}
	}
	return fields
}

// Stamps are attestation timestamps that must survive re-saves of a draft.
type Stamps struct {
	ReportedToSupervisorAt string `json:"reportedToSupervisorAt,omitempty"`
	ReportedToCSMAt        string `json:"reportedToCsmAt,omitempty"`
}

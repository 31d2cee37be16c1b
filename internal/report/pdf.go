package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/signintech/gopdf"

	"injury-report/internal/injury"
)

// DefaultFontPaths are tried after the configured font. DejaVuSans covers
// the accented names common in the workforce.
var DefaultFontPaths = []string{
	"/usr/share/fonts/ttf-dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
}

const (
	fontFamily   = "DejaVu"
	pageMargin   = 40.0
	textWidth    = 515.0
	pageBottom   = 800.0
	lineHeight   = 14.0
	headingSpace = 20.0
)

// Renderer lays a report out as an A4 PDF.
type Renderer struct {
	fontPaths []string
}

// NewRenderer tries fontPath first, then DefaultFontPaths.
func NewRenderer(fontPath string) *Renderer {
	paths := make([]string, 0, len(DefaultFontPaths)+1)
	if fontPath != "" {
		paths = append(paths, fontPath)
	}
	return &Renderer{fontPaths: append(paths, DefaultFontPaths...)}
}

// page wraps gopdf with the few layout helpers the report needs. The first
// error sticks and later calls are no-ops.
type page struct {
	pdf gopdf.GoPdf
	err error
}

func (p *page) font(size float64) {
	if p.err == nil {
		p.err = p.pdf.SetFont(fontFamily, "", size)
	}
}

func (p *page) ensureSpace(h float64) {
	if p.err == nil && p.pdf.GetY()+h > pageBottom {
		p.pdf.AddPage()
	}
}

func (p *page) heading(text string) {
	p.ensureSpace(headingSpace + lineHeight)
	p.font(14)
	p.pdf.Br(6)
	p.line(text)
	p.font(10)
}

// line writes text wrapped to the page width.
func (p *page) line(text string) {
	if p.err != nil {
		return
	}
	parts, err := p.pdf.SplitText(text, textWidth)
	if err != nil {
		// SplitText rejects empty input.
		parts = []string{text}
	}
	for _, l := range parts {
		p.ensureSpace(lineHeight)
		if p.err == nil {
			p.err = p.pdf.Cell(nil, l)
		}
		p.pdf.Br(lineHeight)
	}
}

func (p *page) field(label, value string) {
	if strings.TrimSpace(value) == "" {
		return
	}
	p.line(label + ": " + value)
}

func (r *Renderer) Render(rec injury.ExternalRecord, form injury.FormState) ([]byte, error) {
	p := &page{}
	p.pdf.Start(gopdf.Config{PageSize: *gopdf.PageSizeA4})
	p.pdf.SetMargins(pageMargin, pageMargin, pageMargin, pageMargin)
	p.pdf.AddPage()

	var fontErr error
	loaded := false
	for _, path := range r.fontPaths {
		if err := p.pdf.AddTTFFont(fontFamily, path); err == nil {
			loaded = true
			break
		} else {
			fontErr = err
		}
	}
	if !loaded {
		return nil, fmt.Errorf("failed to load font for PDF, set PDF_FONT_PATH or install ttf-dejavu: %w", fontErr)
	}

	p.font(18)
	p.line("Workplace Injury Report")
	p.font(12)
	p.line(rec.Title)
	p.pdf.Br(8)

	p.heading("Classification")
	p.field("Treatment", string(rec.TreatmentType))
	p.field("Severity", string(rec.Severity))
	p.field("Serious injury or fatality", yesNo(rec.IsSIF))
	p.field("External report required", yesNo(rec.AKOSHReportRequired))
	if rec.AKOSHReportRequired {
		p.field("Report category", string(rec.AKOSHReportType))
		p.field("Report deadline", rec.AKOSHReportDeadline)
	}
	p.field("Reported to supervisor", rec.ReportedToSupervisorAt)
	p.field("Reported to safety manager", rec.ReportedToCSMAt)

	fr := form.FirstReport
	p.heading("First Report of Injury")
	p.field("Employee", rec.EmployeeName)
	p.field("Employee ID", rec.EmployeeID)
	p.field("Plant", fr.Plant)
	p.field("Job title", fr.JobTitle)
	p.field("Date of injury", rec.DateOfInjury)
	p.field("Time of injury", rec.TimeOfInjury)
	p.field("Location", rec.Location)
	bodyPart := fr.BodyPartInjured
	if fr.BodyPartInjuredOther != "" {
		bodyPart = strings.TrimSpace(bodyPart + " (" + fr.BodyPartInjuredOther + ")")
	}
	p.field("Body part", bodyPart)
	p.field("What happened", fr.HowDidIncidentHappen)
	for i, w := range fr.Witnesses() {
		p.field(fmt.Sprintf("Witness %d", i+1), strings.TrimSpace(w.Name+", "+w.Position))
	}
	p.field("Reported right away", string(fr.ReportedRightAway))
	p.field("Reason for delay", fr.WhyDelayedReport)
	p.field("Prevention suggestion", fr.PreventionSuggestion)

	inv := form.Investigation
	p.heading("Supervisor Investigation")
	if !rec.InvestigationCompleted {
		p.line("Investigation not completed.")
	}
	p.field("Shift", string(inv.ShiftEmployeeWorked))
	p.field("Nature of injury", inv.NatureOfInjuryAndBodyParts)
	p.field("Description", inv.IncidentDescription)
	p.field("Accident scene", inv.AccidentScene)
	p.field("Safety rule broken", string(inv.DidBreakSafetyRule))
	p.field("Explanation", inv.BreakSafetyRuleExplanation)
	p.field("Corrective action taken", inv.SupervisorCorrectiveAction)
	p.field("Investigated by", inv.InvestigatedBy)
	p.field("Investigation date", inv.InvestigationDate)

	rc := form.RootCause
	p.heading("Root Cause Analysis")
	p.field("Method", string(rc.RootCauseMethod))
	p.field("Immediate cause", rc.ImmediateRootCause)
	p.field("Underlying cause", rc.UnderlyingRootCause)
	p.field("Systemic issues", rc.SystemicIssues)
	for i, why := range rc.WhyAnalysis {
		p.field(fmt.Sprintf("Why %d", i+1), why)
	}
	for _, a := range rc.CorrectiveActions {
		p.line(fmt.Sprintf("- %s (%s, due %s): %s", a.Action, a.Responsible, a.DueDate, a.Status))
	}
	p.field("Preventive measures", rc.PreventiveMeasures)
	p.field("Lessons learned", rc.LessonsLearned)
	p.field("Effectiveness", string(rc.Effectiveness))

	if p.err != nil {
		return nil, fmt.Errorf("failed to lay out PDF: %w", p.err)
	}
	var buf bytes.Buffer
	if _, err := p.pdf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write PDF: %w", err)
	}
	return buf.Bytes(), nil
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

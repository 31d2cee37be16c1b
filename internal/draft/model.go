package draft

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"injury-report/internal/injury"
)

var (
	ErrNotFound       = errors.New("draft not found")
	ErrDraftBusy      = errors.New("draft is already being saved")
	ErrUnknownSection = errors.New("unknown form section")
	ErrInvalidSection = errors.New("invalid form section")
)

type Status string

const (
	StatusOpen Status = "open"
	// StatusSubmitted marks a draft whose report was just submitted and whose
	// form was reset. The next edit reopens it.
	StatusSubmitted Status = "submitted"
)

// Section names accepted by SetSection.
const (
	SectionFirstReport   = "firstReport"
	SectionInvestigation = "investigation"
	SectionRootCause     = "rootCause"
)

// Draft is the server-side working copy of one report together with the
// record store identifiers it is bound to.
type Draft struct {
	ID     uuid.UUID        `json:"id" db:"id"`
	Form   injury.FormState `json:"form" db:"form"`
	SiteID string           `json:"site_id,omitempty" db:"site_id"`
	ListID string           `json:"list_id,omitempty" db:"list_id"`
	// ItemID is set once the draft has been saved to the record store.
	ItemID string        `json:"item_id,omitempty" db:"item_id"`
	Stamps injury.Stamps `json:"stamps" db:"stamps"`
	Status Status        `json:"status" db:"status"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SetSection replaces one form section with the given JSON document.
func (d *Draft) SetSection(section string, raw json.RawMessage) error {
	var err error
	switch section {
	case SectionFirstReport:
		var s injury.FirstReportSection
		if err = json.Unmarshal(raw, &s); err == nil {
			d.Form.FirstReport = s
		}
	case SectionInvestigation:
		var s injury.InvestigationSection
		if err = json.Unmarshal(raw, &s); err == nil {
			d.Form.Investigation = s
		}
	case SectionRootCause:
		var s injury.RootCauseSection
		if err = json.Unmarshal(raw, &s); err == nil {
			d.Form.RootCause = s
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownSection, section)
	}
	if err != nil {
		return fmt.Errorf("%w %s: %v", ErrInvalidSection, section, err)
	}
	d.Status = StatusOpen
	return nil
}

// reset clears the form for the next report. The list location is kept.
func (d *Draft) reset() {
	d.Form = injury.FormState{}
	d.ItemID = ""
	d.Stamps = injury.Stamps{}
	d.Status = StatusSubmitted
}

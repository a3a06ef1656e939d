// Package viewmodel defines presentation-ready structs for templ components.
// View models decouple template rendering from domain model types.
package viewmodel

// Flash is a one-off message shown above a form.
type Flash struct {
	Kind    string // "error" or "notice"
	Message string
	// DetailHTML is upstream text already passed through a strict sanitizer;
	// templates write it verbatim.
	DetailHTML string
}

// LayoutViewModel holds data for the page chrome.
type LayoutViewModel struct {
	Title     string
	Email     string // signed-in account, empty on public pages
	CSRFToken string
}

// LoginViewModel holds data for the email entry page.
type LoginViewModel struct {
	Email string
	Flash *Flash
}

// VerifyViewModel holds data for the code entry page.
type VerifyViewModel struct {
	Email              string
	ResendAfterSeconds int // 0 when a resend is allowed now
	Flash              *Flash
}

// CredentialFieldViewModel describes one stored credential input.
type CredentialFieldViewModel struct {
	Value   string
	IsSet   bool
	Corrupt bool
}

// PanelViewModel holds data for the signed-in panel.
type PanelViewModel struct {
	ClientID     CredentialFieldViewModel
	ClientSecret CredentialFieldViewModel

	SMTPHost     CredentialFieldViewModel
	SMTPPort     CredentialFieldViewModel
	SMTPUsername CredentialFieldViewModel
	SMTPPassword CredentialFieldViewModel
	SMTPTLS      bool
	SMTPTLSBad   bool

	HasCorrupt bool
	Flash      *Flash
	Report     *ReportViewModel
}

// ReportViewModel holds a rendered warranty report.
type ReportViewModel struct {
	ID          string
	GeneratedAt string
	WindowDays  int
	Message     string // placeholder text when Rows is empty
	Rows        []RowViewModel
	Skipped     []SkippedOrganizationViewModel
	CSVPath     string
}

// RowViewModel holds presentation-ready data for one warranty row.
type RowViewModel struct {
	Organization    string
	SerialNumber    string
	ExpiryDate      string
	DaysUntilExpiry int
	Expired         bool
	Urgency         string // "expired", "soon" or "later"; used as a CSS class
}

// SkippedOrganizationViewModel names an organization whose devices could not
// be listed.
type SkippedOrganizationViewModel struct {
	Name   string
	Reason string
}

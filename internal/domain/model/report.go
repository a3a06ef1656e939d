package model

import "time"

// OrganizationOutcome records what happened to one organization during a
// report run. Err is non-nil when the device listing failed and the
// organization was skipped.
type OrganizationOutcome struct {
	Organization Organization
	DeviceCount  int
	RowCount     int
	Err          error
}

// Skipped reports whether the organization contributed nothing because its
// device listing failed.
func (o OrganizationOutcome) Skipped() bool {
	return o.Err != nil
}

// Report is the result of one warranty report run.
type Report struct {
	ID          string
	GeneratedAt time.Time
	WindowDays  int
	Rows        []WarrantyRow
	Outcomes    []OrganizationOutcome
}

// NoOrganizations reports whether the upstream returned zero organizations.
func (r Report) NoOrganizations() bool {
	return len(r.Outcomes) == 0
}

// SkippedOrganizations returns the outcomes whose device listing failed.
func (r Report) SkippedOrganizations() []OrganizationOutcome {
	var skipped []OrganizationOutcome
	for _, o := range r.Outcomes {
		if o.Skipped() {
			skipped = append(skipped, o)
		}
	}
	return skipped
}

package model

import "time"

// Account is a user identified by email. There is no password: access is
// granted by a one-time code mailed to the address.
type Account struct {
	Email       string
	OTPHash     string    // SHA-256 hex of the active code; empty when none is outstanding.
	ResendAfter time.Time // Zero when no code has been issued yet.
	CreatedAt   time.Time
}

// HasActiveCode reports whether a code is waiting to be verified.
func (a Account) HasActiveCode() bool {
	return a.OTPHash != ""
}

package model

import (
	"strings"
	"time"
)

// Organization is an upstream tenant that owns devices.
type Organization struct {
	ID   string
	Name string
}

// Device is the subset of an upstream device record the report needs.
// ExpiryDate is the raw upstream string; only its YYYY-MM-DD prefix is significant.
type Device struct {
	SerialNumber string
	ExpiryDate   string
	Expired      bool
}

// WarrantyRow is one line of the warranty report. It is never persisted.
type WarrantyRow struct {
	OrganizationName string
	SerialNumber     string
	ExpiryDate       time.Time // Midnight UTC.
	DaysUntilExpiry  int
	Expired          bool // Upstream flag, not derived from DaysUntilExpiry.
}

// NormalizeSerial strips every character that is not an ASCII letter or digit.
func NormalizeSerial(serial string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return -1
		}
	}, serial)
}

// ParseExpiryDate parses the YYYY-MM-DD prefix of an upstream date string,
// ignoring anything after it. The result is midnight UTC.
func ParseExpiryDate(raw string) (time.Time, bool) {
	const layout = "2006-01-02"
	if len(raw) < len(layout) {
		return time.Time{}, false
	}
	t, err := time.Parse(layout, raw[:len(layout)])
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// CalendarDate truncates t to midnight UTC of its UTC calendar day.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the number of whole calendar days from 'from' to 'to'.
// Both are truncated to midnight first, so the result is the ceiling of the
// day difference and is negative when 'to' is in the past.
func DaysBetween(from, to time.Time) int {
	return int(CalendarDate(to).Sub(CalendarDate(from)).Hours() / 24)
}

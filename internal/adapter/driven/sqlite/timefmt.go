package sqlite

import (
	"fmt"
	"time"
)

// storedTimeLayout is fixed-width so lexical order matches chronological
// order in SQL comparisons.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(storedTimeLayout)
}

// parseTime parses a time string from SQLite, trying multiple common formats.
func parseTime(s string) (time.Time, error) {
	formats := []string{
		storedTimeLayout,
		time.RFC3339Nano,
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05.000",
	}

	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized time format: %s", s)
}

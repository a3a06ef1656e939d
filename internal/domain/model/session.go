package model

import "time"

// Session is an authenticated login. The browser holds a signed token that
// references the session ID; deleting the row revokes the token.
type Session struct {
	ID        string
	Email     string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Expired reports whether the session is past its expiry at the given time.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

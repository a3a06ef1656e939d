package model

import (
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrInvalidCredential is returned when a one-time code does not match or
	// the account is unknown. The UI treats it as "try again".
	ErrInvalidCredential = errors.New("invalid or expired code")

	// ErrCooldownActive is wrapped by CooldownError.
	ErrCooldownActive = errors.New("resend cooldown active")

	// ErrDecryption is wrapped by DecryptionError.
	ErrDecryption = errors.New("stored value could not be decrypted")

	ErrUnauthenticated    = errors.New("not authenticated")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrMailDelivery       = errors.New("mail delivery failed")
	ErrCredentialsMissing = errors.New("api credentials not configured")
	ErrNotFound           = errors.New("not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrMailNotConfigured  = errors.New("smtp settings not configured")
)

// CooldownError is returned when a code resend is attempted before the
// recorded deadline.
type CooldownError struct {
	Remaining time.Duration
}

func (e *CooldownError) Error() string {
	return fmt.Sprintf("%s: retry in %d seconds", ErrCooldownActive, e.RemainingSeconds())
}

func (e *CooldownError) Unwrap() error { return ErrCooldownActive }

// RemainingSeconds rounds the remaining wait up to whole seconds.
func (e *CooldownError) RemainingSeconds() int {
	return int(math.Ceil(e.Remaining.Seconds()))
}

// DecryptionError identifies a sealed field that exists but cannot be opened,
// so callers can tell "never set" apart from "corrupt".
type DecryptionError struct {
	Field string
	Err   error
}

func (e *DecryptionError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %v", ErrDecryption, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", ErrDecryption, e.Field, e.Err)
}

func (e *DecryptionError) Unwrap() []error { return []error{ErrDecryption, e.Err} }

// AuthError is returned when the upstream client-credentials exchange fails.
// It carries the upstream status and body so they can be shown to the user.
type AuthError struct {
	StatusCode int
	Body       string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("upstream token exchange failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// UpstreamError is returned when an upstream listing call fails.
type UpstreamError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream %s failed: HTTP %d: %s", e.Operation, e.StatusCode, e.Body)
}

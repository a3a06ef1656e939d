package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/warrantypanel/internal/domain/model"
)

// AccountStore defines the driven port for account rows.
type AccountStore interface {
	// GetOrCreate returns the account for email, creating an empty one first
	// if none exists.
	GetOrCreate(ctx context.Context, email string, now time.Time) (*model.Account, error)

	// Get returns the account or (nil, nil) when it does not exist.
	Get(ctx context.Context, email string) (*model.Account, error)

	// SetCode replaces the active code hash and the resend deadline.
	SetCode(ctx context.Context, email, otpHash string, resendAfter time.Time) error

	// ConsumeCode clears the code hash only if it still equals otpHash and
	// reports whether a row was updated. It is the single-use guarantee.
	ConsumeCode(ctx context.Context, email, otpHash string) (bool, error)

	// Delete removes the account; credentials and sessions go with it.
	Delete(ctx context.Context, email string) error
}

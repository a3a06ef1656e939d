package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/warrantypanel/internal/domain/model"
)

// SessionStore defines the driven port for server-side session rows.
type SessionStore interface {
	Create(ctx context.Context, session model.Session) error

	// Get returns the session or (nil, nil) when it does not exist.
	Get(ctx context.Context, id string) (*model.Session, error)

	Delete(ctx context.Context, id string) error

	// DeleteExpired removes sessions that expired before now and returns
	// how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

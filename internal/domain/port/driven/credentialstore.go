package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/warrantypanel/internal/domain/model"
)

// ErrEncryptionKeyNotSet is returned by CredentialStore operations when the
// adapter was constructed without a field cipher.
var ErrEncryptionKeyNotSet = errors.New("encryption key not configured: set WARRANTYPANEL_SECRET_KEY")

// CredentialStore defines the driven port for sealed per-account credential
// fields. The adapter seals on write and opens on read; this interface
// operates on plaintext values at the domain boundary.
type CredentialStore interface {
	// Set stores or replaces one field. An empty value is stored as empty
	// text, not as ciphertext.
	Set(ctx context.Context, email, field, plaintext string) error

	// Get returns the plaintext of one field, or ("", nil) if it was never
	// set. A stored value that cannot be opened yields a *model.DecryptionError.
	Get(ctx context.Context, email, field string) (string, error)

	// GetAll returns every field that could be opened, keyed by field name,
	// plus a DecryptionError for each field that could not.
	GetAll(ctx context.Context, email string) (map[string]string, []*model.DecryptionError, error)

	// Delete removes one field. Deleting a missing field is not an error.
	Delete(ctx context.Context, email, field string) error
}

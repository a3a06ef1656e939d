package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/ericfisherdev/warrantypanel/internal/domain/model"
	"github.com/ericfisherdev/warrantypanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialRepo)(nil)

// CredentialRepo is the SQLite implementation of the CredentialStore port interface.
// Values are sealed with the FieldCipher before write and opened after read.
type CredentialRepo struct {
	db     *DB
	cipher *FieldCipher // nil disables credential storage.
	clock  clockwork.Clock
}

// NewCredentialRepo creates a new CredentialRepo. A nil cipher makes every
// operation return driven.ErrEncryptionKeyNotSet. clock stamps updated_at.
func NewCredentialRepo(db *DB, cipher *FieldCipher, clock clockwork.Clock) *CredentialRepo {
	return &CredentialRepo{db: db, cipher: cipher, clock: clock}
}

type credentialRow struct {
	Field     string `db:"field"`
	Value     string `db:"value"`
	UpdatedAt string `db:"updated_at"`
}

// Set stores or replaces one field with the provided plaintext value.
func (r *CredentialRepo) Set(ctx context.Context, email, field, plaintext string) error {
	if r.cipher == nil {
		return driven.ErrEncryptionKeyNotSet
	}

	sealed, err := r.cipher.SealField(plaintext)
	if err != nil {
		return fmt.Errorf("seal credential %q: %w", field, err)
	}

	const query = `INSERT INTO credentials (email, field, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (email, field) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`
	if _, err := r.db.Writer.ExecContext(ctx, query, email, field, sealed, formatTime(r.clock.Now())); err != nil {
		return fmt.Errorf("set credential %q: %w", field, err)
	}
	return nil
}

// Get retrieves the plaintext of one field. Returns ("", nil) if the field was never set.
func (r *CredentialRepo) Get(ctx context.Context, email, field string) (string, error) {
	if r.cipher == nil {
		return "", driven.ErrEncryptionKeyNotSet
	}

	const query = `SELECT value FROM credentials WHERE email = ? AND field = ?`
	var sealed string
	err := r.db.Reader.GetContext(ctx, &sealed, query, email, field)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get credential %q: %w", field, err)
	}

	plaintext, err := r.cipher.OpenField(sealed)
	if err != nil {
		return "", withField(err, field)
	}
	return plaintext, nil
}

// GetAll returns every field of the account. Fields that cannot be opened are
// left out of the map and reported individually.
func (r *CredentialRepo) GetAll(ctx context.Context, email string) (map[string]string, []*model.DecryptionError, error) {
	if r.cipher == nil {
		return nil, nil, driven.ErrEncryptionKeyNotSet
	}

	const query = `SELECT field, value, updated_at FROM credentials WHERE email = ? ORDER BY field`
	var rows []credentialRow
	if err := r.db.Reader.SelectContext(ctx, &rows, query, email); err != nil {
		return nil, nil, fmt.Errorf("list credentials: %w", err)
	}

	values := make(map[string]string, len(rows))
	var failures []*model.DecryptionError
	for _, row := range rows {
		plaintext, err := r.cipher.OpenField(row.Value)
		if err != nil {
			var decErr *model.DecryptionError
			if errors.As(withField(err, row.Field), &decErr) {
				failures = append(failures, decErr)
				continue
			}
			return nil, nil, err
		}
		values[row.Field] = plaintext
	}

	return values, failures, nil
}

// Delete removes one field.
func (r *CredentialRepo) Delete(ctx context.Context, email, field string) error {
	const query = `DELETE FROM credentials WHERE email = ? AND field = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, email, field); err != nil {
		return fmt.Errorf("delete credential %q: %w", field, err)
	}
	return nil
}

// withField stamps the field name onto a DecryptionError coming from the cipher.
func withField(err error, field string) error {
	var decErr *model.DecryptionError
	if errors.As(err, &decErr) {
		return &model.DecryptionError{Field: field, Err: decErr.Err}
	}
	return fmt.Errorf("open credential %q: %w", field, err)
}

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ericfisherdev/warrantypanel/internal/domain/model"
	"github.com/ericfisherdev/warrantypanel/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.AccountStore = (*AccountRepo)(nil)

// AccountRepo is the SQLite implementation of the AccountStore port interface.
type AccountRepo struct {
	db *DB
}

// NewAccountRepo creates a new AccountRepo backed by the given DB.
func NewAccountRepo(db *DB) *AccountRepo {
	return &AccountRepo{db: db}
}

type accountRow struct {
	Email       string         `db:"email"`
	OTPHash     string         `db:"otp_hash"`
	ResendAfter sql.NullString `db:"resend_after"`
	CreatedAt   string         `db:"created_at"`
}

func (row accountRow) toModel() (*model.Account, error) {
	acct := &model.Account{Email: row.Email, OTPHash: row.OTPHash}

	var err error
	acct.CreatedAt, err = parseTime(row.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at for account %s: %w", row.Email, err)
	}
	if row.ResendAfter.Valid && row.ResendAfter.String != "" {
		acct.ResendAfter, err = parseTime(row.ResendAfter.String)
		if err != nil {
			return nil, fmt.Errorf("parse resend_after for account %s: %w", row.Email, err)
		}
	}
	return acct, nil
}

// GetOrCreate inserts an empty account if none exists, then returns it.
func (r *AccountRepo) GetOrCreate(ctx context.Context, email string, now time.Time) (*model.Account, error) {
	const insert = `INSERT INTO users (email, otp_hash, created_at) VALUES (?, '', ?) ON CONFLICT (email) DO NOTHING`
	if _, err := r.db.Writer.ExecContext(ctx, insert, email, formatTime(now)); err != nil {
		return nil, fmt.Errorf("create account %s: %w", email, err)
	}

	// Read through the writer so the row just inserted is visible.
	return r.get(ctx, r.db.Writer, email)
}

// Get returns the account, or (nil, nil) if it does not exist.
func (r *AccountRepo) Get(ctx context.Context, email string) (*model.Account, error) {
	return r.get(ctx, r.db.Reader, email)
}

func (r *AccountRepo) get(ctx context.Context, q sqlx.QueryerContext, email string) (*model.Account, error) {
	const query = `SELECT email, otp_hash, resend_after, created_at FROM users WHERE email = ?`

	var row accountRow
	err := sqlx.GetContext(ctx, q, &row, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get account %s: %w", email, err)
	}

	return row.toModel()
}

// SetCode replaces the active code hash and the resend deadline.
func (r *AccountRepo) SetCode(ctx context.Context, email, otpHash string, resendAfter time.Time) error {
	const query = `UPDATE users SET otp_hash = ?, resend_after = ? WHERE email = ?`

	result, err := r.db.Writer.ExecContext(ctx, query, otpHash, formatTime(resendAfter), email)
	if err != nil {
		return fmt.Errorf("set code for %s: %w", email, err)
	}
	return requireAffected(result, fmt.Sprintf("account %s", email))
}

// ConsumeCode clears the code only when it still matches, so two concurrent
// verifications of the same code cannot both succeed.
func (r *AccountRepo) ConsumeCode(ctx context.Context, email, otpHash string) (bool, error) {
	const query = `UPDATE users SET otp_hash = '' WHERE email = ? AND otp_hash = ? AND otp_hash != ''`

	result, err := r.db.Writer.ExecContext(ctx, query, email, otpHash)
	if err != nil {
		return false, fmt.Errorf("consume code for %s: %w", email, err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("consume code for %s: rows affected: %w", email, err)
	}
	return n == 1, nil
}

// Delete removes the account together with its credentials and sessions in
// one transaction.
func (r *AccountRepo) Delete(ctx context.Context, email string) error {
	return r.db.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE email = ?`, email); err != nil {
			return fmt.Errorf("delete sessions for %s: %w", email, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM credentials WHERE email = ?`, email); err != nil {
			return fmt.Errorf("delete credentials for %s: %w", email, err)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM users WHERE email = ?`, email)
		if err != nil {
			return fmt.Errorf("delete account %s: %w", email, err)
		}
		return requireAffected(result, fmt.Sprintf("account %s", email))
	})
}

// requireAffected turns a zero-row write into model.ErrNotFound.
func requireAffected(result sql.Result, what string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", what, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, model.ErrNotFound)
	}
	return nil
}

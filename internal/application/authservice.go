// Package application contains use-case orchestration services.
package application

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/segmentio/ksuid"

	"github.com/ericfisherdev/warrantypanel/internal/auth"
	"github.com/ericfisherdev/warrantypanel/internal/domain/model"
	"github.com/ericfisherdev/warrantypanel/internal/domain/port/driven"
)

const codeDigits = 6

// PendingLogin describes a code that has been issued and is awaiting
// verification.
type PendingLogin struct {
	Email       string
	ResendAfter time.Time
}

// LoginResult is returned by a successful verification.
type LoginResult struct {
	Session model.Session
	Token   string
}

// AuthService issues, mails and verifies one-time login codes and manages
// the sessions they open.
type AuthService struct {
	accounts   driven.AccountStore
	sessions   driven.SessionStore
	mailer     driven.Mailer
	signer     *auth.TokenSigner
	clock      clockwork.Clock
	cooldown   time.Duration
	sessionTTL time.Duration
	logger     *slog.Logger
}

// NewAuthService creates a new AuthService with all required dependencies.
func NewAuthService(
	accounts driven.AccountStore,
	sessions driven.SessionStore,
	mailer driven.Mailer,
	signer *auth.TokenSigner,
	clock clockwork.Clock,
	cooldown time.Duration,
	sessionTTL time.Duration,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthService{
		accounts:   accounts,
		sessions:   sessions,
		mailer:     mailer,
		signer:     signer,
		clock:      clock,
		cooldown:   cooldown,
		sessionTTL: sessionTTL,
		logger:     logger,
	}
}

// RequestCode creates the account on first use, replaces any outstanding
// code with a fresh one and mails it. The resend deadline is reset.
func (s *AuthService) RequestCode(ctx context.Context, email string) (*PendingLogin, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if _, err := s.accounts.GetOrCreate(ctx, email, now); err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}

	return s.issue(ctx, email, now)
}

// ResendCode issues a new code unless the cooldown recorded by the previous
// issuance is still running, in which case a *model.CooldownError is
// returned. A resend exactly at the deadline is allowed.
func (s *AuthService) ResendCode(ctx context.Context, email string) (*PendingLogin, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	acct, err := s.accounts.GetOrCreate(ctx, email, now)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}

	if now.Before(acct.ResendAfter) {
		return nil, &model.CooldownError{Remaining: acct.ResendAfter.Sub(now)}
	}

	return s.issue(ctx, email, now)
}

// Pending returns the outstanding login for email, or model.ErrNotFound when
// the account does not exist or has no active code.
func (s *AuthService) Pending(ctx context.Context, email string) (*PendingLogin, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, err
	}

	acct, err := s.accounts.Get(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if acct == nil || !acct.HasActiveCode() {
		return nil, model.ErrNotFound
	}
	return &PendingLogin{Email: email, ResendAfter: acct.ResendAfter}, nil
}

// VerifyCode checks code against the active code for email. On success the
// code is cleared and a session is opened. Every failure is reported as
// model.ErrInvalidCredential.
func (s *AuthService) VerifyCode(ctx context.Context, email, code string) (*LoginResult, error) {
	email, err := NormalizeEmail(email)
	if err != nil {
		return nil, model.ErrInvalidCredential
	}

	acct, err := s.accounts.Get(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}
	if acct == nil || !acct.HasActiveCode() || code == "" {
		return nil, model.ErrInvalidCredential
	}

	hash := hashCode(code)
	if subtle.ConstantTimeCompare([]byte(hash), []byte(acct.OTPHash)) != 1 {
		s.logger.Info("login code rejected", "email", email)
		return nil, model.ErrInvalidCredential
	}

	consumed, err := s.accounts.ConsumeCode(ctx, email, hash)
	if err != nil {
		return nil, fmt.Errorf("consume code: %w", err)
	}
	if !consumed {
		// A concurrent verification used the code first.
		return nil, model.ErrInvalidCredential
	}

	now := s.clock.Now()
	session := model.Session{
		ID:        ksuid.New().String(),
		Email:     email,
		CreatedAt: now,
		ExpiresAt: now.Add(s.sessionTTL),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	token, err := s.signer.Sign(session.ID, session.Email, session.CreatedAt, session.ExpiresAt)
	if err != nil {
		return nil, err
	}

	s.logger.Info("login verified", "email", email, "session_id", session.ID)
	return &LoginResult{Session: session, Token: token}, nil
}

// Authenticate resolves a session token to its live session. Any failure is
// model.ErrUnauthenticated.
func (s *AuthService) Authenticate(ctx context.Context, token string) (*model.Session, error) {
	if token == "" {
		return nil, model.ErrUnauthenticated
	}

	now := s.clock.Now()
	claims, err := s.signer.Parse(token, now)
	if err != nil {
		return nil, model.ErrUnauthenticated
	}

	session, err := s.sessions.Get(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if session == nil || session.Email != claims.Subject {
		return nil, model.ErrUnauthenticated
	}
	if session.Expired(now) {
		if err := s.sessions.Delete(ctx, session.ID); err != nil && !errors.Is(err, model.ErrNotFound) {
			s.logger.Warn("failed to delete expired session", "session_id", session.ID, "error", err)
		}
		return nil, model.ErrUnauthenticated
	}

	return session, nil
}

// Logout deletes the session. Logging out of a session that no longer
// exists is not an error.
func (s *AuthService) Logout(ctx context.Context, sessionID string) error {
	if err := s.sessions.Delete(ctx, sessionID); err != nil && !errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

// DeleteAccount removes the session's account together with its
// credentials and every session.
func (s *AuthService) DeleteAccount(ctx context.Context, session model.Session) error {
	if err := s.accounts.Delete(ctx, session.Email); err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	s.logger.Info("account deleted", "email", session.Email)
	return nil
}

// SweepExpiredSessions removes sessions past their expiry.
func (s *AuthService) SweepExpiredSessions(ctx context.Context) (int64, error) {
	n, err := s.sessions.DeleteExpired(ctx, s.clock.Now())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	return n, nil
}

func (s *AuthService) issue(ctx context.Context, email string, now time.Time) (*PendingLogin, error) {
	code, err := generateCode()
	if err != nil {
		return nil, err
	}

	resendAfter := now.Add(s.cooldown)
	if err := s.accounts.SetCode(ctx, email, hashCode(code), resendAfter); err != nil {
		return nil, fmt.Errorf("store code: %w", err)
	}

	msg := driven.Message{
		To:      email,
		Subject: "Your Warranty Panel sign-in code",
		Body: fmt.Sprintf("Your sign-in code is **%s**.\n\nEnter it on the sign-in page to continue. "+
			"If you did not request it, you can ignore this email.", code),
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		s.logger.Error("failed to send login code", "email", email, "error", err)
		return nil, fmt.Errorf("%w: %w", model.ErrMailDelivery, err)
	}

	s.logger.Info("login code issued", "email", email)
	return &PendingLogin{Email: email, ResendAfter: resendAfter}, nil
}

// NormalizeEmail trims and lower-cases a bare address. Display names and
// anything net/mail cannot parse are rejected with model.ErrInvalidEmail.
func NormalizeEmail(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", model.ErrInvalidEmail
	}

	addr, err := mail.ParseAddress(trimmed)
	if err != nil || addr.Address != trimmed || addr.Name != "" {
		return "", model.ErrInvalidEmail
	}

	return strings.ToLower(addr.Address), nil
}

func generateCode() (string, error) {
	limit := big.NewInt(1)
	for range codeDigits {
		limit.Mul(limit, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", codeDigits, n.Int64()), nil
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}

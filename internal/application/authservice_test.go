package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/warrantypanel/internal/application"
	"github.com/ericfisherdev/warrantypanel/internal/auth"
	"github.com/ericfisherdev/warrantypanel/internal/domain/model"
)

const testEmail = "alice@example.com"

var testStart = time.Date(2024, 12, 1, 9, 0, 0, 0, time.UTC)

type authFixture struct {
	svc      *application.AuthService
	accounts *mockAccountStore
	sessions *mockSessionStore
	mailer   *mockMailer
	clock    *clockwork.FakeClock
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	f := &authFixture{
		accounts: newMockAccountStore(),
		sessions: newMockSessionStore(),
		mailer:   &mockMailer{},
		clock:    clockwork.NewFakeClockAt(testStart),
	}
	signer := auth.NewTokenSigner([]byte("0123456789abcdef0123456789abcdef"))
	f.svc = application.NewAuthService(f.accounts, f.sessions, f.mailer, signer, f.clock,
		60*time.Second, 12*time.Hour, nil)
	return f
}

// login requests and verifies a code, returning the result.
func (f *authFixture) login(t *testing.T) *application.LoginResult {
	t.Helper()
	ctx := context.Background()

	_, err := f.svc.RequestCode(ctx, testEmail)
	require.NoError(t, err)

	result, err := f.svc.VerifyCode(ctx, testEmail, f.mailer.lastCode())
	require.NoError(t, err)
	return result
}

func TestRequestCode_MailsSixDigitCode(t *testing.T) {
	f := newAuthFixture(t)

	pending, err := f.svc.RequestCode(context.Background(), testEmail)
	require.NoError(t, err)

	assert.Equal(t, testEmail, pending.Email)
	assert.Equal(t, testStart.Add(60*time.Second), pending.ResendAfter)

	msg := f.mailer.last()
	assert.Equal(t, testEmail, msg.To)
	assert.Len(t, f.mailer.lastCode(), 6)

	acct, err := f.accounts.Get(context.Background(), testEmail)
	require.NoError(t, err)
	require.NotNil(t, acct)
	assert.True(t, acct.HasActiveCode())
	assert.NotContains(t, acct.OTPHash, f.mailer.lastCode(), "only the hash is stored")
}

func TestRequestCode_NormalizesEmail(t *testing.T) {
	f := newAuthFixture(t)

	pending, err := f.svc.RequestCode(context.Background(), "  Alice@Example.COM ")
	require.NoError(t, err)
	assert.Equal(t, testEmail, pending.Email)
}

func TestRequestCode_InvalidEmail(t *testing.T) {
	f := newAuthFixture(t)

	for _, in := range []string{"", "not-an-email", "Alice <alice@example.com>", "a@b@c"} {
		_, err := f.svc.RequestCode(context.Background(), in)
		assert.ErrorIs(t, err, model.ErrInvalidEmail, "input %q", in)
	}
	assert.Empty(t, f.mailer.sent)
}

func TestRequestCode_MailFailureIsReported(t *testing.T) {
	f := newAuthFixture(t)
	f.mailer.err = errors.New("connection refused")

	_, err := f.svc.RequestCode(context.Background(), testEmail)
	require.ErrorIs(t, err, model.ErrMailDelivery)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestVerifyCode_Success(t *testing.T) {
	f := newAuthFixture(t)

	result := f.login(t)

	assert.Equal(t, testEmail, result.Session.Email)
	assert.NotEmpty(t, result.Session.ID)
	assert.Equal(t, testStart.Add(12*time.Hour), result.Session.ExpiresAt)
	assert.NotEmpty(t, result.Token)

	acct, err := f.accounts.Get(context.Background(), testEmail)
	require.NoError(t, err)
	assert.False(t, acct.HasActiveCode(), "code must be cleared on success")
}

func TestVerifyCode_SingleUse(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.RequestCode(ctx, testEmail)
	require.NoError(t, err)
	code := f.mailer.lastCode()

	_, err = f.svc.VerifyCode(ctx, testEmail, code)
	require.NoError(t, err)

	_, err = f.svc.VerifyCode(ctx, testEmail, code)
	assert.ErrorIs(t, err, model.ErrInvalidCredential)
}

func TestVerifyCode_Rejections(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.VerifyCode(ctx, "nobody@example.com", "123456")
	assert.ErrorIs(t, err, model.ErrInvalidCredential, "unknown account")

	_, err = f.svc.RequestCode(ctx, testEmail)
	require.NoError(t, err)
	code := f.mailer.lastCode()

	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}
	_, err = f.svc.VerifyCode(ctx, testEmail, wrong)
	assert.ErrorIs(t, err, model.ErrInvalidCredential, "wrong code")

	_, err = f.svc.VerifyCode(ctx, testEmail, "")
	assert.ErrorIs(t, err, model.ErrInvalidCredential, "empty code")

	_, err = f.svc.VerifyCode(ctx, testEmail, " "+code)
	assert.ErrorIs(t, err, model.ErrInvalidCredential, "comparison is exact")

	_, err = f.svc.VerifyCode(ctx, testEmail, code)
	assert.NoError(t, err, "a rejected attempt does not burn the code")
}

func TestVerifyCode_NewCodeReplacesOld(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.RequestCode(ctx, testEmail)
	require.NoError(t, err)
	first := f.mailer.lastCode()

	_, err = f.svc.RequestCode(ctx, testEmail)
	require.NoError(t, err)
	second := f.mailer.lastCode()

	if first != second {
		_, err = f.svc.VerifyCode(ctx, testEmail, first)
		assert.ErrorIs(t, err, model.ErrInvalidCredential)
	}
	_, err = f.svc.VerifyCode(ctx, testEmail, second)
	assert.NoError(t, err)
}

func TestResendCode_Cooldown(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.RequestCode(ctx, testEmail)
	require.NoError(t, err)

	f.clock.Advance(59 * time.Second)
	_, err = f.svc.ResendCode(ctx, testEmail)
	require.ErrorIs(t, err, model.ErrCooldownActive)

	var cooldown *model.CooldownError
	require.ErrorAs(t, err, &cooldown)
	assert.Equal(t, 1, cooldown.RemainingSeconds())
	assert.Len(t, f.mailer.sent, 1)

	f.clock.Advance(time.Second)
	pending, err := f.svc.ResendCode(ctx, testEmail)
	require.NoError(t, err, "resend exactly at the deadline succeeds")
	assert.Equal(t, testStart.Add(120*time.Second), pending.ResendAfter)
	assert.Len(t, f.mailer.sent, 2)

	f.clock.Advance(30 * time.Second)
	_, err = f.svc.ResendCode(ctx, testEmail)
	require.ErrorAs(t, err, &cooldown)
	assert.Equal(t, 30, cooldown.RemainingSeconds())
}

func TestResendCode_RoundsRemainingUp(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.RequestCode(ctx, testEmail)
	require.NoError(t, err)

	f.clock.Advance(500 * time.Millisecond)
	_, err = f.svc.ResendCode(ctx, testEmail)

	var cooldown *model.CooldownError
	require.ErrorAs(t, err, &cooldown)
	assert.Equal(t, 60, cooldown.RemainingSeconds())
}

func TestAuthenticate(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	result := f.login(t)

	session, err := f.svc.Authenticate(ctx, result.Token)
	require.NoError(t, err)
	assert.Equal(t, result.Session.ID, session.ID)

	_, err = f.svc.Authenticate(ctx, "")
	assert.ErrorIs(t, err, model.ErrUnauthenticated)

	_, err = f.svc.Authenticate(ctx, result.Token+"x")
	assert.ErrorIs(t, err, model.ErrUnauthenticated)
}

func TestAuthenticate_AfterLogout(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	result := f.login(t)

	require.NoError(t, f.svc.Logout(ctx, result.Session.ID))
	require.NoError(t, f.svc.Logout(ctx, result.Session.ID), "logout is idempotent")

	_, err := f.svc.Authenticate(ctx, result.Token)
	assert.ErrorIs(t, err, model.ErrUnauthenticated)
}

func TestAuthenticate_Expired(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	result := f.login(t)

	f.clock.Advance(12 * time.Hour)

	_, err := f.svc.Authenticate(ctx, result.Token)
	assert.ErrorIs(t, err, model.ErrUnauthenticated)
}

func TestDeleteAccount(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	result := f.login(t)

	require.NoError(t, f.svc.DeleteAccount(ctx, result.Session))

	acct, err := f.accounts.Get(ctx, testEmail)
	require.NoError(t, err)
	assert.Nil(t, acct)

	err = f.svc.DeleteAccount(ctx, result.Session)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSweepExpiredSessions(t *testing.T) {
	f := newAuthFixture(t)
	f.login(t)

	n, err := f.svc.SweepExpiredSessions(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	f.clock.Advance(13 * time.Hour)
	n, err = f.svc.SweepExpiredSessions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestNormalizeEmail(t *testing.T) {
	got, err := application.NormalizeEmail(" Bob@Example.org")
	require.NoError(t, err)
	assert.Equal(t, "bob@example.org", got)

	_, err = application.NormalizeEmail("bob")
	assert.ErrorIs(t, err, model.ErrInvalidEmail)
}

func TestPending(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.Pending(ctx, testEmail)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = f.svc.RequestCode(ctx, testEmail)
	require.NoError(t, err)

	pending, err := f.svc.Pending(ctx, testEmail)
	require.NoError(t, err)
	assert.Equal(t, testStart.Add(time.Minute), pending.ResendAfter)

	_, err = f.svc.VerifyCode(ctx, testEmail, f.mailer.lastCode())
	require.NoError(t, err)

	_, err = f.svc.Pending(ctx, testEmail)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

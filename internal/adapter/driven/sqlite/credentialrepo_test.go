package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/warrantypanel/internal/domain/model"
	"github.com/ericfisherdev/warrantypanel/internal/domain/port/driven"
)

const testEmail = "alice@example.com"

func TestCredentialRepo_SetAndGet(t *testing.T) {
	db := setupTestDB(t)
	createAccount(t, db, testEmail)
	repo := NewCredentialRepo(db, newTestCipher(t), clockwork.NewFakeClock())
	ctx := context.Background()

	err := repo.Set(ctx, testEmail, model.FieldAPIClientID, "client-abc")
	require.NoError(t, err)

	val, err := repo.Get(ctx, testEmail, model.FieldAPIClientID)
	require.NoError(t, err)
	assert.Equal(t, "client-abc", val)
}

func TestCredentialRepo_StoresCiphertext(t *testing.T) {
	db := setupTestDB(t)
	createAccount(t, db, testEmail)
	repo := NewCredentialRepo(db, newTestCipher(t), clockwork.NewFakeClock())
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, testEmail, model.FieldAPIClientSecret, "plain-secret"))

	var stored string
	require.NoError(t, db.Reader.GetContext(ctx, &stored,
		`SELECT value FROM credentials WHERE email = ? AND field = ?`, testEmail, model.FieldAPIClientSecret))
	assert.NotEmpty(t, stored)
	assert.NotContains(t, stored, "plain-secret")
}

func TestCredentialRepo_EmptyValueStoredEmpty(t *testing.T) {
	db := setupTestDB(t)
	createAccount(t, db, testEmail)
	repo := NewCredentialRepo(db, newTestCipher(t), clockwork.NewFakeClock())
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, testEmail, model.FieldSMTPUsername, ""))

	var stored string
	require.NoError(t, db.Reader.GetContext(ctx, &stored,
		`SELECT value FROM credentials WHERE email = ? AND field = ?`, testEmail, model.FieldSMTPUsername))
	assert.Equal(t, "", stored)

	val, err := repo.Get(ctx, testEmail, model.FieldSMTPUsername)
	require.NoError(t, err)
	assert.Equal(t, "", val)
}

func TestCredentialRepo_GetMissing(t *testing.T) {
	db := setupTestDB(t)
	createAccount(t, db, testEmail)
	repo := NewCredentialRepo(db, newTestCipher(t), clockwork.NewFakeClock())

	val, err := repo.Get(context.Background(), testEmail, "nonexistent")
	require.NoError(t, err)
	assert.Equal(t, "", val)
}

func TestCredentialRepo_UpsertOverwrites(t *testing.T) {
	db := setupTestDB(t)
	createAccount(t, db, testEmail)
	repo := NewCredentialRepo(db, newTestCipher(t), clockwork.NewFakeClock())
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, testEmail, model.FieldSMTPHost, "old.example.com"))
	require.NoError(t, repo.Set(ctx, testEmail, model.FieldSMTPHost, "new.example.com"))

	val, err := repo.Get(ctx, testEmail, model.FieldSMTPHost)
	require.NoError(t, err)
	assert.Equal(t, "new.example.com", val)
}

func TestCredentialRepo_GetCorruptReturnsDecryptionError(t *testing.T) {
	db := setupTestDB(t)
	createAccount(t, db, testEmail)
	repo := NewCredentialRepo(db, newTestCipher(t), clockwork.NewFakeClock())
	ctx := context.Background()

	_, err := db.Writer.ExecContext(ctx,
		`INSERT INTO credentials (email, field, value, updated_at) VALUES (?, ?, ?, ?)`,
		testEmail, model.FieldAPIClientSecret, "bm90LWEtcmVhbC1jaXBoZXJ0ZXh0LWF0LWFsbA==", "2024-12-01T00:00:00.000000000Z")
	require.NoError(t, err)

	val, err := repo.Get(ctx, testEmail, model.FieldAPIClientSecret)
	assert.Equal(t, "", val)
	require.ErrorIs(t, err, model.ErrDecryption)

	var decErr *model.DecryptionError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, model.FieldAPIClientSecret, decErr.Field)
}

func TestCredentialRepo_GetAll(t *testing.T) {
	db := setupTestDB(t)
	createAccount(t, db, testEmail)
	repo := NewCredentialRepo(db, newTestCipher(t), clockwork.NewFakeClock())
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, testEmail, model.FieldAPIClientID, "client-abc"))
	require.NoError(t, repo.Set(ctx, testEmail, model.FieldSMTPPort, "587"))
	_, err := db.Writer.ExecContext(ctx,
		`INSERT INTO credentials (email, field, value, updated_at) VALUES (?, ?, ?, ?)`,
		testEmail, model.FieldSMTPPassword, "garbage", "2024-12-01T00:00:00.000000000Z")
	require.NoError(t, err)

	values, failures, err := repo.GetAll(ctx, testEmail)
	require.NoError(t, err)
	assert.Len(t, values, 2)
	assert.Equal(t, "client-abc", values[model.FieldAPIClientID])
	assert.Equal(t, "587", values[model.FieldSMTPPort])
	require.Len(t, failures, 1)
	assert.Equal(t, model.FieldSMTPPassword, failures[0].Field)
}

func TestCredentialRepo_GetAllEmpty(t *testing.T) {
	db := setupTestDB(t)
	createAccount(t, db, testEmail)
	repo := NewCredentialRepo(db, newTestCipher(t), clockwork.NewFakeClock())

	values, failures, err := repo.GetAll(context.Background(), testEmail)
	require.NoError(t, err)
	assert.Empty(t, values)
	assert.Empty(t, failures)
}

func TestCredentialRepo_ScopedPerAccount(t *testing.T) {
	db := setupTestDB(t)
	createAccount(t, db, testEmail)
	createAccount(t, db, "bob@example.com")
	repo := NewCredentialRepo(db, newTestCipher(t), clockwork.NewFakeClock())
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, testEmail, model.FieldAPIClientID, "alice-client"))

	val, err := repo.Get(ctx, "bob@example.com", model.FieldAPIClientID)
	require.NoError(t, err)
	assert.Equal(t, "", val)
}

func TestCredentialRepo_Delete(t *testing.T) {
	db := setupTestDB(t)
	createAccount(t, db, testEmail)
	repo := NewCredentialRepo(db, newTestCipher(t), clockwork.NewFakeClock())
	ctx := context.Background()

	require.NoError(t, repo.Set(ctx, testEmail, model.FieldAPIClientID, "client-abc"))
	require.NoError(t, repo.Delete(ctx, testEmail, model.FieldAPIClientID))

	val, err := repo.Get(ctx, testEmail, model.FieldAPIClientID)
	require.NoError(t, err)
	assert.Equal(t, "", val)

	assert.NoError(t, repo.Delete(ctx, testEmail, "nonexistent"), "deleting nonexistent credential should not error")
}

func TestCredentialRepo_NoCipher(t *testing.T) {
	db := setupTestDB(t)
	repo := NewCredentialRepo(db, nil, clockwork.NewFakeClock())
	ctx := context.Background()

	assert.ErrorIs(t, repo.Set(ctx, testEmail, model.FieldAPIClientID, "x"), driven.ErrEncryptionKeyNotSet)
	_, err := repo.Get(ctx, testEmail, model.FieldAPIClientID)
	assert.ErrorIs(t, err, driven.ErrEncryptionKeyNotSet)
}

func TestCredentialRepo_StampsUpdatedAtFromClock(t *testing.T) {
	db := setupTestDB(t)
	createAccount(t, db, testEmail)
	clock := clockwork.NewFakeClockAt(time.Date(2024, 12, 1, 9, 30, 0, 0, time.UTC))
	repo := NewCredentialRepo(db, newTestCipher(t), clock)
	ctx := context.Background()

	updatedAt := func() string {
		var stored string
		require.NoError(t, db.Reader.GetContext(ctx, &stored,
			`SELECT updated_at FROM credentials WHERE email = ? AND field = ?`, testEmail, model.FieldSMTPHost))
		return stored
	}

	require.NoError(t, repo.Set(ctx, testEmail, model.FieldSMTPHost, "smtp.example.com"))
	assert.Equal(t, "2024-12-01T09:30:00.000000000Z", updatedAt())

	clock.Advance(90 * time.Minute)
	require.NoError(t, repo.Set(ctx, testEmail, model.FieldSMTPHost, "relay.example.com"))
	assert.Equal(t, "2024-12-01T11:00:00.000000000Z", updatedAt())
}

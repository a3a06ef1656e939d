package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/warrantypanel/internal/domain/model"
)

func TestSessionRepo_CreateGetDelete(t *testing.T) {
	db := setupTestDB(t)
	createAccount(t, db, testEmail)
	repo := NewSessionRepo(db)
	ctx := context.Background()
	now := time.Date(2024, 12, 1, 8, 30, 0, 0, time.UTC)

	s := model.Session{ID: "2Fz6", Email: testEmail, CreatedAt: now, ExpiresAt: now.Add(12 * time.Hour)}
	require.NoError(t, repo.Create(ctx, s))

	got, err := repo.Get(ctx, "2Fz6")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, s, *got)

	require.NoError(t, repo.Delete(ctx, "2Fz6"))
	got, err = repo.Get(ctx, "2Fz6")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSessionRepo_RequiresAccount(t *testing.T) {
	db := setupTestDB(t)
	repo := NewSessionRepo(db)
	now := time.Now()

	err := repo.Create(context.Background(), model.Session{ID: "x", Email: "ghost@example.com", CreatedAt: now, ExpiresAt: now})
	assert.Error(t, err, "foreign key must reject sessions without an account")
}

func TestSessionRepo_DeleteExpired(t *testing.T) {
	db := setupTestDB(t)
	createAccount(t, db, testEmail)
	repo := NewSessionRepo(db)
	ctx := context.Background()
	now := time.Date(2024, 12, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, model.Session{ID: "old", Email: testEmail, CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}))
	require.NoError(t, repo.Create(ctx, model.Session{ID: "fresh", Email: testEmail, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}))

	n, err := repo.DeleteExpired(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := repo.Get(ctx, "fresh")
	require.NoError(t, err)
	assert.NotNil(t, got)
}

package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nyp-fyp/chatbot-go/internal/apperrors"
	"github.com/nyp-fyp/chatbot-go/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testJSONStore(t *testing.T) (*JSONStore, string) {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	path := filepath.Join(t.TempDir(), "users.json")
	store, err := NewJSONStore(path, logger)
	require.NoError(t, err)
	return store, path
}

func TestJSONStoreCreateAndGet(t *testing.T) {
	store, _ := testJSONStore(t)
	ctx := context.Background()

	user := &models.User{
		Username:     "alice",
		PasswordHash: "not-a-real-hash",
		CreatedAt:    time.Now(),
	}
	require.NoError(t, store.CreateUser(ctx, user))

	got, err := store.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
	assert.Equal(t, user.PasswordHash, got.PasswordHash)
}

func TestJSONStoreCreateConflict(t *testing.T) {
	store, _ := testJSONStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, &models.User{Username: "alice"}))
	err := store.CreateUser(ctx, &models.User{Username: "alice"})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
}

func TestJSONStoreGetMissing(t *testing.T) {
	store, _ := testJSONStore(t)

	_, err := store.GetUser(context.Background(), "nobody")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestJSONStorePersistsAcrossReopen(t *testing.T) {
	store, path := testJSONStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, &models.User{Username: "alice"}))
	require.NoError(t, store.IncrementMessages(ctx, "alice"))
	require.NoError(t, store.IncrementMessages(ctx, "alice"))
	require.NoError(t, store.IncrementUploads(ctx, "alice"))
	require.NoError(t, store.Close())

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	reopened, err := NewJSONStore(path, logger)
	require.NoError(t, err)

	_, err = reopened.GetUser(ctx, "alice")
	require.NoError(t, err)

	stats, err := reopened.GetUserStats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalMessages)
	assert.Equal(t, 1, stats.TotalUploads)
}

func TestJSONStoreStatsForUnknownUser(t *testing.T) {
	store, _ := testJSONStore(t)

	stats, err := store.GetUserStats(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, "nobody", stats.Username)
	assert.Zero(t, stats.TotalMessages)
}

func TestJSONStoreGetReturnsCopy(t *testing.T) {
	store, _ := testJSONStore(t)
	ctx := context.Background()

	require.NoError(t, store.CreateUser(ctx, &models.User{Username: "alice", PasswordHash: "h1"}))

	got, err := store.GetUser(ctx, "alice")
	require.NoError(t, err)
	got.PasswordHash = "tampered"

	again, err := store.GetUser(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "h1", again.PasswordHash)
}

package session

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nyp-fyp/chatbot-go/internal/apperrors"
	"github.com/nyp-fyp/chatbot-go/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) (*FileStore, string) {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	dir := t.TempDir()
	return NewFileStore(dir, logger), dir
}

func TestStoreSaveLoad(t *testing.T) {
	store, _ := testStore(t)

	sess := &models.ChatSession{
		ChatID:      "notes",
		Owner:       "alice",
		DisplayName: "notes",
		Messages: []models.Message{
			{Role: "user", Content: "hello"},
			{Role: "assistant", Content: "hi"},
		},
		ModTime: time.Now(),
	}
	require.NoError(t, store.Save(sess))

	loaded, err := store.Load("alice", "notes")
	require.NoError(t, err)
	assert.Equal(t, sess.Messages, loaded.Messages)
	assert.Equal(t, "alice", loaded.Owner)
	assert.Equal(t, "notes", loaded.ChatID)
}

func TestStoreLoadMissing(t *testing.T) {
	store, _ := testStore(t)

	_, err := store.Load("alice", "nope")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStoreLoadCorruptFile(t *testing.T) {
	store, dir := testStore(t)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "alice"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alice", "bad.json"), []byte("{not json"), 0644))

	_, err := store.Load("alice", "bad")
	require.Error(t, err)
	assert.True(t, apperrors.IsStorage(err))
}

func TestStoreLoadAllSkipsUnreadable(t *testing.T) {
	store, dir := testStore(t)

	require.NoError(t, store.Save(&models.ChatSession{
		ChatID: "good", Owner: "alice", Messages: []models.Message{},
	}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alice", "bad.json"), []byte("{not json"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "alice", "readme.txt"), []byte("ignored"), 0644))

	chats, err := store.LoadAll("alice")
	require.NoError(t, err)
	assert.Len(t, chats, 1)
	assert.Contains(t, chats, "good")
}

func TestStoreLoadAllMissingDir(t *testing.T) {
	store, _ := testStore(t)

	chats, err := store.LoadAll("nobody")
	require.NoError(t, err)
	assert.Empty(t, chats)
}

func TestStoreSaveLeavesNoTempFiles(t *testing.T) {
	store, dir := testStore(t)

	require.NoError(t, store.Save(&models.ChatSession{
		ChatID: "notes", Owner: "alice", Messages: []models.Message{},
	}))

	entries, err := os.ReadDir(filepath.Join(dir, "alice"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "notes.json", entries[0].Name())
}

func TestStoreRenameKeepsBytes(t *testing.T) {
	store, dir := testStore(t)

	require.NoError(t, store.Save(&models.ChatSession{
		ChatID: "old", Owner: "alice",
		Messages: []models.Message{{Role: "user", Content: "hello"}},
	}))
	before, err := os.ReadFile(filepath.Join(dir, "alice", "old.json"))
	require.NoError(t, err)

	require.NoError(t, store.Rename("alice", "old", "new"))

	after, err := os.ReadFile(filepath.Join(dir, "alice", "new.json"))
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.False(t, store.Exists("alice", "old"))
}

func TestStoreRenameMissing(t *testing.T) {
	store, _ := testStore(t)

	assert.ErrorIs(t, store.Rename("alice", "ghost", "new"), apperrors.ErrNotFound)
}

func TestStoreDelete(t *testing.T) {
	store, _ := testStore(t)

	require.NoError(t, store.Save(&models.ChatSession{
		ChatID: "notes", Owner: "alice", Messages: []models.Message{},
	}))
	require.NoError(t, store.Delete("alice", "notes"))
	assert.False(t, store.Exists("alice", "notes"))
	assert.ErrorIs(t, store.Delete("alice", "notes"), apperrors.ErrNotFound)
}

func TestDecodeHistoryShapes(t *testing.T) {
	tests := []struct {
		name string
		data string
		want []models.Message
	}{
		{
			name: "message list",
			data: `{"messages": [{"role": "user", "content": "hi"}]}`,
			want: []models.Message{{Role: "user", Content: "hi"}},
		},
		{
			name: "history pairs",
			data: `{"history": [["q", "a"]]}`,
			want: []models.Message{
				{Role: "user", Content: "q"},
				{Role: "assistant", Content: "a"},
			},
		},
		{
			name: "bare array",
			data: `[["q", "a"], ["q2", "a2"]]`,
			want: []models.Message{
				{Role: "user", Content: "q"},
				{Role: "assistant", Content: "a"},
				{Role: "user", Content: "q2"},
				{Role: "assistant", Content: "a2"},
			},
		},
		{
			name: "unpaired trailing question",
			data: `{"history": [["q"]]}`,
			want: []models.Message{{Role: "user", Content: "q"}},
		},
		{
			name: "empty file",
			data: "",
			want: []models.Message{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := decodeHistory([]byte(tt.data))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/nyp-fyp/chatbot-go/internal/apperrors"
	"github.com/nyp-fyp/chatbot-go/internal/models"
	"github.com/sirupsen/logrus"
)

// sessionFile is the on-disk shape of one chat session. Legacy files store
// the history as an array of [user, assistant] pairs instead of a message
// list; both shapes are readable, writes always produce the message list.
type sessionFile struct {
	Messages []models.Message `json:"messages"`
	History  [][]string       `json:"history,omitempty"`
}

// FileStore persists chat sessions as one JSON file per chat under
// {dir}/{owner}/{chat_id}.json. It is the source of truth; the in-memory
// cache in Service sits on top of it.
type FileStore struct {
	dir    string
	logger *logrus.Logger
}

// NewFileStore creates a file store rooted at dir
func NewFileStore(dir string, logger *logrus.Logger) *FileStore {
	return &FileStore{dir: dir, logger: logger}
}

func (f *FileStore) ownerDir(owner string) string {
	return filepath.Join(f.dir, owner)
}

func (f *FileStore) path(owner, chatID string) string {
	return filepath.Join(f.dir, owner, chatID+".json")
}

// Exists reports whether a session file is present on disk
func (f *FileStore) Exists(owner, chatID string) bool {
	_, err := os.Stat(f.path(owner, chatID))
	return err == nil
}

// Load reads and normalizes a single session file
func (f *FileStore) Load(owner, chatID string) (*models.ChatSession, error) {
	path := f.path(owner, chatID)

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.ErrNotFound
		}
		return nil, apperrors.NewStorageError("read session", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, apperrors.NewStorageError("stat session", err)
	}

	messages, err := decodeHistory(data)
	if err != nil {
		return nil, apperrors.NewStorageError("parse session", err)
	}

	return &models.ChatSession{
		ChatID:      chatID,
		Owner:       owner,
		DisplayName: chatID,
		Messages:    messages,
		ModTime:     info.ModTime(),
	}, nil
}

// LoadAll scans an owner's session directory and parses every JSON file.
// A missing directory means the owner simply has no chats yet. Files the
// store did not create are tolerated; unparseable ones are skipped with a
// warning rather than failing the whole scan.
func (f *FileStore) LoadAll(owner string) (map[string]*models.ChatSession, error) {
	entries, err := os.ReadDir(f.ownerDir(owner))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return map[string]*models.ChatSession{}, nil
		}
		return nil, apperrors.NewStorageError("scan sessions", err)
	}

	chats := make(map[string]*models.ChatSession)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		chatID := strings.TrimSuffix(entry.Name(), ".json")
		sess, err := f.Load(owner, chatID)
		if err != nil {
			f.logger.WithError(err).WithFields(logrus.Fields{
				"owner": owner,
				"file":  entry.Name(),
			}).Warn("Skipping unreadable session file")
			continue
		}
		chats[chatID] = sess
	}

	return chats, nil
}

// Save writes a session durably: write to a temp file in the same directory,
// then rename over the target.
func (f *FileStore) Save(sess *models.ChatSession) error {
	dir := f.ownerDir(sess.Owner)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return apperrors.NewStorageError("create session dir", err)
	}

	data, err := json.MarshalIndent(sessionFile{Messages: sess.Messages}, "", "  ")
	if err != nil {
		return apperrors.NewStorageError("encode session", err)
	}

	tmp, err := os.CreateTemp(dir, "."+sess.ChatID+".*.tmp")
	if err != nil {
		return apperrors.NewStorageError("create temp session", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperrors.NewStorageError("write session", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperrors.NewStorageError("close session", err)
	}
	if err := os.Rename(tmpName, f.path(sess.Owner, sess.ChatID)); err != nil {
		os.Remove(tmpName)
		return apperrors.NewStorageError("replace session", err)
	}

	return nil
}

// Rename moves the backing file without rewriting it, so the history
// content on disk stays byte-for-byte identical.
func (f *FileStore) Rename(owner, oldID, newID string) error {
	if err := os.Rename(f.path(owner, oldID), f.path(owner, newID)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apperrors.ErrNotFound
		}
		return apperrors.NewStorageError("rename session", err)
	}
	return nil
}

// Delete removes the backing file
func (f *FileStore) Delete(owner, chatID string) error {
	if err := os.Remove(f.path(owner, chatID)); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return apperrors.ErrNotFound
		}
		return apperrors.NewStorageError("delete session", err)
	}
	return nil
}

// decodeHistory normalizes both persisted shapes into a message list
func decodeHistory(data []byte) ([]models.Message, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return []models.Message{}, nil
	}

	// Oldest variant: a bare top-level array of [user, assistant] pairs
	if strings.HasPrefix(trimmed, "[") {
		var pairs [][]string
		if err := json.Unmarshal(data, &pairs); err != nil {
			return nil, fmt.Errorf("legacy array shape: %w", err)
		}
		return pairsToMessages(pairs), nil
	}

	var file sessionFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, err
	}

	if file.Messages != nil {
		return file.Messages, nil
	}
	return pairsToMessages(file.History), nil
}

func pairsToMessages(pairs [][]string) []models.Message {
	messages := make([]models.Message, 0, len(pairs)*2)
	for _, pair := range pairs {
		if len(pair) > 0 {
			messages = append(messages, models.Message{Role: "user", Content: pair[0]})
		}
		if len(pair) > 1 {
			messages = append(messages, models.Message{Role: "assistant", Content: pair[1]})
		}
	}
	return messages
}

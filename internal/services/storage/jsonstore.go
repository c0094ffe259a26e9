package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/nyp-fyp/chatbot-go/internal/apperrors"
	"github.com/nyp-fyp/chatbot-go/internal/models"
	"github.com/sirupsen/logrus"
)

// userFile is the on-disk shape of users.json
type userFile struct {
	Users map[string]*models.User      `json:"users"`
	Stats map[string]*models.UserStats `json:"stats"`
}

// JSONStore keeps all users in a single JSON file. It loads the file once
// and rewrites it atomically on every mutation.
type JSONStore struct {
	path   string
	logger *logrus.Logger

	mu    sync.RWMutex
	users map[string]*models.User
	stats map[string]*models.UserStats
}

// NewJSONStore opens or creates the users file
func NewJSONStore(path string, logger *logrus.Logger) (*JSONStore, error) {
	s := &JSONStore{
		path:   path,
		logger: logger,
		users:  make(map[string]*models.User),
		stats:  make(map[string]*models.UserStats),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, apperrors.NewStorageError("read users file", err)
		}
		return s, nil
	}

	var file userFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, apperrors.NewStorageError("parse users file", err)
	}
	if file.Users != nil {
		s.users = file.Users
	}
	if file.Stats != nil {
		s.stats = file.Stats
	}
	return s, nil
}

func (s *JSONStore) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.Username]; ok {
		return apperrors.ErrConflict
	}
	s.users[user.Username] = user
	if err := s.flushLocked(); err != nil {
		delete(s.users, user.Username)
		return err
	}
	return nil
}

func (s *JSONStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[username]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (s *JSONStore) GetUserStats(ctx context.Context, username string) (*models.UserStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats, ok := s.stats[username]
	if !ok {
		return &models.UserStats{Username: username}, nil
	}
	copied := *stats
	return &copied, nil
}

func (s *JSONStore) IncrementMessages(ctx context.Context, username string) error {
	return s.bump(username, func(stats *models.UserStats) { stats.TotalMessages++ })
}

func (s *JSONStore) IncrementUploads(ctx context.Context, username string) error {
	return s.bump(username, func(stats *models.UserStats) { stats.TotalUploads++ })
}

func (s *JSONStore) Close() error {
	return nil
}

func (s *JSONStore) bump(username string, apply func(*models.UserStats)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats, ok := s.stats[username]
	if !ok {
		stats = &models.UserStats{Username: username}
		s.stats[username] = stats
	}
	before := *stats
	apply(stats)
	if err := s.flushLocked(); err != nil {
		*stats = before
		return err
	}
	return nil
}

// flushLocked rewrites the users file; callers hold the write lock
func (s *JSONStore) flushLocked() error {
	data, err := json.MarshalIndent(userFile{Users: s.users, Stats: s.stats}, "", "  ")
	if err != nil {
		return apperrors.NewStorageError("encode users file", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return apperrors.NewStorageError("create users dir", err)
	}

	tmp, err := os.CreateTemp(dir, ".users.*.tmp")
	if err != nil {
		return apperrors.NewStorageError("create temp users file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperrors.NewStorageError("write users file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperrors.NewStorageError("close users file", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return apperrors.NewStorageError("replace users file", err)
	}
	return nil
}

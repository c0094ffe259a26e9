package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
	"github.com/nyp-fyp/chatbot-go/internal/apperrors"
	"github.com/nyp-fyp/chatbot-go/internal/models"
	"github.com/sirupsen/logrus"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
	username      TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL,
	created_at    TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS user_stats (
	username       TEXT PRIMARY KEY,
	total_messages INTEGER NOT NULL DEFAULT 0,
	total_uploads  INTEGER NOT NULL DEFAULT 0
);`

// SQLiteStore is the database-backed user store variant
type SQLiteStore struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewSQLiteStore opens the database and ensures the schema exists
func NewSQLiteStore(path string, logger *logrus.Logger) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, apperrors.NewStorageError("create db dir", err)
	}

	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, apperrors.NewStorageError("open db", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperrors.NewStorageError("init schema", err)
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) CreateUser(ctx context.Context, user *models.User) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewStorageError("begin tx", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE username = ?`, user.Username).Scan(&exists)
	if err != nil {
		return apperrors.NewStorageError("check user", err)
	}
	if exists > 0 {
		return apperrors.ErrConflict
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		user.Username, user.PasswordHash, user.CreatedAt)
	if err != nil {
		return apperrors.NewStorageError("insert user", err)
	}
	if err := tx.Commit(); err != nil {
		return apperrors.NewStorageError("commit user", err)
	}
	return nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	err := s.db.QueryRowContext(ctx,
		`SELECT username, password_hash, created_at FROM users WHERE username = ?`,
		username).Scan(&user.Username, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, apperrors.NewStorageError("query user", err)
	}
	return &user, nil
}

func (s *SQLiteStore) GetUserStats(ctx context.Context, username string) (*models.UserStats, error) {
	stats := models.UserStats{Username: username}
	err := s.db.QueryRowContext(ctx,
		`SELECT total_messages, total_uploads FROM user_stats WHERE username = ?`,
		username).Scan(&stats.TotalMessages, &stats.TotalUploads)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NewStorageError("query stats", err)
	}
	return &stats, nil
}

func (s *SQLiteStore) IncrementMessages(ctx context.Context, username string) error {
	return s.bump(ctx, username, "total_messages")
}

func (s *SQLiteStore) IncrementUploads(ctx context.Context, username string) error {
	return s.bump(ctx, username, "total_uploads")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) bump(ctx context.Context, username, column string) error {
	// column is one of two fixed names, never user input
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_stats (username, `+column+`) VALUES (?, 1)
		 ON CONFLICT(username) DO UPDATE SET `+column+` = `+column+` + 1`,
		username)
	if err != nil {
		return apperrors.NewStorageError("update stats", err)
	}
	return nil
}

package storage

import (
	"context"
	"fmt"

	"github.com/nyp-fyp/chatbot-go/internal/config"
	"github.com/nyp-fyp/chatbot-go/internal/models"
	"github.com/sirupsen/logrus"
)

// UserStore defines the credential and stats store operations
type UserStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUser(ctx context.Context, username string) (*models.User, error)
	GetUserStats(ctx context.Context, username string) (*models.UserStats, error)
	IncrementMessages(ctx context.Context, username string) error
	IncrementUploads(ctx context.Context, username string) error
	Close() error
}

// Manager selects and wraps the configured user store backend
type Manager struct {
	store  UserStore
	tokens TokenStore
	logger *logrus.Logger
}

// NewManager creates a storage manager from config
func NewManager(cfg *config.Config, logger *logrus.Logger) (*Manager, error) {
	var store UserStore
	var err error

	switch cfg.Users.Type {
	case "sqlite":
		store, err = NewSQLiteStore(cfg.Users.Path, logger)
	case "json":
		store, err = NewJSONStore(cfg.Users.Path, logger)
	default:
		return nil, fmt.Errorf("unsupported user store type: %s", cfg.Users.Type)
	}
	if err != nil {
		return nil, err
	}

	tokens, err := NewTokenStore(&cfg.Users.Tokens, cfg.Server.TokenTTL, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"users":  cfg.Users.Type,
		"tokens": cfg.Users.Tokens.Type,
	}).Info("Storage initialized")

	return &Manager{store: store, tokens: tokens, logger: logger}, nil
}

// Delegate methods to the underlying store
func (m *Manager) CreateUser(ctx context.Context, user *models.User) error {
	return m.store.CreateUser(ctx, user)
}

func (m *Manager) GetUser(ctx context.Context, username string) (*models.User, error) {
	return m.store.GetUser(ctx, username)
}

func (m *Manager) GetUserStats(ctx context.Context, username string) (*models.UserStats, error) {
	return m.store.GetUserStats(ctx, username)
}

func (m *Manager) IncrementMessages(ctx context.Context, username string) error {
	return m.store.IncrementMessages(ctx, username)
}

func (m *Manager) IncrementUploads(ctx context.Context, username string) error {
	return m.store.IncrementUploads(ctx, username)
}

// Tokens returns the login token store
func (m *Manager) Tokens() TokenStore {
	return m.tokens
}

// Close releases backend resources
func (m *Manager) Close() error {
	return m.store.Close()
}

package handlers

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/nyp-fyp/chatbot-go/internal/apperrors"
	"github.com/nyp-fyp/chatbot-go/internal/config"
	"github.com/nyp-fyp/chatbot-go/internal/i18n"
	"github.com/nyp-fyp/chatbot-go/internal/middleware"
	"github.com/nyp-fyp/chatbot-go/internal/models"
	"github.com/nyp-fyp/chatbot-go/internal/services/storage"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// AuthHandler serves register/login/logout
type AuthHandler struct {
	config      *config.Config
	storage     *storage.Manager
	rateLimiter middleware.RateLimiter
	localizer   *i18n.Localizer
	logger      *logrus.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(
	cfg *config.Config,
	storageManager *storage.Manager,
	rateLimiter middleware.RateLimiter,
	localizer *i18n.Localizer,
	logger *logrus.Logger,
) *AuthHandler {
	return &AuthHandler{
		config:      cfg,
		storage:     storageManager,
		rateLimiter: rateLimiter,
		localizer:   localizer,
		logger:      logger,
	}
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Usernames become directory names under the session and upload roots,
// so anything that could change the resolved path is rejected outright
// rather than rewritten.
var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]{2,63}$`)

func validUsername(name string) bool {
	return usernamePattern.MatchString(name) && !strings.Contains(name, "..")
}

// Register creates a new user account
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	// Brute-force protection shares the auth budget with login
	if decision := h.rateLimiter.Check(middleware.ClientIP(r), "auth"); !decision.Allowed {
		writeError(w, r, h.localizer, h.logger, &apperrors.RateLimitedError{
			Category:   "auth",
			RetryAfter: decision.RetryAfter,
		})
		return
	}

	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.localizer, h.logger, err)
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if !validUsername(req.Username) || len(req.Password) < 8 {
		writeError(w, r, h.localizer, h.logger, apperrors.ErrValidation)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, r, h.localizer, h.logger, err)
		return
	}

	user := &models.User{
		Username:     req.Username,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}
	if err := h.storage.CreateUser(r.Context(), user); err != nil {
		writeError(w, r, h.localizer, h.logger, err)
		return
	}

	h.logger.WithField("username", req.Username).Info("User registered")
	writeJSON(w, http.StatusCreated, map[string]string{
		"code":    "ok",
		"message": h.localizer.Get(requestLanguage(r), i18n.MsgRegistered, nil),
	})
}

// Login verifies credentials and issues an opaque token
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	if decision := h.rateLimiter.Check(middleware.ClientIP(r), "auth"); !decision.Allowed {
		writeError(w, r, h.localizer, h.logger, &apperrors.RateLimitedError{
			Category:   "auth",
			RetryAfter: decision.RetryAfter,
		})
		return
	}

	var req credentialsRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.localizer, h.logger, err)
		return
	}

	user, err := h.storage.GetUser(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			h.rejectLogin(w, r)
			return
		}
		writeError(w, r, h.localizer, h.logger, err)
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		h.rejectLogin(w, r)
		return
	}

	token, err := newToken()
	if err != nil {
		writeError(w, r, h.localizer, h.logger, err)
		return
	}
	if err := h.storage.Tokens().Put(r.Context(), token, user.Username); err != nil {
		writeError(w, r, h.localizer, h.logger, err)
		return
	}

	h.logger.WithField("username", user.Username).Info("User logged in")
	writeJSON(w, http.StatusOK, map[string]string{
		"code":     "ok",
		"token":    token,
		"username": user.Username,
	})
}

// Logout discards the caller's token
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	header := r.Header.Get("Authorization")
	token := strings.TrimPrefix(header, "Bearer ")
	if token != "" && token != header {
		if err := h.storage.Tokens().Delete(r.Context(), token); err != nil {
			h.logger.WithError(err).Warn("Failed to delete token")
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"code": "ok"})
}

// rejectLogin answers wrong username and wrong password identically
func (h *AuthHandler) rejectLogin(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusUnauthorized, errorBody{
		Code:    "unauthorized",
		Message: h.localizer.Get(requestLanguage(r), i18n.MsgLoginFailed, nil),
	})
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/nyp-fyp/chatbot-go/internal/apperrors"
	"github.com/nyp-fyp/chatbot-go/internal/config"
	"github.com/nyp-fyp/chatbot-go/internal/i18n"
	"github.com/nyp-fyp/chatbot-go/internal/middleware"
	"github.com/nyp-fyp/chatbot-go/internal/models"
	"github.com/nyp-fyp/chatbot-go/internal/services/storage"
	"github.com/sirupsen/logrus"
)

// UploadHandler gates and stores file and audio uploads. Text extraction
// and transcription run elsewhere; this layer only limits, persists, and
// records the upload.
type UploadHandler struct {
	config      *config.Config
	storage     *storage.Manager
	rateLimiter middleware.RateLimiter
	localizer   *i18n.Localizer
	logger      *logrus.Logger
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(
	cfg *config.Config,
	storageManager *storage.Manager,
	rateLimiter middleware.RateLimiter,
	localizer *i18n.Localizer,
	logger *logrus.Logger,
) *UploadHandler {
	return &UploadHandler{
		config:      cfg,
		storage:     storageManager,
		rateLimiter: rateLimiter,
		localizer:   localizer,
		logger:      logger,
	}
}

// UploadFile accepts a document upload under the file_upload budget
func (h *UploadHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	h.handleUpload(w, r, "file", "file_upload", h.config.Uploads.MaxSizeMB)
}

// UploadAudio accepts an audio clip under the audio budget
func (h *UploadHandler) UploadAudio(w http.ResponseWriter, r *http.Request) {
	h.handleUpload(w, r, "audio", "audio", h.config.Uploads.AudioMaxMB)
}

func (h *UploadHandler) handleUpload(w http.ResponseWriter, r *http.Request, kind, category string, maxMB int) {
	username := middleware.UsernameFrom(r.Context())

	if decision := h.rateLimiter.Check(username, category); !decision.Allowed {
		writeError(w, r, h.localizer, h.logger, &apperrors.RateLimitedError{
			Category:   category,
			RetryAfter: decision.RetryAfter,
		})
		return
	}

	maxBytes := int64(maxMB) << 20
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{
			Code:    "validation_error",
			Message: h.localizer.Get(requestLanguage(r), i18n.MsgUploadTooLarge, nil),
		})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, h.localizer, h.logger, apperrors.ErrValidation)
		return
	}
	defer file.Close()

	record, err := h.store(username, kind, header.Filename, file)
	if err != nil {
		writeError(w, r, h.localizer, h.logger, err)
		return
	}

	if err := h.storage.IncrementUploads(r.Context(), username); err != nil {
		h.logger.WithError(err).Warn("Failed to update upload stats")
	}

	h.logger.WithFields(logrus.Fields{
		"username": username,
		"kind":     kind,
		"filename": record.Filename,
		"size":     record.Size,
	}).Info("Upload stored")

	writeJSON(w, http.StatusCreated, map[string]interface{}{"code": "ok", "upload": record})
}

// store writes the payload under data/uploads/{username}/ with a UUID name
// and appends a record to the owner's upload manifest.
func (h *UploadHandler) store(username, kind, filename string, src io.Reader) (*models.UploadRecord, error) {
	dir := filepath.Join(h.config.Uploads.Directory, username)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, apperrors.NewStorageError("create upload dir", err)
	}

	stored := filepath.Join(dir, uuid.NewString()+filepath.Ext(filename))
	dst, err := os.Create(stored)
	if err != nil {
		return nil, apperrors.NewStorageError("create upload", err)
	}
	size, err := io.Copy(dst, src)
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(stored)
		return nil, apperrors.NewStorageError("write upload", err)
	}

	record := &models.UploadRecord{
		Owner:      username,
		Filename:   filepath.Base(filename),
		StoredPath: stored,
		Size:       size,
		Kind:       kind,
		UploadedAt: time.Now(),
	}
	if err := h.appendManifest(dir, record); err != nil {
		h.logger.WithError(err).Warn("Failed to record upload in manifest")
	}
	return record, nil
}

func (h *UploadHandler) appendManifest(dir string, record *models.UploadRecord) error {
	path := filepath.Join(dir, "manifest.json")

	var records []models.UploadRecord
	if data, err := os.ReadFile(path); err == nil {
		if err := json.Unmarshal(data, &records); err != nil {
			h.logger.WithError(err).Warn("Upload manifest unreadable, starting fresh")
			records = nil
		}
	}
	records = append(records, *record)

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

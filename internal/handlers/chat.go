package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/nyp-fyp/chatbot-go/internal/apperrors"
	"github.com/nyp-fyp/chatbot-go/internal/config"
	"github.com/nyp-fyp/chatbot-go/internal/i18n"
	"github.com/nyp-fyp/chatbot-go/internal/middleware"
	"github.com/nyp-fyp/chatbot-go/internal/models"
	"github.com/nyp-fyp/chatbot-go/internal/services/ai"
	"github.com/nyp-fyp/chatbot-go/internal/services/cache"
	"github.com/nyp-fyp/chatbot-go/internal/services/knowledge"
	"github.com/nyp-fyp/chatbot-go/internal/services/session"
	"github.com/nyp-fyp/chatbot-go/internal/services/storage"
	"github.com/nyp-fyp/chatbot-go/pkg/logger"
	"github.com/nyp-fyp/chatbot-go/pkg/markdown"
	"github.com/sirupsen/logrus"
)

// ChatHandler serves the chat session API
type ChatHandler struct {
	config           *config.Config
	sessions         *session.Service
	aiService        ai.Service
	knowledgeService knowledge.Service
	storage          *storage.Manager
	cache            cache.Service
	rateLimiter      middleware.RateLimiter
	localizer        *i18n.Localizer
	metrics          *middleware.Metrics
	logger           *logrus.Logger
}

// NewChatHandler creates a new chat handler
func NewChatHandler(
	cfg *config.Config,
	sessions *session.Service,
	aiService ai.Service,
	knowledgeService knowledge.Service,
	storageManager *storage.Manager,
	cacheService cache.Service,
	rateLimiter middleware.RateLimiter,
	localizer *i18n.Localizer,
	metrics *middleware.Metrics,
	logger *logrus.Logger,
) *ChatHandler {
	return &ChatHandler{
		config:           cfg,
		sessions:         sessions,
		aiService:        aiService,
		knowledgeService: knowledgeService,
		storage:          storageManager,
		cache:            cacheService,
		rateLimiter:      rateLimiter,
		localizer:        localizer,
		metrics:          metrics,
		logger:           logger,
	}
}

type askRequest struct {
	Message string `json:"message"`
	ChatID  string `json:"chat_id"`
	Model   string `json:"model"`
}

type askResponse struct {
	Code         string `json:"code"`
	Response     string `json:"response"`
	ResponseHTML string `json:"response_html"`
	ChatID       string `json:"chat_id"`
	Category     string `json:"category"`
}

// Ask handles one question/answer exchange. The flow: rate check, ensure
// the chat exists, answer (cache or LLM with retrieval), then persist the
// exchange. A failed append is retried once before the caller is told the
// message was not saved.
func (h *ChatHandler) Ask(w http.ResponseWriter, r *http.Request) {
	username := middleware.UsernameFrom(r.Context())
	start := time.Now()

	if decision := h.rateLimiter.Check(username, "chat"); !decision.Allowed {
		writeError(w, r, h.localizer, h.logger, &apperrors.RateLimitedError{
			Category:   "chat",
			RetryAfter: decision.RetryAfter,
		})
		return
	}

	var req askRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.localizer, h.logger, err)
		return
	}
	if req.Message == "" || len(req.Message) > 4096 {
		writeError(w, r, h.localizer, h.logger, apperrors.ErrValidation)
		return
	}

	modelID := req.Model
	if modelID == "" {
		modelID = h.config.Models.Default
	}

	chatID := req.ChatID
	newChat := false
	if chatID == "" {
		// First message of a fresh conversation: name the chat from it
		name := h.aiService.GenerateChatName(r.Context(), req.Message)
		created, err := h.sessions.CreateChat(username, name)
		if errors.Is(err, apperrors.ErrConflict) || errors.Is(err, apperrors.ErrValidation) {
			created, err = h.sessions.CreateChat(username, "")
		}
		if err != nil {
			writeError(w, r, h.localizer, h.logger, err)
			return
		}
		chatID = created
		newChat = true
	}

	history, err := h.sessions.GetHistory(username, chatID)
	if err != nil {
		writeError(w, r, h.localizer, h.logger, err)
		return
	}

	category := h.aiService.ClassifyQuery(req.Message)
	answer, fromCache := h.cache.Get(r.Context(), req.Message, modelID)
	if fromCache {
		h.metrics.RecordCacheHit()
	} else {
		h.metrics.RecordCacheMiss()

		prompt := append(history, models.Message{Role: "user", Content: req.Message})
		answer, err = h.aiService.GetResponseWithKnowledge(r.Context(), prompt, modelID, h.knowledgeService)
		h.metrics.RecordAIRequest(modelID, statusOf(err), time.Since(start))
		if err != nil {
			h.logger.WithError(err).Error("AI request failed")
			writeError(w, r, h.localizer, h.logger, err)
			return
		}
		if err := h.cache.Set(r.Context(), req.Message, modelID, answer); err != nil {
			h.logger.WithError(err).Warn("Failed to cache answer")
		}
	}

	// Persist the exchange; the answer exists, so a lost write must be
	// reported rather than silently dropped.
	if err := h.appendExchange(username, chatID, req.Message, answer); err != nil {
		logger.WithUser(h.logger, username, chatID).WithError(err).Error("Failed to persist exchange")
		writeJSON(w, http.StatusInternalServerError, errorBody{
			Code:    "storage_error",
			Message: h.localizer.Get(requestLanguage(r), i18n.MsgMessageNotSaved, nil),
		})
		return
	}

	if err := h.storage.IncrementMessages(r.Context(), username); err != nil {
		h.logger.WithError(err).Warn("Failed to update user stats")
	}

	h.metrics.RecordSessionOperation("ask", "success", time.Since(start))
	if newChat {
		h.metrics.SetActiveUsers(float64(h.sessions.CachedOwners()))
	}

	writeJSON(w, http.StatusOK, askResponse{
		Code:         "ok",
		Response:     answer,
		ResponseHTML: markdown.ToChatHTML(answer),
		ChatID:       chatID,
		Category:     category,
	})
}

// appendExchange writes the user message and the assistant reply, retrying
// each append once on storage failure.
func (h *ChatHandler) appendExchange(username, chatID, question, answer string) error {
	if err := h.appendWithRetry(username, chatID, "user", question); err != nil {
		return err
	}
	return h.appendWithRetry(username, chatID, "assistant", answer)
}

func (h *ChatHandler) appendWithRetry(username, chatID, role, content string) error {
	err := h.sessions.AppendMessage(username, chatID, role, content)
	if err != nil && apperrors.IsStorage(err) {
		h.logger.WithError(err).Warn("Append failed, retrying once")
		err = h.sessions.AppendMessage(username, chatID, role, content)
	}
	return err
}

// ListChats returns the caller's chats, most recent first
func (h *ChatHandler) ListChats(w http.ResponseWriter, r *http.Request) {
	username := middleware.UsernameFrom(r.Context())

	ids, err := h.sessions.ListChats(username)
	if err != nil {
		writeError(w, r, h.localizer, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"code": "ok", "chats": ids})
}

// CreateChat creates a chat, optionally with a caller-chosen id
func (h *ChatHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	username := middleware.UsernameFrom(r.Context())

	var req struct {
		ChatID string `json:"chat_id"`
	}
	if r.ContentLength > 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, r, h.localizer, h.logger, err)
			return
		}
	}

	chatID, err := h.sessions.CreateChat(username, req.ChatID)
	if err != nil {
		writeError(w, r, h.localizer, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"code": "ok", "chat_id": chatID})
}

// GetHistory returns a chat's messages in order
func (h *ChatHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	username := middleware.UsernameFrom(r.Context())
	chatID := mux.Vars(r)["chatID"]

	messages, err := h.sessions.GetHistory(username, chatID)
	if err != nil {
		writeError(w, r, h.localizer, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"code":     "ok",
		"chat_id":  chatID,
		"messages": messages,
	})
}

// RenameChat renames a chat, rejecting collisions
func (h *ChatHandler) RenameChat(w http.ResponseWriter, r *http.Request) {
	username := middleware.UsernameFrom(r.Context())
	chatID := mux.Vars(r)["chatID"]

	var req struct {
		NewName string `json:"new_name"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, r, h.localizer, h.logger, err)
		return
	}

	newID, err := h.sessions.RenameChat(username, chatID, req.NewName)
	if err != nil {
		writeError(w, r, h.localizer, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"code": "ok", "chat_id": newID})
}

// ClearChat truncates a chat's history
func (h *ChatHandler) ClearChat(w http.ResponseWriter, r *http.Request) {
	username := middleware.UsernameFrom(r.Context())
	chatID := mux.Vars(r)["chatID"]

	cleared, err := h.sessions.ClearChat(username, chatID)
	if err != nil {
		writeError(w, r, h.localizer, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"code": "ok", "cleared": cleared})
}

// DeleteChat removes a chat entirely
func (h *ChatHandler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	username := middleware.UsernameFrom(r.Context())
	chatID := mux.Vars(r)["chatID"]

	if err := h.sessions.DeleteChat(username, chatID); err != nil {
		writeError(w, r, h.localizer, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"code": "ok"})
}

// SearchChats searches all of the caller's histories
func (h *ChatHandler) SearchChats(w http.ResponseWriter, r *http.Request) {
	username := middleware.UsernameFrom(r.Context())
	query := r.URL.Query().Get("q")

	results, err := h.sessions.Search(username, query)
	if err != nil {
		writeError(w, r, h.localizer, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"code": "ok", "results": results})
}

// Limits reports the caller's remaining budget for a category without
// consuming any of it. The UI uses this for "please wait N seconds".
func (h *ChatHandler) Limits(w http.ResponseWriter, r *http.Request) {
	username := middleware.UsernameFrom(r.Context())
	category := r.URL.Query().Get("category")
	if category == "" {
		category = "default"
	}

	info := h.rateLimiter.Info(username, category)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"code":               "ok",
		"category":           category,
		"requests_used":      info.Used,
		"requests_remaining": info.Remaining,
		"reset_in_seconds":   int(info.ResetIn.Seconds()),
	})
}

// Stats returns the caller's usage counters
func (h *ChatHandler) Stats(w http.ResponseWriter, r *http.Request) {
	username := middleware.UsernameFrom(r.Context())

	stats, err := h.storage.GetUserStats(r.Context(), username)
	if err != nil {
		writeError(w, r, h.localizer, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"code": "ok", "stats": stats})
}

func statusOf(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

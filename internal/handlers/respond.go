package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/nyp-fyp/chatbot-go/internal/apperrors"
	"github.com/nyp-fyp/chatbot-go/internal/i18n"
	"github.com/sirupsen/logrus"
)

// errorBody is the user-facing error envelope. Internal detail stays in the
// logs; the client only ever sees a stable code and a localized message.
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// writeError translates a typed error into the {"code","message"} payload
func writeError(w http.ResponseWriter, r *http.Request, localizer *i18n.Localizer, logger *logrus.Logger, err error) {
	code := apperrors.Code(err)
	lang := requestLanguage(r)

	status := http.StatusInternalServerError
	messageID := i18n.MsgError
	var data map[string]interface{}

	switch code {
	case "not_found":
		status = http.StatusNotFound
		messageID = i18n.MsgChatNotFound
	case "conflict":
		status = http.StatusConflict
		messageID = i18n.MsgChatExists
	case "validation_error":
		status = http.StatusBadRequest
		messageID = i18n.MsgInvalidName
	case "rate_limited":
		status = http.StatusTooManyRequests
		messageID = i18n.MsgRateLimitExceeded
		if re, ok := apperrors.IsRateLimited(err); ok {
			seconds := int(re.RetryAfter.Seconds()) + 1
			w.Header().Set("Retry-After", strconv.Itoa(seconds))
			data = map[string]interface{}{"Seconds": seconds}
		}
	case "storage_error":
		status = http.StatusInternalServerError
		messageID = i18n.MsgError
		logger.WithError(err).Error("Storage failure")
	default:
		logger.WithError(err).Error("Unhandled error")
	}

	writeJSON(w, status, errorBody{
		Code:    code,
		Message: localizer.Get(lang, messageID, data),
	})
}

// requestLanguage picks the client language from Accept-Language.
// Only the primary subtag matters; anything unknown falls back later.
func requestLanguage(r *http.Request) string {
	header := r.Header.Get("Accept-Language")
	if header == "" {
		return ""
	}
	first := strings.TrimSpace(strings.Split(header, ",")[0])
	if idx := strings.IndexAny(first, "-;"); idx > 0 {
		first = first[:idx]
	}
	return strings.ToLower(first)
}

func decodeBody(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperrors.ErrValidation
	}
	return nil
}

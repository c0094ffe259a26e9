package handlers

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/nyp-fyp/chatbot-go/internal/middleware"
	"github.com/sirupsen/logrus"
)

// NewRouter wires all API routes. Everything under /api except auth
// requires a valid bearer token.
func NewRouter(
	authHandler *AuthHandler,
	chatHandler *ChatHandler,
	uploadHandler *UploadHandler,
	tokens middleware.TokenLookup,
	metrics *middleware.Metrics,
	logger *logrus.Logger,
) *mux.Router {
	router := mux.NewRouter()
	router.Use(requestLogger(metrics, logger))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/register", authHandler.Register).Methods("POST")
	api.HandleFunc("/login", authHandler.Login).Methods("POST")
	api.HandleFunc("/logout", authHandler.Logout).Methods("POST")

	authed := api.NewRoute().Subrouter()
	authed.Use(middleware.RequireAuth(tokens, logger))
	authed.HandleFunc("/ask", chatHandler.Ask).Methods("POST")
	authed.HandleFunc("/chats", chatHandler.ListChats).Methods("GET")
	authed.HandleFunc("/chats", chatHandler.CreateChat).Methods("POST")
	authed.HandleFunc("/chats/search", chatHandler.SearchChats).Methods("GET")
	authed.HandleFunc("/chats/{chatID}/history", chatHandler.GetHistory).Methods("GET")
	authed.HandleFunc("/chats/{chatID}/rename", chatHandler.RenameChat).Methods("POST")
	authed.HandleFunc("/chats/{chatID}/clear", chatHandler.ClearChat).Methods("POST")
	authed.HandleFunc("/chats/{chatID}", chatHandler.DeleteChat).Methods("DELETE")
	authed.HandleFunc("/upload", uploadHandler.UploadFile).Methods("POST")
	authed.HandleFunc("/upload/audio", uploadHandler.UploadAudio).Methods("POST")
	authed.HandleFunc("/limits", chatHandler.Limits).Methods("GET")
	authed.HandleFunc("/stats", chatHandler.Stats).Methods("GET")

	return router
}

// requestLogger records request metrics and a debug log line per request
func requestLogger(metrics *middleware.Metrics, logger *logrus.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)

			route := r.URL.Path
			if current := mux.CurrentRoute(r); current != nil {
				if tpl, err := current.GetPathTemplate(); err == nil {
					route = tpl
				}
			}

			metrics.RecordRequest(route, http.StatusText(recorder.status), time.Since(start))
			logger.WithFields(logrus.Fields{
				"method":   r.Method,
				"path":     r.URL.Path,
				"status":   recorder.status,
				"duration": time.Since(start),
			}).Debug("Request handled")
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

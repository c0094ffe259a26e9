package middleware

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
)

type contextKey string

const usernameKey contextKey = "username"

// TokenLookup resolves an opaque login token to a username
type TokenLookup interface {
	Lookup(ctx context.Context, token string) (string, error)
}

// RequireAuth rejects requests without a valid bearer token and stashes the
// resolved username in the request context.
func RequireAuth(tokens TokenLookup, logger *logrus.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token := strings.TrimPrefix(header, "Bearer ")
			if token == "" || token == header {
				http.Error(w, `{"code":"unauthorized","message":"missing token"}`, http.StatusUnauthorized)
				return
			}

			username, err := tokens.Lookup(r.Context(), token)
			if err != nil {
				logger.WithField("remote", r.RemoteAddr).Debug("Rejected invalid token")
				http.Error(w, `{"code":"unauthorized","message":"invalid token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), usernameKey, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// UsernameFrom returns the authenticated username stored by RequireAuth
func UsernameFrom(ctx context.Context) string {
	if v, ok := ctx.Value(usernameKey).(string); ok {
		return v
	}
	return ""
}

// ClientIP extracts the caller address for rate limiting unauthenticated
// endpoints. X-Forwarded-For wins when the app sits behind a proxy.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ashgrovelabs/go-chat-service/pkg/chat"
)

type contextKey struct{}

var userIDKey contextKey

// UserIDFromContext returns the authenticated user set by Middleware.
func UserIDFromContext(ctx context.Context) (chat.UserID, bool) {
	id, ok := ctx.Value(userIDKey).(chat.UserID)
	return id, ok
}

// ContextWithUserID attaches an authenticated user to the context. Exposed
// for handler tests.
func ContextWithUserID(ctx context.Context, id chat.UserID) context.Context {
	return context.WithValue(ctx, userIDKey, id)
}

// Middleware returns an http middleware that verifies the Bearer session
// token on each request and places the resolved user in the request
// context. Requests without a valid token get a 401.
func Middleware(verifier chat.TokenVerifier, logger zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				http.Error(w, "missing bearer token", http.StatusUnauthorized)
				return
			}

			userID, err := verifier.Verify(token)
			if err != nil {
				logger.Warn().Err(err).Msg("Rejected request with invalid session token")
				http.Error(w, "invalid session token", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithUserID(r.Context(), userID)))
		})
	}
}

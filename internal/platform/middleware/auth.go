package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	id "arcana/pkg/domain"
	"arcana/pkg/requestcontext"
)

// TokenValidator verifies an access token and returns the user it belongs to.
type TokenValidator interface {
	ExtractUserID(tokenString string) (uuid.UUID, error)
}

// OptionalAuth resolves the authenticated user from a Bearer token when one
// is present. An invalid token is treated as anonymous rather than rejected,
// because every balance endpoint must also serve anonymous device identities;
// the identity resolver downstream decides which identity space wins.
func OptionalAuth(validator TokenValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			const bearerPrefix = "Bearer "
			authHeader := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(authHeader, bearerPrefix)
			if !ok || token == "" {
				next.ServeHTTP(w, r)
				return
			}

			userID, err := validator.ExtractUserID(token)
			if err != nil {
				ctx := r.Context()
				logger.WarnContext(ctx, "ignoring invalid bearer token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				next.ServeHTTP(w, r)
				return
			}

			ctx := requestcontext.WithIdentity(r.Context(), id.UserIdentity(userID))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireUser rejects requests whose resolved identity is not an
// authenticated user. Mount after OptionalAuth and the identity resolver.
func RequireUser(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if !requestcontext.Identity(ctx).IsUser() {
				logger.WarnContext(ctx, "unauthorized access - user identity required",
					"request_id", requestcontext.RequestID(ctx),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","error_description":"Missing or invalid Authorization header"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

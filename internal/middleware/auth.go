package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"app/internal/apierr"
	"app/internal/logger"
	"app/internal/model"
	"app/internal/util"
)

// Injected key type to avoid context collisions
type contextKey string

const (
	UserContextKey = contextKey("user")
	RoleContextKey = contextKey("role")
)

// UserID returns the authenticated user ID stored by AuthMiddleware.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(UserContextKey).(string)
	return id
}

// UserRole returns the role claim stored by AuthMiddleware. The claim reflects
// the token-issue time; privileged paths must re-read the user row.
func UserRole(ctx context.Context) model.Role {
	role, _ := ctx.Value(RoleContextKey).(model.Role)
	return role
}

func writeAuthError(w http.ResponseWriter, code apierr.Code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apierr.HTTPStatus(code))
	_ = json.NewEncoder(w).Encode(map[string]any{
		"success": false,
		"error":   apierr.New(code, message),
	})
}

func AuthMiddleware(jwtSecret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := logger.New()
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				logger.Error().Msg("Authorization header missing")
				writeAuthError(w, apierr.CodeUnauthorized, "Authorization header missing")
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				logger.Error().Msg("Invalid authorization header")
				writeAuthError(w, apierr.CodeInvalidToken, "Invalid authorization header")
				return
			}
			tokenString := parts[1]
			claims, err := util.ValidateJWT(tokenString, jwtSecret)
			if err != nil {
				logger.Error().Msgf("Invalid token: %+v", err)
				writeAuthError(w, apierr.CodeInvalidToken, "Invalid token")
				return
			}
			ctx := context.WithValue(r.Context(), UserContextKey, claims.Subject)
			ctx = context.WithValue(ctx, RoleContextKey, model.Role(claims.Role))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole gates a handler behind a minimum role. Unknown roles rank below
// free, so a malformed claim is always rejected.
func RequireRole(min model.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !UserRole(r.Context()).AtLeast(min) {
				writeAuthError(w, apierr.CodeForbidden, "Insufficient role for this operation")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

package auth

import (
	"context"
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

// TokenValidator — то, что нужно middleware от проверяющей стороны
type TokenValidator interface {
	VerifyToken(tokenStr string) (*Claims, error)
}

type ctxKey string

const userIDKey ctxKey = "user_id"

// UserID достает идентификатор пользователя, положенный middleware
func UserID(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

func NewMiddleware(v TokenValidator, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				unauthorized(w, "missing access token")
				return
			}

			claims, err := v.VerifyToken(authHeader)
			if err != nil {
				logger.Warn("auth failure", zap.String("path", r.URL.Path), zap.Error(err))
				unauthorized(w, "invalid access token")
				return
			}

			ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	json.NewEncoder(w).Encode(map[string]any{"success": false, "message": msg})
}

package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/phuslu/log"
	initdata "github.com/telegram-mini-apps/init-data-golang"

	"podcast-digest/internal/db"
	"podcast-digest/internal/models"
)

type contextKey string

// UserContextKey is the key for the user in the context.
const UserContextKey = contextKey("user")

// UserFromContext returns the user stored by AuthMiddleware.
func UserFromContext(ctx context.Context) (*models.User, bool) {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	return user, ok && user != nil
}

// AuthMiddleware validates the Telegram Mini App initData signed with
// botToken and upserts the user.
func AuthMiddleware(botToken string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header is required", http.StatusUnauthorized)
				return
			}

			scheme, rawInitData, found := strings.Cut(authHeader, " ")
			if !found || scheme != "tma" || rawInitData == "" {
				http.Error(w, "Authorization header format must be 'tma <initData>'", http.StatusUnauthorized)
				return
			}

			if botToken == "" {
				log.Error().Msg("TELEGRAM_BOT_TOKEN is not set")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			if err := initdata.Validate(rawInitData, botToken, 0); err != nil {
				log.Warn().Err(err).Msg("Invalid init data")
				http.Error(w, "Invalid init data", http.StatusUnauthorized)
				return
			}

			data, err := initdata.Parse(rawInitData)
			if err != nil {
				log.Warn().Err(err).Msg("Error parsing init data")
				http.Error(w, "Error parsing init data", http.StatusBadRequest)
				return
			}
			if data.User.ID == 0 {
				http.Error(w, "Init data has no user", http.StatusUnauthorized)
				return
			}

			user, err := db.UpsertUser(r.Context(), data.User.ID, data.User.Username)
			if err != nil {
				http.Error(w, "Failed to authenticate user", http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), UserContextKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

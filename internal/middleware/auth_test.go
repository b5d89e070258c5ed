package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"podcast-digest/internal/models"
	"podcast-digest/internal/test"
)

const testBotToken = "test-bot-token"

// Signed with testBotToken for user 123 "testuser".
const validInitData = "query_id=AAHdF614AAAAAN0Xrhom_pA&user=%7B%22id%22%3A123%2C%22first_name%22%3A%22Test%22%2C%22username%22%3A%22testuser%22%2C%22language_code%22%3A%22en%22%7D&auth_date=1672531200&hash=a71613882d5a2e7a650b418010fec518602bf3918efc4af2552c42c8342c5758"

func okHandler(t *testing.T, wantID int64) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, ok := UserFromContext(r.Context())
		assert.True(t, ok)
		if ok {
			assert.Equal(t, wantID, user.ID)
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuthMiddleware(t *testing.T) {
	t.Run("valid auth data", func(t *testing.T) {
		_, mock := test.NewMockDB(t)
		now := time.Now()
		rows := sqlmock.NewRows([]string{"id", "telegram_username", "rss_uuid", "created_at", "updated_at"}).
			AddRow(123, "testuser", "some-uuid", now, now)
		mock.ExpectQuery(`INSERT INTO users`).WithArgs(int64(123), "testuser").WillReturnRows(rows)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "tma "+validInitData)
		rr := httptest.NewRecorder()

		AuthMiddleware(testBotToken)(okHandler(t, 123)).ServeHTTP(rr, req)

		assert.Equal(t, http.StatusOK, rr.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("no authorization header", func(t *testing.T) {
		test.NewMockDB(t)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()
		AuthMiddleware(testBotToken)(nil).ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("invalid authorization header format", func(t *testing.T) {
		test.NewMockDB(t)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer sometoken")
		rr := httptest.NewRecorder()
		AuthMiddleware(testBotToken)(nil).ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("signed with another token", func(t *testing.T) {
		_, mock := test.NewMockDB(t)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "tma "+validInitData)
		rr := httptest.NewRecorder()
		AuthMiddleware("other-token")(nil).ServeHTTP(rr, req)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing bot token", func(t *testing.T) {
		test.NewMockDB(t)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "tma "+validInitData)
		rr := httptest.NewRecorder()
		AuthMiddleware("")(nil).ServeHTTP(rr, req)
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiterMiddleware(0, 2)
	handler := rl.Middleware(okHandler(t, 7))

	serve := func(userID int64) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		ctx := context.WithValue(req.Context(), UserContextKey, &models.User{ID: userID})
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, req.WithContext(ctx))
		return rr.Code
	}

	assert.Equal(t, http.StatusOK, serve(7))
	assert.Equal(t, http.StatusOK, serve(7))
	assert.Equal(t, http.StatusTooManyRequests, serve(7))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

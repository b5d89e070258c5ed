package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"podcast-digest/internal/handlers"
	"podcast-digest/internal/test"
)

func TestRouter(t *testing.T) {
	_, mock := test.NewMockDB(t)
	router := newRouter(handlers.New(&test.MockTaskEnqueuer{}, ""), "test-bot-token")

	tests := []struct {
		name   string
		method string
		path   string
		header string
		want   int
	}{
		{"health", http.MethodGet, "/healthz", "", http.StatusOK},
		{"api requires auth", http.MethodGet, "/api/subscriptions", "", http.StatusUnauthorized},
		{"search requires auth", http.MethodGet, "/api/podcasts/search?q=news", "", http.StatusUnauthorized},
		{"api rejects bad init data", http.MethodGet, "/api/episodes/failed", "tma hash=deadbeef", http.StatusUnauthorized},
		{"non numeric subscription id", http.MethodDelete, "/api/subscriptions/abc", "", http.StatusNotFound},
		{"unknown feed", http.MethodGet, "/rss/not-a-uuid", "", http.StatusNotFound},
		{"wrong method", http.MethodPut, "/api/subscriptions", "", http.StatusMethodNotAllowed},
		{"wrong method on subscription", http.MethodGet, "/api/subscriptions/12", "", http.StatusMethodNotAllowed},
		{"wrong method on public route", http.MethodPost, "/healthz", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)
			assert.Equal(t, tt.want, rr.Code)
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

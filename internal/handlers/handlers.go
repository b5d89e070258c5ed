package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/phuslu/log"

	"podcast-digest/internal/middleware"
	"podcast-digest/internal/models"
	"podcast-digest/pkg/tasks"
)

type Handlers struct {
	asynqClient tasks.TaskEnqueuer
	baseURL     string
	searcher    PodcastSearcher
}

func New(asynqClient tasks.TaskEnqueuer, baseURL string) *Handlers {
	return &Handlers{
		asynqClient: asynqClient,
		baseURL:     baseURL,
	}
}

// WithSearcher enables podcast lookup by title.
func (h *Handlers) WithSearcher(s PodcastSearcher) *Handlers {
	h.searcher = s
	return h
}

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	RSSURL   string `json:"rss_url"`
}

func (h *Handlers) PostAuth(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, userResponse{
		ID:       user.ID,
		Username: user.TelegramUsername,
		RSSURL:   h.rssURL(user),
	})
}

func (h *Handlers) rssURL(user *models.User) string {
	baseURL := h.baseURL
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return baseURL + "/rss/" + user.RSSUUID
}

func currentUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		http.Error(w, "User not found in context", http.StatusInternalServerError)
	}
	return user, ok
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("Error writing response")
	}
}

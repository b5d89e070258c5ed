package handlers

import (
	"net/http"
	"time"

	"github.com/phuslu/log"

	"podcast-digest/internal/db"
)

type failedEpisodeResponse struct {
	ID          int64     `json:"id"`
	PodcastID   int64     `json:"podcast_id"`
	Title       string    `json:"title"`
	PublishedAt time.Time `json:"published_at"`
	// Stage is "transcription" or "summary".
	Stage  string `json:"stage"`
	Reason string `json:"reason,omitempty"`
}

// GetFailedEpisodes lists episodes of the user's podcasts that ran out of retries.
func (h *Handlers) GetFailedEpisodes(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	episodes, err := db.ListFailedEpisodes(r.Context(), user.ID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("Error listing failed episodes")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp := make([]failedEpisodeResponse, 0, len(episodes))
	for _, ep := range episodes {
		item := failedEpisodeResponse{
			ID:          ep.ID,
			PodcastID:   ep.PodcastID,
			Title:       ep.Title,
			PublishedAt: ep.PublishedAt,
			Stage:       "transcription",
		}
		reason := ep.TranscriptionError
		if !ep.TranscriptionExhausted {
			item.Stage = "summary"
			reason = ep.SummaryError
		}
		if reason != nil {
			item.Reason = *reason
		}
		resp = append(resp, item)
	}
	writeJSON(w, http.StatusOK, resp)
}

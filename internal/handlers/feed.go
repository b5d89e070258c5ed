package handlers

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/phuslu/log"

	"podcast-digest/internal/db"
	"podcast-digest/internal/feed"
	"podcast-digest/internal/models"
)

const maxFeedItems = 100

func (h *Handlers) GetRSSFeed(w http.ResponseWriter, r *http.Request) {
	rssUUID, err := uuid.Parse(mux.Vars(r)["uuid"])
	if err != nil {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	user, err := db.GetUserByRSSUUID(r.Context(), rssUUID.String())
	if err != nil {
		if !errors.Is(err, models.ErrNotFound) {
			log.Error().Err(err).Msg("Error looking up feed owner")
		}
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}

	episodes, err := db.ListDeliveredEpisodes(r.Context(), user.ID, maxFeedItems)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("Error getting delivered episodes")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	rss, err := feed.GenerateRSS(user, episodes, r, h.baseURL)
	if err != nil {
		log.Error().Err(err).Int64("user_id", user.ID).Msg("Error generating RSS")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/rss+xml")
	w.Write([]byte(rss))
}

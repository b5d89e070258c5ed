package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/phuslu/log"

	"podcast-digest/internal/db"
	"podcast-digest/internal/models"
	"podcast-digest/pkg/tasks"
)

const (
	maxSubscriptionsPerUser = 20
	defaultCadence          = models.CadenceDaily
)

var (
	ErrSubscriptionLimit = errors.New("subscription limit reached")
	ErrInvalidFeedURL    = errors.New("feed URL must be an absolute http(s) URL")
	ErrInvalidCadence    = errors.New("cadence must be immediate, daily or weekly")
)

type subscriptionResponse struct {
	ID           int64     `json:"id"`
	PodcastID    int64     `json:"podcast_id"`
	PodcastTitle string    `json:"podcast_title"`
	FeedURL      string    `json:"feed_url"`
	Cadence      string    `json:"cadence"`
	CreatedAt    time.Time `json:"created_at"`
}

func parseCadence(raw string) (models.Cadence, error) {
	if raw == "" {
		return defaultCadence, nil
	}
	c := models.Cadence(strings.ToLower(strings.TrimSpace(raw)))
	if !c.Valid() {
		return "", ErrInvalidCadence
	}
	return c, nil
}

func validateFeedURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", ErrInvalidFeedURL
	}
	return u.String(), nil
}

// subscribe registers the podcast if needed, subscribes the user and
// schedules an immediate fetch of the feed.
func (h *Handlers) subscribe(ctx context.Context, userID int64, rawURL string, cadence models.Cadence) (*models.Subscription, error) {
	feedURL, err := validateFeedURL(rawURL)
	if err != nil {
		return nil, err
	}

	count, err := db.CountActiveSubscriptions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("count subscriptions: %w", err)
	}
	if count >= maxSubscriptionsPerUser {
		return nil, ErrSubscriptionLimit
	}

	podcast, err := db.UpsertPodcast(ctx, feedURL, "")
	if err != nil {
		return nil, fmt.Errorf("register podcast: %w", err)
	}

	sub, err := db.Subscribe(ctx, userID, podcast.ID, cadence)
	if err != nil {
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	task, err := tasks.NewFetchFeedTask(podcast.ID)
	if err != nil {
		log.Error().Err(err).Int64("podcast_id", podcast.ID).Msg("Error creating fetch task")
	} else if _, err := h.asynqClient.Enqueue(task); err != nil {
		log.Error().Err(err).Int64("podcast_id", podcast.ID).Msg("Error enqueuing fetch task")
	}

	log.Info().Int64("user_id", userID).Int64("podcast_id", podcast.ID).Str("cadence", string(cadence)).Msg("User subscribed")
	return sub, nil
}

func (h *Handlers) GetSubscriptions(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	subscriptions, err := db.GetSubscriptionsByUserID(r.Context(), user.ID)
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	resp := make([]subscriptionResponse, 0, len(subscriptions))
	for _, s := range subscriptions {
		resp = append(resp, subscriptionResponse{
			ID:           s.ID,
			PodcastID:    s.PodcastID,
			PodcastTitle: s.PodcastTitle,
			FeedURL:      s.FeedURL,
			Cadence:      string(s.Cadence),
			CreatedAt:    s.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handlers) PostSubscription(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	feedURL := r.FormValue("url")
	if feedURL == "" {
		http.Error(w, "URL is required", http.StatusBadRequest)
		return
	}
	cadence, err := parseCadence(r.FormValue("cadence"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := h.subscribe(r.Context(), user.ID, feedURL, cadence); err != nil {
		switch {
		case errors.Is(err, ErrInvalidFeedURL):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, ErrSubscriptionLimit):
			http.Error(w, "Subscription limit reached", http.StatusForbidden)
		default:
			log.Error().Err(err).Int64("user_id", user.ID).Msg("Error creating subscription")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	h.GetSubscriptions(w, r)
}

func subscriptionID(r *http.Request) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
}

func (h *Handlers) PatchSubscription(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, err := subscriptionID(r)
	if err != nil {
		http.Error(w, "Invalid subscription ID", http.StatusBadRequest)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}
	raw := r.FormValue("cadence")
	if raw == "" {
		http.Error(w, "Cadence is required", http.StatusBadRequest)
		return
	}
	cadence, err := parseCadence(raw)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if _, err := db.UpdateSubscriptionCadence(r.Context(), user.ID, id, cadence); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, "Subscription not found", http.StatusNotFound)
			return
		}
		log.Error().Err(err).Int64("subscription_id", id).Msg("Error updating subscription")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.GetSubscriptions(w, r)
}

func (h *Handlers) DeleteSubscription(w http.ResponseWriter, r *http.Request) {
	user, ok := currentUser(w, r)
	if !ok {
		return
	}
	id, err := subscriptionID(r)
	if err != nil {
		http.Error(w, "Invalid subscription ID", http.StatusBadRequest)
		return
	}

	if err := db.Unsubscribe(r.Context(), user.ID, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			http.Error(w, "Subscription not found", http.StatusNotFound)
			return
		}
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}

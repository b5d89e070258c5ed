package models

import "time"

// ProcessedEpisode records that a (user, episode) notification was delivered,
// or skipped for good. Delivered records are written only after the delivery
// sink confirmed.
type ProcessedEpisode struct {
	UserID     int64     `db:"user_id"`
	EpisodeID  int64     `db:"episode_id"`
	Cadence    Cadence   `db:"cadence"`
	Degraded   bool      `db:"degraded"`
	Skipped    bool      `db:"skipped"`
	DeliveryID string    `db:"delivery_id"`
	SentAt     time.Time `db:"sent_at"`
}

// Candidate is an active subscription paired with an eligible episode that has
// no ProcessedEpisode yet.
type Candidate struct {
	Subscription Subscription
	Episode      Episode
	PodcastTitle string
}

// Payload is a rendered notification.
type Payload struct {
	Text           string
	IdempotencyKey string
}

// DeliveryConfirmation is returned by a sink after a successful delivery.
type DeliveryConfirmation struct {
	ID          string
	DeliveredAt time.Time
}

// SummaryRequest is the input to a summarizer.
type SummaryRequest struct {
	Title       string
	PublishedAt time.Time
	Transcript  string
}

// DeliveredEpisode is an episode that reached a user, as listed in the
// personal digest feed.
type DeliveredEpisode struct {
	Episode
	PodcastTitle string    `db:"podcast_title"`
	SentAt       time.Time `db:"sent_at"`
}

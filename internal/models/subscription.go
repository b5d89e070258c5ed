package models

import "time"

// Cadence is how often a user wants to hear about a podcast.
type Cadence string

const (
	CadenceImmediate Cadence = "immediate"
	CadenceDaily     Cadence = "daily"
	CadenceWeekly    Cadence = "weekly"
)

// Valid reports whether c is a known cadence.
func (c Cadence) Valid() bool {
	switch c {
	case CadenceImmediate, CadenceDaily, CadenceWeekly:
		return true
	}
	return false
}

// Subscription represents a user's subscription to a podcast.
type Subscription struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	PodcastID int64     `db:"podcast_id"`
	Cadence   Cadence   `db:"cadence"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// SubscriptionView is a subscription joined with its podcast.
type SubscriptionView struct {
	Subscription
	PodcastTitle string `db:"podcast_title"`
	FeedURL      string `db:"feed_url"`
}

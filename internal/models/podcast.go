package models

import "time"

// Podcast is a tracked feed. The feed URL is unique.
type Podcast struct {
	ID            int64      `db:"id"`
	Title         string     `db:"title"`
	FeedURL       string     `db:"feed_url"`
	LastCheckedAt *time.Time `db:"last_checked_at"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

// Feed is what a feed source returns for one fetch.
type Feed struct {
	Title       string
	Descriptors []EpisodeDescriptor
}

// EpisodeDescriptor is a normalized feed entry, before deduplication.
type EpisodeDescriptor struct {
	GUID        string
	Title       string
	PublishedAt time.Time
	AudioURL    string
	Link        string
	Description string
}

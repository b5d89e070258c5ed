package models

import "time"

// TranscriptionState is the per-episode transcription state machine.
type TranscriptionState string

const (
	StateDiscovered TranscriptionState = "DISCOVERED"
	StateSubmitted  TranscriptionState = "SUBMITTED"
	StateRunning    TranscriptionState = "RUNNING"
	StateCompleted  TranscriptionState = "COMPLETED"
	StateFailed     TranscriptionState = "FAILED"
)

// Active reports whether a provider job is in flight for this state.
func (s TranscriptionState) Active() bool {
	return s == StateSubmitted || s == StateRunning
}

// Episode is unique per (PodcastID, GUID). GUID holds the dedup key, which is
// the feed GUID or a content hash when the feed has none.
type Episode struct {
	ID          int64     `db:"id"`
	PodcastID   int64     `db:"podcast_id"`
	GUID        string    `db:"guid"`
	Title       string    `db:"title"`
	PublishedAt time.Time `db:"published_at"`
	AudioURL    string    `db:"audio_url"`
	Link        string    `db:"link"`
	Description string    `db:"description"`

	Transcript             *string            `db:"transcript"`
	TranscriptionState     TranscriptionState `db:"transcription_state"`
	TranscriptionAttempts  int                `db:"transcription_attempts"`
	TranscriptionError     *string            `db:"transcription_error"`
	TranscriptionNextAt    *time.Time         `db:"transcription_next_at"`
	TranscriptionExhausted bool               `db:"transcription_exhausted"`

	Summary         *string    `db:"summary"`
	SummaryAttempts int        `db:"summary_attempts"`
	SummaryError    *string    `db:"summary_error"`
	SummaryNextAt   *time.Time `db:"summary_next_at"`
	SummaryFailed   bool       `db:"summary_failed"`

	LeaseOwner *string    `db:"lease_owner"`
	LeaseUntil *time.Time `db:"lease_until"`

	DiscoveredAt time.Time `db:"discovered_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

// Notifiable reports whether the episode can be delivered. A permanently
// failed summary only counts when degraded delivery is enabled.
func (e Episode) Notifiable(degraded bool) bool {
	if e.TranscriptionState != StateCompleted || e.Transcript == nil {
		return false
	}
	if e.Summary != nil {
		return true
	}
	return degraded && e.SummaryFailed
}

// ReadyAt approximates when the episode became deliverable: the last write
// to the row, which for a notifiable episode is its analysis outcome.
func (e Episode) ReadyAt() time.Time {
	if e.UpdatedAt.After(e.DiscoveredAt) {
		return e.UpdatedAt
	}
	return e.DiscoveredAt
}

// Package pipeline moves podcast episodes from discovery through transcription
// and analysis to per-user notification.
//
// Every stage reads its inputs from a Store and commits its transitions back
// to it, so each pass can be re-run independently after a restart. External
// services are reached through the capability interfaces below.
package pipeline

import (
	"context"
	"time"

	"podcast-digest/internal/models"
)

// FeedSource fetches and normalizes a podcast feed.
type FeedSource interface {
	Fetch(ctx context.Context, feedURL string) (models.Feed, error)
}

// TranscriptionProvider runs asynchronous transcription jobs.
type TranscriptionProvider interface {
	SubmitJob(ctx context.Context, audioURL string) (string, error)
	GetStatus(ctx context.Context, jobID string) (models.ProviderStatus, error)
}

// Summarizer turns a transcript into a summary.
type Summarizer interface {
	Summarize(ctx context.Context, req models.SummaryRequest) (string, error)
}

// DeliverySink delivers a rendered payload to a user.
type DeliverySink interface {
	Deliver(ctx context.Context, userID int64, payload models.Payload) (models.DeliveryConfirmation, error)
}

// Store is the durable state shared by all stages. Transition methods are
// compare-and-set on the expected prior state and return models.ErrConflict
// when it no longer holds.
type Store interface {
	ListPodcasts(ctx context.Context) ([]models.Podcast, error)
	GetPodcast(ctx context.Context, id int64) (models.Podcast, error)
	TouchPodcast(ctx context.Context, id int64, title string, checkedAt time.Time) error

	// InsertEpisode creates the episode unless one with the same
	// (PodcastID, GUID) exists. On both paths ep.ID is set.
	InsertEpisode(ctx context.Context, ep *models.Episode) (bool, error)
	GetEpisode(ctx context.Context, id int64) (models.Episode, error)
	ListSubmittable(ctx context.Context, now time.Time, limit int) ([]models.Episode, error)
	ListAnalyzable(ctx context.Context, now time.Time, limit int) ([]models.Episode, error)

	AcquireLease(ctx context.Context, episodeID int64, owner string, now, until time.Time) (bool, error)
	ReleaseLease(ctx context.Context, episodeID int64, owner string) error

	GetJob(ctx context.Context, id string) (models.TranscriptionJob, error)
	ActiveJob(ctx context.Context, episodeID int64) (models.TranscriptionJob, error)
	ListActiveJobs(ctx context.Context, limit int) ([]models.TranscriptionJob, error)
	RecordSubmission(ctx context.Context, s models.Submission) error
	RecordSubmitFailure(ctx context.Context, f models.SubmitFailure) error
	RecordPoll(ctx context.Context, o models.PollOutcome) error
	RecordSummary(ctx context.Context, o models.SummaryOutcome) error

	ListCandidates(ctx context.Context, degraded bool) ([]models.Candidate, error)
	LastNotified(ctx context.Context, userID int64, cadence models.Cadence) (*time.Time, error)
	// MarkProcessed inserts the records, ignoring pairs that already exist,
	// and returns how many were new.
	MarkProcessed(ctx context.Context, records []models.ProcessedEpisode) (int, error)
}

// Options tunes retry, leasing and batching. Zero values fall back to the
// defaults in DefaultOptions.
type Options struct {
	Transcription RetryPolicy
	Summary       RetryPolicy
	MaxPollErrors int
	LeaseTTL      time.Duration
	PollWorkers   int
	BatchSize     int
	// Degraded enables transcript-only notifications for episodes whose
	// summary permanently failed.
	Degraded bool
	// Backlog skips episodes published more than this long before the
	// subscription was created. Zero disables the filter.
	Backlog time.Duration
	Now     func() time.Time
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		Transcription: RetryPolicy{MaxAttempts: 3, BaseDelay: 5 * time.Minute, MaxDelay: 24 * time.Hour},
		Summary:       RetryPolicy{MaxAttempts: 3, BaseDelay: 5 * time.Minute, MaxDelay: 24 * time.Hour},
		MaxPollErrors: 10,
		LeaseTTL:      10 * time.Minute,
		PollWorkers:   8,
		BatchSize:     100,
		Backlog:       7 * 24 * time.Hour,
		Now:           time.Now,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Transcription.MaxAttempts <= 0 {
		o.Transcription = d.Transcription
	}
	if o.Summary.MaxAttempts <= 0 {
		o.Summary = d.Summary
	}
	if o.MaxPollErrors <= 0 {
		o.MaxPollErrors = d.MaxPollErrors
	}
	if o.LeaseTTL <= 0 {
		o.LeaseTTL = d.LeaseTTL
	}
	if o.PollWorkers <= 0 {
		o.PollWorkers = d.PollWorkers
	}
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	if o.Now == nil {
		o.Now = d.Now
	}
	return o
}

// PassReport summarizes one batch pass.
type PassReport struct {
	Processed int
	Succeeded int
	Skipped   int
	Failed    int
}

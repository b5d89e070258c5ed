package pipeline

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidTransition = errors.New("transition not allowed from current state")
	ErrRetriesExhausted  = errors.New("retries exhausted")
	ErrBackoff           = errors.New("retry backoff has not elapsed")
	ErrLeaseHeld         = errors.New("episode is leased by another worker")
	ErrNotEligible       = errors.New("episode is not eligible")
	ErrNoAudio           = errors.New("episode has no audio URL")
)

// FetchError is a feed that could not be fetched or parsed.
type FetchError struct {
	PodcastID int64
	FeedURL   string
	Err       error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch feed %s (podcast %d): %v", e.FeedURL, e.PodcastID, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// SubmitError is a failed call to submit a transcription job.
type SubmitError struct {
	EpisodeID int64
	Err       error
}

func (e *SubmitError) Error() string {
	return fmt.Sprintf("submit transcription for episode %d: %v", e.EpisodeID, e.Err)
}

func (e *SubmitError) Unwrap() error { return e.Err }

// PollError is a failed status query for a transcription job.
type PollError struct {
	JobID string
	Err   error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("poll transcription job %s: %v", e.JobID, e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }

// AnalysisError is a failed summarization call.
type AnalysisError struct {
	EpisodeID int64
	Err       error
}

func (e *AnalysisError) Error() string {
	return fmt.Sprintf("summarize episode %d: %v", e.EpisodeID, e.Err)
}

func (e *AnalysisError) Unwrap() error { return e.Err }

// DeliveryError is a failed delivery to a user.
type DeliveryError struct {
	UserID int64
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to user %d: %v", e.UserID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

package models

import "time"

// TranscriptionJob is one provider-side job. An episode has at most one job
// in SUBMITTED or RUNNING at any time.
type TranscriptionJob struct {
	ID            string             `db:"id"`
	EpisodeID     int64              `db:"episode_id"`
	State         TranscriptionState `db:"state"`
	Attempt       int                `db:"attempt"`
	SubmittedAt   time.Time          `db:"submitted_at"`
	LastPolledAt  *time.Time         `db:"last_polled_at"`
	PollErrors    int                `db:"poll_errors"`
	FailureReason *string            `db:"failure_reason"`
}

// ProviderState is what a transcription provider reports for a job.
type ProviderState string

const (
	ProviderPending ProviderState = "PENDING"
	ProviderRunning ProviderState = "RUNNING"
	ProviderDone    ProviderState = "DONE"
	ProviderFailed  ProviderState = "FAILED"
)

// ProviderStatus carries the transcript for DONE and the reason for FAILED.
type ProviderStatus struct {
	State      ProviderState
	Transcript string
	Reason     string
}

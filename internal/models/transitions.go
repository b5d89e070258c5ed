package models

import "time"

// Submission commits DISCOVERED/FAILED -> SUBMITTED together with the new job.
type Submission struct {
	EpisodeID     int64
	ExpectedState TranscriptionState
	LeaseOwner    string
	Job           TranscriptionJob
}

// SubmitFailure records a failed submit call. State is left as is unless
// Exhausted, in which case the episode becomes terminally FAILED.
type SubmitFailure struct {
	EpisodeID     int64
	ExpectedState TranscriptionState
	LeaseOwner    string
	Attempts      int
	Reason        string
	NextAt        *time.Time
	Exhausted     bool
}

// PollOutcome commits the result of one poll of a job.
type PollOutcome struct {
	JobID         string
	EpisodeID     int64
	ExpectedState TranscriptionState
	LeaseOwner    string
	State         TranscriptionState
	PolledAt      time.Time
	PollErrors    int
	Transcript    *string
	Reason        *string
	// Set when State is FAILED.
	NextAt    *time.Time
	Exhausted bool
}

// SummaryOutcome commits one analysis attempt.
type SummaryOutcome struct {
	EpisodeID  int64
	LeaseOwner string
	Summary    *string
	Attempts   int
	Reason     *string
	NextAt     *time.Time
	Failed     bool
}

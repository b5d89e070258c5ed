package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"podcast-digest/internal/models"
)

func (s *Store) GetJob(ctx context.Context, id string) (models.TranscriptionJob, error) {
	var job models.TranscriptionJob
	err := s.db.GetContext(ctx, &job, "SELECT * FROM transcription_jobs WHERE id = $1", id)
	return job, notFound(err)
}

func (s *Store) ActiveJob(ctx context.Context, episodeID int64) (models.TranscriptionJob, error) {
	query := `
		SELECT * FROM transcription_jobs
		WHERE episode_id = $1 AND state IN ('SUBMITTED', 'RUNNING')
	`
	var job models.TranscriptionJob
	err := s.db.GetContext(ctx, &job, query, episodeID)
	return job, notFound(err)
}

func (s *Store) ListActiveJobs(ctx context.Context, limit int) ([]models.TranscriptionJob, error) {
	query := `
		SELECT * FROM transcription_jobs
		WHERE state IN ('SUBMITTED', 'RUNNING')
		ORDER BY last_polled_at ASC NULLS FIRST, submitted_at ASC
		LIMIT $1
	`
	var jobs []models.TranscriptionJob
	if err := s.db.SelectContext(ctx, &jobs, query, limit); err != nil {
		return nil, fmt.Errorf("select active jobs: %w", err)
	}
	return jobs, nil
}

// RecordSubmission moves the episode to SUBMITTED and inserts its job.
func (s *Store) RecordSubmission(ctx context.Context, sub models.Submission) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		err := execOne(ctx, tx, `
			UPDATE episodes
			SET transcription_state = 'SUBMITTED', transcription_attempts = $1,
				transcription_error = NULL, transcription_next_at = NULL,
				lease_owner = NULL, lease_until = NULL, updated_at = NOW()
			WHERE id = $2 AND transcription_state = $3 AND lease_owner = $4
		`, sub.Job.Attempt, sub.EpisodeID, sub.ExpectedState, sub.LeaseOwner)
		if err != nil {
			return fmt.Errorf("submit episode %d: %w", sub.EpisodeID, err)
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO transcription_jobs (id, episode_id, state, attempt, submitted_at)
			VALUES ($1, $2, $3, $4, $5)
		`, sub.Job.ID, sub.EpisodeID, sub.Job.State, sub.Job.Attempt, sub.Job.SubmittedAt)
		if err != nil {
			return fmt.Errorf("insert job %s: %w", sub.Job.ID, err)
		}
		return nil
	})
}

func (s *Store) RecordSubmitFailure(ctx context.Context, f models.SubmitFailure) error {
	state := f.ExpectedState
	if f.Exhausted {
		state = models.StateFailed
	}
	err := execOne(ctx, s.db, `
		UPDATE episodes
		SET transcription_state = $1, transcription_attempts = $2, transcription_error = $3,
			transcription_next_at = $4, transcription_exhausted = $5,
			lease_owner = NULL, lease_until = NULL, updated_at = NOW()
		WHERE id = $6 AND transcription_state = $7 AND lease_owner = $8
	`, state, f.Attempts, f.Reason, f.NextAt, f.Exhausted, f.EpisodeID, f.ExpectedState, f.LeaseOwner)
	if err != nil {
		return fmt.Errorf("record submit failure for episode %d: %w", f.EpisodeID, err)
	}
	return nil
}

// RecordPoll updates the job and mirrors its state onto the episode.
func (s *Store) RecordPoll(ctx context.Context, o models.PollOutcome) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		err := execOne(ctx, tx, `
			UPDATE transcription_jobs
			SET state = $1, last_polled_at = $2, poll_errors = $3, failure_reason = $4
			WHERE id = $5 AND state = $6
		`, o.State, o.PolledAt, o.PollErrors, o.Reason, o.JobID, o.ExpectedState)
		if err != nil {
			return fmt.Errorf("update job %s: %w", o.JobID, err)
		}

		var reason *string
		if o.State == models.StateFailed {
			reason = o.Reason
		}
		err = execOne(ctx, tx, `
			UPDATE episodes
			SET transcription_state = $1, transcript = COALESCE($2, transcript),
				transcription_error = $3, transcription_next_at = $4, transcription_exhausted = $5,
				lease_owner = NULL, lease_until = NULL, updated_at = NOW()
			WHERE id = $6 AND lease_owner = $7
		`, o.State, o.Transcript, reason, o.NextAt, o.Exhausted, o.EpisodeID, o.LeaseOwner)
		if err != nil {
			return fmt.Errorf("update episode %d: %w", o.EpisodeID, err)
		}
		return nil
	})
}

func (s *Store) RecordSummary(ctx context.Context, o models.SummaryOutcome) error {
	err := execOne(ctx, s.db, `
		UPDATE episodes
		SET summary = $1, summary_attempts = $2, summary_error = $3, summary_next_at = $4,
			summary_failed = $5, lease_owner = NULL, lease_until = NULL, updated_at = NOW()
		WHERE id = $6 AND lease_owner = $7 AND summary IS NULL
	`, o.Summary, o.Attempts, o.Reason, o.NextAt, o.Failed, o.EpisodeID, o.LeaseOwner)
	if err != nil {
		return fmt.Errorf("record summary for episode %d: %w", o.EpisodeID, err)
	}
	return nil
}

package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"
	"golang.org/x/sync/errgroup"

	"podcast-digest/internal/models"
)

// JobManager drives the transcription state machine:
//
//	DISCOVERED -> SUBMITTED -> RUNNING -> COMPLETED
//	                                   -> FAILED -> SUBMITTED (while attempts remain)
//
// Provider calls happen while holding only the episode lease, never a
// database transaction.
type JobManager struct {
	store    Store
	provider TranscriptionProvider
	opts     Options
}

func NewJobManager(store Store, provider TranscriptionProvider, opts Options) *JobManager {
	return &JobManager{store: store, provider: provider, opts: opts.withDefaults()}
}

func (m *JobManager) checkSubmittable(ep models.Episode, now time.Time) error {
	switch ep.TranscriptionState {
	case models.StateDiscovered, models.StateFailed:
	default:
		return fmt.Errorf("submit episode %d in state %s: %w", ep.ID, ep.TranscriptionState, ErrInvalidTransition)
	}
	if ep.TranscriptionExhausted {
		return fmt.Errorf("submit episode %d: %w", ep.ID, ErrRetriesExhausted)
	}
	if ep.TranscriptionNextAt != nil && now.Before(*ep.TranscriptionNextAt) {
		return fmt.Errorf("submit episode %d before %s: %w", ep.ID, ep.TranscriptionNextAt.Format(time.RFC3339), ErrBackoff)
	}
	return nil
}

// Submit starts a transcription job for the episode. When a job is already
// active it is returned unchanged and the provider is not called.
func (m *JobManager) Submit(ctx context.Context, episodeID int64) (models.TranscriptionJob, error) {
	ep, err := m.store.GetEpisode(ctx, episodeID)
	if err != nil {
		return models.TranscriptionJob{}, fmt.Errorf("get episode %d: %w", episodeID, err)
	}
	if ep.TranscriptionState.Active() {
		return m.store.ActiveJob(ctx, episodeID)
	}
	if err := m.checkSubmittable(ep, m.opts.Now()); err != nil {
		return models.TranscriptionJob{}, err
	}

	owner := uuid.NewString()
	now := m.opts.Now()
	ok, err := m.store.AcquireLease(ctx, episodeID, owner, now, now.Add(m.opts.LeaseTTL))
	if err != nil {
		return models.TranscriptionJob{}, fmt.Errorf("lease episode %d: %w", episodeID, err)
	}
	if !ok {
		return models.TranscriptionJob{}, fmt.Errorf("submit episode %d: %w", episodeID, ErrLeaseHeld)
	}

	// Someone may have submitted between the first read and the lease.
	ep, err = m.store.GetEpisode(ctx, episodeID)
	if err != nil {
		m.release(episodeID, owner)
		return models.TranscriptionJob{}, fmt.Errorf("get episode %d: %w", episodeID, err)
	}
	if ep.TranscriptionState.Active() {
		m.release(episodeID, owner)
		return m.store.ActiveJob(ctx, episodeID)
	}
	if err := m.checkSubmittable(ep, now); err != nil {
		m.release(episodeID, owner)
		return models.TranscriptionJob{}, err
	}

	if ep.AudioURL == "" {
		err := m.store.RecordSubmitFailure(ctx, models.SubmitFailure{
			EpisodeID:     ep.ID,
			ExpectedState: ep.TranscriptionState,
			LeaseOwner:    owner,
			Attempts:      ep.TranscriptionAttempts,
			Reason:        ErrNoAudio.Error(),
			Exhausted:     true,
		})
		if err != nil {
			m.release(episodeID, owner)
			return models.TranscriptionJob{}, fmt.Errorf("record missing audio for episode %d: %w", ep.ID, err)
		}
		return models.TranscriptionJob{}, fmt.Errorf("submit episode %d: %w", ep.ID, ErrNoAudio)
	}

	jobID, err := m.provider.SubmitJob(ctx, ep.AudioURL)
	if err != nil {
		if ctx.Err() != nil {
			m.release(episodeID, owner)
			return models.TranscriptionJob{}, ctx.Err()
		}
		m.recordSubmitError(ctx, ep, owner, err)
		return models.TranscriptionJob{}, &SubmitError{EpisodeID: ep.ID, Err: err}
	}

	job := models.TranscriptionJob{
		ID:          jobID,
		EpisodeID:   ep.ID,
		State:       models.StateSubmitted,
		Attempt:     ep.TranscriptionAttempts + 1,
		SubmittedAt: m.opts.Now(),
	}
	err = m.store.RecordSubmission(ctx, models.Submission{
		EpisodeID:     ep.ID,
		ExpectedState: ep.TranscriptionState,
		LeaseOwner:    owner,
		Job:           job,
	})
	if err != nil {
		log.Error().Err(err).Int64("episode_id", ep.ID).Str("job_id", jobID).Msg("Provider accepted job but submission was not recorded")
		m.release(episodeID, owner)
		return models.TranscriptionJob{}, fmt.Errorf("record job %s for episode %d: %w", jobID, ep.ID, err)
	}

	log.Info().Int64("episode_id", ep.ID).Str("job_id", jobID).Int("attempt", job.Attempt).Msg("Submitted transcription job")
	return job, nil
}

// recordSubmitError counts a failed submit call as an attempt. The episode
// keeps its state until the attempts run out.
func (m *JobManager) recordSubmitError(ctx context.Context, ep models.Episode, owner string, cause error) {
	attempts := ep.TranscriptionAttempts + 1
	f := models.SubmitFailure{
		EpisodeID:     ep.ID,
		ExpectedState: ep.TranscriptionState,
		LeaseOwner:    owner,
		Attempts:      attempts,
		Reason:        cause.Error(),
		Exhausted:     m.opts.Transcription.Exhausted(attempts),
	}
	if !f.Exhausted {
		next := m.opts.Now().Add(m.opts.Transcription.Delay(attempts))
		f.NextAt = &next
	}
	if err := m.store.RecordSubmitFailure(ctx, f); err != nil {
		log.Error().Err(err).Int64("episode_id", ep.ID).Msg("Failed to record submit failure")
		m.release(ep.ID, owner)
	}
	log.Warn().Err(cause).Int64("episode_id", ep.ID).Int("attempts", attempts).Bool("exhausted", f.Exhausted).Msg("Transcription submit failed")
}

// Poll queries the provider once for an active job and commits the result.
func (m *JobManager) Poll(ctx context.Context, jobID string) (models.TranscriptionJob, error) {
	job, err := m.store.GetJob(ctx, jobID)
	if err != nil {
		return job, fmt.Errorf("get job %s: %w", jobID, err)
	}
	if !job.State.Active() {
		return job, fmt.Errorf("poll job %s in state %s: %w", jobID, job.State, ErrInvalidTransition)
	}

	owner := uuid.NewString()
	now := m.opts.Now()
	ok, err := m.store.AcquireLease(ctx, job.EpisodeID, owner, now, now.Add(m.opts.LeaseTTL))
	if err != nil {
		return job, fmt.Errorf("lease episode %d: %w", job.EpisodeID, err)
	}
	if !ok {
		return job, fmt.Errorf("poll job %s: %w", jobID, ErrLeaseHeld)
	}

	episodeID := job.EpisodeID
	job, err = m.store.GetJob(ctx, jobID)
	if err != nil {
		m.release(episodeID, owner)
		return job, fmt.Errorf("get job %s: %w", jobID, err)
	}
	if !job.State.Active() {
		m.release(job.EpisodeID, owner)
		return job, fmt.Errorf("poll job %s in state %s: %w", jobID, job.State, ErrInvalidTransition)
	}

	status, pollErr := m.provider.GetStatus(ctx, job.ID)
	if pollErr != nil && ctx.Err() != nil {
		m.release(job.EpisodeID, owner)
		return job, ctx.Err()
	}

	out := models.PollOutcome{
		JobID:         job.ID,
		EpisodeID:     job.EpisodeID,
		ExpectedState: job.State,
		LeaseOwner:    owner,
		State:         job.State,
		PolledAt:      m.opts.Now(),
		PollErrors:    job.PollErrors,
	}

	if pollErr == nil {
		switch status.State {
		case models.ProviderPending:
		case models.ProviderRunning:
			out.State = models.StateRunning
		case models.ProviderDone:
			transcript := status.Transcript
			out.State = models.StateCompleted
			out.Transcript = &transcript
		case models.ProviderFailed:
			m.fail(&out, job, status.Reason)
		default:
			pollErr = fmt.Errorf("unknown provider state %q", status.State)
		}
	}

	// Only consecutive errors count towards the threshold.
	if pollErr == nil {
		out.PollErrors = 0
	} else {
		out.PollErrors++
		if out.PollErrors >= m.opts.MaxPollErrors {
			m.fail(&out, job, fmt.Sprintf("gave up after %d poll errors: %v", out.PollErrors, pollErr))
		}
	}

	if err := m.store.RecordPoll(ctx, out); err != nil {
		m.release(job.EpisodeID, owner)
		return job, fmt.Errorf("record poll of job %s: %w", job.ID, err)
	}

	job.State = out.State
	job.LastPolledAt = &out.PolledAt
	job.PollErrors = out.PollErrors
	job.FailureReason = out.Reason

	if pollErr != nil && out.State != models.StateFailed {
		return job, &PollError{JobID: job.ID, Err: pollErr}
	}
	log.Debug().Str("job_id", job.ID).Int64("episode_id", job.EpisodeID).Str("state", string(job.State)).Msg("Polled transcription job")
	return job, nil
}

// fail moves the outcome to FAILED and schedules the retry, measured from
// the job's submit time.
func (m *JobManager) fail(out *models.PollOutcome, job models.TranscriptionJob, reason string) {
	out.State = models.StateFailed
	out.Reason = &reason
	out.Exhausted = m.opts.Transcription.Exhausted(job.Attempt)
	if !out.Exhausted {
		next := job.SubmittedAt.Add(m.opts.Transcription.Delay(job.Attempt))
		out.NextAt = &next
	}
	log.Warn().Str("job_id", job.ID).Int64("episode_id", job.EpisodeID).Int("attempt", job.Attempt).Bool("exhausted", out.Exhausted).Str("reason", reason).Msg("Transcription job failed")
}

func (m *JobManager) release(episodeID int64, owner string) {
	// The caller's context may already be cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.store.ReleaseLease(ctx, episodeID, owner); err != nil {
		log.Warn().Err(err).Int64("episode_id", episodeID).Msg("Failed to release lease")
	}
}

// SubmitPass submits every episode that is due for a (re)submission.
func (m *JobManager) SubmitPass(ctx context.Context) (PassReport, error) {
	var report PassReport
	episodes, err := m.store.ListSubmittable(ctx, m.opts.Now(), m.opts.BatchSize)
	if err != nil {
		return report, fmt.Errorf("list submittable episodes: %w", err)
	}

	for _, ep := range episodes {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Processed++
		_, err := m.Submit(ctx, ep.ID)
		switch {
		case err == nil:
			report.Succeeded++
		case errors.Is(err, ErrLeaseHeld), errors.Is(err, ErrBackoff), errors.Is(err, ErrInvalidTransition):
			report.Skipped++
		default:
			report.Failed++
			log.Warn().Err(err).Int64("episode_id", ep.ID).Msg("Submit failed")
		}
	}

	log.Info().Int("processed", report.Processed).Int("submitted", report.Succeeded).Int("skipped", report.Skipped).Int("failed", report.Failed).Msg("Submit pass finished")
	return report, ctx.Err()
}

// PollPass polls all active jobs with a bounded number of workers.
func (m *JobManager) PollPass(ctx context.Context) (PassReport, error) {
	var report PassReport
	jobs, err := m.store.ListActiveJobs(ctx, m.opts.BatchSize)
	if err != nil {
		return report, fmt.Errorf("list active jobs: %w", err)
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(m.opts.PollWorkers)

	for _, job := range jobs {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			_, err := m.Poll(ctx, job.ID)

			mu.Lock()
			defer mu.Unlock()
			report.Processed++
			switch {
			case err == nil:
				report.Succeeded++
			case errors.Is(err, ErrLeaseHeld), errors.Is(err, ErrInvalidTransition):
				report.Skipped++
			default:
				report.Failed++
				log.Warn().Err(err).Str("job_id", job.ID).Msg("Poll failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	log.Info().Int("processed", report.Processed).Int("polled", report.Succeeded).Int("skipped", report.Skipped).Int("failed", report.Failed).Msg("Poll pass finished")
	return report, ctx.Err()
}

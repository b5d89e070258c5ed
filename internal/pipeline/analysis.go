package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"

	"podcast-digest/internal/models"
)

// Analyzer summarizes completed transcripts.
type Analyzer struct {
	store      Store
	summarizer Summarizer
	opts       Options
}

func NewAnalyzer(store Store, summarizer Summarizer, opts Options) *Analyzer {
	return &Analyzer{store: store, summarizer: summarizer, opts: opts.withDefaults()}
}

func checkAnalyzable(ep models.Episode, now time.Time) error {
	if ep.TranscriptionState != models.StateCompleted || ep.Transcript == nil {
		return fmt.Errorf("analyze episode %d in state %s: %w", ep.ID, ep.TranscriptionState, ErrNotEligible)
	}
	if ep.Summary != nil {
		return fmt.Errorf("analyze episode %d: already summarized: %w", ep.ID, ErrNotEligible)
	}
	if ep.SummaryFailed {
		return fmt.Errorf("analyze episode %d: %w", ep.ID, ErrRetriesExhausted)
	}
	if ep.SummaryNextAt != nil && now.Before(*ep.SummaryNextAt) {
		return fmt.Errorf("analyze episode %d before %s: %w", ep.ID, ep.SummaryNextAt.Format(time.RFC3339), ErrBackoff)
	}
	return nil
}

// Analyze summarizes one episode and stores the result. Failures count
// against the episode's summary attempts.
func (a *Analyzer) Analyze(ctx context.Context, episodeID int64) (string, error) {
	ep, err := a.store.GetEpisode(ctx, episodeID)
	if err != nil {
		return "", fmt.Errorf("get episode %d: %w", episodeID, err)
	}
	now := a.opts.Now()
	if err := checkAnalyzable(ep, now); err != nil {
		return "", err
	}

	owner := uuid.NewString()
	ok, err := a.store.AcquireLease(ctx, episodeID, owner, now, now.Add(a.opts.LeaseTTL))
	if err != nil {
		return "", fmt.Errorf("lease episode %d: %w", episodeID, err)
	}
	if !ok {
		return "", fmt.Errorf("analyze episode %d: %w", episodeID, ErrLeaseHeld)
	}

	ep, err = a.store.GetEpisode(ctx, episodeID)
	if err == nil {
		err = checkAnalyzable(ep, now)
	}
	if err != nil {
		a.release(episodeID, owner)
		return "", err
	}

	summary, err := a.summarizer.Summarize(ctx, models.SummaryRequest{
		Title:       ep.Title,
		PublishedAt: ep.PublishedAt,
		Transcript:  *ep.Transcript,
	})
	summary = strings.TrimSpace(summary)
	if err == nil && summary == "" {
		err = errors.New("summarizer returned an empty summary")
	}

	attempts := ep.SummaryAttempts + 1
	out := models.SummaryOutcome{EpisodeID: ep.ID, LeaseOwner: owner, Attempts: attempts}

	if err != nil {
		if ctx.Err() != nil {
			a.release(episodeID, owner)
			return "", ctx.Err()
		}
		reason := err.Error()
		out.Reason = &reason
		out.Failed = a.opts.Summary.Exhausted(attempts)
		if !out.Failed {
			next := a.opts.Now().Add(a.opts.Summary.Delay(attempts))
			out.NextAt = &next
		}
		if recErr := a.store.RecordSummary(ctx, out); recErr != nil {
			a.release(episodeID, owner)
			log.Error().Err(recErr).Int64("episode_id", ep.ID).Msg("Failed to record summary failure")
		}
		log.Warn().Err(err).Int64("episode_id", ep.ID).Int("attempts", attempts).Bool("failed", out.Failed).Msg("Summarization failed")
		return "", &AnalysisError{EpisodeID: ep.ID, Err: err}
	}

	out.Summary = &summary
	if err := a.store.RecordSummary(ctx, out); err != nil {
		a.release(episodeID, owner)
		return "", fmt.Errorf("record summary for episode %d: %w", ep.ID, err)
	}

	log.Info().Int64("episode_id", ep.ID).Int("summary_length", len(summary)).Msg("Summarized episode")
	return summary, nil
}

func (a *Analyzer) release(episodeID int64, owner string) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := a.store.ReleaseLease(ctx, episodeID, owner); err != nil {
		log.Warn().Err(err).Int64("episode_id", episodeID).Msg("Failed to release lease")
	}
}

// AnalysisPass summarizes every episode with a transcript and no summary.
func (a *Analyzer) AnalysisPass(ctx context.Context) (PassReport, error) {
	var report PassReport
	episodes, err := a.store.ListAnalyzable(ctx, a.opts.Now(), a.opts.BatchSize)
	if err != nil {
		return report, fmt.Errorf("list analyzable episodes: %w", err)
	}

	for _, ep := range episodes {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Processed++
		_, err := a.Analyze(ctx, ep.ID)
		switch {
		case err == nil:
			report.Succeeded++
		case errors.Is(err, ErrLeaseHeld), errors.Is(err, ErrBackoff), errors.Is(err, ErrNotEligible):
			report.Skipped++
		default:
			report.Failed++
		}
	}

	log.Info().Int("processed", report.Processed).Int("summarized", report.Succeeded).Int("skipped", report.Skipped).Int("failed", report.Failed).Msg("Analysis pass finished")
	return report, ctx.Err()
}

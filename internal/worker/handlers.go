package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/phuslu/log"

	"podcast-digest/internal/models"
	"podcast-digest/internal/pipeline"
	"podcast-digest/pkg/tasks"
)

// Services are the collaborators the pipeline stages run against.
type Services struct {
	Store       pipeline.Store
	Feeds       pipeline.FeedSource
	Transcriber pipeline.TranscriptionProvider
	Summarizer  pipeline.Summarizer
	Sink        pipeline.DeliverySink
	Options     pipeline.Options
}

type TaskHandler struct {
	asynqClient tasks.TaskEnqueuer
	store       pipeline.Store
	dedup       *pipeline.Deduplicator
	jobs        *pipeline.JobManager
	analyzer    *pipeline.Analyzer
	scheduler   *pipeline.Scheduler
}

func NewTaskHandler(client tasks.TaskEnqueuer, s Services) *TaskHandler {
	return &TaskHandler{
		asynqClient: client,
		store:       s.Store,
		dedup:       pipeline.NewDeduplicator(s.Store, s.Feeds, s.Options),
		jobs:        pipeline.NewJobManager(s.Store, s.Transcriber, s.Options),
		analyzer:    pipeline.NewAnalyzer(s.Store, s.Summarizer, s.Options),
		scheduler:   pipeline.NewScheduler(s.Store, s.Sink, s.Options),
	}
}

// Register mounts every handler on mux.
func (h *TaskHandler) Register(mux *asynq.ServeMux) {
	mux.HandleFunc(tasks.TypeFetchAllFeeds, h.HandleFetchAllFeedsTask)
	mux.HandleFunc(tasks.TypeFetchFeed, h.HandleFetchFeedTask)
	mux.HandleFunc(tasks.TypeSubmitTranscription, h.HandleSubmitTranscriptionTask)
	mux.HandleFunc(tasks.TypeSubmitPass, h.HandleSubmitPassTask)
	mux.HandleFunc(tasks.TypePollPass, h.HandlePollPassTask)
	mux.HandleFunc(tasks.TypeAnalysisPass, h.HandleAnalysisPassTask)
	mux.HandleFunc(tasks.TypeNotificationPass, h.HandleNotificationPassTask)
}

// HandleFetchAllFeedsTask fans out one fetch task per podcast so a slow or
// broken feed never holds up the others.
func (h *TaskHandler) HandleFetchAllFeedsTask(ctx context.Context, t *asynq.Task) error {
	podcasts, err := h.store.ListPodcasts(ctx)
	if err != nil {
		return fmt.Errorf("failed to list podcasts: %w", err)
	}

	enqueued := 0
	for _, p := range podcasts {
		task, err := tasks.NewFetchFeedTask(p.ID)
		if err != nil {
			log.Error().Err(err).Int64("podcast_id", p.ID).Msg("Failed to create fetch task")
			continue
		}
		if _, err := h.asynqClient.Enqueue(task, asynq.Unique(10*time.Minute)); err != nil {
			log.Warn().Err(err).Int64("podcast_id", p.ID).Msg("Failed to enqueue fetch task")
			continue
		}
		enqueued++
	}

	log.Info().Int("podcasts", len(podcasts)).Int("enqueued", enqueued).Msg("Scheduled feed fetches")
	return nil
}

func (h *TaskHandler) HandleFetchFeedTask(ctx context.Context, t *asynq.Task) error {
	var p tasks.FetchFeedTaskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", asynq.SkipRetry)
	}

	created, err := h.dedup.FetchPodcast(ctx, p.PodcastID)
	var fetchErr *pipeline.FetchError
	switch {
	case errors.As(err, &fetchErr):
		// The next scheduled fetch retries the feed.
		log.Warn().Err(err).Int64("podcast_id", p.PodcastID).Str("feed_url", fetchErr.FeedURL).Msg("Feed fetch failed")
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	case errors.Is(err, models.ErrNotFound):
		return fmt.Errorf("podcast %d: %w", p.PodcastID, asynq.SkipRetry)
	}

	// Episodes inserted before a failure still get their fast-path submit.
	for _, ep := range created {
		task, taskErr := tasks.NewSubmitTranscriptionTask(ep.ID)
		if taskErr != nil {
			log.Error().Err(taskErr).Int64("episode_id", ep.ID).Msg("Failed to create submit task")
			continue
		}
		if _, taskErr := h.asynqClient.Enqueue(task, asynq.Queue(tasks.QueueHigh)); taskErr != nil {
			log.Warn().Err(taskErr).Int64("episode_id", ep.ID).Msg("Failed to enqueue submit task, the submit pass will pick it up")
		}
	}
	return err
}

func (h *TaskHandler) HandleSubmitTranscriptionTask(ctx context.Context, t *asynq.Task) error {
	var p tasks.SubmitTranscriptionTaskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %w", asynq.SkipRetry)
	}

	_, err := h.jobs.Submit(ctx, p.EpisodeID)
	var submitErr *pipeline.SubmitError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &submitErr),
		errors.Is(err, pipeline.ErrLeaseHeld),
		errors.Is(err, pipeline.ErrBackoff),
		errors.Is(err, pipeline.ErrInvalidTransition),
		errors.Is(err, pipeline.ErrRetriesExhausted),
		errors.Is(err, pipeline.ErrNoAudio):
		// Recorded on the episode; the submit pass owns retries.
		log.Info().Err(err).Int64("episode_id", p.EpisodeID).Msg("Episode not submitted")
		return nil
	case errors.Is(err, models.ErrNotFound):
		return fmt.Errorf("episode %d: %w", p.EpisodeID, asynq.SkipRetry)
	}
	return err
}

func (h *TaskHandler) HandleSubmitPassTask(ctx context.Context, t *asynq.Task) error {
	_, err := h.jobs.SubmitPass(ctx)
	return err
}

func (h *TaskHandler) HandlePollPassTask(ctx context.Context, t *asynq.Task) error {
	_, err := h.jobs.PollPass(ctx)
	return err
}

func (h *TaskHandler) HandleAnalysisPassTask(ctx context.Context, t *asynq.Task) error {
	_, err := h.analyzer.AnalysisPass(ctx)
	return err
}

func (h *TaskHandler) HandleNotificationPassTask(ctx context.Context, t *asynq.Task) error {
	_, err := h.scheduler.Run(ctx)
	return err
}

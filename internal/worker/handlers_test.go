package worker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podcast-digest/internal/models"
	"podcast-digest/internal/pipeline"
	"podcast-digest/internal/test"
	"podcast-digest/pkg/tasks"
)

type fixture struct {
	store       *test.MemStore
	feeds       *test.FakeFeedSource
	transcriber *test.FakeTranscriber
	summarizer  *test.FakeSummarizer
	sink        *test.FakeSink
	enqueuer    *test.MockTaskEnqueuer
	handler     *TaskHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:       test.NewMemStore(),
		feeds:       &test.FakeFeedSource{Feeds: map[string]models.Feed{}, Errs: map[string]error{}},
		transcriber: &test.FakeTranscriber{},
		summarizer:  &test.FakeSummarizer{Summary: "- summary"},
		sink:        &test.FakeSink{},
		enqueuer:    &test.MockTaskEnqueuer{},
	}
	f.handler = NewTaskHandler(f.enqueuer, Services{
		Store:       f.store,
		Feeds:       f.feeds,
		Transcriber: f.transcriber,
		Summarizer:  f.summarizer,
		Sink:        f.sink,
		Options:     pipeline.Options{Transcription: pipeline.RetryPolicy{MaxAttempts: 3}},
	})
	return f
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestHandleFetchAllFeedsTask(t *testing.T) {
	f := newFixture(t)
	f.store.AddPodcast("A", "https://a/feed")
	f.store.AddPodcast("B", "https://b/feed")

	err := f.handler.HandleFetchAllFeedsTask(context.Background(), asynq.NewTask(tasks.TypeFetchAllFeeds, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{tasks.TypeFetchFeed, tasks.TypeFetchFeed}, f.enqueuer.Types())
	assert.Equal(t, []string{tasks.QueueDefault, tasks.QueueDefault}, f.enqueuer.Queues())
}

func TestHandleFetchFeedTask_EnqueuesSubmitForNewEpisodes(t *testing.T) {
	f := newFixture(t)
	p := f.store.AddPodcast("A", "https://a/feed")
	f.feeds.Feeds[p.FeedURL] = models.Feed{Title: "A", Descriptors: []models.EpisodeDescriptor{
		{GUID: "1", Title: "One", PublishedAt: time.Now(), AudioURL: "https://a/1.mp3"},
		{GUID: "2", Title: "Two", PublishedAt: time.Now(), AudioURL: "https://a/2.mp3"},
	}}
	task := asynq.NewTask(tasks.TypeFetchFeed, mustMarshal(t, tasks.FetchFeedTaskPayload{PodcastID: p.ID}))

	require.NoError(t, f.handler.HandleFetchFeedTask(context.Background(), task))
	assert.Equal(t, []string{tasks.TypeSubmitTranscription, tasks.TypeSubmitTranscription}, f.enqueuer.Types())
	assert.Equal(t, []string{tasks.QueueHigh, tasks.QueueHigh}, f.enqueuer.Queues())

	// Nothing new on the second fetch.
	require.NoError(t, f.handler.HandleFetchFeedTask(context.Background(), task))
	assert.Len(t, f.enqueuer.EnqueuedTasks, 2)
	assert.Len(t, f.store.Episodes(), 2)
}

func TestHandleFetchFeedTask_FeedErrorSkipsRetry(t *testing.T) {
	f := newFixture(t)
	p := f.store.AddPodcast("A", "https://a/feed")
	f.feeds.Errs[p.FeedURL] = errors.New("404 Not Found")
	task := asynq.NewTask(tasks.TypeFetchFeed, mustMarshal(t, tasks.FetchFeedTaskPayload{PodcastID: p.ID}))

	err := f.handler.HandleFetchFeedTask(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
	var fetchErr *pipeline.FetchError
	assert.ErrorAs(t, err, &fetchErr)
}

func TestHandleSubmitTranscriptionTask(t *testing.T) {
	f := newFixture(t)
	ep := f.store.PutEpisode(models.Episode{PodcastID: 1, GUID: "1", AudioURL: "https://a/1.mp3", TranscriptionState: models.StateDiscovered})
	task := asynq.NewTask(tasks.TypeSubmitTranscription, mustMarshal(t, tasks.SubmitTranscriptionTaskPayload{EpisodeID: ep.ID}))

	require.NoError(t, f.handler.HandleSubmitTranscriptionTask(context.Background(), task))
	require.NoError(t, f.handler.HandleSubmitTranscriptionTask(context.Background(), task))
	assert.Equal(t, 1, f.transcriber.Submits)
	assert.Equal(t, models.StateSubmitted, f.store.Episode(ep.ID).TranscriptionState)
}

func TestHandleSubmitTranscriptionTask_ProviderFailureIsRecorded(t *testing.T) {
	f := newFixture(t)
	f.transcriber.SubmitErr = errors.New("503")
	ep := f.store.PutEpisode(models.Episode{PodcastID: 1, GUID: "1", AudioURL: "https://a/1.mp3", TranscriptionState: models.StateDiscovered})
	task := asynq.NewTask(tasks.TypeSubmitTranscription, mustMarshal(t, tasks.SubmitTranscriptionTaskPayload{EpisodeID: ep.ID}))

	assert.NoError(t, f.handler.HandleSubmitTranscriptionTask(context.Background(), task))
	assert.Equal(t, 1, f.store.Episode(ep.ID).TranscriptionAttempts)

	missing := asynq.NewTask(tasks.TypeSubmitTranscription, mustMarshal(t, tasks.SubmitTranscriptionTaskPayload{EpisodeID: 999}))
	assert.ErrorIs(t, f.handler.HandleSubmitTranscriptionTask(context.Background(), missing), asynq.SkipRetry)
}

func TestPassTasks(t *testing.T) {
	f := newFixture(t)
	p := f.store.AddPodcast("A", "https://a/feed")
	f.store.AddSubscription(7, p.ID, models.CadenceImmediate, time.Now().Add(-time.Hour))
	ep := f.store.PutEpisode(models.Episode{PodcastID: p.ID, GUID: "1", Title: "One", PublishedAt: time.Now(), AudioURL: "https://a/1.mp3", TranscriptionState: models.StateDiscovered})
	f.transcriber.Script = []models.ProviderStatus{{State: models.ProviderDone, Transcript: "hello world"}}
	ctx := context.Background()

	require.NoError(t, f.handler.HandleSubmitPassTask(ctx, asynq.NewTask(tasks.TypeSubmitPass, nil)))
	require.NoError(t, f.handler.HandlePollPassTask(ctx, asynq.NewTask(tasks.TypePollPass, nil)))
	require.NoError(t, f.handler.HandleAnalysisPassTask(ctx, asynq.NewTask(tasks.TypeAnalysisPass, nil)))
	require.NoError(t, f.handler.HandleNotificationPassTask(ctx, asynq.NewTask(tasks.TypeNotificationPass, nil)))

	got := f.store.Episode(ep.ID)
	assert.Equal(t, models.StateCompleted, got.TranscriptionState)
	require.NotNil(t, got.Summary)
	require.Len(t, f.sink.Deliveries, 1)
	assert.Equal(t, int64(7), f.sink.Deliveries[0].UserID)
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	mux := asynq.NewServeMux()
	f.handler.Register(mux)

	h, pattern := mux.Handler(asynq.NewTask(tasks.TypeNotificationPass, nil))
	assert.NotNil(t, h)
	assert.Equal(t, tasks.TypeNotificationPass, pattern)
}

package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podcast-digest/internal/models"
	"podcast-digest/internal/test"
)

func completed(store *test.MemStore, guid, transcript string) models.Episode {
	return store.PutEpisode(models.Episode{
		PodcastID:          1,
		GUID:               guid,
		Title:              "Episode " + guid,
		PublishedAt:        epoch,
		TranscriptionState: models.StateCompleted,
		Transcript:         &transcript,
	})
}

func TestAnalyze_StoresSummary(t *testing.T) {
	store := test.NewMemStore()
	clock := newClock(epoch)
	ep := completed(store, "ep-1", "hello world")
	summarizer := &test.FakeSummarizer{Summary: "  - point one\n- point two\n- point three  "}
	a := NewAnalyzer(store, summarizer, testOptions(clock))

	summary, err := a.Analyze(context.Background(), ep.ID)
	require.NoError(t, err)
	assert.Equal(t, "- point one\n- point two\n- point three", summary)

	require.Len(t, summarizer.Requests, 1)
	assert.Equal(t, "hello world", summarizer.Requests[0].Transcript)
	assert.Equal(t, "Episode ep-1", summarizer.Requests[0].Title)

	got := store.Episode(ep.ID)
	require.NotNil(t, got.Summary)
	assert.Equal(t, summary, *got.Summary)
	assert.Equal(t, 1, got.SummaryAttempts)
	assert.Nil(t, got.LeaseOwner)

	_, err = a.Analyze(context.Background(), ep.ID)
	assert.ErrorIs(t, err, ErrNotEligible)
	assert.Len(t, summarizer.Requests, 1)
}

func TestAnalyze_RequiresTranscript(t *testing.T) {
	store := test.NewMemStore()
	ep := discovered(store, 1, "ep-1", epoch)
	a := NewAnalyzer(store, &test.FakeSummarizer{Summary: "x"}, testOptions(newClock(epoch)))

	_, err := a.Analyze(context.Background(), ep.ID)
	assert.ErrorIs(t, err, ErrNotEligible)
}

func TestAnalyze_RetriesThenFails(t *testing.T) {
	store := test.NewMemStore()
	clock := newClock(epoch)
	ep := completed(store, "ep-1", "hello world")
	summarizer := &test.FakeSummarizer{Summary: "never", FailTimes: 10}
	opts := testOptions(clock)
	opts.Summary = RetryPolicy{MaxAttempts: 2, BaseDelay: time.Minute, MaxDelay: time.Hour}
	a := NewAnalyzer(store, summarizer, opts)

	_, err := a.Analyze(context.Background(), ep.ID)
	var analysisErr *AnalysisError
	require.ErrorAs(t, err, &analysisErr)

	got := store.Episode(ep.ID)
	assert.Equal(t, 1, got.SummaryAttempts)
	assert.False(t, got.SummaryFailed)
	require.NotNil(t, got.SummaryNextAt)
	assert.Equal(t, epoch.Add(time.Minute), *got.SummaryNextAt)

	_, err = a.Analyze(context.Background(), ep.ID)
	assert.ErrorIs(t, err, ErrBackoff)

	clock.Advance(time.Minute)
	_, err = a.Analyze(context.Background(), ep.ID)
	require.ErrorAs(t, err, &analysisErr)

	got = store.Episode(ep.ID)
	assert.True(t, got.SummaryFailed)
	assert.Nil(t, got.Summary)
	assert.False(t, got.Notifiable(false))
	assert.True(t, got.Notifiable(true))

	_, err = a.Analyze(context.Background(), ep.ID)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Len(t, summarizer.Requests, 2)
}

func TestAnalyze_EmptySummaryIsFailure(t *testing.T) {
	store := test.NewMemStore()
	ep := completed(store, "ep-1", "hello world")
	a := NewAnalyzer(store, &test.FakeSummarizer{Summary: "   "}, testOptions(newClock(epoch)))

	_, err := a.Analyze(context.Background(), ep.ID)
	var analysisErr *AnalysisError
	require.ErrorAs(t, err, &analysisErr)
	assert.Nil(t, store.Episode(ep.ID).Summary)
}

func TestAnalysisPass(t *testing.T) {
	store := test.NewMemStore()
	clock := newClock(epoch)
	completed(store, "a", "one")
	completed(store, "b", "two")
	discovered(store, 1, "c", epoch)
	a := NewAnalyzer(store, &test.FakeSummarizer{Summary: "summary"}, testOptions(clock))

	report, err := a.AnalysisPass(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PassReport{Processed: 2, Succeeded: 2}, report)

	report, err = a.AnalysisPass(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Processed)
}

package pipeline

import (
	"sync"
	"time"

	"podcast-digest/internal/models"
	"podcast-digest/internal/test"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *fakeClock { return &fakeClock{now: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

var epoch = time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)

func testOptions(clock *fakeClock) Options {
	return Options{
		Transcription: RetryPolicy{MaxAttempts: 3},
		Summary:       RetryPolicy{MaxAttempts: 3},
		MaxPollErrors: 3,
		LeaseTTL:      time.Minute,
		PollWorkers:   4,
		BatchSize:     50,
		Now:           clock.Now,
	}
}

func strPtr(s string) *string { return &s }

// discovered seeds an episode ready for submission.
func discovered(store *test.MemStore, podcastID int64, guid string, published time.Time) models.Episode {
	return store.PutEpisode(models.Episode{
		PodcastID:          podcastID,
		GUID:               guid,
		Title:              "Episode " + guid,
		PublishedAt:        published,
		AudioURL:           "https://cdn.example.com/" + guid + ".mp3",
		Link:               "https://example.com/" + guid,
		TranscriptionState: models.StateDiscovered,
		DiscoveredAt:       published,
	})
}

// summarized seeds an episode that is ready to notify.
func summarized(store *test.MemStore, podcastID int64, guid string, published time.Time) models.Episode {
	return store.PutEpisode(models.Episode{
		PodcastID:          podcastID,
		GUID:               guid,
		Title:              "Episode " + guid,
		PublishedAt:        published,
		AudioURL:           "https://cdn.example.com/" + guid + ".mp3",
		TranscriptionState: models.StateCompleted,
		Transcript:         strPtr("transcript of " + guid),
		Summary:            strPtr("summary of " + guid),
		DiscoveredAt:       published,
	})
}

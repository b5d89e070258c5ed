package feed

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/eduncan911/podcast"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podcast-digest/internal/models"
)

func TestGenerateRSS(t *testing.T) {
	summary := "- the answer is 42"
	user := &models.User{ID: 5, TelegramUsername: "alice", RSSUUID: "6f1c3f5e-1b8e-4a43-9d2e-0c5b1e8a7f10"}
	episodes := []models.DeliveredEpisode{{
		Episode: models.Episode{
			ID:          7,
			Title:       "The answer",
			PublishedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			AudioURL:    "https://cdn.example.com/42.mp3",
			Link:        "https://example.com/42",
			Summary:     &summary,
		},
		PodcastTitle: "Deep Questions",
		SentAt:       time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	}}

	req := httptest.NewRequest("GET", "/rss/"+user.RSSUUID, nil)
	out, err := GenerateRSS(user, episodes, req, "https://digest.example.com/")
	require.NoError(t, err)

	assert.Contains(t, out, "Podcast Digest")
	assert.Contains(t, out, "https://digest.example.com/rss/"+user.RSSUUID)
	assert.Contains(t, out, "Deep Questions: The answer")
	assert.Contains(t, out, "the answer is 42")
	assert.Contains(t, out, `url="https://cdn.example.com/42.mp3"`)
}

func TestGetBaseURL(t *testing.T) {
	req := httptest.NewRequest("GET", "/rss/x", nil)
	req.Host = "digest.local"
	req.Header.Set("X-Forwarded-Proto", "http")
	assert.Equal(t, "http://digest.local", getBaseURL(req, ""))
	assert.Equal(t, "https://a.b", getBaseURL(req, "https://a.b/"))
}

func TestEnclosureType(t *testing.T) {
	assert.Equal(t, podcast.M4A, enclosureType("https://a/b.M4A?x=1"))
	assert.Equal(t, podcast.MP3, enclosureType("https://a/b"))
}

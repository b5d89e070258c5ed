package feed

import (
	"cmp"
	"fmt"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/eduncan911/podcast"

	"podcast-digest/internal/models"
)

func getBaseURL(r *http.Request, configured string) string {
	if configured != "" {
		return strings.TrimRight(configured, "/")
	}

	scheme := r.URL.Scheme
	if scheme == "" {
		scheme = "https"
		if r.Header.Get("X-Forwarded-Proto") != "" {
			scheme = r.Header.Get("X-Forwarded-Proto")
		}
	}

	return fmt.Sprintf("%s://%s", scheme, r.Host)
}

func enclosureType(audioURL string) podcast.EnclosureType {
	switch strings.ToLower(path.Ext(strings.SplitN(audioURL, "?", 2)[0])) {
	case ".m4a":
		return podcast.M4A
	case ".mp4":
		return podcast.MP4
	default:
		return podcast.MP3
	}
}

// GenerateRSS renders the episodes delivered to a user as a podcast feed,
// with the summaries as item descriptions and the original audio attached.
func GenerateRSS(user *models.User, episodes []models.DeliveredEpisode, r *http.Request, baseURL string) (string, error) {
	baseURL = getBaseURL(r, baseURL)

	var updated time.Time
	if len(episodes) > 0 {
		updated = episodes[0].SentAt
	}
	name := cmp.Or(user.TelegramUsername, "Your")
	p := podcast.New(
		fmt.Sprintf("%s's Podcast Digest", name),
		fmt.Sprintf("%s/rss/%s", baseURL, user.RSSUUID),
		"Summaries of new episodes from your podcast subscriptions.",
		&updated, &updated,
	)

	for _, episode := range episodes {
		publishedAt := episode.PublishedAt
		description := cmp.Or(deref(episode.Summary), strings.TrimSpace(episode.Description), episode.Title)
		item := podcast.Item{
			Title:       fmt.Sprintf("%s: %s", episode.PodcastTitle, episode.Title),
			Description: description,
			Link:        episode.Link,
			GUID:        fmt.Sprintf("%s/episodes/%d", baseURL, episode.ID),
			PubDate:     &publishedAt,
		}
		if episode.AudioURL != "" {
			item.AddEnclosure(episode.AudioURL, enclosureType(episode.AudioURL), 0)
		}
		if _, err := p.AddItem(item); err != nil {
			return "", fmt.Errorf("add episode %d: %w", episode.ID, err)
		}
	}

	return p.String(), nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package pipeline

import (
	"cmp"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/phuslu/log"

	"podcast-digest/internal/models"
)

// DedupKey identifies an episode within its podcast: the feed GUID, or a hash
// of title, publish time and audio URL when the feed omits it.
func DedupKey(d models.EpisodeDescriptor) string {
	if guid := strings.TrimSpace(d.GUID); guid != "" {
		return guid
	}
	content := fmt.Sprintf("%s|%s|%s", d.Title, d.PublishedAt.UTC().Format(time.RFC3339), d.AudioURL)
	hash := sha256.Sum256([]byte(content))
	return "sha256:" + hex.EncodeToString(hash[:])
}

// Deduplicator turns feed descriptors into Episode rows, at most once per key.
type Deduplicator struct {
	store  Store
	source FeedSource
	now    func() time.Time
}

func NewDeduplicator(store Store, source FeedSource, opts Options) *Deduplicator {
	opts = opts.withDefaults()
	return &Deduplicator{store: store, source: source, now: opts.Now}
}

// Ingest stores the descriptors that are new for the podcast, in feed order,
// and returns the episodes it created. Known keys are skipped.
func (d *Deduplicator) Ingest(ctx context.Context, podcastID int64, descriptors []models.EpisodeDescriptor) ([]models.Episode, error) {
	var created []models.Episode
	for _, desc := range descriptors {
		if err := ctx.Err(); err != nil {
			return created, err
		}

		now := d.now()
		ep := models.Episode{
			PodcastID:          podcastID,
			GUID:               DedupKey(desc),
			Title:              desc.Title,
			PublishedAt:        desc.PublishedAt,
			AudioURL:           desc.AudioURL,
			Link:               desc.Link,
			Description:        desc.Description,
			TranscriptionState: models.StateDiscovered,
			DiscoveredAt:       now,
			UpdatedAt:          now,
		}

		isNew, err := d.store.InsertEpisode(ctx, &ep)
		if err != nil {
			return created, fmt.Errorf("insert episode %q: %w", ep.GUID, err)
		}
		if isNew {
			created = append(created, ep)
		}
	}
	return created, nil
}

// FetchPodcast fetches one podcast's feed, ingests it and records the check.
// Feed failures are returned as *FetchError and affect only this podcast.
func (d *Deduplicator) FetchPodcast(ctx context.Context, podcastID int64) ([]models.Episode, error) {
	podcast, err := d.store.GetPodcast(ctx, podcastID)
	if err != nil {
		return nil, fmt.Errorf("get podcast %d: %w", podcastID, err)
	}

	feed, err := d.source.Fetch(ctx, podcast.FeedURL)
	if err != nil {
		return nil, &FetchError{PodcastID: podcast.ID, FeedURL: podcast.FeedURL, Err: err}
	}

	created, err := d.Ingest(ctx, podcast.ID, feed.Descriptors)
	if err != nil {
		return created, err
	}

	if err := d.store.TouchPodcast(ctx, podcast.ID, cmp.Or(feed.Title, podcast.Title), d.now()); err != nil {
		return created, fmt.Errorf("touch podcast %d: %w", podcast.ID, err)
	}

	log.Info().
		Int64("podcast_id", podcast.ID).
		Int("entries", len(feed.Descriptors)).
		Int("new", len(created)).
		Msg("Fetched feed")
	return created, nil
}

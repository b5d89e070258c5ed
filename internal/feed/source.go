// Package feed reads podcast feeds and renders a user's digest as a feed.
package feed

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"podcast-digest/internal/models"
)

// Source fetches RSS and Atom feeds over HTTP.
type Source struct {
	parser *gofeed.Parser
}

func NewSource(timeout time.Duration) *Source {
	p := gofeed.NewParser()
	p.UserAgent = "podcast-digest/1.0"
	p.Client = &http.Client{Timeout: timeout}
	return &Source{parser: p}
}

// Fetch downloads and normalizes the feed at feedURL.
func (s *Source) Fetch(ctx context.Context, feedURL string) (models.Feed, error) {
	f, err := s.parser.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		return models.Feed{}, fmt.Errorf("failed to fetch feed: %w", err)
	}
	return normalize(f), nil
}

// Parse normalizes an already downloaded feed document.
func (s *Source) Parse(data []byte) (models.Feed, error) {
	f, err := s.parser.Parse(bytes.NewReader(data))
	if err != nil {
		return models.Feed{}, fmt.Errorf("failed to parse feed: %w", err)
	}
	return normalize(f), nil
}

func normalize(f *gofeed.Feed) models.Feed {
	out := models.Feed{
		Title:       strings.TrimSpace(f.Title),
		Descriptors: make([]models.EpisodeDescriptor, 0, len(f.Items)),
	}
	for _, item := range f.Items {
		if item == nil {
			continue
		}
		out.Descriptors = append(out.Descriptors, normalizeItem(item))
	}
	return out
}

func normalizeItem(item *gofeed.Item) models.EpisodeDescriptor {
	d := models.EpisodeDescriptor{
		GUID:        item.GUID,
		Title:       strings.TrimSpace(item.Title),
		Link:        item.Link,
		Description: item.Description,
		AudioURL:    audioURL(item),
	}
	switch {
	case item.PublishedParsed != nil:
		d.PublishedAt = item.PublishedParsed.UTC()
	case item.UpdatedParsed != nil:
		d.PublishedAt = item.UpdatedParsed.UTC()
	}
	return d
}

// audioURL picks the first audio enclosure. Enclosures without a type are
// accepted when no typed audio enclosure exists.
func audioURL(item *gofeed.Item) string {
	var untyped string
	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if strings.HasPrefix(strings.ToLower(enc.Type), "audio/") {
			return enc.URL
		}
		if enc.Type == "" && untyped == "" {
			untyped = enc.URL
		}
	}
	return untyped
}

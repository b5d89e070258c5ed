// Package search looks up podcasts by title in the Taddy GraphQL API so a
// user can subscribe without knowing the feed URL.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const DefaultTaddyURL = "https://api.taddy.org"

// Podcast is one search hit.
type Podcast struct {
	UUID        string `json:"uuid"`
	Name        string `json:"name"`
	FeedURL     string `json:"rssUrl"`
	Description string `json:"description"`
}

// APIError is a non-2xx response or a GraphQL error from Taddy.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("taddy API returned %d: %s", e.StatusCode, e.Message)
}

const searchQuery = `query Search($term: String!) {
  search(term: $term, filterForTypes: PODCASTSERIES) {
    searchId
    podcastSeries { uuid name rssUrl description }
  }
}`

type Taddy struct {
	baseURL    string
	apiKey     string
	userID     string
	httpClient *http.Client
}

func NewTaddy(baseURL, apiKey, userID string, timeout time.Duration) *Taddy {
	if baseURL == "" {
		baseURL = DefaultTaddyURL
	}
	return &Taddy{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		userID:     userID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type searchResponse struct {
	Data struct {
		Search struct {
			SearchID      string    `json:"searchId"`
			PodcastSeries []Podcast `json:"podcastSeries"`
		} `json:"search"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Search returns podcasts matching term. Hits without a feed URL are
// dropped since nothing can be subscribed to them.
func (t *Taddy) Search(ctx context.Context, term string) ([]Podcast, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, errors.New("empty search term")
	}
	body, err := json.Marshal(graphQLRequest{Query: searchQuery, Variables: map[string]any{"term": term}})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-KEY", t.apiKey)
	req.Header.Set("X-USER-ID", t.userID)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", term, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
	}

	var out searchResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(out.Errors) > 0 {
		return nil, &APIError{StatusCode: resp.StatusCode, Message: out.Errors[0].Message}
	}

	podcasts := make([]Podcast, 0, len(out.Data.Search.PodcastSeries))
	for _, p := range out.Data.Search.PodcastSeries {
		if p.FeedURL == "" {
			continue
		}
		podcasts = append(podcasts, p)
	}
	return podcasts, nil
}

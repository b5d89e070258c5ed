package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podcast-digest/internal/search"
	"podcast-digest/internal/test"
)

type fakeSearcher struct {
	podcasts []search.Podcast
	err      error
	terms    []string
}

func (f *fakeSearcher) Search(ctx context.Context, term string) ([]search.Podcast, error) {
	f.terms = append(f.terms, term)
	return f.podcasts, f.err
}

var hardFork = search.Podcast{UUID: "a", Name: "Hard Fork & Co", FeedURL: "https://feeds.example.com/hardfork"}

func TestSearchPodcasts(t *testing.T) {
	searcher := &fakeSearcher{podcasts: []search.Podcast{hardFork}}
	h := New(&test.MockTaskEnqueuer{}, "").WithSearcher(searcher)

	rr := httptest.NewRecorder()
	h.SearchPodcasts(rr, withUser(httptest.NewRequest(http.MethodGet, "/api/podcasts/search?q=hard+fork", nil)))

	require.Equal(t, http.StatusOK, rr.Code)
	var resp []search.Podcast
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, []search.Podcast{hardFork}, resp)
	assert.Equal(t, []string{"hard fork"}, searcher.terms)
}

func TestSearchPodcasts_Errors(t *testing.T) {
	tests := []struct {
		name     string
		searcher PodcastSearcher
		query    string
		want     int
	}{
		{"missing term", &fakeSearcher{}, "", http.StatusBadRequest},
		{"not configured", nil, "news", http.StatusServiceUnavailable},
		{"upstream failure", &fakeSearcher{err: errors.New("taddy down")}, "news", http.StatusBadGateway},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(&test.MockTaskEnqueuer{}, "")
			if tt.searcher != nil {
				h.WithSearcher(tt.searcher)
			}
			rr := httptest.NewRecorder()
			h.SearchPodcasts(rr, withUser(httptest.NewRequest(http.MethodGet, "/api/podcasts/search?q="+tt.query, nil)))
			assert.Equal(t, tt.want, rr.Code)
		})
	}
}

func TestHandleTelegramMessage_TitleSearch(t *testing.T) {
	_, mock := test.NewMockDB(t)
	searcher := &fakeSearcher{podcasts: []search.Podcast{hardFork}}
	h := New(&test.MockTaskEnqueuer{}, "").WithSearcher(searcher)
	bot := &fakeBot{}

	expectUpsertUser(mock)
	h.HandleTelegramMessage(context.Background(), bot, chatMessage("hard fork"))

	expectUpsertUser(mock)
	h.HandleTelegramMessage(context.Background(), bot, chatMessage("/search the daily"))

	require.Len(t, bot.sent, 2)
	assert.Equal(t, tgbotapi.ModeHTML, bot.sent[0].ParseMode)
	assert.Contains(t, bot.sent[0].Text, "<b>Hard Fork &amp; Co</b>\nhttps://feeds.example.com/hardfork")
	assert.Equal(t, []string{"hard fork", "the daily"}, searcher.terms)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleTelegramMessage_SearchWithoutSearcher(t *testing.T) {
	_, mock := test.NewMockDB(t)
	h := New(&test.MockTaskEnqueuer{}, "")
	bot := &fakeBot{}

	expectUpsertUser(mock)
	h.HandleTelegramMessage(context.Background(), bot, chatMessage("/search hard fork"))

	expectUpsertUser(mock)
	h.HandleTelegramMessage(context.Background(), bot, chatMessage("hardfork"))

	require.Len(t, bot.sent, 2)
	assert.Equal(t, "Search is not available, send the podcast feed URL instead.", bot.sent[0].Text)
	assert.Equal(t, "That doesn't look like a feed URL.", bot.sent[1].Text)
	assert.NoError(t, mock.ExpectationsWereMet())
}

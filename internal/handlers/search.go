package handlers

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/http"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/phuslu/log"

	"podcast-digest/internal/search"
)

const maxSearchResults = 5

var ErrSearchDisabled = errors.New("podcast search is not configured")

type PodcastSearcher interface {
	Search(ctx context.Context, term string) ([]search.Podcast, error)
}

func (h *Handlers) searchPodcasts(ctx context.Context, term string) ([]search.Podcast, error) {
	if h.searcher == nil {
		return nil, ErrSearchDisabled
	}
	podcasts, err := h.searcher.Search(ctx, term)
	if err != nil {
		return nil, err
	}
	if len(podcasts) > maxSearchResults {
		podcasts = podcasts[:maxSearchResults]
	}
	return podcasts, nil
}

func (h *Handlers) SearchPodcasts(w http.ResponseWriter, r *http.Request) {
	if _, ok := currentUser(w, r); !ok {
		return
	}
	term := strings.TrimSpace(r.URL.Query().Get("q"))
	if term == "" {
		http.Error(w, "Missing search term", http.StatusBadRequest)
		return
	}

	podcasts, err := h.searchPodcasts(r.Context(), term)
	if err != nil {
		if errors.Is(err, ErrSearchDisabled) {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		log.Error().Err(err).Str("term", term).Msg("Error searching podcasts")
		http.Error(w, "Search failed", http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, podcasts)
}

// handleSearch answers with matching feeds; the user subscribes by sending
// one of the returned URLs back.
func (h *Handlers) handleSearch(ctx context.Context, bot BotSender, message *tgbotapi.Message, term string) {
	if strings.TrimSpace(term) == "" {
		h.reply(bot, message, "Usage: /search <podcast title>")
		return
	}
	podcasts, err := h.searchPodcasts(ctx, term)
	switch {
	case errors.Is(err, ErrSearchDisabled):
		h.reply(bot, message, "Search is not available, send the podcast feed URL instead.")
		return
	case err != nil:
		log.Error().Err(err).Str("term", term).Msg("Error searching podcasts")
		h.reply(bot, message, "Search failed, try again later.")
		return
	case len(podcasts) == 0:
		h.reply(bot, message, "No podcasts found.")
		return
	}

	var b strings.Builder
	b.WriteString("Send one of these feed URLs to subscribe:\n\n")
	for _, p := range podcasts {
		fmt.Fprintf(&b, "<b>%s</b>\n%s\n\n", html.EscapeString(p.Name), html.EscapeString(p.FeedURL))
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, strings.TrimSpace(b.String()))
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := bot.Send(msg); err != nil {
		log.Warn().Err(err).Int64("chat_id", message.Chat.ID).Msg("Error sending reply")
	}
}

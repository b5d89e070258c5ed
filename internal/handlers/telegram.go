package handlers

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/phuslu/log"

	"podcast-digest/internal/db"
	"podcast-digest/internal/models"
)

const botHelp = `Send me a podcast RSS feed URL to subscribe, optionally followed by a cadence (immediate, daily or weekly).

/search <title> - find a podcast feed by title
/list - your subscriptions
/cadence <id> <cadence> - change how often you hear about a podcast
/unsubscribe <id> - stop following a podcast
/feed - your personal digest feed`

// BotSender sends messages to Telegram.
type BotSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// StartTelegramBot handles bot updates until ctx is cancelled.
func (h *Handlers) StartTelegramBot(ctx context.Context, bot *tgbotapi.BotAPI) {
	log.Info().Str("account", bot.Self.UserName).Msg("Telegram bot authorized")

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	updates := bot.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			bot.StopReceivingUpdates()
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Message == nil || update.Message.From == nil {
				continue
			}
			h.HandleTelegramMessage(ctx, bot, update.Message)
		}
	}
}

// HandleTelegramMessage answers one chat message.
func (h *Handlers) HandleTelegramMessage(ctx context.Context, bot BotSender, message *tgbotapi.Message) {
	user, err := db.UpsertUser(ctx, message.From.ID, message.From.UserName)
	if err != nil {
		h.reply(bot, message, "Error creating user.")
		return
	}

	if !message.IsCommand() {
		h.handleSubscribeMessage(ctx, bot, message, user)
		return
	}

	args := strings.Fields(message.CommandArguments())
	switch message.Command() {
	case "start", "help":
		h.reply(bot, message, botHelp)
	case "list":
		h.handleListCommand(ctx, bot, message, user)
	case "search":
		h.handleSearch(ctx, bot, message, message.CommandArguments())
	case "feed":
		h.reply(bot, message, "Your digest feed: "+h.rssURL(user))
	case "cadence":
		h.handleCadenceCommand(ctx, bot, message, user, args)
	case "unsubscribe":
		h.handleUnsubscribeCommand(ctx, bot, message, user, args)
	default:
		h.reply(bot, message, "I don't know that command")
	}
}

func (h *Handlers) handleSubscribeMessage(ctx context.Context, bot BotSender, message *tgbotapi.Message, user *models.User) {
	fields := strings.Fields(message.Text)
	if len(fields) > 0 && h.searcher != nil {
		if _, err := validateFeedURL(fields[0]); err != nil {
			h.handleSearch(ctx, bot, message, message.Text)
			return
		}
	}
	if len(fields) == 0 || len(fields) > 2 {
		h.reply(bot, message, botHelp)
		return
	}
	var rawCadence string
	if len(fields) == 2 {
		rawCadence = fields[1]
	}
	cadence, err := parseCadence(rawCadence)
	if err != nil {
		h.reply(bot, message, err.Error())
		return
	}

	sub, err := h.subscribe(ctx, user.ID, fields[0], cadence)
	switch {
	case errors.Is(err, ErrInvalidFeedURL):
		h.reply(bot, message, "That doesn't look like a feed URL.")
	case errors.Is(err, ErrSubscriptionLimit):
		h.reply(bot, message, fmt.Sprintf("You can follow at most %d podcasts.", maxSubscriptionsPerUser))
	case err != nil:
		log.Error().Err(err).Int64("user_id", user.ID).Msg("Error creating subscription")
		h.reply(bot, message, "Internal server error")
	default:
		h.reply(bot, message, fmt.Sprintf("Subscribed (#%d, %s). New episodes will arrive once they are transcribed.", sub.ID, sub.Cadence))
	}
}

func (h *Handlers) handleListCommand(ctx context.Context, bot BotSender, message *tgbotapi.Message, user *models.User) {
	subscriptions, err := db.GetSubscriptionsByUserID(ctx, user.ID)
	if err != nil {
		h.reply(bot, message, "Internal server error")
		return
	}

	if len(subscriptions) == 0 {
		h.reply(bot, message, "You have no subscriptions.")
		return
	}

	var b strings.Builder
	for _, sub := range subscriptions {
		title := sub.PodcastTitle
		if title == "" {
			title = sub.FeedURL
		}
		fmt.Fprintf(&b, "#%d <b>%s</b> (%s)\n", sub.ID, html.EscapeString(title), sub.Cadence)
	}

	msg := tgbotapi.NewMessage(message.Chat.ID, b.String())
	msg.ParseMode = tgbotapi.ModeHTML
	msg.DisableWebPagePreview = true
	if _, err := bot.Send(msg); err != nil {
		log.Warn().Err(err).Int64("chat_id", message.Chat.ID).Msg("Error sending reply")
	}
}

func (h *Handlers) handleCadenceCommand(ctx context.Context, bot BotSender, message *tgbotapi.Message, user *models.User, args []string) {
	if len(args) != 2 {
		h.reply(bot, message, "Usage: /cadence <id> <immediate|daily|weekly>")
		return
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil {
		h.reply(bot, message, "Invalid subscription ID")
		return
	}
	cadence, err := parseCadence(args[1])
	if err != nil {
		h.reply(bot, message, err.Error())
		return
	}

	if _, err := db.UpdateSubscriptionCadence(ctx, user.ID, id, cadence); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			h.reply(bot, message, "Subscription not found")
			return
		}
		h.reply(bot, message, "Internal server error")
		return
	}
	h.reply(bot, message, fmt.Sprintf("Subscription #%d is now %s.", id, cadence))
}

func (h *Handlers) handleUnsubscribeCommand(ctx context.Context, bot BotSender, message *tgbotapi.Message, user *models.User, args []string) {
	if len(args) != 1 {
		h.reply(bot, message, "Usage: /unsubscribe <id>")
		return
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil {
		h.reply(bot, message, "Invalid subscription ID")
		return
	}

	if err := db.Unsubscribe(ctx, user.ID, id); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			h.reply(bot, message, "Subscription not found")
			return
		}
		h.reply(bot, message, "Internal server error")
		return
	}
	h.reply(bot, message, fmt.Sprintf("Unsubscribed from #%d.", id))
}

func (h *Handlers) reply(bot BotSender, message *tgbotapi.Message, text string) {
	msg := tgbotapi.NewMessage(message.Chat.ID, text)
	if _, err := bot.Send(msg); err != nil {
		log.Warn().Err(err).Int64("chat_id", message.Chat.ID).Msg("Error sending reply")
	}
}

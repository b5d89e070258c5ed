// Package delivery sends rendered notifications to users over Telegram.
package delivery

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/phuslu/log"

	"podcast-digest/internal/models"
)

// Sender is the part of *tgbotapi.BotAPI the sink uses.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// TelegramSink delivers payloads as HTML messages to the user's private chat,
// whose ID equals the Telegram user ID.
type TelegramSink struct {
	bot Sender
	now func() time.Time
}

func NewTelegramSink(bot Sender) *TelegramSink {
	return &TelegramSink{bot: bot, now: time.Now}
}

// NewBot connects to the Bot API with token.
func NewBot(token string) (*tgbotapi.BotAPI, error) {
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is not set")
	}
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Telegram: %w", err)
	}
	log.Info().Str("bot", bot.Self.UserName).Msg("Authorized on Telegram")
	return bot, nil
}

// Deliver sends the payload, split into several messages when it is too
// long. Any failed chunk fails the whole delivery; chunks already sent will
// be repeated on retry.
func (s *TelegramSink) Deliver(ctx context.Context, userID int64, payload models.Payload) (models.DeliveryConfirmation, error) {
	chunks := SplitMessage(payload.Text, MaxMessageLength)
	ids := make([]string, 0, len(chunks))

	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			return models.DeliveryConfirmation{}, err
		}
		msg := tgbotapi.NewMessage(userID, chunk)
		msg.ParseMode = tgbotapi.ModeHTML
		msg.DisableWebPagePreview = true

		sent, err := s.bot.Send(msg)
		if err != nil {
			return models.DeliveryConfirmation{}, fmt.Errorf("send chunk %d/%d: %w", i+1, len(chunks), err)
		}
		ids = append(ids, strconv.Itoa(sent.MessageID))
	}

	log.Debug().Int64("user_id", userID).Int("chunks", len(chunks)).Str("idempotency_key", payload.IdempotencyKey).Msg("Delivered notification")
	return models.DeliveryConfirmation{ID: strings.Join(ids, ","), DeliveredAt: s.now()}, nil
}

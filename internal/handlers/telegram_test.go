package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"podcast-digest/internal/test"
	"podcast-digest/pkg/tasks"
)

type fakeBot struct {
	sent []tgbotapi.MessageConfig
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	if msg, ok := c.(tgbotapi.MessageConfig); ok {
		b.sent = append(b.sent, msg)
	}
	return tgbotapi.Message{MessageID: len(b.sent)}, nil
}

func chatMessage(text string) *tgbotapi.Message {
	msg := &tgbotapi.Message{
		From: &tgbotapi.User{ID: 5, UserName: "testuser"},
		Chat: &tgbotapi.Chat{ID: 5},
		Text: text,
	}
	if len(text) > 0 && text[0] == '/' {
		end := len(text)
		for i, r := range text {
			if r == ' ' {
				end = i
				break
			}
		}
		msg.Entities = []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: end}}
	}
	return msg
}

func expectUpsertUser(mock sqlmock.Sqlmock) {
	now := time.Now()
	mock.ExpectQuery("INSERT INTO users").WithArgs(int64(5), "testuser").
		WillReturnRows(sqlmock.NewRows([]string{"id", "telegram_username", "rss_uuid", "created_at", "updated_at"}).
			AddRow(5, "testuser", testUser.RSSUUID, now, now))
}

func TestHandleTelegramMessage_List(t *testing.T) {
	_, mock := test.NewMockDB(t)
	h := New(&test.MockTaskEnqueuer{}, "")
	bot := &fakeBot{}
	now := time.Now()

	expectUpsertUser(mock)
	mock.ExpectQuery("SELECT s.\\*, p.title").WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows(subscriptionColumns).
			AddRow(3, 5, 9, "daily", true, now, now, "Tom & Jerry Talk", "https://example.com/feed.xml"))

	h.HandleTelegramMessage(context.Background(), bot, chatMessage("/list"))

	require.Len(t, bot.sent, 1)
	assert.Equal(t, tgbotapi.ModeHTML, bot.sent[0].ParseMode)
	assert.Contains(t, bot.sent[0].Text, "#3 <b>Tom &amp; Jerry Talk</b> (daily)")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleTelegramMessage_Subscribe(t *testing.T) {
	_, mock := test.NewMockDB(t)
	enqueuer := &test.MockTaskEnqueuer{}
	h := New(enqueuer, "")
	bot := &fakeBot{}
	now := time.Now()

	expectUpsertUser(mock)
	mock.ExpectQuery("SELECT COUNT").WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("INSERT INTO podcasts").WithArgs("https://example.com/feed.xml", "").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "feed_url", "last_checked_at", "created_at", "updated_at"}).
			AddRow(9, "", "https://example.com/feed.xml", nil, now, now))
	mock.ExpectQuery("INSERT INTO subscriptions").WithArgs(int64(5), int64(9), "immediate").
		WillReturnRows(sqlmock.NewRows([]string{"id", "user_id", "podcast_id", "cadence", "active", "created_at", "updated_at"}).
			AddRow(4, 5, 9, "immediate", true, now, now))

	h.HandleTelegramMessage(context.Background(), bot, chatMessage("https://example.com/feed.xml immediate"))

	require.Len(t, bot.sent, 1)
	assert.Contains(t, bot.sent[0].Text, "Subscribed (#4, immediate)")
	assert.Equal(t, []string{tasks.TypeFetchFeed}, enqueuer.Types())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHandleTelegramMessage_Commands(t *testing.T) {
	_, mock := test.NewMockDB(t)
	h := New(&test.MockTaskEnqueuer{}, "https://digest.example.com")
	bot := &fakeBot{}

	expectUpsertUser(mock)
	h.HandleTelegramMessage(context.Background(), bot, chatMessage("/feed"))

	expectUpsertUser(mock)
	h.HandleTelegramMessage(context.Background(), bot, chatMessage("/cadence 3 hourly"))

	expectUpsertUser(mock)
	mock.ExpectExec("UPDATE subscriptions").WithArgs(int64(3), int64(5)).WillReturnResult(sqlmock.NewResult(0, 1))
	h.HandleTelegramMessage(context.Background(), bot, chatMessage("/unsubscribe #3"))

	expectUpsertUser(mock)
	h.HandleTelegramMessage(context.Background(), bot, chatMessage("/dance"))

	require.Len(t, bot.sent, 4)
	assert.Equal(t, "Your digest feed: https://digest.example.com/rss/"+testUser.RSSUUID, bot.sent[0].Text)
	assert.Equal(t, ErrInvalidCadence.Error(), bot.sent[1].Text)
	assert.Equal(t, "Unsubscribed from #3.", bot.sent[2].Text)
	assert.Equal(t, "I don't know that command", bot.sent[3].Text)
	assert.NoError(t, mock.ExpectationsWereMet())
}

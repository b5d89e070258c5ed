package db

import (
	"context"

	"github.com/phuslu/log"

	"podcast-digest/internal/models"
)

// UpsertUser inserts a new user or updates an existing one based on the Telegram ID.
func UpsertUser(ctx context.Context, id int64, username string) (*models.User, error) {
	query := `
		INSERT INTO users (id, telegram_username)
		VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET
			telegram_username = EXCLUDED.telegram_username,
			updated_at = NOW()
		RETURNING id, telegram_username, rss_uuid, created_at, updated_at
	`
	user := &models.User{}
	err := DB.GetContext(ctx, user, query, id, username)
	if err != nil {
		log.Error().Err(err).Int64("user_id", id).Msg("Error upserting user")
		return nil, err
	}
	return user, nil
}

func GetUserByRSSUUID(ctx context.Context, rssUUID string) (*models.User, error) {
	user := &models.User{}
	err := DB.GetContext(ctx, user, "SELECT * FROM users WHERE rss_uuid = $1", rssUUID)
	if err != nil {
		return nil, notFound(err)
	}
	return user, nil
}

package db

import (
	"context"

	"github.com/phuslu/log"

	"podcast-digest/internal/models"
)

// UpsertPodcast registers a feed, keeping the stored title when the new one is empty.
func UpsertPodcast(ctx context.Context, feedURL, title string) (*models.Podcast, error) {
	query := `
		INSERT INTO podcasts (feed_url, title)
		VALUES ($1, $2)
		ON CONFLICT (feed_url) DO UPDATE SET
			title = COALESCE(NULLIF(EXCLUDED.title, ''), podcasts.title),
			updated_at = NOW()
		RETURNING *
	`
	podcast := &models.Podcast{}
	if err := DB.GetContext(ctx, podcast, query, feedURL, title); err != nil {
		log.Error().Err(err).Str("feed_url", feedURL).Msg("Error upserting podcast")
		return nil, err
	}
	return podcast, nil
}

// Subscribe creates the subscription or reactivates an inactive one. A
// reactivated subscription starts over, so its created_at is reset.
func Subscribe(ctx context.Context, userID, podcastID int64, cadence models.Cadence) (*models.Subscription, error) {
	query := `
		INSERT INTO subscriptions (user_id, podcast_id, cadence)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, podcast_id) DO UPDATE SET
			cadence = EXCLUDED.cadence,
			active = TRUE,
			created_at = CASE WHEN subscriptions.active THEN subscriptions.created_at ELSE NOW() END,
			updated_at = NOW()
		RETURNING *
	`
	sub := &models.Subscription{}
	if err := DB.GetContext(ctx, sub, query, userID, podcastID, cadence); err != nil {
		log.Error().Err(err).Int64("user_id", userID).Int64("podcast_id", podcastID).Msg("Error adding subscription")
		return nil, err
	}
	return sub, nil
}

func GetSubscriptionsByUserID(ctx context.Context, userID int64) ([]models.SubscriptionView, error) {
	query := `
		SELECT s.*, p.title AS podcast_title, p.feed_url
		FROM subscriptions s
		JOIN podcasts p ON p.id = s.podcast_id
		WHERE s.user_id = $1 AND s.active
		ORDER BY s.created_at DESC
	`
	var subscriptions []models.SubscriptionView
	if err := DB.SelectContext(ctx, &subscriptions, query, userID); err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("Error getting subscriptions")
		return nil, err
	}
	return subscriptions, nil
}

func CountActiveSubscriptions(ctx context.Context, userID int64) (int, error) {
	var n int
	err := DB.GetContext(ctx, &n, "SELECT COUNT(*) FROM subscriptions WHERE user_id = $1 AND active", userID)
	return n, err
}

func UpdateSubscriptionCadence(ctx context.Context, userID, subscriptionID int64, cadence models.Cadence) (*models.Subscription, error) {
	query := `
		UPDATE subscriptions
		SET cadence = $1, updated_at = NOW()
		WHERE id = $2 AND user_id = $3 AND active
		RETURNING *
	`
	sub := &models.Subscription{}
	if err := DB.GetContext(ctx, sub, query, cadence, subscriptionID, userID); err != nil {
		return nil, notFound(err)
	}
	return sub, nil
}

// Unsubscribe deactivates the subscription. Rows are kept so processed
// history survives a later resubscribe.
func Unsubscribe(ctx context.Context, userID, subscriptionID int64) error {
	query := `
		UPDATE subscriptions
		SET active = FALSE, updated_at = NOW()
		WHERE id = $1 AND user_id = $2 AND active
	`
	res, err := DB.ExecContext(ctx, query, subscriptionID, userID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Int64("subscription_id", subscriptionID).Msg("Error deactivating subscription")
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrNotFound
	}
	return nil
}

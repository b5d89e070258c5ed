package db

import (
	"context"

	"podcast-digest/internal/models"
)

// ListFailedEpisodes returns episodes of the user's podcasts whose
// transcription or summary has permanently failed.
func ListFailedEpisodes(ctx context.Context, userID int64) ([]models.Episode, error) {
	query := `
		SELECT e.* FROM episodes e
		JOIN subscriptions s ON s.podcast_id = e.podcast_id
		WHERE s.user_id = $1 AND s.active
		  AND (e.transcription_exhausted OR e.summary_failed)
		ORDER BY e.published_at DESC
	`
	var episodes []models.Episode
	err := DB.SelectContext(ctx, &episodes, query, userID)
	return episodes, err
}

// ListDeliveredEpisodes returns the most recent episodes delivered to the user.
func ListDeliveredEpisodes(ctx context.Context, userID int64, limit int) ([]models.DeliveredEpisode, error) {
	query := `
		SELECT e.*, p.title AS podcast_title, pe.sent_at
		FROM processed_episodes pe
		JOIN episodes e ON e.id = pe.episode_id
		JOIN podcasts p ON p.id = e.podcast_id
		WHERE pe.user_id = $1 AND NOT pe.skipped
		ORDER BY pe.sent_at DESC
		LIMIT $2
	`
	var episodes []models.DeliveredEpisode
	err := DB.SelectContext(ctx, &episodes, query, userID, limit)
	return episodes, err
}

package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"podcast-digest/internal/models"
)

type candidateRow struct {
	SubscriptionID        int64          `db:"subscription_id"`
	UserID                int64          `db:"user_id"`
	PodcastID             int64          `db:"podcast_id"`
	Cadence               models.Cadence `db:"cadence"`
	Active                bool           `db:"active"`
	SubscriptionCreatedAt time.Time      `db:"subscription_created_at"`
	PodcastTitle          string         `db:"podcast_title"`

	EpisodeID          int64                     `db:"episode_id"`
	Title              string                    `db:"title"`
	PublishedAt        time.Time                 `db:"published_at"`
	AudioURL           string                    `db:"audio_url"`
	Link               string                    `db:"link"`
	Transcript         *string                   `db:"transcript"`
	TranscriptionState models.TranscriptionState `db:"transcription_state"`
	Summary            *string                   `db:"summary"`
	SummaryFailed      bool                      `db:"summary_failed"`
	DiscoveredAt       time.Time                 `db:"discovered_at"`
	UpdatedAt          time.Time                 `db:"updated_at"`
}

func (r candidateRow) candidate() models.Candidate {
	return models.Candidate{
		Subscription: models.Subscription{
			ID:        r.SubscriptionID,
			UserID:    r.UserID,
			PodcastID: r.PodcastID,
			Cadence:   r.Cadence,
			Active:    r.Active,
			CreatedAt: r.SubscriptionCreatedAt,
		},
		Episode: models.Episode{
			ID:                 r.EpisodeID,
			PodcastID:          r.PodcastID,
			Title:              r.Title,
			PublishedAt:        r.PublishedAt,
			AudioURL:           r.AudioURL,
			Link:               r.Link,
			Transcript:         r.Transcript,
			TranscriptionState: r.TranscriptionState,
			Summary:            r.Summary,
			SummaryFailed:      r.SummaryFailed,
			DiscoveredAt:       r.DiscoveredAt,
			UpdatedAt:          r.UpdatedAt,
		},
		PodcastTitle: r.PodcastTitle,
	}
}

// ListCandidates returns every active (subscription, episode) pair that is
// ready to notify and has no processed record.
func (s *Store) ListCandidates(ctx context.Context, degraded bool) ([]models.Candidate, error) {
	query := `
		SELECT s.id AS subscription_id, s.user_id, s.podcast_id, s.cadence, s.active,
			s.created_at AS subscription_created_at, p.title AS podcast_title,
			e.id AS episode_id, e.title, e.published_at, e.audio_url, e.link, e.transcript,
			e.transcription_state, e.summary, e.summary_failed, e.discovered_at, e.updated_at
		FROM subscriptions s
		JOIN podcasts p ON p.id = s.podcast_id
		JOIN episodes e ON e.podcast_id = s.podcast_id
		LEFT JOIN processed_episodes pe ON pe.user_id = s.user_id AND pe.episode_id = e.id
		WHERE s.active
		  AND e.transcription_state = 'COMPLETED'
		  AND e.transcript IS NOT NULL
		  AND (e.summary IS NOT NULL OR ($1 AND e.summary_failed))
		  AND pe.user_id IS NULL
		ORDER BY s.user_id, e.published_at
	`
	var rows []candidateRow
	if err := s.db.SelectContext(ctx, &rows, query, degraded); err != nil {
		return nil, fmt.Errorf("select candidates: %w", err)
	}
	candidates := make([]models.Candidate, 0, len(rows))
	for _, r := range rows {
		candidates = append(candidates, r.candidate())
	}
	return candidates, nil
}

// LastNotified returns the latest delivery for the user's cadence, ignoring
// skipped records.
func (s *Store) LastNotified(ctx context.Context, userID int64, cadence models.Cadence) (*time.Time, error) {
	query := `
		SELECT MAX(sent_at) FROM processed_episodes
		WHERE user_id = $1 AND cadence = $2 AND NOT skipped
	`
	var last sql.NullTime
	if err := s.db.GetContext(ctx, &last, query, userID, cadence); err != nil {
		return nil, fmt.Errorf("select last notification: %w", err)
	}
	if !last.Valid {
		return nil, nil
	}
	return &last.Time, nil
}

func (s *Store) MarkProcessed(ctx context.Context, records []models.ProcessedEpisode) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	query := `
		INSERT INTO processed_episodes (user_id, episode_id, cadence, degraded, skipped, delivery_id, sent_at)
		VALUES (:user_id, :episode_id, :cadence, :degraded, :skipped, :delivery_id, :sent_at)
		ON CONFLICT (user_id, episode_id) DO NOTHING
	`
	var inserted int
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		for _, r := range records {
			res, err := tx.NamedExecContext(ctx, query, r)
			if err != nil {
				return fmt.Errorf("insert processed episode (%d, %d): %w", r.UserID, r.EpisodeID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			inserted += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return inserted, nil
}

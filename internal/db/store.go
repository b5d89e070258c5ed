package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"podcast-digest/internal/models"
)

// Store is the Postgres-backed pipeline state. Transitions are guarded by
// the episode lease and the expected prior state.
type Store struct {
	db *sqlx.DB
}

// NewStore wraps conn. A nil conn falls back to the global DB.
func NewStore(conn *sqlx.DB) *Store {
	if conn == nil {
		conn = DB
	}
	return &Store{db: conn}
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrNotFound
	}
	return err
}

func (s *Store) ListPodcasts(ctx context.Context) ([]models.Podcast, error) {
	var podcasts []models.Podcast
	if err := s.db.SelectContext(ctx, &podcasts, "SELECT * FROM podcasts ORDER BY id"); err != nil {
		return nil, fmt.Errorf("select podcasts: %w", err)
	}
	return podcasts, nil
}

func (s *Store) GetPodcast(ctx context.Context, id int64) (models.Podcast, error) {
	var p models.Podcast
	err := s.db.GetContext(ctx, &p, "SELECT * FROM podcasts WHERE id = $1", id)
	return p, notFound(err)
}

func (s *Store) TouchPodcast(ctx context.Context, id int64, title string, checkedAt time.Time) error {
	query := `
		UPDATE podcasts
		SET title = $1, last_checked_at = $2, updated_at = NOW()
		WHERE id = $3
	`
	_, err := s.db.ExecContext(ctx, query, title, checkedAt, id)
	return err
}

func (s *Store) InsertEpisode(ctx context.Context, ep *models.Episode) (bool, error) {
	query := `
		INSERT INTO episodes (podcast_id, guid, title, published_at, audio_url, link, description,
			transcription_state, discovered_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (podcast_id, guid) DO NOTHING
		RETURNING id
	`
	err := s.db.GetContext(ctx, &ep.ID, query, ep.PodcastID, ep.GUID, ep.Title, ep.PublishedAt,
		ep.AudioURL, ep.Link, ep.Description, ep.TranscriptionState, ep.DiscoveredAt, ep.UpdatedAt)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("insert episode %q: %w", ep.GUID, err)
	}

	err = s.db.GetContext(ctx, &ep.ID, "SELECT id FROM episodes WHERE podcast_id = $1 AND guid = $2", ep.PodcastID, ep.GUID)
	if err != nil {
		return false, fmt.Errorf("find existing episode %q: %w", ep.GUID, err)
	}
	return false, nil
}

func (s *Store) GetEpisode(ctx context.Context, id int64) (models.Episode, error) {
	var ep models.Episode
	err := s.db.GetContext(ctx, &ep, "SELECT * FROM episodes WHERE id = $1", id)
	return ep, notFound(err)
}

func (s *Store) ListSubmittable(ctx context.Context, now time.Time, limit int) ([]models.Episode, error) {
	query := `
		SELECT * FROM episodes
		WHERE (transcription_state = 'DISCOVERED'
			OR (transcription_state = 'FAILED' AND NOT transcription_exhausted))
		  AND (transcription_next_at IS NULL OR transcription_next_at <= $1)
		  AND (lease_until IS NULL OR lease_until < $1)
		ORDER BY published_at DESC
		LIMIT $2
	`
	var episodes []models.Episode
	if err := s.db.SelectContext(ctx, &episodes, query, now, limit); err != nil {
		return nil, fmt.Errorf("select submittable episodes: %w", err)
	}
	return episodes, nil
}

func (s *Store) ListAnalyzable(ctx context.Context, now time.Time, limit int) ([]models.Episode, error) {
	query := `
		SELECT * FROM episodes
		WHERE transcription_state = 'COMPLETED'
		  AND transcript IS NOT NULL
		  AND summary IS NULL
		  AND NOT summary_failed
		  AND (summary_next_at IS NULL OR summary_next_at <= $1)
		  AND (lease_until IS NULL OR lease_until < $1)
		ORDER BY published_at DESC
		LIMIT $2
	`
	var episodes []models.Episode
	if err := s.db.SelectContext(ctx, &episodes, query, now, limit); err != nil {
		return nil, fmt.Errorf("select analyzable episodes: %w", err)
	}
	return episodes, nil
}

// AcquireLease takes the episode lease if it is free or expired.
func (s *Store) AcquireLease(ctx context.Context, episodeID int64, owner string, now, until time.Time) (bool, error) {
	query := `
		UPDATE episodes
		SET lease_owner = $1, lease_until = $2
		WHERE id = $3 AND (lease_until IS NULL OR lease_until < $4)
	`
	res, err := s.db.ExecContext(ctx, query, owner, until, episodeID, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *Store) ReleaseLease(ctx context.Context, episodeID int64, owner string) error {
	query := `
		UPDATE episodes
		SET lease_owner = NULL, lease_until = NULL
		WHERE id = $1 AND lease_owner = $2
	`
	_, err := s.db.ExecContext(ctx, query, episodeID, owner)
	return err
}

// execOne runs a guarded update and maps zero affected rows to ErrConflict.
func execOne(ctx context.Context, ex sqlx.ExecerContext, query string, args ...any) error {
	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return models.ErrConflict
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

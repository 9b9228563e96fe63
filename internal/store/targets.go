package store

import (
	"fmt"
	"time"

	"github.com/setgraph/setgraph/internal/domain"
)

// AddTarget registers a seed query. Duplicate (artist, title) pairs are
// re-enabled rather than duplicated.
func (db *DB) AddTarget(target *domain.TargetTrack) error {
	query := `INSERT INTO target_tracks (target_id, artist_name, title, priority, enabled, created_at)
		VALUES (:target_id, :artist_name, :title, :priority, :enabled, :created_at)
		ON CONFLICT (artist_name, title) DO UPDATE SET
			priority = EXCLUDED.priority,
			enabled = TRUE`
	if _, err := db.NamedExec(query, target); err != nil {
		return fmt.Errorf("failed to add target: %w", err)
	}
	return nil
}

// ListDueTargets returns enabled seeds in rotation order: never-searched
// first, then least recently searched, priority breaking ties.
func (db *DB) ListDueTargets(limit int) ([]*domain.TargetTrack, error) {
	query := `SELECT * FROM target_tracks
		WHERE enabled
		ORDER BY last_searched_at ASC NULLS FIRST, priority DESC, created_at ASC
		LIMIT $1`
	var targets []*domain.TargetTrack
	if err := db.Select(&targets, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list due targets: %w", err)
	}
	return targets, nil
}

// FindTargets looks seeds up by artist and title. Match mode "exact"
// compares verbatim; "ilike" is case-insensitive substring.
func (db *DB) FindTargets(artistName, title, matchMode string) ([]*domain.TargetTrack, error) {
	var query string
	var args []interface{}
	switch matchMode {
	case "ilike":
		query = `SELECT * FROM target_tracks
			WHERE artist_name ILIKE '%' || $1 || '%' AND title ILIKE '%' || $2 || '%'
			ORDER BY priority DESC`
		args = []interface{}{artistName, title}
	default:
		query = `SELECT * FROM target_tracks
			WHERE artist_name = $1 AND title = $2`
		args = []interface{}{artistName, title}
	}

	var targets []*domain.TargetTrack
	if err := db.Select(&targets, query, args...); err != nil {
		return nil, fmt.Errorf("failed to find targets: %w", err)
	}
	return targets, nil
}

func (db *DB) TouchTargetSearched(targetID string) error {
	query := `UPDATE target_tracks SET last_searched_at = $1 WHERE target_id = $2`
	result, err := db.Exec(query, time.Now(), targetID)
	if err != nil {
		return fmt.Errorf("failed to touch target: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("target %s not found", targetID)
	}
	return nil
}

// ClearLastSearched resets the rotation so every seed is due again.
func (db *DB) ClearLastSearched() error {
	if _, err := db.Exec(`UPDATE target_tracks SET last_searched_at = NULL`); err != nil {
		return fmt.Errorf("failed to clear last searched: %w", err)
	}
	return nil
}

func (db *DB) DisableTarget(targetID string) error {
	query := `UPDATE target_tracks SET enabled = FALSE WHERE target_id = $1`
	if _, err := db.Exec(query, targetID); err != nil {
		return fmt.Errorf("failed to disable target: %w", err)
	}
	return nil
}

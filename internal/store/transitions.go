package store

import (
	"fmt"
	"time"

	"github.com/setgraph/setgraph/internal/domain"
)

// RecordTransition upserts one observed adjacency. The pair is canonicalized
// here so callers never have to think about edge direction. avg_distance is
// maintained incrementally.
func (db *DB) RecordTransition(trackA, trackB string, distance float64) error {
	a, b := domain.CanonicalPair(trackA, trackB)
	if a == b {
		return fmt.Errorf("self transition for track %s", a)
	}

	query := `INSERT INTO track_transitions (
		track_a_id, track_b_id, occurrence_count, avg_distance, last_observed_at
	) VALUES ($1, $2, 1, $3, $4)
	ON CONFLICT (track_a_id, track_b_id) DO UPDATE SET
		avg_distance = (track_transitions.avg_distance * track_transitions.occurrence_count + $3)
			/ (track_transitions.occurrence_count + 1),
		occurrence_count = track_transitions.occurrence_count + 1,
		last_observed_at = $4`

	if _, err := db.Exec(query, a, b, distance, time.Now()); err != nil {
		return fmt.Errorf("failed to record transition: %w", err)
	}
	return nil
}

func (db *DB) GetTransition(trackA, trackB string) (*domain.TrackTransition, error) {
	a, b := domain.CanonicalPair(trackA, trackB)
	var t domain.TrackTransition
	if err := db.Get(&t,
		`SELECT * FROM track_transitions WHERE track_a_id = $1 AND track_b_id = $2`, a, b); err != nil {
		return nil, err
	}
	return &t, nil
}

// ListTransitionsForTrack returns all edges touching a track, most observed
// first.
func (db *DB) ListTransitionsForTrack(trackID string, limit int) ([]*domain.TrackTransition, error) {
	query := `SELECT * FROM track_transitions
		WHERE track_a_id = $1 OR track_b_id = $1
		ORDER BY occurrence_count DESC
		LIMIT $2`
	var ts []*domain.TrackTransition
	if err := db.Select(&ts, query, trackID, limit); err != nil {
		return nil, fmt.Errorf("failed to list transitions: %w", err)
	}
	return ts, nil
}

func (db *DB) CountTransitions() (int, error) {
	var n int
	err := db.Get(&n, `SELECT COUNT(*) FROM track_transitions`)
	return n, err
}

// UpsertTrackArtist links a track to an artist with a role, idempotently.
func (db *DB) UpsertTrackArtist(ta *domain.TrackArtist) error {
	query := `INSERT INTO track_artists (track_id, artist_id, role, created_at)
		VALUES (:track_id, :artist_id, :role, :created_at)
		ON CONFLICT (track_id, artist_id, role) DO NOTHING`
	if _, err := db.NamedExec(query, ta); err != nil {
		return fmt.Errorf("failed to upsert track artist: %w", err)
	}
	return nil
}

func (db *DB) ListTrackArtists(trackID string) ([]*domain.TrackArtist, error) {
	var tas []*domain.TrackArtist
	query := `SELECT * FROM track_artists WHERE track_id = $1 ORDER BY role, artist_id`
	if err := db.Select(&tas, query, trackID); err != nil {
		return nil, fmt.Errorf("failed to list track artists: %w", err)
	}
	return tas, nil
}

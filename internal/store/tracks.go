package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/setgraph/setgraph/internal/domain"
)

// UpsertTrack inserts a track or merges into the existing row keyed by
// (artist_name, normalized_title). Merging is field-wise: incoming values win
// only where the existing row is empty, so enrichment results are never
// clobbered by a later low-quality scrape. Returns the surviving track id.
func (db *DB) UpsertTrack(track *domain.Track) (string, error) {
	query := `INSERT INTO tracks (
		track_id, title, normalized_title, artist_name,
		duration_ms, bpm, key_name, camelot_key, genre, label, isrc,
		spotify_id, tidal_id, musicbrainz_id, discogs_id, beatport_id,
		is_remix, is_mashup, is_live, is_cover, remix_type,
		bronze_id, data_quality_score, validation_status, created_at, updated_at
	) VALUES (
		:track_id, :title, :normalized_title, :artist_name,
		:duration_ms, :bpm, :key_name, :camelot_key, :genre, :label, :isrc,
		:spotify_id, :tidal_id, :musicbrainz_id, :discogs_id, :beatport_id,
		:is_remix, :is_mashup, :is_live, :is_cover, :remix_type,
		:bronze_id, :data_quality_score, :validation_status, :created_at, :updated_at
	)
	ON CONFLICT (artist_name, normalized_title) DO UPDATE SET
		duration_ms = COALESCE(tracks.duration_ms, EXCLUDED.duration_ms),
		bpm = COALESCE(tracks.bpm, EXCLUDED.bpm),
		key_name = COALESCE(tracks.key_name, EXCLUDED.key_name),
		camelot_key = COALESCE(tracks.camelot_key, EXCLUDED.camelot_key),
		genre = COALESCE(tracks.genre, EXCLUDED.genre),
		label = COALESCE(tracks.label, EXCLUDED.label),
		isrc = COALESCE(tracks.isrc, EXCLUDED.isrc),
		spotify_id = COALESCE(tracks.spotify_id, EXCLUDED.spotify_id),
		tidal_id = COALESCE(tracks.tidal_id, EXCLUDED.tidal_id),
		musicbrainz_id = COALESCE(tracks.musicbrainz_id, EXCLUDED.musicbrainz_id),
		discogs_id = COALESCE(tracks.discogs_id, EXCLUDED.discogs_id),
		beatport_id = COALESCE(tracks.beatport_id, EXCLUDED.beatport_id),
		data_quality_score = GREATEST(tracks.data_quality_score, EXCLUDED.data_quality_score),
		updated_at = EXCLUDED.updated_at
	RETURNING track_id`

	rows, err := db.NamedQuery(query, track)
	if err != nil {
		return "", fmt.Errorf("failed to upsert track: %w", err)
	}
	defer rows.Close() //nolint:errcheck // deferred cleanup

	var id string
	if rows.Next() {
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("failed to scan track id: %w", err)
		}
	} else if err := rows.Err(); err != nil {
		return "", fmt.Errorf("error iterating returning rows: %w", err)
	}
	return id, nil
}

func (db *DB) GetTrackByID(trackID string) (*domain.Track, error) {
	var track domain.Track
	if err := db.Get(&track, `SELECT * FROM tracks WHERE track_id = $1`, trackID); err != nil {
		return nil, err
	}
	return &track, nil
}

func (db *DB) GetTrackByISRC(isrc string) (*domain.Track, error) {
	var track domain.Track
	err := db.Get(&track, `SELECT * FROM tracks WHERE isrc = $1`, isrc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &track, nil
}

func (db *DB) GetTrackByArtistTitle(artistName, normalizedTitle string) (*domain.Track, error) {
	var track domain.Track
	err := db.Get(&track,
		`SELECT * FROM tracks WHERE artist_name = $1 AND normalized_title = $2`,
		artistName, normalizedTitle)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &track, nil
}

// FindTracksByTitle returns match candidates for the fuzzy cascade, widest
// net first: exact normalized title, then substring.
func (db *DB) FindTracksByTitle(normalizedTitle string, limit int) ([]*domain.Track, error) {
	query := `SELECT * FROM tracks
		WHERE normalized_title = $1 OR normalized_title LIKE '%' || $1 || '%'
		ORDER BY (normalized_title = $1) DESC, data_quality_score DESC
		LIMIT $2`
	var tracks []*domain.Track
	if err := db.Select(&tracks, query, normalizedTitle, limit); err != nil {
		return nil, fmt.Errorf("failed to find tracks by title: %w", err)
	}
	return tracks, nil
}

// ListTracksForEnrichment returns tracks whose waterfall has not completed,
// never-attempted tracks first.
func (db *DB) ListTracksForEnrichment(limit int) ([]*domain.Track, error) {
	query := `SELECT t.* FROM tracks t
		LEFT JOIN enrichment_status es ON es.track_id = t.track_id
		WHERE es.track_id IS NULL
			OR (es.status != 'completed' AND es.is_retriable)
		ORDER BY es.track_id IS NULL DESC, t.created_at ASC
		LIMIT $1`
	var tracks []*domain.Track
	if err := db.Select(&tracks, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list tracks for enrichment: %w", err)
	}
	return tracks, nil
}

// ListTracksNeedingArtist returns tracks whose artist is missing or a known
// placeholder, for the resolver.
func (db *DB) ListTracksNeedingArtist(limit int) ([]*domain.Track, error) {
	query := `SELECT * FROM tracks
		WHERE artist_name IN ('', 'id', 'unknown', 'unknown artist', 'various artists')
		ORDER BY created_at ASC
		LIMIT $1`
	var tracks []*domain.Track
	if err := db.Select(&tracks, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list tracks needing artist: %w", err)
	}
	return tracks, nil
}

func (db *DB) UpdateTrack(track *domain.Track) error {
	track.UpdatedAt = time.Now()

	query := `UPDATE tracks SET
		title = :title, normalized_title = :normalized_title, artist_name = :artist_name,
		duration_ms = :duration_ms, bpm = :bpm, key_name = :key_name, camelot_key = :camelot_key,
		genre = :genre, label = :label, isrc = :isrc,
		spotify_id = :spotify_id, tidal_id = :tidal_id, musicbrainz_id = :musicbrainz_id,
		discogs_id = :discogs_id, beatport_id = :beatport_id,
		is_remix = :is_remix, is_mashup = :is_mashup, is_live = :is_live, is_cover = :is_cover,
		remix_type = :remix_type, data_quality_score = :data_quality_score,
		validation_status = :validation_status, updated_at = :updated_at
	WHERE track_id = :track_id`

	result, err := db.NamedExec(query, track)
	if err != nil {
		return fmt.Errorf("failed to update track: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("track %s not found", track.TrackID)
	}
	return nil
}

func (db *DB) CountTracks() (int, error) {
	var n int
	err := db.Get(&n, `SELECT COUNT(*) FROM tracks`)
	return n, err
}

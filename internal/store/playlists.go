package store

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/setgraph/setgraph/internal/domain"
)

// UpsertPlaylist inserts a playlist or refreshes the row keyed by
// (source, source_url). Returns the surviving playlist id.
func (db *DB) UpsertPlaylist(playlist *domain.Playlist) (string, error) {
	query := `INSERT INTO playlists (
		playlist_id, name, source, source_url, dj_artist_id, event_date, venue,
		track_count, data_quality_score, created_at, updated_at
	) VALUES (
		:playlist_id, :name, :source, :source_url, :dj_artist_id, :event_date, :venue,
		:track_count, :data_quality_score, :created_at, :updated_at
	)
	ON CONFLICT (source, source_url) DO UPDATE SET
		name = EXCLUDED.name,
		dj_artist_id = COALESCE(playlists.dj_artist_id, EXCLUDED.dj_artist_id),
		event_date = COALESCE(playlists.event_date, EXCLUDED.event_date),
		venue = COALESCE(playlists.venue, EXCLUDED.venue),
		track_count = GREATEST(playlists.track_count, EXCLUDED.track_count),
		data_quality_score = GREATEST(playlists.data_quality_score, EXCLUDED.data_quality_score),
		updated_at = EXCLUDED.updated_at
	RETURNING playlist_id`

	rows, err := db.NamedQuery(query, playlist)
	if err != nil {
		return "", fmt.Errorf("failed to upsert playlist: %w", err)
	}
	defer rows.Close() //nolint:errcheck // deferred cleanup

	var id string
	if rows.Next() {
		if err := rows.Scan(&id); err != nil {
			return "", fmt.Errorf("failed to scan playlist id: %w", err)
		}
	} else if err := rows.Err(); err != nil {
		return "", fmt.Errorf("error iterating returning rows: %w", err)
	}
	return id, nil
}

func (db *DB) GetPlaylistByID(playlistID string) (*domain.Playlist, error) {
	var playlist domain.Playlist
	if err := db.Get(&playlist, `SELECT * FROM playlists WHERE playlist_id = $1`, playlistID); err != nil {
		return nil, err
	}
	return &playlist, nil
}

func (db *DB) GetPlaylistBySourceURL(source domain.Source, sourceURL string) (*domain.Playlist, error) {
	var playlist domain.Playlist
	err := db.Get(&playlist,
		`SELECT * FROM playlists WHERE source = $1 AND source_url = $2`,
		source, sourceURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &playlist, nil
}

// UpsertPlaylistTrack places a track at a position. Re-processing the same
// bronze replaces the occupant, keeping positions unique per playlist.
func (db *DB) UpsertPlaylistTrack(pt *domain.PlaylistTrack) error {
	query := `INSERT INTO playlist_tracks (playlist_id, position, track_id, created_at)
		VALUES (:playlist_id, :position, :track_id, :created_at)
		ON CONFLICT (playlist_id, position) DO UPDATE SET track_id = EXCLUDED.track_id`

	if _, err := db.NamedExec(query, pt); err != nil {
		return fmt.Errorf("failed to upsert playlist track: %w", err)
	}
	return nil
}

// ListPlaylistTracks returns a playlist's entries in position order.
func (db *DB) ListPlaylistTracks(playlistID string) ([]*domain.PlaylistTrack, error) {
	query := `SELECT * FROM playlist_tracks WHERE playlist_id = $1 ORDER BY position ASC`
	var pts []*domain.PlaylistTrack
	if err := db.Select(&pts, query, playlistID); err != nil {
		return nil, fmt.Errorf("failed to list playlist tracks: %w", err)
	}
	return pts, nil
}

func (db *DB) RefreshPlaylistTrackCount(playlistID string) error {
	query := `UPDATE playlists SET
		track_count = (SELECT COUNT(*) FROM playlist_tracks WHERE playlist_id = $1),
		updated_at = now()
	WHERE playlist_id = $1`
	if _, err := db.Exec(query, playlistID); err != nil {
		return fmt.Errorf("failed to refresh playlist track count: %w", err)
	}
	return nil
}

// PlaylistDJNames returns the normalized names of the DJs whose sets contain
// the track, where the playlist has an attributed DJ at all.
func (db *DB) PlaylistDJNames(trackID string) ([]string, error) {
	query := `SELECT a.normalized_name
		FROM playlist_tracks pt
		JOIN playlists p ON p.playlist_id = pt.playlist_id
		JOIN artists a ON a.artist_id = p.dj_artist_id
		WHERE pt.track_id = $1 AND p.dj_artist_id IS NOT NULL`
	var names []string
	if err := db.Select(&names, query, trackID); err != nil {
		return nil, fmt.Errorf("failed to list playlist djs: %w", err)
	}
	return names, nil
}

// NeighborTracks returns the tracks adjacent to one track in any playlist it
// appears in.
func (db *DB) NeighborTracks(trackID string) ([]*domain.Track, error) {
	query := `SELECT t.*
		FROM playlist_tracks pt
		JOIN playlist_tracks nb ON nb.playlist_id = pt.playlist_id
			AND abs(nb.position - pt.position) = 1
		JOIN tracks t ON t.track_id = nb.track_id
		WHERE pt.track_id = $1`
	var tracks []*domain.Track
	if err := db.Select(&tracks, query, trackID); err != nil {
		return nil, fmt.Errorf("failed to list neighbor tracks: %w", err)
	}
	return tracks, nil
}

func (db *DB) CountPlaylists() (int, error) {
	var n int
	err := db.Get(&n, `SELECT COUNT(*) FROM playlists`)
	return n, err
}

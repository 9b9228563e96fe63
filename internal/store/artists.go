package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/setgraph/setgraph/internal/domain"
)

// UpsertArtist inserts an artist or merges into the row with the same
// normalized name. Aliases and bronze lineage are unioned in Go before the
// write because jsonb set arithmetic is not worth the SQL.
func (db *DB) UpsertArtist(artist *domain.Artist) (string, error) {
	existing, err := db.GetArtistByNormalizedName(artist.NormalizedName)
	if err != nil {
		return "", err
	}
	if existing == nil {
		query := `INSERT INTO artists (
			artist_id, canonical_name, normalized_name, aliases,
			spotify_id, musicbrainz_id, discogs_id, bronze_ids, created_at, updated_at
		) VALUES (
			:artist_id, :canonical_name, :normalized_name, :aliases,
			:spotify_id, :musicbrainz_id, :discogs_id, :bronze_ids, :created_at, :updated_at
		)`
		if _, err := db.NamedExec(query, artist); err != nil {
			return "", fmt.Errorf("failed to insert artist: %w", err)
		}
		return artist.ArtistID, nil
	}

	existing.Aliases = unionStrings(existing.Aliases, artist.Aliases)
	existing.BronzeIDs = unionStrings(existing.BronzeIDs, artist.BronzeIDs)
	if existing.SpotifyID == nil {
		existing.SpotifyID = artist.SpotifyID
	}
	if existing.MusicBrainzID == nil {
		existing.MusicBrainzID = artist.MusicBrainzID
	}
	if existing.DiscogsID == nil {
		existing.DiscogsID = artist.DiscogsID
	}
	if err := db.UpdateArtist(existing); err != nil {
		return "", err
	}
	return existing.ArtistID, nil
}

func (db *DB) UpdateArtist(artist *domain.Artist) error {
	artist.UpdatedAt = time.Now()

	query := `UPDATE artists SET
		canonical_name = :canonical_name, aliases = :aliases,
		spotify_id = :spotify_id, musicbrainz_id = :musicbrainz_id, discogs_id = :discogs_id,
		bronze_ids = :bronze_ids, updated_at = :updated_at
	WHERE artist_id = :artist_id`

	result, err := db.NamedExec(query, artist)
	if err != nil {
		return fmt.Errorf("failed to update artist: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("artist %s not found", artist.ArtistID)
	}
	return nil
}

func (db *DB) GetArtistByID(artistID string) (*domain.Artist, error) {
	var artist domain.Artist
	if err := db.Get(&artist, `SELECT * FROM artists WHERE artist_id = $1`, artistID); err != nil {
		return nil, err
	}
	return &artist, nil
}

func (db *DB) GetArtistByNormalizedName(normalizedName string) (*domain.Artist, error) {
	var artist domain.Artist
	err := db.Get(&artist, `SELECT * FROM artists WHERE normalized_name = $1`, normalizedName)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &artist, nil
}

// FindArtistCandidates returns fuzzy-match candidates whose normalized name
// shares a prefix or substring with the query.
func (db *DB) FindArtistCandidates(normalizedName string, limit int) ([]*domain.Artist, error) {
	query := `SELECT * FROM artists
		WHERE normalized_name LIKE '%' || $1 || '%'
			OR $1 LIKE '%' || normalized_name || '%'
		ORDER BY (normalized_name = $1) DESC, length(normalized_name) ASC
		LIMIT $2`
	var artists []*domain.Artist
	if err := db.Select(&artists, query, normalizedName, limit); err != nil {
		return nil, fmt.Errorf("failed to find artist candidates: %w", err)
	}
	return artists, nil
}

func (db *DB) CountArtists() (int, error) {
	var n int
	err := db.Get(&n, `SELECT COUNT(*) FROM artists`)
	return n, err
}

func unionStrings(a, b domain.StringSlice) domain.StringSlice {
	seen := make(map[string]bool, len(a))
	out := make(domain.StringSlice, 0, len(a)+len(b))
	for _, s := range a {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	for _, s := range b {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

package observe

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/setgraph/setgraph/internal/domain"
	"github.com/setgraph/setgraph/internal/logger"
	"github.com/setgraph/setgraph/internal/store"
)

// GraphValidator checks the adjacency graph against each playlist: every
// consecutive pair of distinct-artist tracks must have produced a transition
// edge, so expected edges = consecutive pairs minus same-artist exceptions.
type GraphValidator struct {
	db  *store.DB
	log *logger.Logger
}

func NewGraphValidator(db *store.DB, log *logger.Logger) *GraphValidator {
	return &GraphValidator{
		db:  db,
		log: log.WithComponent("graph"),
	}
}

// ValidatePlaylist recomputes the edge-count invariant for one playlist and
// persists the result.
func (v *GraphValidator) ValidatePlaylist(playlistID string) (*store.GraphValidation, error) {
	entries, err := v.db.ListPlaylistTracks(playlistID)
	if err != nil {
		return nil, err
	}

	nodes := make(map[string]bool, len(entries))
	artists := make(map[string]string, len(entries))
	for _, e := range entries {
		if nodes[e.TrackID] {
			continue
		}
		nodes[e.TrackID] = true
		track, err := v.db.GetTrackByID(e.TrackID)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to load playlist track %s: %w", e.TrackID, err)
		}
		artists[e.TrackID] = track.ArtistName
	}

	pairs := 0
	exceptions := 0
	edges := 0
	for i := 1; i < len(entries); i++ {
		a, b := entries[i-1].TrackID, entries[i].TrackID
		pairs++
		if a == b || strings.EqualFold(artists[a], artists[b]) {
			exceptions++
			continue
		}
		var n int
		ca, cb := domain.CanonicalPair(a, b)
		if err := v.db.Get(&n,
			`SELECT COUNT(*) FROM track_transitions WHERE track_a_id = $1 AND track_b_id = $2`,
			ca, cb); err != nil {
			return nil, fmt.Errorf("failed to check transition: %w", err)
		}
		if n > 0 {
			edges++
		}
	}

	result := &store.GraphValidation{
		PlaylistID:           playlistID,
		Nodes:                len(nodes),
		Edges:                edges,
		ExpectedEdges:        pairs - exceptions,
		SameArtistExceptions: exceptions,
		Valid:                edges >= pairs-exceptions,
		RecordedAt:           time.Now(),
	}
	if err := v.db.InsertGraphValidation(result); err != nil {
		return nil, err
	}

	if !result.Valid {
		v.log.Warn("playlist graph incomplete",
			"playlist_id", playlistID,
			"edges", result.Edges,
			"expected_edges", result.ExpectedEdges,
		)
	}
	return result, nil
}

// ValidateRecent validates the most recently updated playlists.
func (v *GraphValidator) ValidateRecent(limit int) ([]*store.GraphValidation, error) {
	var ids []string
	if err := v.db.Select(&ids,
		`SELECT playlist_id FROM playlists ORDER BY updated_at DESC LIMIT $1`, limit); err != nil {
		return nil, fmt.Errorf("failed to list playlists for validation: %w", err)
	}

	out := make([]*store.GraphValidation, 0, len(ids))
	for _, id := range ids {
		result, err := v.ValidatePlaylist(id)
		if err != nil {
			return out, err
		}
		out = append(out, result)
	}
	return out, nil
}

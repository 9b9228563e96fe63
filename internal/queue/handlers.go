package queue

import (
	"context"
	"fmt"

	"github.com/setgraph/setgraph/internal/domain"
	"github.com/setgraph/setgraph/internal/normalize"
	"github.com/setgraph/setgraph/internal/store"
)

// Enricher is the waterfall surface the enrich handler needs.
type Enricher interface {
	Enrich(ctx context.Context, track *domain.Track) (*domain.EnrichmentStatus, error)
}

// Resolver is the artist-resolution surface the resolve handler needs.
type Resolver interface {
	ResolveUnknownArtist(ctx context.Context, track *domain.Track) (artist string, confidence float64, err error)
}

// EnrichHandler runs the waterfall over the task's track.
func EnrichHandler(db *store.DB, enricher Enricher) Handler {
	return func(ctx context.Context, task *domain.Task) error {
		track, err := db.GetTrackByID(task.TrackID)
		if err != nil {
			return fmt.Errorf("failed to load track %s: %w", task.TrackID, err)
		}
		status, err := enricher.Enrich(ctx, track)
		if err != nil {
			return err
		}
		if status.Status == domain.EnrichmentFailed && status.IsRetriable {
			return domain.NewNetworkError(domain.Source("enrich"),
				fmt.Errorf("waterfall produced no sources: %s", deref(status.ErrorMessage)))
		}
		return nil
	}
}

// ResolveHandler runs the multi-tier resolver over the task's track and
// writes a successful resolution back to silver.
func ResolveHandler(db *store.DB, resolver Resolver) Handler {
	return func(ctx context.Context, task *domain.Task) error {
		track, err := db.GetTrackByID(task.TrackID)
		if err != nil {
			return fmt.Errorf("failed to load track %s: %w", task.TrackID, err)
		}

		artist, _, err := resolver.ResolveUnknownArtist(ctx, track)
		if err != nil {
			return err
		}
		if artist == "" {
			// Every tier came up empty; that is an answer, not a failure.
			return nil
		}

		track.ArtistName = normalize.NormalizeArtist(artist)
		if err := db.UpdateTrack(track); err != nil {
			return fmt.Errorf("failed to persist resolved artist: %w", err)
		}
		return nil
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package scrape

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/setgraph/setgraph/internal/domain"
)

// NewBronze builds a bronze record for an adapter parse result. The natural
// key deduplicates re-scrapes of the same thing; for playlists it is the URL
// hash, for tracks the position within their playlist.
func NewBronze(source domain.Source, scrapeType domain.ScrapeType, naturalKey string, payload domain.JSONMap) domain.RawScrape {
	return domain.RawScrape{
		ScrapeID:   uuid.New().String(),
		Source:     source,
		ScrapeType: scrapeType,
		NaturalKey: naturalKey,
		RawData:    payload,
		ScrapedAt:  time.Now().UTC(),
	}
}

// HashKey derives a stable natural key from free-form parts.
func HashKey(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		h.Write([]byte(p))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:32]
}

// PlaylistBronze emits the standard bronze fan-out for one parsed playlist:
// the playlist row, one track row and one playlist_track row per entry, and
// a track_adjacency row per consecutive pair. Entries are raw "Artist -
// Title" strings in playlist order.
func PlaylistBronze(source domain.Source, pageURL, name string, entries []string, extra domain.JSONMap) []domain.RawScrape {
	urlKey := HashKey(pageURL)

	playlistPayload := domain.JSONMap{
		"name":       name,
		"source_url": pageURL,
	}
	for k, v := range extra {
		playlistPayload[k] = v
	}

	out := []domain.RawScrape{
		NewBronze(source, domain.ScrapeTypePlaylist, urlKey, playlistPayload),
	}

	for i, entry := range entries {
		trackKey := HashKey(pageURL, "track", entry)
		out = append(out, NewBronze(source, domain.ScrapeTypeTrack, trackKey, domain.JSONMap{
			"raw_title":    entry,
			"playlist_url": pageURL,
			"position":     i,
		}))
		out = append(out, NewBronze(source, domain.ScrapeTypePlaylistTrack, HashKey(pageURL, "pt", entry, strconv.Itoa(i)), domain.JSONMap{
			"playlist_name": name,
			"playlist_url":  pageURL,
			"raw_title":     entry,
			"position":      i,
		}))
		if i > 0 {
			out = append(out, NewBronze(source, domain.ScrapeTypeTrackAdjacency, HashKey(pageURL, "adj", strconv.Itoa(i)), domain.JSONMap{
				"playlist_url": pageURL,
				"from_title":   entries[i-1],
				"to_title":     entry,
				"distance":     1,
			}))
		}
	}
	return out
}

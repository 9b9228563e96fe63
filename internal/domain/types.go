package domain

import (
	"database/sql/driver"
	"encoding/json"
)

// Source identifies a third-party site or API the pipeline harvests from.
type Source string

const (
	SourceTracklists1001 Source = "1001tracklists"
	SourceMixesDB        Source = "mixesdb"
	SourceSetlistFM      Source = "setlistfm"
	SourceReddit         Source = "reddit"
	SourceSpotify        Source = "spotify"
	SourceTidal          Source = "tidal"
	SourceMusicBrainz    Source = "musicbrainz"
	SourceDiscogs        Source = "discogs"
	SourceLastFM         Source = "lastfm"
	SourceAcousticBrainz Source = "acousticbrainz"
	SourceGetSongBPM     Source = "getsongbpm"
	SourceBeatport       Source = "beatport"
	SourceAppleMusic     Source = "apple_music"
	SourceSoundCloud     Source = "soundcloud"
	SourceDeezer         Source = "deezer"
	SourceYouTubeMusic   Source = "youtube_music"
)

// KnownSources lists every source identifier the bronze store accepts.
var KnownSources = []Source{
	SourceTracklists1001, SourceMixesDB, SourceSetlistFM, SourceReddit,
	SourceSpotify, SourceTidal, SourceMusicBrainz, SourceDiscogs,
	SourceLastFM, SourceAcousticBrainz, SourceGetSongBPM, SourceBeatport,
	SourceAppleMusic, SourceSoundCloud, SourceDeezer, SourceYouTubeMusic,
}

func (s Source) Valid() bool {
	for _, k := range KnownSources {
		if s == k {
			return true
		}
	}
	return false
}

// ScrapeType tags a bronze record with the kind of entity its payload carries.
type ScrapeType string

const (
	ScrapeTypeArtist         ScrapeType = "artist"
	ScrapeTypeTrack          ScrapeType = "track"
	ScrapeTypePlaylist       ScrapeType = "playlist"
	ScrapeTypePlaylistTrack  ScrapeType = "playlist_track"
	ScrapeTypeTrackArtist    ScrapeType = "track_artist"
	ScrapeTypeTrackAdjacency ScrapeType = "track_adjacency"
)

// TransformOrder is the dependency order the transformer processes scrape
// types in. Parents come before children: a playlist_track row needs both its
// playlist and its track to already exist in silver.
var TransformOrder = []ScrapeType{
	ScrapeTypeArtist,
	ScrapeTypeTrack,
	ScrapeTypePlaylist,
	ScrapeTypePlaylistTrack,
	ScrapeTypeTrackAdjacency,
	ScrapeTypeTrackArtist,
}

func (t ScrapeType) Valid() bool {
	switch t {
	case ScrapeTypeArtist, ScrapeTypeTrack, ScrapeTypePlaylist,
		ScrapeTypePlaylistTrack, ScrapeTypeTrackArtist, ScrapeTypeTrackAdjacency:
		return true
	}
	return false
}

// ArtistRole describes how an artist relates to a track.
type ArtistRole string

const (
	RolePrimary  ArtistRole = "primary"
	RoleFeatured ArtistRole = "featured"
	RoleRemixer  ArtistRole = "remixer"
	RoleProducer ArtistRole = "producer"
)

func (r ArtistRole) Valid() bool {
	switch r {
	case RolePrimary, RoleFeatured, RoleRemixer, RoleProducer:
		return true
	}
	return false
}

// EnrichmentState is the lifecycle state of a track's enrichment record.
type EnrichmentState string

const (
	EnrichmentPending   EnrichmentState = "pending"
	EnrichmentCompleted EnrichmentState = "completed"
	EnrichmentPartial   EnrichmentState = "partial"
	EnrichmentFailed    EnrichmentState = "failed"
)

// ConfidenceTier buckets a numeric confidence score.
type ConfidenceTier string

const (
	TierHigh       ConfidenceTier = "high"
	TierMedium     ConfidenceTier = "medium"
	TierLow        ConfidenceTier = "low"
	TierUnreliable ConfidenceTier = "unreliable"
)

// TierFor buckets a score: >=0.85 high, >=0.70 medium, >=0.50 low,
// else unreliable.
func TierFor(score float64) ConfidenceTier {
	switch {
	case score >= 0.85:
		return TierHigh
	case score >= 0.70:
		return TierMedium
	case score >= 0.50:
		return TierLow
	default:
		return TierUnreliable
	}
}

// ValidationStatus classifies a silver track by its quality score.
type ValidationStatus string

const (
	ValidationValid       ValidationStatus = "valid"
	ValidationWarning     ValidationStatus = "warning"
	ValidationNeedsReview ValidationStatus = "needs_review"
)

// ValidationFor maps a quality score to a status: >=0.7 valid, >=0.4
// warning, else needs_review.
func ValidationFor(score float64) ValidationStatus {
	switch {
	case score >= 0.7:
		return ValidationValid
	case score >= 0.4:
		return ValidationWarning
	default:
		return ValidationNeedsReview
	}
}

// TaskType identifies the kind of work a queued task performs.
type TaskType string

const (
	TaskEnrichTrack   TaskType = "enrich_track"
	TaskResolveArtist TaskType = "resolve_artist"
)

// TaskStatus is the lifecycle state of a queued task.
type TaskStatus string

const (
	TaskStatusQueued    TaskStatus = "queued"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusDead      TaskStatus = "dead"
)

// StringSlice stores a []string as a JSON column.
type StringSlice []string

func (s StringSlice) Value() (driver.Value, error) {
	if len(s) == 0 {
		return "[]", nil
	}
	return json.Marshal(s)
}

func (s *StringSlice) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return nil
	}

	if len(data) == 0 || string(data) == "null" {
		*s = nil
		return nil
	}

	return json.Unmarshal(data, s)
}

// JSONMap stores an opaque structured payload as a JSON column.
type JSONMap map[string]interface{}

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	return json.Marshal(m)
}

func (m *JSONMap) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return nil
	}

	if len(data) == 0 || string(data) == "null" {
		*m = nil
		return nil
	}

	return json.Unmarshal(data, m)
}

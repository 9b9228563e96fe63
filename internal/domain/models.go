package domain

import (
	"time"
)

// RawScrape is one bronze row: a verbatim harvested payload. raw_data is
// never mutated after insert; the transformer only flips the processed flag.
type RawScrape struct {
	ScrapeID    string     `json:"scrape_id" db:"scrape_id"`
	Source      Source     `json:"source" db:"source"`
	ScrapeType  ScrapeType `json:"scrape_type" db:"scrape_type"`
	NaturalKey  string     `json:"natural_key" db:"natural_key"`
	RawData     JSONMap    `json:"raw_data" db:"raw_data"`
	ScrapedAt   time.Time  `json:"scraped_at" db:"scraped_at"`
	Processed   bool       `json:"processed" db:"processed"`
	ProcessedAt *time.Time `json:"processed_at,omitempty" db:"processed_at"`
}

// Track is a silver track entity.
type Track struct { //nolint:govet // field ordering prioritizes readability over memory alignment
	TrackID          string           `json:"track_id" db:"track_id"`
	Title            string           `json:"title" db:"title"`
	NormalizedTitle  string           `json:"normalized_title" db:"normalized_title"`
	ArtistName       string           `json:"artist_name" db:"artist_name"`
	DurationMS       *int             `json:"duration_ms,omitempty" db:"duration_ms"`
	BPM              *float64         `json:"bpm,omitempty" db:"bpm"`
	Key              *string          `json:"key,omitempty" db:"key_name"`
	CamelotKey       *string          `json:"camelot_key,omitempty" db:"camelot_key"`
	Genre            *string          `json:"genre,omitempty" db:"genre"`
	Label            *string          `json:"label,omitempty" db:"label"`
	ISRC             *string          `json:"isrc,omitempty" db:"isrc"`
	SpotifyID        *string          `json:"spotify_id,omitempty" db:"spotify_id"`
	TidalID          *string          `json:"tidal_id,omitempty" db:"tidal_id"`
	MusicBrainzID    *string          `json:"musicbrainz_id,omitempty" db:"musicbrainz_id"`
	DiscogsID        *string          `json:"discogs_id,omitempty" db:"discogs_id"`
	BeatportID       *string          `json:"beatport_id,omitempty" db:"beatport_id"`
	IsRemix          bool             `json:"is_remix" db:"is_remix"`
	IsMashup         bool             `json:"is_mashup" db:"is_mashup"`
	IsLive           bool             `json:"is_live" db:"is_live"`
	IsCover          bool             `json:"is_cover" db:"is_cover"`
	RemixType        *string          `json:"remix_type,omitempty" db:"remix_type"`
	BronzeID         string           `json:"bronze_id" db:"bronze_id"`
	DataQualityScore float64          `json:"data_quality_score" db:"data_quality_score"`
	ValidationStatus ValidationStatus `json:"validation_status" db:"validation_status"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at" db:"updated_at"`
}

// ClampBPM forces bpm into the plausible [60, 200] range.
func ClampBPM(bpm float64) float64 {
	if bpm < 60 {
		return 60
	}
	if bpm > 200 {
		return 200
	}
	return bpm
}

// Artist is a silver artist entity. BronzeIDs is lineage, not ownership.
type Artist struct {
	ArtistID       string      `json:"artist_id" db:"artist_id"`
	CanonicalName  string      `json:"canonical_name" db:"canonical_name"`
	NormalizedName string      `json:"normalized_name" db:"normalized_name"`
	Aliases        StringSlice `json:"aliases" db:"aliases"`
	SpotifyID      *string     `json:"spotify_id,omitempty" db:"spotify_id"`
	MusicBrainzID  *string     `json:"musicbrainz_id,omitempty" db:"musicbrainz_id"`
	DiscogsID      *string     `json:"discogs_id,omitempty" db:"discogs_id"`
	BronzeIDs      StringSlice `json:"bronze_ids" db:"bronze_ids"`
	CreatedAt      time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at" db:"updated_at"`
}

// Playlist is a silver playlist (a tracklist, setlist or mix).
type Playlist struct {
	PlaylistID       string     `json:"playlist_id" db:"playlist_id"`
	Name             string     `json:"name" db:"name"`
	Source           Source     `json:"source" db:"source"`
	SourceURL        *string    `json:"source_url,omitempty" db:"source_url"`
	DJArtistID       *string    `json:"dj_artist_id,omitempty" db:"dj_artist_id"`
	EventDate        *time.Time `json:"event_date,omitempty" db:"event_date"`
	Venue            *string    `json:"venue,omitempty" db:"venue"`
	TrackCount       int        `json:"track_count" db:"track_count"`
	DataQualityScore float64    `json:"data_quality_score" db:"data_quality_score"`
	CreatedAt        time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at" db:"updated_at"`
}

// PlaylistTrack places a track at a position inside a playlist. Positions are
// zero-based and monotonic; gaps are allowed.
type PlaylistTrack struct {
	PlaylistID string    `json:"playlist_id" db:"playlist_id"`
	Position   int       `json:"position" db:"position"`
	TrackID    string    `json:"track_id" db:"track_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// TrackTransition is an unordered adjacency edge between two tracks observed
// consecutively in playlists. The pair is canonicalized so TrackA < TrackB.
type TrackTransition struct {
	TrackA          string    `json:"track_a_id" db:"track_a_id"`
	TrackB          string    `json:"track_b_id" db:"track_b_id"`
	OccurrenceCount int       `json:"occurrence_count" db:"occurrence_count"`
	AvgDistance     float64   `json:"avg_distance" db:"avg_distance"`
	LastObservedAt  time.Time `json:"last_observed_at" db:"last_observed_at"`
}

// CanonicalPair orders two track ids so a < b.
func CanonicalPair(a, b string) (string, string) {
	if a < b {
		return a, b
	}
	return b, a
}

// TrackArtist links a track to an artist with a role.
type TrackArtist struct {
	TrackID   string     `json:"track_id" db:"track_id"`
	ArtistID  string     `json:"artist_id" db:"artist_id"`
	Role      ArtistRole `json:"role" db:"role"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
}

// EnrichmentStatus is the per-track audit record of the enrichment waterfall.
type EnrichmentStatus struct {
	TrackID         string          `json:"track_id" db:"track_id"`
	Status          EnrichmentState `json:"status" db:"status"`
	SourcesEnriched StringSlice     `json:"sources_enriched" db:"sources_enriched"`
	RetryCount      int             `json:"retry_count" db:"retry_count"`
	LastAttempt     time.Time       `json:"last_attempt" db:"last_attempt"`
	IsRetriable     bool            `json:"is_retriable" db:"is_retriable"`
	ErrorMessage    *string         `json:"error_message,omitempty" db:"error_message"`
	ConfidenceScore float64         `json:"confidence_score" db:"confidence_score"`
	ConfidenceTier  ConfidenceTier  `json:"confidence_tier" db:"confidence_tier"`
}

// TargetTrack is a scheduler seed: a canonical search query the scrapers
// rotate through.
type TargetTrack struct {
	TargetID       string     `json:"target_id" db:"target_id"`
	ArtistName     string     `json:"artist_name" db:"artist_name"`
	Title          string     `json:"title" db:"title"`
	Priority       int        `json:"priority" db:"priority"`
	Enabled        bool       `json:"enabled" db:"enabled"`
	LastSearchedAt *time.Time `json:"last_searched_at,omitempty" db:"last_searched_at"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
}

// Query is the search string passed to a source adapter for this seed.
func (t TargetTrack) Query() string {
	if t.ArtistName == "" {
		return t.Title
	}
	return t.ArtistName + " " + t.Title
}

// ScrapeRun is one scheduler-driven run of a source, tracked for
// observability.
type ScrapeRun struct {
	RunID          string     `json:"run_id" db:"run_id"`
	Source         Source     `json:"source" db:"source"`
	StartedAt      time.Time  `json:"started_at" db:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty" db:"finished_at"`
	Status         string     `json:"status" db:"status"`
	PlaylistsFound int        `json:"playlists_found" db:"playlists_found"`
	TracksAdded    int        `json:"tracks_added" db:"tracks_added"`
	ArtistsAdded   int        `json:"artists_added" db:"artists_added"`
	ErrorsCount    int        `json:"errors_count" db:"errors_count"`
}

// Task is one durable work item for the dispatcher.
type Task struct {
	TaskID      string     `json:"task_id" db:"task_id"`
	Type        TaskType   `json:"type" db:"type"`
	TrackID     string     `json:"track_id" db:"track_id"`
	Priority    int        `json:"priority" db:"priority"`
	Status      TaskStatus `json:"status" db:"status"`
	Attempts    int        `json:"attempts" db:"attempts"`
	NotBefore   *time.Time `json:"not_before,omitempty" db:"not_before"`
	LastError   *string    `json:"last_error,omitempty" db:"last_error"`
	CreatedAt   time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at" db:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty" db:"completed_at"`
}

// Package transform promotes bronze scrapes into silver entities. Processing
// is dependency-ordered so that every lookup a later scrape type performs
// already has its referents in place.
package transform

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/setgraph/setgraph/internal/camelot"
	"github.com/setgraph/setgraph/internal/domain"
	"github.com/setgraph/setgraph/internal/logger"
	"github.com/setgraph/setgraph/internal/normalize"
	"github.com/setgraph/setgraph/internal/store"
)

const defaultBatchLimit = 500

// Transformer reads unprocessed bronze rows and writes silver rows. A bronze
// row is marked processed iff it produced silver or was skipped as invalid;
// malformed rows stay unprocessed for retry after adapter fixes.
type Transformer struct {
	db  *store.DB
	log *logger.Logger
}

// Result counts one transformer pass.
type Result struct {
	Processed        int `json:"processed"`
	SkippedInvalid   int `json:"skipped_invalid"`
	Errors           int `json:"errors"`
	TracksAdded      int `json:"tracks_added"`
	ArtistsAdded     int `json:"artists_added"`
	PlaylistsAdded   int `json:"playlists_added"`
	TransitionsAdded int `json:"transitions_added"`
}

func New(db *store.DB, log *logger.Logger) *Transformer {
	return &Transformer{db: db, log: log.WithComponent("transformer")}
}

// Run performs one full pass over the backlog, one scrape type at a time in
// dependency order. limit bounds the rows read per type; zero means the
// default batch size. dryRun parses and validates without writing.
func (t *Transformer) Run(ctx context.Context, limit int, dryRun bool) (*Result, error) {
	if limit <= 0 {
		limit = defaultBatchLimit
	}

	res := &Result{}
	for _, scrapeType := range domain.TransformOrder {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		recs, err := t.db.ListUnprocessed(scrapeType, limit)
		if err != nil {
			return res, fmt.Errorf("failed to read bronze backlog: %w", err)
		}
		for _, rec := range recs {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			t.processOne(rec, res, dryRun)
		}
	}

	t.log.Info("transform pass complete",
		"processed", res.Processed,
		"skipped_invalid", res.SkippedInvalid,
		"errors", res.Errors,
		"tracks_added", res.TracksAdded,
	)
	return res, nil
}

func (t *Transformer) processOne(rec *domain.RawScrape, res *Result, dryRun bool) {
	payload := expandNested(rec.RawData)

	var err error
	var skipped bool
	switch rec.ScrapeType {
	case domain.ScrapeTypeArtist:
		skipped, err = t.transformArtist(rec, payload, res, dryRun)
	case domain.ScrapeTypeTrack:
		skipped, err = t.transformTrack(rec, payload, res, dryRun)
	case domain.ScrapeTypePlaylist:
		skipped, err = t.transformPlaylist(rec, payload, res, dryRun)
	case domain.ScrapeTypePlaylistTrack:
		skipped, err = t.transformPlaylistTrack(rec, payload, dryRun)
	case domain.ScrapeTypeTrackAdjacency:
		skipped, err = t.transformAdjacency(rec, payload, res, dryRun)
	case domain.ScrapeTypeTrackArtist:
		skipped, err = t.transformTrackArtist(rec, payload, res, dryRun)
	default:
		skipped = true
	}

	if err != nil {
		res.Errors++
		t.log.Error("bronze record failed", "scrape_id", rec.ScrapeID, "scrape_type", rec.ScrapeType, "error", err)
		return
	}
	if skipped {
		res.SkippedInvalid++
	}
	res.Processed++
	if !dryRun {
		if err := t.db.MarkProcessed(rec.ScrapeID); err != nil {
			res.Errors++
			t.log.Error("failed to mark processed", "scrape_id", rec.ScrapeID, "error", err)
		}
	}
}

func (t *Transformer) transformArtist(rec *domain.RawScrape, payload domain.JSONMap, res *Result, dryRun bool) (bool, error) {
	name := str(payload, "name", "artist", "artist_name")
	if name == "" {
		return true, nil
	}
	if dryRun {
		return false, nil
	}
	_, err := t.upsertArtistByName(name, rec.ScrapeID)
	if err != nil {
		return false, err
	}
	res.ArtistsAdded++
	return false, nil
}

func (t *Transformer) transformTrack(rec *domain.RawScrape, payload domain.JSONMap, res *Result, dryRun bool) (bool, error) {
	artist, title := trackIdentity(payload)
	if artist == "" || title == "" {
		return true, nil
	}
	if dryRun {
		return false, nil
	}

	now := time.Now()
	track := &domain.Track{
		TrackID:         uuid.New().String(),
		Title:           title,
		NormalizedTitle: normalize.NormalizeTitleOnly(title, true).Title,
		ArtistName:      normalize.NormalizeArtist(artist),
		BronzeID:        rec.ScrapeID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	parsed := normalize.NormalizeTrackString(artist + " - " + title)
	track.IsRemix = parsed.IsRemix
	if parsed.RemixType != "" {
		rt := parsed.RemixType
		track.RemixType = &rt
	}
	track.IsMashup = strings.Contains(strings.ToLower(title), " vs ") || strings.Contains(strings.ToLower(title), " vs. ")
	track.IsLive = strings.Contains(strings.ToLower(title), "(live")

	if v, ok := floatVal(payload, "bpm"); ok {
		bpm := domain.ClampBPM(v)
		track.BPM = &bpm
	}
	if v, ok := intVal(payload, "duration_ms", "duration"); ok {
		track.DurationMS = &v
	}
	if s := str(payload, "key", "key_name"); s != "" {
		track.Key = &s
		if ck, err := camelot.FromKeyName(s); err == nil {
			camelotKey := string(ck)
			track.CamelotKey = &camelotKey
		}
	}
	if s := str(payload, "genre"); s != "" {
		track.Genre = &s
	}
	if s := str(payload, "label"); s != "" {
		track.Label = &s
	}
	if s := str(payload, "isrc"); s != "" {
		track.ISRC = &s
	}

	track.DataQualityScore = QualityScore(track)
	track.ValidationStatus = domain.ValidationFor(track.DataQualityScore)

	// ISRC uniqueness: merge into the track that already owns the code.
	if track.ISRC != nil {
		owner, err := t.db.GetTrackByISRC(*track.ISRC)
		if err != nil {
			return false, err
		}
		if owner != nil {
			mergeInto(owner, track)
			if err := t.db.UpdateTrack(owner); err != nil {
				return false, err
			}
			return false, nil
		}
	}

	if _, err := t.db.UpsertTrack(track); err != nil {
		return false, err
	}
	res.TracksAdded++
	return false, nil
}

func (t *Transformer) transformPlaylist(rec *domain.RawScrape, payload domain.JSONMap, res *Result, dryRun bool) (bool, error) {
	name := str(payload, "name", "playlist_name")
	if name == "" {
		return true, nil
	}
	if dryRun {
		return false, nil
	}

	now := time.Now()
	playlist := &domain.Playlist{
		PlaylistID: stablePlaylistID(name, rec.Source),
		Name:       name,
		Source:     rec.Source,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if s := str(payload, "source_url", "url"); s != "" {
		playlist.SourceURL = &s
	}
	if s := str(payload, "venue", "location"); s != "" {
		playlist.Venue = &s
	}
	if s := str(payload, "event_date", "date"); s != "" {
		if d, ok := parseDate(s); ok {
			playlist.EventDate = &d
		}
	}

	if _, err := t.db.UpsertPlaylist(playlist); err != nil {
		return false, err
	}
	res.PlaylistsAdded++
	return false, nil
}

func (t *Transformer) transformPlaylistTrack(rec *domain.RawScrape, payload domain.JSONMap, dryRun bool) (bool, error) {
	rawTitle := str(payload, "raw_title", "title")
	position, havePos := intVal(payload, "position")
	if rawTitle == "" || !havePos {
		return true, nil
	}

	playlist, err := t.resolvePlaylist(rec.Source, payload)
	if err != nil {
		return false, err
	}
	if playlist == nil {
		return false, fmt.Errorf("playlist not found for scrape %s", rec.ScrapeID)
	}

	track, err := t.resolveTrackByRawTitle(rawTitle)
	if err != nil {
		return false, err
	}
	if track == nil {
		return true, nil
	}
	if dryRun {
		return false, nil
	}

	pt := &domain.PlaylistTrack{
		PlaylistID: playlist.PlaylistID,
		Position:   position,
		TrackID:    track.TrackID,
		CreatedAt:  time.Now(),
	}
	if err := t.db.UpsertPlaylistTrack(pt); err != nil {
		return false, err
	}
	return false, t.db.RefreshPlaylistTrackCount(playlist.PlaylistID)
}

func (t *Transformer) transformAdjacency(rec *domain.RawScrape, payload domain.JSONMap, res *Result, dryRun bool) (bool, error) {
	fromTitle := str(payload, "from_title")
	toTitle := str(payload, "to_title")
	if fromTitle == "" || toTitle == "" {
		return true, nil
	}

	from, err := t.resolveTrackByRawTitle(fromTitle)
	if err != nil {
		return false, err
	}
	to, err := t.resolveTrackByRawTitle(toTitle)
	if err != nil {
		return false, err
	}
	if from == nil || to == nil {
		return true, nil
	}
	if from.TrackID == to.TrackID {
		return true, nil
	}
	// Consecutive tracks by the same artist are an editing artifact of DJ
	// mixes, not a transition between acts.
	if strings.EqualFold(from.ArtistName, to.ArtistName) {
		return true, nil
	}
	if dryRun {
		return false, nil
	}

	distance := 1.0
	if v, ok := floatVal(payload, "distance"); ok && v > 0 {
		distance = v
	}
	if err := t.db.RecordTransition(from.TrackID, to.TrackID, distance); err != nil {
		return false, err
	}
	res.TransitionsAdded++
	return false, nil
}

func (t *Transformer) transformTrackArtist(rec *domain.RawScrape, payload domain.JSONMap, res *Result, dryRun bool) (bool, error) {
	artistName := str(payload, "artist", "artist_name")
	rawTitle := str(payload, "raw_title", "title")
	if artistName == "" || rawTitle == "" {
		return true, nil
	}
	if dryRun {
		return false, nil
	}

	artistID, err := t.upsertArtistByName(artistName, rec.ScrapeID)
	if err != nil {
		return false, err
	}
	res.ArtistsAdded++

	track, err := t.resolveTrackByRawTitle(rawTitle)
	if err != nil {
		return false, err
	}
	if track == nil {
		return true, nil
	}

	role := domain.ArtistRole(str(payload, "role"))
	if !role.Valid() {
		role = domain.RolePrimary
	}
	return false, t.db.UpsertTrackArtist(&domain.TrackArtist{
		TrackID:   track.TrackID,
		ArtistID:  artistID,
		Role:      role,
		CreatedAt: time.Now(),
	})
}

func (t *Transformer) upsertArtistByName(name, bronzeID string) (string, error) {
	canonical := strings.TrimSpace(name)
	now := time.Now()
	artist := &domain.Artist{
		ArtistID:       uuid.New().String(),
		CanonicalName:  canonical,
		NormalizedName: normalize.NormalizeArtist(canonical),
		Aliases:        domain.StringSlice{canonical},
		BronzeIDs:      domain.StringSlice{bronzeID},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	return t.db.UpsertArtist(artist)
}

func (t *Transformer) resolvePlaylist(source domain.Source, payload domain.JSONMap) (*domain.Playlist, error) {
	if u := str(payload, "playlist_url", "source_url"); u != "" {
		p, err := t.db.GetPlaylistBySourceURL(source, u)
		if err != nil || p != nil {
			return p, err
		}
	}
	if name := str(payload, "playlist_name", "name"); name != "" {
		var p domain.Playlist
		err := t.db.Get(&p, `SELECT * FROM playlists WHERE source = $1 AND name = $2 LIMIT 1`, source, name)
		if err == nil {
			return &p, nil
		}
	}
	return nil, nil
}

// resolveTrackByRawTitle parses a raw "Artist - Title" string and looks the
// track up by its canonical key, falling back to exact normalized title.
func (t *Transformer) resolveTrackByRawTitle(raw string) (*domain.Track, error) {
	parsed := normalize.NormalizeTrackString(raw)
	if parsed.Artist != "" && parsed.Title != "" {
		track, err := t.db.GetTrackByArtistTitle(parsed.Artist, parsed.Title)
		if err != nil || track != nil {
			return track, err
		}
	}

	title := parsed.Title
	if title == "" {
		title = normalize.NormalizeTitleOnly(raw, true).Title
	}
	candidates, err := t.db.FindTracksByTitle(title, 1)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}
	return candidates[0], nil
}

// QualityScore weighs field presence: required fields 0.2 each, high-value
// optionals 0.1 each, medium optionals 0.067 each, capped at 1.0.
func QualityScore(track *domain.Track) float64 {
	score := 0.0
	if track.Title != "" {
		score += 0.2
	}
	if track.ArtistName != "" {
		score += 0.2
	}
	if track.BPM != nil {
		score += 0.1
	}
	if track.Key != nil {
		score += 0.1
	}
	if track.Genre != nil {
		score += 0.1
	}
	if track.Label != nil {
		score += 0.1
	}
	if track.IsRemix {
		score += 0.067
	}
	if track.RemixType != nil {
		score += 0.067
	}
	if track.DurationMS != nil {
		score += 0.067
	}
	if score > 1.0 {
		score = 1.0
	}
	return score
}

func mergeInto(dst, src *domain.Track) {
	if dst.DurationMS == nil {
		dst.DurationMS = src.DurationMS
	}
	if dst.BPM == nil {
		dst.BPM = src.BPM
	}
	if dst.Key == nil {
		dst.Key = src.Key
	}
	if dst.CamelotKey == nil {
		dst.CamelotKey = src.CamelotKey
	}
	if dst.Genre == nil {
		dst.Genre = src.Genre
	}
	if dst.Label == nil {
		dst.Label = src.Label
	}
	if src.DataQualityScore > dst.DataQualityScore {
		dst.DataQualityScore = src.DataQualityScore
		dst.ValidationStatus = src.ValidationStatus
	}
}

// stablePlaylistID hashes (name, source) so re-scrapes of the same playlist
// land on the same id.
func stablePlaylistID(name string, source domain.Source) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(string(source)+"\x00"+name)).String()
}

func trackIdentity(payload domain.JSONMap) (artist, title string) {
	if raw := str(payload, "raw_title"); raw != "" {
		parsed := normalize.NormalizeTrackString(raw)
		return parsed.Artist, parsed.Title
	}
	return str(payload, "artist", "artist_name"), str(payload, "title")
}

// expandNested re-parses JSON strings nested inside the payload, one pass
// per level, so adapters that double-encode still transform cleanly.
func expandNested(m domain.JSONMap) domain.JSONMap {
	out := make(domain.JSONMap, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case string:
			trimmed := strings.TrimSpace(val)
			if strings.HasPrefix(trimmed, "{") {
				var nested map[string]interface{}
				if err := json.Unmarshal([]byte(trimmed), &nested); err == nil {
					out[k] = expandNested(nested)
					continue
				}
			}
			if strings.HasPrefix(trimmed, "[") {
				var nested []interface{}
				if err := json.Unmarshal([]byte(trimmed), &nested); err == nil {
					out[k] = nested
					continue
				}
			}
			out[k] = v
		case map[string]interface{}:
			out[k] = expandNested(val)
		default:
			out[k] = v
		}
	}
	return out
}

var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

func parseDate(s string) (time.Time, bool) {
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

func str(m domain.JSONMap, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func floatVal(m domain.JSONMap, keys ...string) (float64, bool) {
	for _, k := range keys {
		switch v := m[k].(type) {
		case float64:
			return v, true
		case int:
			return float64(v), true
		case json.Number:
			if f, err := v.Float64(); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func intVal(m domain.JSONMap, keys ...string) (int, bool) {
	if f, ok := floatVal(m, keys...); ok {
		return int(f), true
	}
	return 0, false
}

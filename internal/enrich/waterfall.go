// Package enrich runs the metadata waterfall over silver tracks: a fixed
// sequence of external lookups where every step is independent, so one
// failing service never blocks the rest.
package enrich

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/setgraph/setgraph/internal/acousticbrainz"
	"github.com/setgraph/setgraph/internal/camelot"
	"github.com/setgraph/setgraph/internal/discogs"
	"github.com/setgraph/setgraph/internal/domain"
	"github.com/setgraph/setgraph/internal/getsongbpm"
	"github.com/setgraph/setgraph/internal/lastfm"
	"github.com/setgraph/setgraph/internal/logger"
	"github.com/setgraph/setgraph/internal/musicbrainz"
	"github.com/setgraph/setgraph/internal/normalize"
	"github.com/setgraph/setgraph/internal/spotify"
	"github.com/setgraph/setgraph/internal/store"
	"github.com/setgraph/setgraph/internal/tidal"
	"github.com/setgraph/setgraph/internal/transform"
)

type SpotifyAPI interface {
	GetTrack(ctx context.Context, trackID string) (*spotify.Track, error)
	GetAudioFeatures(ctx context.Context, trackID string) (*spotify.AudioFeatures, error)
	SearchByISRC(ctx context.Context, isrc string) (*spotify.Track, error)
	SearchTrack(ctx context.Context, artist, title string) (*spotify.Track, error)
}

type TidalAPI interface {
	SearchByISRC(ctx context.Context, isrc string) (*tidal.Track, error)
	SearchTrack(ctx context.Context, artist, title string) (*tidal.Track, error)
}

type DiscogsAPI interface {
	SearchRelease(ctx context.Context, artist, title, label string) (*discogs.Release, error)
}

type LastFMAPI interface {
	GetTrackInfo(ctx context.Context, artist, title string) (*lastfm.TrackInfo, error)
}

type AcousticBrainzAPI interface {
	GetFeatures(ctx context.Context, mbid string) (*acousticbrainz.Features, error)
}

type GetSongBPMAPI interface {
	SearchSong(ctx context.Context, artist, title string) (*getsongbpm.Song, error)
}

// ArtistResolver is the unknown-artist pass; the multi-tier resolver
// implements it.
type ArtistResolver interface {
	ResolveUnknownArtist(ctx context.Context, track *domain.Track) (artist string, confidence float64, err error)
}

// Waterfall orchestrates the enrichment steps for one track.
type Waterfall struct {
	db       *store.DB
	breakers *BreakerSet
	spotify  SpotifyAPI
	tidal    TidalAPI
	mb       musicbrainz.ClientInterface
	discogs  DiscogsAPI
	lastfm   LastFMAPI
	ab       AcousticBrainzAPI
	gsb      GetSongBPMAPI
	resolver ArtistResolver
	log      *logger.Logger
}

type Deps struct {
	DB             *store.DB
	Breakers       *BreakerSet
	Spotify        SpotifyAPI
	Tidal          TidalAPI
	MusicBrainz    musicbrainz.ClientInterface
	Discogs        DiscogsAPI
	LastFM         LastFMAPI
	AcousticBrainz AcousticBrainzAPI
	GetSongBPM     GetSongBPMAPI
	Resolver       ArtistResolver
}

func NewWaterfall(deps Deps, log *logger.Logger) *Waterfall {
	return &Waterfall{
		db:       deps.DB,
		breakers: deps.Breakers,
		spotify:  deps.Spotify,
		tidal:    deps.Tidal,
		mb:       deps.MusicBrainz,
		discogs:  deps.Discogs,
		lastfm:   deps.LastFM,
		ab:       deps.AcousticBrainz,
		gsb:      deps.GetSongBPM,
		resolver: deps.Resolver,
		log:      log.WithComponent("enrich"),
	}
}

// state accumulates the outcome of one waterfall run.
type state struct {
	sources    []string
	errs       []string
	retriable  bool
	basis      MatchBasis
	fuzzyScore float64
	pitchClass *int
	mode       *int
}

func (s *state) markSource(source domain.Source) {
	for _, have := range s.sources {
		if have == string(source) {
			return
		}
	}
	s.sources = append(s.sources, string(source))
}

func (s *state) markError(source domain.Source, err error) {
	s.errs = append(s.errs, fmt.Sprintf("%s: %v", source, err))
	if domain.IsRetriable(err) {
		s.retriable = true
	}
}

func (s *state) raiseBasis(b MatchBasis) {
	if b > s.basis {
		s.basis = b
	}
}

// trackDeadline bounds one waterfall run; a stuck external call cannot hold
// a worker past it.
const trackDeadline = 5 * time.Minute

// Enrich runs the full waterfall over one track, persists the result, and
// returns the enrichment status row.
func (w *Waterfall) Enrich(ctx context.Context, track *domain.Track) (*domain.EnrichmentStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, trackDeadline)
	defer cancel()

	log := w.log.WithTrack(track.TrackID, track.Title)
	st := &state{}

	// Step 0: title parse, always.
	parsed := normalize.NormalizeTitleOnly(track.Title, true)
	track.NormalizedTitle = parsed.Title
	if parsed.IsRemix && !track.IsRemix {
		track.IsRemix = true
		if parsed.Version != "" && track.RemixType == nil {
			v := parsed.Version
			track.RemixType = &v
		}
	}

	// Step 1: unknown-artist pass.
	if w.resolver != nil && unknownArtist(track.ArtistName) {
		if artist, conf, err := w.resolver.ResolveUnknownArtist(ctx, track); err != nil {
			st.markError(domain.Source("resolver"), err)
			log.Warn("artist resolution failed", "error", err)
		} else if artist != "" {
			track.ArtistName = normalize.NormalizeArtist(artist)
			st.fuzzyScore = conf
			st.raiseBasis(BasisFuzzy)
		}
	}

	w.enrichSpotify(ctx, track, st, log)
	w.enrichTidal(ctx, track, st, log)
	w.enrichMusicBrainz(ctx, track, st, log)
	w.enrichDiscogs(ctx, track, st, log)
	w.enrichLastFM(ctx, track, st, log)
	w.enrichAudioFeatures(ctx, track, st, log)

	// Step 9: camelot derivation.
	if track.CamelotKey == nil {
		if track.Key != nil {
			if code, err := camelot.FromKeyName(*track.Key); err == nil {
				ck := string(code)
				track.CamelotKey = &ck
			}
		} else if st.pitchClass != nil && st.mode != nil {
			if code, err := camelot.FromPitchClass(*st.pitchClass, *st.mode); err == nil {
				ck := string(code)
				track.CamelotKey = &ck
				kn := code.KeyName()
				track.Key = &kn
			}
		}
	}

	// Step 10: score, persist, link.
	djAffinity, setCoherence := w.contextSignals(track)
	confidence := Score(Evidence{
		Basis:        st.basis,
		FuzzyScore:   st.fuzzyScore,
		DJAffinity:   djAffinity,
		SetCoherence: setCoherence,
	})
	track.DataQualityScore = transform.QualityScore(track)
	track.ValidationStatus = domain.ValidationFor(track.DataQualityScore)

	if err := w.db.UpdateTrack(track); err != nil {
		return nil, fmt.Errorf("failed to persist enriched track: %w", err)
	}
	if err := w.linkPrimaryArtist(track); err != nil {
		log.Warn("failed to link primary artist", "error", err)
	}

	status := &domain.EnrichmentStatus{
		TrackID:         track.TrackID,
		SourcesEnriched: st.sources,
		LastAttempt:     time.Now(),
		IsRetriable:     st.retriable,
		ConfidenceScore: confidence,
		ConfidenceTier:  domain.TierFor(confidence),
	}
	switch {
	case len(st.errs) == 0 && len(st.sources) > 0:
		status.Status = domain.EnrichmentCompleted
	case len(st.sources) > 0:
		status.Status = domain.EnrichmentPartial
	case len(st.errs) > 0:
		status.Status = domain.EnrichmentFailed
	default:
		status.Status = domain.EnrichmentCompleted
	}
	if len(st.errs) > 0 {
		msg := strings.Join(st.errs, "; ")
		status.ErrorMessage = &msg
	}

	if prev, err := w.db.GetEnrichmentStatus(track.TrackID); err == nil && prev != nil {
		status.RetryCount = prev.RetryCount + 1
	}
	if err := w.db.UpsertEnrichmentStatus(status); err != nil {
		return nil, fmt.Errorf("failed to persist enrichment status: %w", err)
	}

	log.Info("enrichment finished",
		"status", status.Status,
		"sources", strings.Join(st.sources, ","),
		"confidence", confidence,
	)
	return status, nil
}

// Steps 2-4: Spotify by id, ISRC, then text.
func (w *Waterfall) enrichSpotify(ctx context.Context, track *domain.Track, st *state, log *logger.Logger) {
	if w.spotify == nil {
		return
	}

	var hit *spotify.Track
	err := w.breakers.Do(domain.SourceSpotify, func() error {
		var err error
		switch {
		case track.SpotifyID != nil:
			hit, err = w.spotify.GetTrack(ctx, *track.SpotifyID)
		case track.ISRC != nil:
			hit, err = w.spotify.SearchByISRC(ctx, *track.ISRC)
		default:
			hit, err = w.spotify.SearchTrack(ctx, track.ArtistName, track.Title)
		}
		return err
	})
	if err != nil {
		st.markError(domain.SourceSpotify, err)
		log.Warn("spotify lookup failed", "error", err)
		return
	}
	if hit == nil {
		return
	}

	if track.SpotifyID != nil || track.ISRC != nil {
		st.raiseBasis(BasisExactAPI)
	} else {
		st.raiseBasis(BasisDisambiguatedText)
	}
	st.markSource(domain.SourceSpotify)

	if track.SpotifyID == nil {
		id := hit.ID
		track.SpotifyID = &id
	}
	if track.ISRC == nil && hit.ISRC != "" {
		isrc := hit.ISRC
		track.ISRC = &isrc
	}
	if track.DurationMS == nil && hit.DurationMS > 0 {
		d := hit.DurationMS
		track.DurationMS = &d
	}
	if track.Label == nil && hit.Label != "" {
		l := hit.Label
		track.Label = &l
	}

	var features *spotify.AudioFeatures
	err = w.breakers.Do(domain.SourceSpotify, func() error {
		var err error
		features, err = w.spotify.GetAudioFeatures(ctx, hit.ID)
		return err
	})
	if err != nil {
		st.markError(domain.SourceSpotify, err)
		return
	}
	if features == nil {
		return
	}
	if track.BPM == nil && features.BPM > 0 {
		bpm := domain.ClampBPM(features.BPM)
		track.BPM = &bpm
	}
	if features.PitchClass >= 0 {
		pc, mode := features.PitchClass, features.Mode
		st.pitchClass = &pc
		st.mode = &mode
	}
}

func (w *Waterfall) enrichTidal(ctx context.Context, track *domain.Track, st *state, log *logger.Logger) {
	if w.tidal == nil || track.TidalID != nil {
		return
	}

	var hit *tidal.Track
	err := w.breakers.Do(domain.SourceTidal, func() error {
		var err error
		if track.ISRC != nil {
			hit, err = w.tidal.SearchByISRC(ctx, *track.ISRC)
		} else {
			hit, err = w.tidal.SearchTrack(ctx, track.ArtistName, track.Title)
		}
		return err
	})
	if err != nil {
		st.markError(domain.SourceTidal, err)
		log.Warn("tidal lookup failed", "error", err)
		return
	}
	if hit == nil {
		return
	}

	if track.ISRC != nil {
		st.raiseBasis(BasisExactAPI)
	}
	st.markSource(domain.SourceTidal)

	id := hit.ID
	track.TidalID = &id
	if track.ISRC == nil && hit.ISRC != "" {
		isrc := hit.ISRC
		track.ISRC = &isrc
	}
	if track.BPM == nil && hit.BPM > 0 {
		bpm := domain.ClampBPM(hit.BPM)
		track.BPM = &bpm
	}
	if track.DurationMS == nil && hit.DurationMS > 0 {
		d := hit.DurationMS
		track.DurationMS = &d
	}
}

// Steps 3c and 5: MusicBrainz by ISRC, then text; may populate ISRC.
func (w *Waterfall) enrichMusicBrainz(ctx context.Context, track *domain.Track, st *state, log *logger.Logger) {
	if w.mb == nil || track.MusicBrainzID != nil {
		return
	}

	var rec *musicbrainz.Recording
	err := w.breakers.Do(domain.SourceMusicBrainz, func() error {
		var err error
		if track.ISRC != nil {
			rec, err = w.mb.LookupByISRC(ctx, *track.ISRC)
		} else {
			rec, err = w.mb.SearchRecording(ctx, track.ArtistName, track.Title)
		}
		return err
	})
	if err != nil {
		st.markError(domain.SourceMusicBrainz, err)
		log.Warn("musicbrainz lookup failed", "error", err)
		return
	}
	if rec == nil {
		return
	}

	if track.ISRC != nil {
		st.raiseBasis(BasisExactAPI)
	} else {
		st.raiseBasis(BasisDisambiguatedText)
	}
	st.markSource(domain.SourceMusicBrainz)

	id := rec.RecordingID
	track.MusicBrainzID = &id
	if track.ISRC == nil && rec.ISRC != "" {
		isrc := rec.ISRC
		track.ISRC = &isrc
	}
	if track.Label == nil && rec.Label != "" {
		l := rec.Label
		track.Label = &l
	}
	if track.Genre == nil && rec.Genre != "" {
		g := rec.Genre
		track.Genre = &g
	}
	if track.DurationMS == nil && rec.DurationMS > 0 {
		d := rec.DurationMS
		track.DurationMS = &d
	}
}

// Step 6: Discogs release/label metadata.
func (w *Waterfall) enrichDiscogs(ctx context.Context, track *domain.Track, st *state, log *logger.Logger) {
	if w.discogs == nil || track.DiscogsID != nil {
		return
	}

	var rel *discogs.Release
	err := w.breakers.Do(domain.SourceDiscogs, func() error {
		var err error
		label := ""
		if track.Label != nil {
			label = *track.Label
		}
		rel, err = w.discogs.SearchRelease(ctx, track.ArtistName, track.Title, label)
		return err
	})
	if err != nil {
		st.markError(domain.SourceDiscogs, err)
		log.Warn("discogs lookup failed", "error", err)
		return
	}
	if rel == nil {
		return
	}

	st.raiseBasis(BasisCommunity)
	st.markSource(domain.SourceDiscogs)

	id := rel.ID
	track.DiscogsID = &id
	if track.Label == nil && rel.Label != "" {
		l := rel.Label
		track.Label = &l
	}
	if track.Genre == nil && rel.Genre != "" {
		g := rel.Genre
		track.Genre = &g
	}
}

// Step 7: Last.fm tags and popularity.
func (w *Waterfall) enrichLastFM(ctx context.Context, track *domain.Track, st *state, log *logger.Logger) {
	if w.lastfm == nil {
		return
	}

	var info *lastfm.TrackInfo
	err := w.breakers.Do(domain.SourceLastFM, func() error {
		var err error
		info, err = w.lastfm.GetTrackInfo(ctx, track.ArtistName, track.Title)
		return err
	})
	if err != nil {
		st.markError(domain.SourceLastFM, err)
		log.Warn("lastfm lookup failed", "error", err)
		return
	}
	if info == nil {
		return
	}

	st.raiseBasis(BasisCommunity)
	st.markSource(domain.SourceLastFM)

	if track.Genre == nil && len(info.Tags) > 0 {
		g := info.Tags[0]
		track.Genre = &g
	}
}

// Step 8: audio-features fallback, AcousticBrainz then GetSongBPM. Fills bpm
// and key only where absent.
func (w *Waterfall) enrichAudioFeatures(ctx context.Context, track *domain.Track, st *state, log *logger.Logger) {
	if track.BPM != nil && track.Key != nil {
		return
	}

	if w.ab != nil && track.MusicBrainzID != nil {
		var features *acousticbrainz.Features
		err := w.breakers.Do(domain.SourceAcousticBrainz, func() error {
			var err error
			features, err = w.ab.GetFeatures(ctx, *track.MusicBrainzID)
			return err
		})
		if err != nil {
			st.markError(domain.SourceAcousticBrainz, err)
		} else if features != nil {
			st.markSource(domain.SourceAcousticBrainz)
			if track.BPM == nil && features.BPM > 0 {
				bpm := domain.ClampBPM(features.BPM)
				track.BPM = &bpm
			}
			if track.Key == nil && features.Key != "" {
				k := features.Key
				track.Key = &k
			}
		}
	}

	if track.BPM != nil && track.Key != nil {
		return
	}
	if w.gsb == nil {
		return
	}

	var song *getsongbpm.Song
	err := w.breakers.Do(domain.SourceGetSongBPM, func() error {
		var err error
		song, err = w.gsb.SearchSong(ctx, track.ArtistName, track.Title)
		return err
	})
	if err != nil {
		st.markError(domain.SourceGetSongBPM, err)
		log.Warn("getsongbpm lookup failed", "error", err)
		return
	}
	if song == nil {
		return
	}

	st.markSource(domain.SourceGetSongBPM)
	if track.BPM == nil && song.BPM > 0 {
		bpm := domain.ClampBPM(song.BPM)
		track.BPM = &bpm
	}
	if track.Key == nil && song.Key != "" {
		k := song.Key
		track.Key = &k
	}
}

// contextSignals reads the track's playlist context: whether the set's DJ is
// the track's own artist, and whether any neighboring track sits in the same
// genre, BPM and key neighborhood. Both signals together earn the contextual
// confidence boost.
func (w *Waterfall) contextSignals(track *domain.Track) (djAffinity, setCoherence bool) {
	names, err := w.db.PlaylistDJNames(track.TrackID)
	if err == nil {
		want := normalize.NormalizeArtist(track.ArtistName)
		for _, name := range names {
			if name == want {
				djAffinity = true
				break
			}
		}
	}

	neighbors, err := w.db.NeighborTracks(track.TrackID)
	if err != nil {
		return djAffinity, false
	}
	for _, nb := range neighbors {
		if coherentWith(track, nb) {
			return djAffinity, true
		}
	}
	return djAffinity, false
}

// coherentWith holds when at least two of three signals line up: shared
// genre, BPM within 8%, harmonically compatible camelot keys.
func coherentWith(a, b *domain.Track) bool {
	signals := 0
	if a.Genre != nil && b.Genre != nil && strings.EqualFold(*a.Genre, *b.Genre) {
		signals++
	}
	if a.BPM != nil && b.BPM != nil && *a.BPM > 0 && *b.BPM > 0 {
		ratio := *a.BPM / *b.BPM
		if ratio > 1 {
			ratio = 1 / ratio
		}
		if ratio >= 0.92 {
			signals++
		}
	}
	if a.CamelotKey != nil && b.CamelotKey != nil {
		if camelot.CompatibilityScore(camelot.Code(*a.CamelotKey), camelot.Code(*b.CamelotKey)) >= 0.5 {
			signals++
		}
	}
	return signals >= 2
}

func (w *Waterfall) linkPrimaryArtist(track *domain.Track) error {
	if unknownArtist(track.ArtistName) {
		return nil
	}
	now := time.Now()
	artist := &domain.Artist{
		ArtistID:       uuid.New().String(),
		CanonicalName:  track.ArtistName,
		NormalizedName: normalize.NormalizeArtist(track.ArtistName),
		Aliases:        domain.StringSlice{track.ArtistName},
		BronzeIDs:      domain.StringSlice{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	artistID, err := w.db.UpsertArtist(artist)
	if err != nil {
		return err
	}
	return w.db.UpsertTrackArtist(&domain.TrackArtist{
		TrackID:   track.TrackID,
		ArtistID:  artistID,
		Role:      domain.RolePrimary,
		CreatedAt: now,
	})
}

func unknownArtist(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "id", "unknown", "unknown artist", "various artists":
		return true
	}
	return false
}

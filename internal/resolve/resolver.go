// Package resolve recovers the artist of tracks scraped with a missing or
// placeholder credit. Resolution walks three tiers: internal knowledge
// (mashup components, label affinity), external sources, then feedback that
// folds external answers back into internal knowledge.
package resolve

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/setgraph/setgraph/internal/domain"
	"github.com/setgraph/setgraph/internal/fuzzymatch"
	"github.com/setgraph/setgraph/internal/logger"
	"github.com/setgraph/setgraph/internal/normalize"
	"github.com/setgraph/setgraph/internal/store"
	"github.com/setgraph/setgraph/internal/tracklists"
)

const (
	mashupComponentThreshold = 0.7
	labelTitleThreshold      = 0.6
	labelMapTopArtists       = 5
	candidateLimit           = 25
)

// Tier names recorded in resolution feedback.
const (
	TierMashup     = "tier1_mashup"
	TierLabelMap   = "tier1_label_map"
	Tier1001TL     = "tier2_1001tl"
	TierDiscogs    = "tier2_discogs"
	TierMixesDB    = "tier2_mixesdb"
)

// DiscogsSearcher is the slice of the discogs client the resolver needs.
type DiscogsSearcher interface {
	SearchArtistForTitle(ctx context.Context, title, label string) (string, error)
}

// Resolution is the outcome of one attempt.
type Resolution struct {
	Artist     string
	Confidence float64
	Tier       string
}

// Resolver is the multi-tier artist resolver. The label map is cached in
// memory and invalidated whenever a tier-2 answer feeds back into silver.
type Resolver struct {
	db       *store.DB
	searcher *tracklists.Searcher
	discogs  DiscogsSearcher
	log      *logger.Logger

	mu       sync.Mutex
	labelMap map[string]map[string]int
}

func New(db *store.DB, searcher *tracklists.Searcher, discogs DiscogsSearcher, log *logger.Logger) *Resolver {
	return &Resolver{
		db:       db,
		searcher: searcher,
		discogs:  discogs,
		log:      log.WithComponent("resolver"),
	}
}

var (
	labelBracketRe = regexp.MustCompile(`\[([^\[\]]+)\]\s*$`)
	mashupSplitRe  = regexp.MustCompile(`(?i)\s+vs\.?\s+`)
	mixSuffixRe    = regexp.MustCompile(`(?i)\s*\((?:[^()]*\s)?mix\)\s*$`)
)

// Resolve walks the tiers for one track and returns the first success, or
// nil when every tier came up empty.
func (r *Resolver) Resolve(ctx context.Context, track *domain.Track) (*Resolution, error) {
	title, label := extractLabel(track.Title)
	log := r.log.WithTrack(track.TrackID, track.Title)

	if res := r.tryMashup(title); res != nil {
		log.Info("artist resolved", "tier", res.Tier, "artist", res.Artist, "confidence", res.Confidence)
		return res, nil
	}
	if res, err := r.tryLabelMap(title, label); err != nil {
		return nil, err
	} else if res != nil {
		log.Info("artist resolved", "tier", res.Tier, "artist", res.Artist, "confidence", res.Confidence)
		return res, nil
	}

	res := r.tryExternal(ctx, title, label, log)
	if res == nil {
		return nil, nil
	}

	// Tier 3: external answers become internal knowledge.
	if err := r.feedback(track, res); err != nil {
		log.Warn("resolution feedback failed", "error", err)
	}
	log.Info("artist resolved", "tier", res.Tier, "artist", res.Artist, "confidence", res.Confidence)
	return res, nil
}

// ResolveUnknownArtist adapts Resolve to the waterfall's resolver interface.
func (r *Resolver) ResolveUnknownArtist(ctx context.Context, track *domain.Track) (string, float64, error) {
	res, err := r.Resolve(ctx, track)
	if err != nil || res == nil {
		return "", 0, err
	}
	return res.Artist, res.Confidence, nil
}

// tryMashup splits "A vs B" titles and resolves each component against
// silver; when all components resolve, their artists combine.
func (r *Resolver) tryMashup(title string) *Resolution {
	parts := mashupSplitRe.Split(title, -1)
	if len(parts) < 2 {
		return nil
	}

	var artists []string
	for _, part := range parts {
		component := strings.TrimSpace(mixSuffixRe.ReplaceAllString(part, ""))
		if component == "" {
			return nil
		}
		artist := r.lookupComponentArtist(component)
		if artist == "" {
			return nil
		}
		artists = append(artists, artist)
	}

	return &Resolution{
		Artist:     strings.Join(dedupe(artists), " and "),
		Confidence: 0.9,
		Tier:       TierMashup,
	}
}

func (r *Resolver) lookupComponentArtist(component string) string {
	normalized := normalize.NormalizeTitleOnly(component, true).Title
	candidates, err := r.db.FindTracksByTitle(normalized, candidateLimit)
	if err != nil {
		return ""
	}

	best := ""
	bestScore := mashupComponentThreshold
	for _, cand := range candidates {
		if cand.ArtistName == "" {
			continue
		}
		if score := fuzzymatch.TitleSimilarity(component, cand.NormalizedTitle); score > bestScore {
			bestScore = score
			best = cand.ArtistName
		}
	}
	return best
}

// tryLabelMap consults the label → artist-frequency map: for the track's
// label, the top artists are checked for a title match in their catalogs.
func (r *Resolver) tryLabelMap(title, label string) (*Resolution, error) {
	if label == "" {
		return nil, nil
	}

	shares, err := r.labelShares(label)
	if err != nil {
		return nil, err
	}
	if len(shares) == 0 {
		return nil, nil
	}

	var best *Resolution
	for _, artist := range topArtists(shares, labelMapTopArtists) {
		sim := r.bestTitleMatchForArtist(artist, title)
		if sim <= labelTitleThreshold {
			continue
		}
		confidence := 0.7*sim + 0.3*shares[artist]
		if best == nil || confidence > best.Confidence {
			best = &Resolution{Artist: artist, Confidence: confidence, Tier: TierLabelMap}
		}
	}
	return best, nil
}

func (r *Resolver) bestTitleMatchForArtist(artist, title string) float64 {
	var titles []string
	err := r.db.Select(&titles,
		`SELECT normalized_title FROM tracks WHERE artist_name = $1 LIMIT 200`, artist)
	if err != nil {
		return 0
	}

	best := 0.0
	for _, t := range titles {
		if s := fuzzymatch.TitleSimilarity(title, t); s > best {
			best = s
		}
	}
	return best
}

func (r *Resolver) tryExternal(ctx context.Context, title, label string, log *logger.Logger) *Resolution {
	if r.searcher != nil {
		attrs, err := r.searcher.SearchAttributions(ctx, title, label)
		if err != nil {
			log.Warn("1001tracklists attribution search failed", "error", err)
		} else if best := tracklists.MostCommonAttribution(attrs); best.Artist != "" {
			confidence := float64(best.Occurrences) / 10
			if confidence > 0.95 {
				confidence = 0.95
			}
			return &Resolution{Artist: best.Artist, Confidence: confidence, Tier: Tier1001TL}
		}
	}

	if r.discogs != nil && label != "" {
		artist, err := r.discogs.SearchArtistForTitle(ctx, title, label)
		if err != nil {
			log.Warn("discogs attribution search failed", "error", err)
		} else if artist != "" {
			return &Resolution{Artist: artist, Confidence: 0.85, Tier: TierDiscogs}
		}
	}

	if r.searcher != nil {
		artist, err := r.searcher.SearchMixesDBArtist(ctx, title)
		if err != nil {
			log.Warn("mixesdb attribution search failed", "error", err)
		} else if artist != "" {
			return &Resolution{Artist: artist, Confidence: 0.70, Tier: TierMixesDB}
		}
	}
	return nil
}

// feedback writes a tier-2 answer into silver and invalidates the label map.
func (r *Resolver) feedback(track *domain.Track, res *Resolution) error {
	now := time.Now()
	artist := &domain.Artist{
		ArtistID:       uuid.New().String(),
		CanonicalName:  res.Artist,
		NormalizedName: normalize.NormalizeArtist(res.Artist),
		Aliases:        domain.StringSlice{res.Artist},
		BronzeIDs:      domain.StringSlice{},
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	artistID, err := r.db.UpsertArtist(artist)
	if err != nil {
		return fmt.Errorf("failed to upsert resolved artist: %w", err)
	}
	if err := r.db.UpsertTrackArtist(&domain.TrackArtist{
		TrackID:   track.TrackID,
		ArtistID:  artistID,
		Role:      domain.RolePrimary,
		CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("failed to link resolved artist: %w", err)
	}
	if err := r.db.RecordResolutionFeedback(track.TrackID, res.Artist, res.Tier, res.Confidence, true); err != nil {
		return err
	}

	r.mu.Lock()
	r.labelMap = nil
	r.mu.Unlock()
	return nil
}

func (r *Resolver) labelShares(label string) (map[string]float64, error) {
	key := normalize.NormalizeArtist(label)

	r.mu.Lock()
	cached, ok := r.labelMap[key]
	r.mu.Unlock()
	if ok {
		return sharesFromCounts(cached), nil
	}

	shares, err := r.db.LabelArtistShares(label)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(shares))
	total := 100
	for artist, share := range shares {
		counts[artist] = int(share * float64(total))
	}
	r.mu.Lock()
	if r.labelMap == nil {
		r.labelMap = make(map[string]map[string]int)
	}
	r.labelMap[key] = counts
	r.mu.Unlock()
	return shares, nil
}

func sharesFromCounts(counts map[string]int) map[string]float64 {
	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return nil
	}
	shares := make(map[string]float64, len(counts))
	for artist, n := range counts {
		shares[artist] = float64(n) / float64(total)
	}
	return shares
}

func topArtists(shares map[string]float64, n int) []string {
	out := make([]string, 0, len(shares))
	for artist := range shares {
		out = append(out, artist)
	}
	// Selection sort is fine at this size.
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if shares[out[j]] > shares[out[i]] ||
				(shares[out[j]] == shares[out[i]] && out[j] < out[i]) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// extractLabel pulls a trailing [Label] suffix off a title.
func extractLabel(title string) (cleanTitle, label string) {
	m := labelBracketRe.FindStringSubmatch(title)
	if m == nil {
		return strings.TrimSpace(title), ""
	}
	clean := strings.TrimSpace(labelBracketRe.ReplaceAllString(title, ""))
	return clean, strings.TrimSpace(m[1])
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		key := strings.ToLower(s)
		if !seen[key] {
			seen[key] = true
			out = append(out, s)
		}
	}
	return out
}

package enrich

import (
	"github.com/setgraph/setgraph/internal/domain"
)

// MatchBasis describes how a track's identity was established, best first.
type MatchBasis int

const (
	BasisNone MatchBasis = iota
	// BasisContextual is inference from surrounding facts only.
	BasisContextual
	// BasisCommunity is a Discogs or Last.fm hit with an external link.
	BasisCommunity
	// BasisFuzzy is a fuzzy match at or above the global threshold.
	BasisFuzzy
	// BasisDisambiguatedText is a text match with normalized title and label.
	BasisDisambiguatedText
	// BasisExactAPI is an exact ISRC or platform-id match.
	BasisExactAPI
)

const fuzzyFloor = 0.80

// Evidence collects what the waterfall learned about one track.
type Evidence struct {
	Basis      MatchBasis
	FuzzyScore float64
	// DJAffinity is true when the resolved artist also appears as the
	// playlist DJ or elsewhere in the same set.
	DJAffinity bool
	// SetCoherence is true when genre, BPM and key sit in the neighborhood
	// of the surrounding setlist.
	SetCoherence bool
}

// Score maps evidence to a confidence score. The best applicable tier wins,
// then the contextual boost applies when both context signals agree.
func Score(ev Evidence) float64 {
	var score float64
	switch ev.Basis {
	case BasisExactAPI:
		score = 0.95
	case BasisDisambiguatedText:
		score = 0.80
	case BasisFuzzy:
		// Scale linearly from the threshold to 1.0 into [0.70, 0.90].
		s := ev.FuzzyScore
		if s < fuzzyFloor {
			s = fuzzyFloor
		}
		if s > 1.0 {
			s = 1.0
		}
		score = 0.70 + 0.20*(s-fuzzyFloor)/(1.0-fuzzyFloor)
	case BasisCommunity:
		score = 0.60
	case BasisContextual:
		score = 0.30
	default:
		return 0
	}

	if ev.DJAffinity && ev.SetCoherence {
		score += 0.10
		if score > 1.0 {
			score = 1.0
		}
	}
	return score
}

// TierOf buckets a confidence score.
func TierOf(score float64) domain.ConfidenceTier {
	return domain.TierFor(score)
}

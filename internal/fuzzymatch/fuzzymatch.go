// Package fuzzymatch scores scraped (artist, title) pairs against candidate
// records through a cascade of string-similarity stages.
package fuzzymatch

import (
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/xrash/smetrics"

	"github.com/setgraph/setgraph/internal/normalize"
)

// Stage names reported with a match.
const (
	StageExact       = "exact"
	StageHighFuzzy   = "high_fuzzy"
	StageTokenSet    = "token_set"
	StageJaroWinkler = "jaro_winkler"
	StageLevenshtein = "levenshtein"
)

// GlobalMinConfidence is the floor below which no match is ever returned.
const GlobalMinConfidence = 0.80

// ArtistMinConfidence is the floor for the artist-only matcher.
const ArtistMinConfidence = 0.85

const (
	artistWeight = 0.6
	titleWeight  = 0.4
)

// Candidate is one record to score against.
type Candidate struct {
	ID      string
	Artist  string
	Title   string
	Aliases []string
}

// Match is the winning candidate with its score and the stage that found it.
type Match struct {
	Candidate  Candidate
	Confidence float64
	Stage      string
}

// stage couples a scorer with its acceptance threshold. A nil scorer is
// skipped, mirroring an unavailable similarity backend.
type stage struct {
	name      string
	threshold float64
	score     func(qArtist, qTitle, cArtist, cTitle string) float64
}

var stages = []stage{
	{StageExact, 1.0, exactScore},
	{StageHighFuzzy, 0.95, weightedSequenceScore},
	{StageTokenSet, 0.85, tokenSetScore},
	{StageJaroWinkler, 0.90, jaroWinklerScore},
	{StageLevenshtein, 0.85, levenshteinScore},
}

func exactScore(qArtist, qTitle, cArtist, cTitle string) float64 {
	if qArtist == cArtist && qTitle == cTitle {
		return 1.0
	}
	return 0.0
}

// sequenceRatio is a difflib-style similarity: twice the total matching
// character count over the combined length, with matches found by repeated
// longest-common-substring.
func sequenceRatio(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}
	total := len(a) + len(b)
	matched := matchingChars([]byte(a), []byte(b))
	return 2.0 * float64(matched) / float64(total)
}

func matchingChars(a, b []byte) int {
	ai, bi, size := longestCommonSubstring(a, b)
	if size == 0 {
		return 0
	}
	return size +
		matchingChars(a[:ai], b[:bi]) +
		matchingChars(a[ai+size:], b[bi+size:])
}

func longestCommonSubstring(a, b []byte) (ai, bi, size int) {
	if len(a) == 0 || len(b) == 0 {
		return 0, 0, 0
	}
	prev := make([]int, len(b)+1)
	cur := make([]int, len(b)+1)
	for i := 1; i <= len(a); i++ {
		for j := 1; j <= len(b); j++ {
			if a[i-1] == b[j-1] {
				cur[j] = prev[j-1] + 1
				if cur[j] > size {
					size = cur[j]
					ai = i - size
					bi = j - size
				}
			} else {
				cur[j] = 0
			}
		}
		prev, cur = cur, prev
	}
	return ai, bi, size
}

func weightedSequenceScore(qArtist, qTitle, cArtist, cTitle string) float64 {
	return artistWeight*sequenceRatio(qArtist, cArtist) + titleWeight*sequenceRatio(qTitle, cTitle)
}

// tokenSetScore compares the combined "artist title" strings as token bags.
func tokenSetScore(qArtist, qTitle, cArtist, cTitle string) float64 {
	qTokens := tokenSet(qArtist + " " + qTitle)
	cTokens := tokenSet(cArtist + " " + cTitle)
	if len(qTokens) == 0 && len(cTokens) == 0 {
		return 1.0
	}
	if len(qTokens) == 0 || len(cTokens) == 0 {
		return 0.0
	}
	inter := 0
	for tok := range qTokens {
		if _, ok := cTokens[tok]; ok {
			inter++
		}
	}
	union := len(qTokens) + len(cTokens) - inter
	if union == 0 {
		return 0.0
	}
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range strings.Fields(s) {
		set[tok] = struct{}{}
	}
	return set
}

func jaroWinklerScore(qArtist, qTitle, cArtist, cTitle string) float64 {
	return artistWeight*smetrics.JaroWinkler(qArtist, cArtist, 0.7, 4) +
		titleWeight*smetrics.JaroWinkler(qTitle, cTitle, 0.7, 4)
}

func levenshteinRatio(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	maxLen := len([]rune(a))
	if l := len([]rune(b)); l > maxLen {
		maxLen = l
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(d)/float64(maxLen)
}

func levenshteinScore(qArtist, qTitle, cArtist, cTitle string) float64 {
	return artistWeight*levenshteinRatio(qArtist, cArtist) + titleWeight*levenshteinRatio(qTitle, cTitle)
}

// BestMatch scores every candidate through the cascade and returns the best
// acceptable match, or nil. Per candidate the cascade short-circuits on the
// first stage that clears its own threshold, while remembering the best
// sub-threshold score in case no stage clears but the global floor is met.
// Ties across candidates break toward the earlier stage.
func BestMatch(artist, title string, candidates []Candidate) *Match {
	qArtist := normalize.NormalizeArtist(artist)
	qTitle := normalize.NormalizeTitleOnly(title, false).Title

	var best *Match
	bestStageIdx := len(stages)

	for _, cand := range candidates {
		cArtist := normalize.NormalizeArtist(cand.Artist)
		cTitle := normalize.NormalizeTitleOnly(cand.Title, false).Title

		score, stageName, stageIdx := cascade(qArtist, qTitle, cArtist, cTitle)
		if score < GlobalMinConfidence {
			continue
		}
		if best == nil || score > best.Confidence ||
			(score == best.Confidence && stageIdx < bestStageIdx) {
			best = &Match{Candidate: cand, Confidence: score, Stage: stageName}
			bestStageIdx = stageIdx
		}
	}

	return best
}

func cascade(qArtist, qTitle, cArtist, cTitle string) (float64, string, int) {
	bestScore := 0.0
	bestStage := ""
	bestIdx := len(stages)

	for i, st := range stages {
		if st.score == nil {
			continue
		}
		score := st.score(qArtist, qTitle, cArtist, cTitle)
		if score > bestScore {
			bestScore = score
			bestStage = st.name
			bestIdx = i
		}
		if score >= st.threshold {
			return score, st.name, i
		}
	}
	return bestScore, bestStage, bestIdx
}

// BestArtistMatch scores an artist name against candidates, taking the
// maximum similarity across each candidate's name and aliases.
func BestArtistMatch(name string, candidates []Candidate) *Match {
	qName := normalize.NormalizeArtist(name)

	var best *Match
	for _, cand := range candidates {
		names := append([]string{cand.Artist}, cand.Aliases...)
		score := 0.0
		for _, n := range names {
			cName := normalize.NormalizeArtist(n)
			if s := nameSimilarity(qName, cName); s > score {
				score = s
			}
		}
		if score < ArtistMinConfidence {
			continue
		}
		if best == nil || score > best.Confidence {
			best = &Match{Candidate: cand, Confidence: score, Stage: StageHighFuzzy}
		}
	}
	return best
}

// nameSimilarity blends sequence and Jaro-Winkler similarity for short
// artist names; either alone is too brittle on transliterations.
func nameSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	seq := sequenceRatio(a, b)
	jw := smetrics.JaroWinkler(a, b, 0.7, 4)
	if jw > seq {
		return jw
	}
	return seq
}

// TitleSimilarity exposes the sequence ratio over normalized titles for
// callers that need a bare score rather than a cascade verdict.
func TitleSimilarity(a, b string) float64 {
	na := normalize.NormalizeTitleOnly(a, false).Title
	nb := normalize.NormalizeTitleOnly(b, false).Title
	return sequenceRatio(na, nb)
}

// Package normalize parses and canonicalizes scraped "Artist - Title
// (Version)" strings. Every function is deterministic and idempotent;
// malformed input yields empty fields, never an error.
package normalize

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// TrackString is the parsed form of a scraped track string.
type TrackString struct {
	Artist         string `json:"artist"`
	Title          string `json:"title"`
	Version        string `json:"version,omitempty"`
	RemixType      string `json:"remix_type,omitempty"`
	IsRemix        bool   `json:"is_remix"`
	NormalizedFull string `json:"normalized_full"`
}

// TitleResult is the parsed form of a bare title.
type TitleResult struct {
	Title   string `json:"title"`
	Version string `json:"version,omitempty"`
	IsRemix bool   `json:"is_remix"`
}

// versionPattern is one entry of the ordered version table. The first match
// wins and is removed from the title.
type versionPattern struct {
	re        *regexp.Regexp
	remixType string
	isRemix   bool
}

// Ordered: specific named patterns before the generic trailing "X Remix".
var versionPatterns = []versionPattern{
	{regexp.MustCompile(`(?i)\(([^()]*?)\s*remix\)`), "remix", true},
	{regexp.MustCompile(`(?i)\(original mix\)`), "original mix", false},
	{regexp.MustCompile(`(?i)\(extended mix\)`), "extended mix", false},
	{regexp.MustCompile(`(?i)\(club mix\)`), "club mix", false},
	{regexp.MustCompile(`(?i)\(radio edit\)`), "radio edit", false},
	{regexp.MustCompile(`(?i)\(([^()]*?)\s*dub\)`), "dub", true},
	{regexp.MustCompile(`(?i)\(([^()]*?)\s*vip\)`), "vip", true},
	{regexp.MustCompile(`(?i)\(([^()]*?)\s*edit\)`), "edit", false},
	{regexp.MustCompile(`(?i)\b([\p{L}\p{N}]+(?:\s+[\p{L}\p{N}]+)?)\s+remix\s*$`), "remix", true},
}

// Split candidates for "artist - title"; only the first occurrence of the
// earliest separator is used.
var artistTitleSeparators = []string{" - ", " – ", " — ", ": ", " | "}

var markRemover = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

var whitespaceRe = regexp.MustCompile(`\s+`)

// foldMarks applies NFD decomposition and strips combining marks, so
// "Tiësto" and "Tiesto" normalize identically.
func foldMarks(s string) string {
	out, _, err := transform.String(markRemover, s)
	if err != nil {
		return s
	}
	return out
}

// standardizeCollaborators rewrites artist-collaboration glue into words:
// & -> and, feat./ft. -> featuring, vs. -> versus, comma -> and, and a
// space-surrounded x -> and.
func standardizeCollaborators(s string) string {
	s = strings.ReplaceAll(s, "&", " and ")
	s = regexp.MustCompile(`(?i)\b(feat|ft)\.?\s`).ReplaceAllString(s, "featuring ")
	s = regexp.MustCompile(`(?i)\bvs\.?\s`).ReplaceAllString(s, "versus ")
	s = strings.ReplaceAll(s, ",", " and ")
	s = regexp.MustCompile(`(?i)\s+x\s+`).ReplaceAllString(s, " and ")
	return s
}

// stripPunctuation drops everything but letters, digits, spaces and
// intra-word hyphens.
func stripPunctuation(s string) string {
	var b strings.Builder
	rs := []rune(s)
	for i, r := range rs {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ':
			b.WriteRune(r)
		case r == '-':
			prevOK := i > 0 && (unicode.IsLetter(rs[i-1]) || unicode.IsDigit(rs[i-1]))
			nextOK := i+1 < len(rs) && (unicode.IsLetter(rs[i+1]) || unicode.IsDigit(rs[i+1]))
			if prevOK && nextOK {
				b.WriteRune(r)
			} else {
				b.WriteRune(' ')
			}
		default:
			b.WriteRune(' ')
		}
	}
	return b.String()
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(s, " "))
}

// extractVersion scans the ordered version table and removes the first match.
func extractVersion(title string) (clean, version, remixType string, isRemix bool) {
	for _, p := range versionPatterns {
		loc := p.re.FindStringSubmatchIndex(title)
		if loc == nil {
			continue
		}
		matched := title[loc[0]:loc[1]]
		version = strings.TrimSpace(strings.Trim(matched, "()"))
		version = strings.ToLower(collapseWhitespace(version))
		clean = collapseWhitespace(title[:loc[0]] + " " + title[loc[1]:])
		return clean, version, p.remixType, p.isRemix
	}
	return collapseWhitespace(title), "", "", false
}

// splitArtistTitle splits on the earliest separator occurrence. When no
// separator is present the whole string is the title.
func splitArtistTitle(s string) (artist, title string) {
	bestIdx := -1
	bestSep := ""
	for _, sep := range artistTitleSeparators {
		if idx := strings.Index(s, sep); idx >= 0 && (bestIdx < 0 || idx < bestIdx) {
			bestIdx = idx
			bestSep = sep
		}
	}
	if bestIdx < 0 {
		return "", s
	}
	return s[:bestIdx], s[bestIdx+len(bestSep):]
}

// NormalizeArtist canonicalizes an artist name: mark folding, collaborator
// standardization, lowercase, punctuation stripping, whitespace collapse.
func NormalizeArtist(s string) string {
	s = foldMarks(s)
	s = standardizeCollaborators(s)
	s = strings.ToLower(s)
	s = stripPunctuation(s)
	return collapseWhitespace(s)
}

// normalizeTitlePart lowercases and cleans a title without version handling.
func normalizeTitlePart(s string) string {
	s = foldMarks(s)
	s = strings.ToLower(s)
	s = stripPunctuation(s)
	return collapseWhitespace(s)
}

// NormalizeTitleOnly normalizes a bare title, optionally extracting the
// version suffix first.
func NormalizeTitleOnly(s string, extractVersionSuffix bool) TitleResult {
	s = foldMarks(s)
	if !extractVersionSuffix {
		return TitleResult{Title: normalizeTitlePart(s)}
	}
	clean, version, _, isRemix := extractVersion(s)
	return TitleResult{
		Title:   normalizeTitlePart(clean),
		Version: version,
		IsRemix: isRemix,
	}
}

// NormalizeTrackString runs the full pipeline over a scraped track string:
// mark folding, version extraction, artist/title split, collaborator
// standardization, lowercasing, punctuation stripping, whitespace collapse.
func NormalizeTrackString(s string) TrackString {
	folded := foldMarks(s)

	clean, version, remixType, isRemix := extractVersion(folded)
	artistRaw, titleRaw := splitArtistTitle(clean)

	artist := NormalizeArtist(artistRaw)
	title := normalizeTitlePart(titleRaw)

	full := title
	if artist != "" {
		full = artist + " - " + title
	}

	out := TrackString{
		Artist:         artist,
		Title:          title,
		Version:        version,
		IsRemix:        isRemix,
		NormalizedFull: full,
	}
	if isRemix {
		out.RemixType = remixType
	}
	return out
}

// Tokens splits a normalized string into its alphanumeric tokens.
func Tokens(s string) []string {
	fields := strings.Fields(normalizeTitlePart(s))
	return fields
}

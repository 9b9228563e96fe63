// Package tracklists implements the scrape-backed searches the artist
// resolver's external tier runs against 1001tracklists and MixesDB. Both go
// through the shared robots-governed fetcher; neither touches silver.
package tracklists

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/setgraph/setgraph/internal/domain"
	"github.com/setgraph/setgraph/internal/normalize"
	"github.com/setgraph/setgraph/internal/scrape"
)

const (
	tl1001SearchURL  = "https://www.1001tracklists.com/search/result.php?main_search=%s&search_selection=1"
	mixesDBSearchURL = "https://www.mixesdb.com/db/index.php?title=Special:Search&search=%s&fulltext=1"
)

// Search result rows on 1001tracklists carry "Artist - Title" in the meta
// name attribute, the same markup the playlist adapter parses.
var entryRe = regexp.MustCompile(`<meta\s+itemprop="name"\s+content="([^"]+)"`)

// Attribution is one candidate artist with its occurrence count.
type Attribution struct {
	Artist      string
	Occurrences int
}

type Searcher struct {
	fetcher *scrape.Fetcher
}

func NewSearcher(fetcher *scrape.Fetcher) *Searcher {
	return &Searcher{fetcher: fetcher}
}

// SearchAttributions queries 1001tracklists by "title label" and counts how
// often each artist is credited with a matching title across the results.
func (s *Searcher) SearchAttributions(ctx context.Context, title, label string) ([]Attribution, error) {
	query := strings.TrimSpace(title + " " + label)
	target := fmt.Sprintf(tl1001SearchURL, url.QueryEscape(query))

	resp, err := s.fetcher.Get(ctx, domain.SourceTracklists1001, target)
	if err != nil {
		return nil, err
	}

	wantTitle := normalize.NormalizeTitleOnly(title, true).Title
	counts := make(map[string]int)
	for _, m := range entryRe.FindAllStringSubmatch(string(resp.Body), -1) {
		parsed := normalize.NormalizeTrackString(m[1])
		if parsed.Artist == "" || parsed.Title == "" {
			continue
		}
		if !strings.Contains(parsed.Title, wantTitle) && !strings.Contains(wantTitle, parsed.Title) {
			continue
		}
		counts[parsed.Artist]++
	}

	out := make([]Attribution, 0, len(counts))
	for artist, n := range counts {
		out = append(out, Attribution{Artist: artist, Occurrences: n})
	}
	return out, nil
}

// MostCommonAttribution returns the artist credited most often, with its
// count, or empty when nothing matched.
func MostCommonAttribution(attrs []Attribution) Attribution {
	best := Attribution{}
	for _, a := range attrs {
		if a.Occurrences > best.Occurrences ||
			(a.Occurrences == best.Occurrences && a.Artist < best.Artist) {
			best = a
		}
	}
	return best
}

// MixesDB search hits link to wiki pages titled "YYYY-MM-DD - Artist @ ...";
// the artist sits between the date and the @ or the end of the title.
var mixesDBHitRe = regexp.MustCompile(`<a href="/w/[^"]+" title="([^"]+)"`)

// SearchMixesDBArtist returns the artist of the top MixesDB search result
// for a title, or empty when nothing matched.
func (s *Searcher) SearchMixesDBArtist(ctx context.Context, title string) (string, error) {
	target := fmt.Sprintf(mixesDBSearchURL, url.QueryEscape(title))

	resp, err := s.fetcher.Get(ctx, domain.SourceMixesDB, target)
	if err != nil {
		return "", err
	}

	for _, m := range mixesDBHitRe.FindAllStringSubmatch(string(resp.Body), -1) {
		if artist := artistFromPageTitle(m[1]); artist != "" {
			return artist, nil
		}
	}
	return "", nil
}

var pageDateRe = regexp.MustCompile(`^\d{4}(-\d{2}){0,2}\s*-\s*`)

func artistFromPageTitle(pageTitle string) string {
	t := pageDateRe.ReplaceAllString(pageTitle, "")
	if idx := strings.Index(t, " @ "); idx > 0 {
		t = t[:idx]
	}
	if idx := strings.Index(t, " - "); idx > 0 {
		t = t[:idx]
	}
	return strings.TrimSpace(t)
}

package scrape

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/setgraph/setgraph/internal/config"
	"github.com/setgraph/setgraph/internal/domain"
)

const mixesDBBase = "https://www.mixesdb.com"

var (
	mixesDBDetailRe = regexp.MustCompile(`href="(/w/[0-9]{4}[^"]+)"`)
	mixesDBTitleRe  = regexp.MustCompile(`<h1[^>]*>(?:<[^>]+>)*([^<]+)`)
	// MixesDB tracklists are wiki ordered lists; each entry is one <li>.
	mixesDBEntryRe = regexp.MustCompile(`<li>\s*(?:\[[0-9:?]+\]\s*)?([^<]+?)\s*</li>`)
)

// MixesDB scrapes mix tracklists from the MixesDB wiki. Entries frequently
// carry cue times and unknown-track placeholders, both stripped here so the
// transformer sees plain "Artist - Title" strings.
type MixesDB struct {
	fetcher *Fetcher
	cfg     config.SourceConfig
}

func NewMixesDB(fetcher *Fetcher, cfg config.SourceConfig) *MixesDB {
	return &MixesDB{fetcher: fetcher, cfg: cfg}
}

func (a *MixesDB) Name() domain.Source      { return domain.SourceMixesDB }
func (a *MixesDB) AllowedDomains() []string { return []string{"www.mixesdb.com"} }
func (a *MixesDB) PriorityHint() int        { return a.cfg.Priority }

func (a *MixesDB) IntervalHints() IntervalHints {
	return IntervalHints{Min: a.cfg.MinInterval, Max: a.cfg.MaxInterval}
}

func (a *MixesDB) SearchTarget(query string) TargetRef {
	return TargetRef{
		URL: fmt.Sprintf("%s/db/index.php?title=Special:Search&search=%s&fulltext=1",
			mixesDBBase, url.QueryEscape(query)),
		Kind:     TargetIndex,
		Priority: a.cfg.Priority,
	}
}

func (a *MixesDB) Fetch(ctx context.Context, target TargetRef) (*RawResponse, error) {
	return a.fetcher.Get(ctx, a.Name(), target.URL)
}

func (a *MixesDB) ParseIndex(resp *RawResponse) ([]TargetRef, error) {
	matches := mixesDBDetailRe.FindAllStringSubmatch(string(resp.Body), -1)
	seen := make(map[string]bool)
	var out []TargetRef
	for _, m := range matches {
		u := mixesDBBase + m[1]
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, TargetRef{URL: u, Kind: TargetDetail, Priority: a.cfg.Priority})
	}
	return out, nil
}

func (a *MixesDB) ParseDetail(resp *RawResponse) ([]domain.RawScrape, error) {
	body := string(resp.Body)

	name := "Untitled Mix"
	if m := mixesDBTitleRe.FindStringSubmatch(body); m != nil {
		name = htmlUnescape(strings.TrimSpace(m[1]))
	}

	var entries []string
	for _, m := range mixesDBEntryRe.FindAllStringSubmatch(body, -1) {
		entry := htmlUnescape(strings.TrimSpace(m[1]))
		if entry == "" || entry == "?" || strings.HasPrefix(entry, "...") {
			continue
		}
		if !strings.Contains(entry, " - ") {
			continue
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return nil, domain.NewParseError(a.Name(), fmt.Errorf("no tracklist entries at %s", resp.URL))
	}

	return PlaylistBronze(a.Name(), resp.URL, name, entries, nil), nil
}

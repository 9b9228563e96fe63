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

const tracklists1001Base = "https://www.1001tracklists.com"

var (
	tl1001DetailRe = regexp.MustCompile(`href="(/tracklist/[a-z0-9]+/[^"]+\.html)"`)
	tl1001TitleRe  = regexp.MustCompile(`<meta\s+property="og:title"\s+content="([^"]+)"`)
	// Track rows carry the full "Artist - Title" string in a meta itemprop.
	tl1001TrackRe = regexp.MustCompile(`<meta\s+itemprop="name"\s+content="([^"]+)"`)
	tl1001PlayRe  = regexp.MustCompile(`itemprop="interactionCount"\s+content="UserPlays:(\d+)"`)
)

// Tracklists1001 scrapes DJ set tracklists from 1001tracklists. It is the
// richest transition source: every tracklist yields ordered playlist entries
// and the adjacency pairs between them.
type Tracklists1001 struct {
	fetcher *Fetcher
	cfg     config.SourceConfig
}

func NewTracklists1001(fetcher *Fetcher, cfg config.SourceConfig) *Tracklists1001 {
	return &Tracklists1001{fetcher: fetcher, cfg: cfg}
}

func (a *Tracklists1001) Name() domain.Source      { return domain.SourceTracklists1001 }
func (a *Tracklists1001) AllowedDomains() []string { return []string{"www.1001tracklists.com"} }
func (a *Tracklists1001) PriorityHint() int        { return a.cfg.Priority }

func (a *Tracklists1001) IntervalHints() IntervalHints {
	return IntervalHints{Min: a.cfg.MinInterval, Max: a.cfg.MaxInterval}
}

func (a *Tracklists1001) SearchTarget(query string) TargetRef {
	return TargetRef{
		URL: fmt.Sprintf("%s/search/result.php?main_search=%s&search_selection=9",
			tracklists1001Base, url.QueryEscape(query)),
		Kind:     TargetIndex,
		Priority: a.cfg.Priority,
	}
}

func (a *Tracklists1001) Fetch(ctx context.Context, target TargetRef) (*RawResponse, error) {
	return a.fetcher.Get(ctx, a.Name(), target.URL)
}

func (a *Tracklists1001) ParseIndex(resp *RawResponse) ([]TargetRef, error) {
	matches := tl1001DetailRe.FindAllStringSubmatch(string(resp.Body), -1)
	seen := make(map[string]bool)
	var out []TargetRef
	for _, m := range matches {
		u := tracklists1001Base + m[1]
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, TargetRef{URL: u, Kind: TargetDetail, Priority: a.cfg.Priority})
		if len(out) >= a.cfg.MaxConcurrentPages*10 {
			break
		}
	}
	return out, nil
}

func (a *Tracklists1001) ParseDetail(resp *RawResponse) ([]domain.RawScrape, error) {
	body := string(resp.Body)

	name := "Untitled Tracklist"
	if m := tl1001TitleRe.FindStringSubmatch(body); m != nil {
		name = htmlUnescape(m[1])
	}

	var entries []string
	for _, m := range tl1001TrackRe.FindAllStringSubmatch(body, -1) {
		entry := htmlUnescape(strings.TrimSpace(m[1]))
		if entry == "" || strings.EqualFold(entry, "id - id") {
			continue
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return nil, domain.NewParseError(a.Name(), fmt.Errorf("no tracks found at %s", resp.URL))
	}

	extra := domain.JSONMap{}
	if m := tl1001PlayRe.FindStringSubmatch(body); m != nil {
		extra["play_count"] = m[1]
	}
	return PlaylistBronze(a.Name(), resp.URL, name, entries, extra), nil
}

var htmlEntityReplacer = strings.NewReplacer(
	"&amp;", "&",
	"&lt;", "<",
	"&gt;", ">",
	"&quot;", `"`,
	"&#39;", "'",
	"&#039;", "'",
	"&nbsp;", " ",
)

func htmlUnescape(s string) string {
	return htmlEntityReplacer.Replace(s)
}

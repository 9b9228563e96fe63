package scrape

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/setgraph/setgraph/internal/config"
	"github.com/setgraph/setgraph/internal/domain"
)

const redditBase = "https://www.reddit.com"

// Subreddits with a tracklist-posting culture. Search is restricted to these.
var redditSubreddits = []string{"DJsets", "Tracklists", "electronicmusic"}

type redditListing struct {
	Data struct {
		Children []struct {
			Data struct {
				Permalink string `json:"permalink"`
				Title     string `json:"title"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	Data struct {
		Children []struct {
			Data struct {
				Title     string  `json:"title"`
				Selftext  string  `json:"selftext"`
				Permalink string  `json:"permalink"`
				Score     float64 `json:"score"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Reddit scrapes tracklists posted as self-text. It is the lowest-trust
// source: entries are whatever redditors typed, so the parser only keeps
// numbered or timestamped lines that look like "Artist - Title".
type Reddit struct {
	fetcher *Fetcher
	cfg     config.SourceConfig
}

func NewReddit(fetcher *Fetcher, cfg config.SourceConfig) *Reddit {
	return &Reddit{fetcher: fetcher, cfg: cfg}
}

func (a *Reddit) Name() domain.Source      { return domain.SourceReddit }
func (a *Reddit) AllowedDomains() []string { return []string{"www.reddit.com"} }
func (a *Reddit) PriorityHint() int        { return a.cfg.Priority }

func (a *Reddit) IntervalHints() IntervalHints {
	return IntervalHints{Min: a.cfg.MinInterval, Max: a.cfg.MaxInterval}
}

func (a *Reddit) SearchTarget(query string) TargetRef {
	return TargetRef{
		URL: fmt.Sprintf("%s/r/%s/search.json?q=%s&restrict_sr=1&sort=top&limit=25",
			redditBase, redditSubreddits[0], url.QueryEscape(query+" tracklist")),
		Kind:     TargetIndex,
		Priority: a.cfg.Priority,
	}
}

func (a *Reddit) Fetch(ctx context.Context, target TargetRef) (*RawResponse, error) {
	return a.fetcher.Get(ctx, a.Name(), target.URL)
}

func (a *Reddit) ParseIndex(resp *RawResponse) ([]TargetRef, error) {
	var listing redditListing
	if err := json.Unmarshal(resp.Body, &listing); err != nil {
		return nil, domain.NewParseError(a.Name(), err)
	}
	var out []TargetRef
	for _, c := range listing.Data.Children {
		if c.Data.Permalink == "" {
			continue
		}
		out = append(out, TargetRef{
			URL:      redditBase + strings.TrimSuffix(c.Data.Permalink, "/") + ".json",
			Kind:     TargetDetail,
			Priority: a.cfg.Priority,
		})
	}
	return out, nil
}

// Tracklist lines start with a track number, a bullet, or a cue time.
var redditLineRe = regexp.MustCompile(`^\s*(?:\d+[.)]\s*|[-*]\s+|\[?\d{1,2}:\d{2}(?::\d{2})?\]?\s*)(.+?)\s*$`)

func (a *Reddit) ParseDetail(resp *RawResponse) ([]domain.RawScrape, error) {
	// Post endpoints return [post, comments]; only the post listing matters.
	var listings []json.RawMessage
	if err := json.Unmarshal(resp.Body, &listings); err != nil {
		return nil, domain.NewParseError(a.Name(), err)
	}
	if len(listings) == 0 {
		return nil, domain.NewParseError(a.Name(), fmt.Errorf("empty listing at %s", resp.URL))
	}
	var post redditPost
	if err := json.Unmarshal(listings[0], &post); err != nil {
		return nil, domain.NewParseError(a.Name(), err)
	}
	if len(post.Data.Children) == 0 {
		return nil, domain.NewParseError(a.Name(), fmt.Errorf("no post at %s", resp.URL))
	}
	p := post.Data.Children[0].Data

	var entries []string
	for _, line := range strings.Split(p.Selftext, "\n") {
		m := redditLineRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		entry := strings.TrimSpace(m[1])
		if !strings.Contains(entry, " - ") {
			continue
		}
		if strings.Contains(strings.ToLower(entry), "unreleased id") {
			continue
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return nil, domain.NewParseError(a.Name(), fmt.Errorf("no tracklist lines at %s", resp.URL))
	}

	pageURL := redditBase + p.Permalink
	return PlaylistBronze(a.Name(), pageURL, p.Title, entries, domain.JSONMap{
		"score": p.Score,
	}), nil
}

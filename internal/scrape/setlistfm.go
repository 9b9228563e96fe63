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

const setlistFMBase = "https://www.setlist.fm"

var setlistFMDetailRe = regexp.MustCompile(`href="(/setlist/[^"]+\.html)"`)

// setlistFMEvent mirrors the schema.org MusicEvent JSON-LD block embedded in
// every setlist page; it is far more stable than the surrounding markup.
type setlistFMEvent struct {
	Name      string `json:"name"`
	StartDate string `json:"startDate"`
	Performer []struct {
		Name string `json:"name"`
	} `json:"performer"`
	Location struct {
		Name string `json:"name"`
	} `json:"location"`
	Track []struct {
		Name string `json:"name"`
	} `json:"track"`
}

// SetlistFM scrapes concert setlists. The performing artist is the implied
// artist for every entry, so parsed entries are already "Artist - Title".
type SetlistFM struct {
	fetcher *Fetcher
	cfg     config.SourceConfig
}

func NewSetlistFM(fetcher *Fetcher, cfg config.SourceConfig) *SetlistFM {
	return &SetlistFM{fetcher: fetcher, cfg: cfg}
}

func (a *SetlistFM) Name() domain.Source      { return domain.SourceSetlistFM }
func (a *SetlistFM) AllowedDomains() []string { return []string{"www.setlist.fm"} }
func (a *SetlistFM) PriorityHint() int        { return a.cfg.Priority }

func (a *SetlistFM) IntervalHints() IntervalHints {
	return IntervalHints{Min: a.cfg.MinInterval, Max: a.cfg.MaxInterval}
}

func (a *SetlistFM) SearchTarget(query string) TargetRef {
	return TargetRef{
		URL:      fmt.Sprintf("%s/search?query=%s", setlistFMBase, url.QueryEscape(query)),
		Kind:     TargetIndex,
		Priority: a.cfg.Priority,
	}
}

func (a *SetlistFM) Fetch(ctx context.Context, target TargetRef) (*RawResponse, error) {
	return a.fetcher.Get(ctx, a.Name(), target.URL)
}

func (a *SetlistFM) ParseIndex(resp *RawResponse) ([]TargetRef, error) {
	matches := setlistFMDetailRe.FindAllStringSubmatch(string(resp.Body), -1)
	seen := make(map[string]bool)
	var out []TargetRef
	for _, m := range matches {
		u := setlistFMBase + m[1]
		if seen[u] {
			continue
		}
		seen[u] = true
		out = append(out, TargetRef{URL: u, Kind: TargetDetail, Priority: a.cfg.Priority})
	}
	return out, nil
}

var jsonLDRe = regexp.MustCompile(`(?s)<script type="application/ld\+json">(.*?)</script>`)

func (a *SetlistFM) ParseDetail(resp *RawResponse) ([]domain.RawScrape, error) {
	var event *setlistFMEvent
	for _, m := range jsonLDRe.FindAllSubmatch(resp.Body, -1) {
		var e setlistFMEvent
		if err := json.Unmarshal(m[1], &e); err != nil {
			continue
		}
		if len(e.Track) > 0 {
			event = &e
			break
		}
	}
	if event == nil {
		return nil, domain.NewParseError(a.Name(), fmt.Errorf("no setlist JSON-LD at %s", resp.URL))
	}

	artist := ""
	if len(event.Performer) > 0 {
		artist = event.Performer[0].Name
	}
	if artist == "" {
		return nil, domain.NewParseError(a.Name(), fmt.Errorf("setlist without performer at %s", resp.URL))
	}

	name := event.Name
	if name == "" {
		name = fmt.Sprintf("%s at %s", artist, event.Location.Name)
	}

	var entries []string
	for _, t := range event.Track {
		title := strings.TrimSpace(t.Name)
		if title == "" {
			continue
		}
		entries = append(entries, artist+" - "+title)
	}
	if len(entries) == 0 {
		return nil, domain.NewParseError(a.Name(), fmt.Errorf("empty setlist at %s", resp.URL))
	}

	extra := domain.JSONMap{"performer": artist}
	if event.StartDate != "" {
		extra["event_date"] = event.StartDate
	}
	out := PlaylistBronze(a.Name(), resp.URL, name, entries, extra)
	out = append(out, NewBronze(a.Name(), domain.ScrapeTypeArtist, HashKey("setlistfm-artist", artist), domain.JSONMap{
		"name":       artist,
		"source_url": resp.URL,
	}))
	return out, nil
}

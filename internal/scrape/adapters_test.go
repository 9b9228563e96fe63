package scrape

import (
	"context"
	"strings"
	"testing"

	"github.com/setgraph/setgraph/internal/config"
	"github.com/setgraph/setgraph/internal/domain"
)

func testSourceConfig() config.SourceConfig {
	return config.SourceConfig{Priority: 5, MaxConcurrentPages: 3}
}

func resp(url, body string) *RawResponse {
	return &RawResponse{URL: url, StatusCode: 200, Body: []byte(body)}
}

const tl1001IndexFixture = `
<div class="tlLink"><a href="/tracklist/abc123/artist-essential-mix-2024.html">Essential Mix</a></div>
<div class="tlLink"><a href="/tracklist/def456/artist-club-night.html">Club Night</a></div>
<div class="tlLink"><a href="/tracklist/abc123/artist-essential-mix-2024.html">duplicate</a></div>
`

const tl1001DetailFixture = `
<meta property="og:title" content="Artist &amp; Friend @ Warehouse 2024"/>
<div itemprop="tracks"><meta itemprop="name" content="Bicep - Glue"/></div>
<div itemprop="tracks"><meta itemprop="name" content="ID - ID"/></div>
<div itemprop="tracks"><meta itemprop="name" content="Moderat - A New Error"/></div>
<meta itemprop="interactionCount" content="UserPlays:1234"/>
`

func TestTracklists1001ParseIndex(t *testing.T) {
	a := NewTracklists1001(nil, testSourceConfig())

	targets, err := a.ParseIndex(resp("https://www.1001tracklists.com/search", tl1001IndexFixture))
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 2 {
		t.Fatalf("got %d targets, want 2 (deduped)", len(targets))
	}
	if targets[0].URL != tracklists1001Base+"/tracklist/abc123/artist-essential-mix-2024.html" {
		t.Errorf("unexpected first target %s", targets[0].URL)
	}
	if targets[0].Kind != TargetDetail {
		t.Errorf("Kind = %s, want detail", targets[0].Kind)
	}
}

func TestTracklists1001ParseDetail(t *testing.T) {
	a := NewTracklists1001(nil, testSourceConfig())

	records, err := a.ParseDetail(resp("https://www.1001tracklists.com/tracklist/abc123/x.html", tl1001DetailFixture))
	if err != nil {
		t.Fatal(err)
	}

	pl := records[0]
	if pl.ScrapeType != domain.ScrapeTypePlaylist {
		t.Fatalf("first record type = %s, want playlist", pl.ScrapeType)
	}
	if pl.RawData["name"] != "Artist & Friend @ Warehouse 2024" {
		t.Errorf("playlist name = %v, entities not unescaped", pl.RawData["name"])
	}
	if pl.RawData["play_count"] != "1234" {
		t.Errorf("play_count = %v, want 1234", pl.RawData["play_count"])
	}

	// "ID - ID" placeholders are dropped: 2 real entries, 1 adjacency.
	tracks := 0
	adjacencies := 0
	for _, r := range records {
		switch r.ScrapeType {
		case domain.ScrapeTypeTrack:
			tracks++
			if strings.EqualFold(r.RawData["raw_title"].(string), "id - id") {
				t.Error("ID placeholder leaked into bronze")
			}
		case domain.ScrapeTypeTrackAdjacency:
			adjacencies++
		}
	}
	if tracks != 2 || adjacencies != 1 {
		t.Errorf("tracks=%d adjacencies=%d, want 2 and 1", tracks, adjacencies)
	}
}

func TestTracklists1001ParseDetailEmpty(t *testing.T) {
	a := NewTracklists1001(nil, testSourceConfig())
	_, err := a.ParseDetail(resp("https://www.1001tracklists.com/tracklist/x.html", "<html>nothing</html>"))
	if err == nil {
		t.Fatal("expected parse error for trackless page")
	}
	if domain.KindOf(err) != domain.ErrKindParse {
		t.Errorf("error kind = %s, want parse", domain.KindOf(err))
	}
}

const mixesDBDetailFixture = `
<h1 id="firstHeading"><span>2024-06-01 - Some DJ @ Club</span></h1>
<ol>
<li>[0:00] Bicep - Glue</li>
<li>?</li>
<li>[1:23:45] Moderat - A New Error</li>
<li>just a note without separator</li>
<li>Underworld - Born Slippy</li>
</ol>
`

func TestMixesDBParseDetail(t *testing.T) {
	a := NewMixesDB(nil, testSourceConfig())

	records, err := a.ParseDetail(resp("https://www.mixesdb.com/w/2024-06-01", mixesDBDetailFixture))
	if err != nil {
		t.Fatal(err)
	}
	if records[0].RawData["name"] != "2024-06-01 - Some DJ @ Club" {
		t.Errorf("playlist name = %v", records[0].RawData["name"])
	}

	var titles []string
	for _, r := range records {
		if r.ScrapeType == domain.ScrapeTypeTrack {
			titles = append(titles, r.RawData["raw_title"].(string))
		}
	}
	want := []string{"Bicep - Glue", "Moderat - A New Error", "Underworld - Born Slippy"}
	if len(titles) != len(want) {
		t.Fatalf("titles = %v, want %v", titles, want)
	}
	for i := range want {
		if titles[i] != want[i] {
			t.Errorf("title[%d] = %q, want %q", i, titles[i], want[i])
		}
	}
}

func TestMixesDBParseIndex(t *testing.T) {
	a := NewMixesDB(nil, testSourceConfig())
	body := `<a href="/w/2024-06-01_-_Some_DJ">x</a><a href="/w/2023-01-15_-_Other">y</a><a href="/w/Category:Thing">skip</a>`
	targets, err := a.ParseIndex(resp("https://www.mixesdb.com/db/index.php", body))
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 2 {
		t.Fatalf("got %d targets, want 2 (year-prefixed pages only)", len(targets))
	}
}

const setlistFMDetailFixture = `
<html><head>
<script type="application/ld+json">{"@type":"BreadcrumbList"}</script>
<script type="application/ld+json">
{
  "name": "Daft Punk Setlist at Coachella 2006",
  "startDate": "2006-04-29",
  "performer": [{"name": "Daft Punk"}],
  "location": {"name": "Coachella"},
  "track": [
    {"name": "Robot Rock"},
    {"name": ""},
    {"name": "One More Time"}
  ]
}
</script>
</head></html>
`

func TestSetlistFMParseDetail(t *testing.T) {
	a := NewSetlistFM(nil, testSourceConfig())

	records, err := a.ParseDetail(resp("https://www.setlist.fm/setlist/daft-punk/2006.html", setlistFMDetailFixture))
	if err != nil {
		t.Fatal(err)
	}

	var entries []string
	artistRecords := 0
	for _, r := range records {
		switch r.ScrapeType {
		case domain.ScrapeTypeTrack:
			entries = append(entries, r.RawData["raw_title"].(string))
		case domain.ScrapeTypeArtist:
			artistRecords++
			if r.RawData["name"] != "Daft Punk" {
				t.Errorf("artist record name = %v", r.RawData["name"])
			}
		}
	}
	want := []string{"Daft Punk - Robot Rock", "Daft Punk - One More Time"}
	if len(entries) != len(want) {
		t.Fatalf("entries = %v, want %v", entries, want)
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entry[%d] = %q, want %q", i, entries[i], want[i])
		}
	}
	if artistRecords != 1 {
		t.Errorf("artist records = %d, want 1", artistRecords)
	}
	if records[0].RawData["event_date"] != "2006-04-29" {
		t.Errorf("event_date = %v", records[0].RawData["event_date"])
	}
}

func TestSetlistFMParseDetailNoPerformer(t *testing.T) {
	a := NewSetlistFM(nil, testSourceConfig())
	body := `<script type="application/ld+json">{"track":[{"name":"X"}]}</script>`
	if _, err := a.ParseDetail(resp("https://www.setlist.fm/setlist/x.html", body)); err == nil {
		t.Fatal("expected error for setlist without performer")
	}
}

const redditIndexFixture = `{
  "data": {"children": [
    {"data": {"permalink": "/r/DJsets/comments/abc/great_set/", "title": "Great set"}},
    {"data": {"permalink": "", "title": "deleted"}}
  ]}
}`

const redditDetailFixture = `[
  {"data": {"children": [{"data": {
    "title": "Boiler Room Tracklist",
    "permalink": "/r/DJsets/comments/abc/great_set/",
    "score": 321,
    "selftext": "Here is what I caught:\n1. Bicep - Glue\n2) Moderat - A New Error\n* Underworld - Born Slippy\n[12:34] Daft Punk - Da Funk\n3. unreleased ID - mystery\nsome chatter line\nDaft Punk One More Time"
  }}]}},
  {"data": {"children": []}}
]`

func TestRedditParseIndex(t *testing.T) {
	a := NewReddit(nil, testSourceConfig())

	targets, err := a.ParseIndex(resp("https://www.reddit.com/r/DJsets/search.json", redditIndexFixture))
	if err != nil {
		t.Fatal(err)
	}
	if len(targets) != 1 {
		t.Fatalf("got %d targets, want 1", len(targets))
	}
	if targets[0].URL != "https://www.reddit.com/r/DJsets/comments/abc/great_set.json" {
		t.Errorf("target URL = %s", targets[0].URL)
	}
}

func TestRedditParseDetail(t *testing.T) {
	a := NewReddit(nil, testSourceConfig())

	records, err := a.ParseDetail(resp("https://www.reddit.com/r/DJsets/comments/abc/great_set.json", redditDetailFixture))
	if err != nil {
		t.Fatal(err)
	}
	if records[0].RawData["name"] != "Boiler Room Tracklist" {
		t.Errorf("playlist name = %v", records[0].RawData["name"])
	}
	if records[0].RawData["score"] != float64(321) {
		t.Errorf("score = %v, want 321", records[0].RawData["score"])
	}

	var entries []string
	for _, r := range records {
		if r.ScrapeType == domain.ScrapeTypeTrack {
			entries = append(entries, r.RawData["raw_title"].(string))
		}
	}
	// Unmarked lines, chatter, and "unreleased ID" entries are dropped.
	want := []string{"Bicep - Glue", "Moderat - A New Error", "Underworld - Born Slippy", "Daft Punk - Da Funk"}
	if len(entries) != len(want) {
		t.Fatalf("entries = %v, want %v", entries, want)
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entry[%d] = %q, want %q", i, entries[i], want[i])
		}
	}
}

func TestRedditParseDetailMalformed(t *testing.T) {
	a := NewReddit(nil, testSourceConfig())
	for _, body := range []string{`not json`, `[]`, `[{"data":{"children":[]}}]`} {
		if _, err := a.ParseDetail(resp("https://www.reddit.com/x.json", body)); err == nil {
			t.Errorf("expected error for body %q", body)
		}
	}
}

func TestMockAdapterSeedPlaylist(t *testing.T) {
	m := NewMockAdapter(domain.Source("mock"))
	m.SeedPlaylist("https://mock.invalid/set1", "Set One", []string{"A - B", "C - D"})

	r, err := m.Fetch(context.Background(), TargetRef{URL: "https://mock.invalid/set1"})
	if err != nil {
		t.Fatal(err)
	}
	records, err := m.ParseDetail(r)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 6 {
		t.Errorf("got %d records, want 6", len(records))
	}
	if len(m.FetchCalls) != 1 {
		t.Errorf("FetchCalls = %v", m.FetchCalls)
	}

	if _, err := m.Fetch(context.Background(), TargetRef{URL: "https://mock.invalid/unknown"}); err == nil {
		t.Error("unknown URL should error")
	}
}

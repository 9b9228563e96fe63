// Package musicbrainz is a minimal MusicBrainz WS/2 client covering the two
// lookups the enrichment waterfall needs: recording by ISRC and recording by
// text search.
package musicbrainz

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/setgraph/setgraph/internal/domain"
	"github.com/setgraph/setgraph/internal/httpclient"
)

const (
	DefaultBaseURL = "https://musicbrainz.org/ws/2"
	requestTimeout = 10 * time.Second
	// MusicBrainz allows one request per second for anonymous clients.
	minRequestInterval = 1050 * time.Millisecond
)

type Client struct {
	httpClient *httpclient.Client
	baseURL    string
	userAgent  string
}

func NewClient(baseURL, userAgent string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: httpclient.NewClient(&http.Client{
			Timeout: requestTimeout,
		}, minRequestInterval),
		userAgent: userAgent,
	}
}

// Recording is the subset of a MusicBrainz recording the waterfall consumes.
type Recording struct {
	RecordingID string
	Title       string
	Artist      string
	ArtistID    string
	ISRC        string
	Label       string
	ReleaseDate string
	Genre       string
	DurationMS  int
}

// LookupByISRC returns the best recording carrying the given ISRC, or nil
// when MusicBrainz knows none.
func (c *Client) LookupByISRC(ctx context.Context, isrc string) (*Recording, error) {
	if isrc == "" {
		return nil, nil
	}
	query := fmt.Sprintf("isrc:%s", isrc)
	return c.search(ctx, query)
}

// SearchRecording text-searches by artist and title.
func (c *Client) SearchRecording(ctx context.Context, artist, title string) (*Recording, error) {
	if title == "" {
		return nil, nil
	}
	query := fmt.Sprintf(`recording:"%s"`, title)
	if artist != "" {
		query += fmt.Sprintf(` AND artist:"%s"`, artist)
	}
	return c.search(ctx, query)
}

func (c *Client) search(ctx context.Context, query string) (*Recording, error) {
	u := fmt.Sprintf("%s/recording?query=%s&inc=isrcs&fmt=json&limit=1",
		c.baseURL, url.QueryEscape(query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(ctx, req)
	if err != nil {
		return nil, domain.NewNetworkError(domain.SourceMusicBrainz, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, domain.NewNotFoundError(domain.SourceMusicBrainz)
	case resp.StatusCode != http.StatusOK:
		return nil, domain.NewHTTPStatusError(domain.SourceMusicBrainz, resp.StatusCode)
	}

	var result searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, domain.NewParseError(domain.SourceMusicBrainz, err)
	}
	if len(result.Recordings) == 0 {
		return nil, nil
	}

	rec := result.Recordings[0]
	out := &Recording{
		RecordingID: rec.ID,
		Title:       rec.Title,
		DurationMS:  rec.Length,
		Genre:       topTag(rec.Tags),
	}
	if len(rec.ISRCs) > 0 {
		out.ISRC = rec.ISRCs[0]
	}
	if len(rec.ArtistCredit) > 0 {
		out.Artist = rec.ArtistCredit[0].Artist.Name
		out.ArtistID = rec.ArtistCredit[0].Artist.ID
	}
	if rel := firstOfficialRelease(rec.Releases); rel != nil {
		out.ReleaseDate = rel.Date
		if len(rel.LabelInfo) > 0 {
			out.Label = rel.LabelInfo[0].Label.Name
		}
	}
	return out, nil
}

func firstOfficialRelease(releases []release) *release {
	for i := range releases {
		if releases[i].Status == "Official" {
			return &releases[i]
		}
	}
	if len(releases) == 0 {
		return nil
	}
	return &releases[0]
}

func topTag(tags []tag) string {
	best := ""
	bestCount := 0
	for _, t := range tags {
		if t.Count > bestCount && strings.TrimSpace(t.Name) != "" {
			bestCount = t.Count
			best = t.Name
		}
	}
	return best
}

type searchResponse struct {
	Recordings []recording `json:"recordings"`
}

type recording struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Tags         []tag          `json:"tags"`
	Releases     []release      `json:"releases"`
	ArtistCredit []artistCredit `json:"artist-credit"`
	ISRCs        []string       `json:"isrcs"`
	Length       int            `json:"length"`
}

type release struct {
	ID        string      `json:"id"`
	Title     string      `json:"title"`
	Status    string      `json:"status"`
	Date      string      `json:"date"`
	LabelInfo []labelInfo `json:"label-info"`
}

type artistCredit struct {
	Name   string `json:"name"`
	Artist artist `json:"artist"`
}

type artist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type tag struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type labelInfo struct {
	Label label `json:"label"`
}

type label struct {
	Name string `json:"name"`
}

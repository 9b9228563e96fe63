// Package discogs is a thin Discogs database-search client used for release
// and label metadata and as a tier-2 artist resolver source.
package discogs

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/setgraph/setgraph/internal/domain"
	"github.com/setgraph/setgraph/internal/httpclient"
)

const (
	DefaultBaseURL = "https://api.discogs.com"
	requestTimeout = 10 * time.Second
	// Authenticated Discogs clients get 60 requests per minute.
	minRequestInterval = 1100 * time.Millisecond
)

type Client struct {
	httpClient *httpclient.Client
	baseURL    string
	apiToken   string
	userAgent  string
}

func NewClient(baseURL, apiToken, userAgent string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpclient.NewClient(&http.Client{
			Timeout: requestTimeout,
		}, minRequestInterval),
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		apiToken:  apiToken,
		userAgent: userAgent,
	}
}

// Release is one Discogs search hit.
type Release struct {
	ID     string
	Title  string
	Artist string
	Label  string
	Genre  string
	Year   int
}

// SearchRelease queries the database search endpoint. label may be empty.
func (c *Client) SearchRelease(ctx context.Context, artist, title, label string) (*Release, error) {
	if title == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("type", "release")
	params.Set("track", title)
	params.Set("per_page", "1")
	if artist != "" {
		params.Set("artist", artist)
	}
	if label != "" {
		params.Set("label", label)
	}
	if c.apiToken != "" {
		params.Set("token", c.apiToken)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/database/search?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(ctx, req)
	if err != nil {
		return nil, domain.NewNetworkError(domain.SourceDiscogs, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, domain.NewRateLimitedError(domain.SourceDiscogs, httpclient.ParseRetryAfter(resp))
	case resp.StatusCode != http.StatusOK:
		return nil, domain.NewHTTPStatusError(domain.SourceDiscogs, resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, domain.NewParseError(domain.SourceDiscogs, err)
	}
	if len(body.Results) == 0 {
		return nil, nil
	}

	hit := body.Results[0]
	out := &Release{
		ID:    strconv.Itoa(hit.ID),
		Title: hit.Title,
	}
	// Discogs titles come as "Artist - Title".
	if idx := strings.Index(hit.Title, " - "); idx > 0 {
		out.Artist = strings.TrimSpace(hit.Title[:idx])
		out.Title = strings.TrimSpace(hit.Title[idx+3:])
	}
	if len(hit.Label) > 0 {
		out.Label = hit.Label[0]
	}
	if len(hit.Genre) > 0 {
		out.Genre = hit.Genre[0]
	}
	if hit.Year != "" {
		out.Year, _ = strconv.Atoi(hit.Year)
	}
	return out, nil
}

// SearchArtistForTitle returns the artist credited on the top release hit
// for a title within a label, used by the artist resolver's external tier.
func (c *Client) SearchArtistForTitle(ctx context.Context, title, label string) (string, error) {
	rel, err := c.SearchRelease(ctx, "", title, label)
	if err != nil {
		return "", err
	}
	if rel == nil {
		return "", nil
	}
	return rel.Artist, nil
}

type searchResponse struct {
	Results []struct {
		ID    int      `json:"id"`
		Title string   `json:"title"`
		Label []string `json:"label"`
		Genre []string `json:"genre"`
		Year  string   `json:"year"`
	} `json:"results"`
}

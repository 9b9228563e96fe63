// Package tidal is a thin Tidal OpenAPI client used as the second streaming
// source in the enrichment waterfall.
package tidal

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
	DefaultBaseURL     = "https://openapi.tidal.com/v2"
	requestTimeout     = 10 * time.Second
	minRequestInterval = 500 * time.Millisecond
	countryCode        = "US"
)

type Client struct {
	httpClient *httpclient.Client
	baseURL    string
	apiToken   string
}

func NewClient(baseURL, apiToken string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpclient.NewClient(&http.Client{
			Timeout: requestTimeout,
		}, minRequestInterval),
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		apiToken: apiToken,
	}
}

// Track is the subset of a Tidal track the waterfall consumes.
type Track struct {
	ID         string
	Title      string
	Artist     string
	ISRC       string
	DurationMS int
	BPM        float64
}

// SearchByISRC finds the track carrying an ISRC, or nil when unknown.
func (c *Client) SearchByISRC(ctx context.Context, isrc string) (*Track, error) {
	if isrc == "" {
		return nil, nil
	}
	path := fmt.Sprintf("/tracks?countryCode=%s&filter[isrc]=%s", countryCode, url.QueryEscape(isrc))
	return c.getOne(ctx, path)
}

// SearchTrack text-searches by artist and title.
func (c *Client) SearchTrack(ctx context.Context, artist, title string) (*Track, error) {
	if title == "" {
		return nil, nil
	}
	q := strings.TrimSpace(artist + " " + title)
	path := fmt.Sprintf("/searchresults/%s/relationships/tracks?countryCode=%s&include=tracks",
		url.PathEscape(q), countryCode)
	return c.getOne(ctx, path)
}

func (c *Client) getOne(ctx context.Context, path string) (*Track, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiToken)
	req.Header.Set("Accept", "application/vnd.api+json")

	resp, err := c.httpClient.Do(ctx, req)
	if err != nil {
		return nil, domain.NewNetworkError(domain.SourceTidal, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, domain.NewRateLimitedError(domain.SourceTidal, httpclient.ParseRetryAfter(resp))
	case resp.StatusCode != http.StatusOK:
		return nil, domain.NewHTTPStatusError(domain.SourceTidal, resp.StatusCode)
	}

	var body tracksResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, domain.NewParseError(domain.SourceTidal, err)
	}
	if len(body.Data) == 0 {
		return nil, nil
	}

	item := body.Data[0]
	out := &Track{
		ID:    item.ID,
		Title: item.Attributes.Title,
		ISRC:  item.Attributes.ISRC,
		BPM:   item.Attributes.BPM,
	}
	if d, err := time.ParseDuration(strings.ToLower(strings.TrimPrefix(item.Attributes.Duration, "PT"))); err == nil {
		out.DurationMS = int(d.Milliseconds())
	}
	if len(item.Attributes.Artists) > 0 {
		out.Artist = item.Attributes.Artists[0].Name
	}
	return out, nil
}

type tracksResponse struct {
	Data []struct {
		ID         string `json:"id"`
		Attributes struct {
			Title    string  `json:"title"`
			ISRC     string  `json:"isrc"`
			Duration string  `json:"duration"`
			BPM      float64 `json:"bpm"`
			Artists  []struct {
				Name string `json:"name"`
			} `json:"artists"`
		} `json:"attributes"`
	} `json:"data"`
}

// Package lastfm fetches track tags and popularity from the Last.fm API.
package lastfm

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
	DefaultBaseURL     = "https://ws.audioscrobbler.com/2.0/"
	requestTimeout     = 10 * time.Second
	minRequestInterval = 250 * time.Millisecond
)

type Client struct {
	httpClient *httpclient.Client
	baseURL    string
	apiKey     string
}

func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpclient.NewClient(&http.Client{
			Timeout: requestTimeout,
		}, minRequestInterval),
		baseURL: baseURL,
		apiKey:  apiKey,
	}
}

// TrackInfo is the subset of track.getInfo the waterfall consumes.
type TrackInfo struct {
	Tags      []string
	Listeners int
	Playcount int
	URL       string
}

func (c *Client) GetTrackInfo(ctx context.Context, artist, title string) (*TrackInfo, error) {
	if artist == "" || title == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("method", "track.getInfo")
	params.Set("api_key", c.apiKey)
	params.Set("artist", artist)
	params.Set("track", title)
	params.Set("format", "json")
	params.Set("autocorrect", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(ctx, req)
	if err != nil {
		return nil, domain.NewNetworkError(domain.SourceLastFM, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewHTTPStatusError(domain.SourceLastFM, resp.StatusCode)
	}

	var body trackInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, domain.NewParseError(domain.SourceLastFM, err)
	}
	// Last.fm signals "track not found" with an error code in a 200 body.
	if body.Error != 0 || body.Track.Name == "" {
		return nil, nil
	}

	info := &TrackInfo{URL: body.Track.URL}
	info.Listeners, _ = strconv.Atoi(body.Track.Listeners)
	info.Playcount, _ = strconv.Atoi(body.Track.Playcount)
	for _, t := range body.Track.TopTags.Tag {
		if name := strings.TrimSpace(t.Name); name != "" {
			info.Tags = append(info.Tags, name)
		}
	}
	return info, nil
}

type trackInfoResponse struct {
	Error int `json:"error"`
	Track struct {
		Name      string `json:"name"`
		URL       string `json:"url"`
		Listeners string `json:"listeners"`
		Playcount string `json:"playcount"`
		TopTags   struct {
			Tag []struct {
				Name string `json:"name"`
			} `json:"tag"`
		} `json:"toptags"`
	} `json:"track"`
}

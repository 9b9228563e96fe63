// Package getsongbpm is the last-resort bpm/key source, a text search
// against the GetSongBPM API.
package getsongbpm

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
	DefaultBaseURL     = "https://api.getsongbpm.com"
	requestTimeout     = 10 * time.Second
	minRequestInterval = 500 * time.Millisecond
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
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// Song is one search hit with its tempo and key.
type Song struct {
	Title  string
	Artist string
	BPM    float64
	Key    string
}

func (c *Client) SearchSong(ctx context.Context, artist, title string) (*Song, error) {
	if title == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("api_key", c.apiKey)
	params.Set("type", "both")
	params.Set("lookup", fmt.Sprintf("song:%s artist:%s", title, artist))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/search/?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(ctx, req)
	if err != nil {
		return nil, domain.NewNetworkError(domain.SourceGetSongBPM, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewHTTPStatusError(domain.SourceGetSongBPM, resp.StatusCode)
	}

	var body searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, domain.NewParseError(domain.SourceGetSongBPM, err)
	}
	if len(body.Search) == 0 {
		return nil, nil
	}

	hit := body.Search[0]
	song := &Song{
		Title:  hit.Title,
		Artist: hit.Artist.Name,
		Key:    hit.KeyOf,
	}
	song.BPM, _ = strconv.ParseFloat(hit.Tempo, 64)
	return song, nil
}

type searchResponse struct {
	Search []struct {
		Title  string `json:"song_title"`
		Tempo  string `json:"tempo"`
		KeyOf  string `json:"key_of"`
		Artist struct {
			Name string `json:"name"`
		} `json:"artist"`
	} `json:"search"`
}

// Package acousticbrainz fetches low-level audio analysis (bpm, key) by
// MusicBrainz recording id, used as the audio-features fallback.
package acousticbrainz

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
	DefaultBaseURL     = "https://acousticbrainz.org/api/v1"
	requestTimeout     = 10 * time.Second
	minRequestInterval = 500 * time.Millisecond
)

type Client struct {
	httpClient *httpclient.Client
	baseURL    string
}

func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		httpClient: httpclient.NewClient(&http.Client{
			Timeout: requestTimeout,
		}, minRequestInterval),
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

// Features is the tonal/rhythm subset of a low-level analysis document.
type Features struct {
	BPM float64
	// Key is a conventional name like "A minor".
	Key string
}

func (c *Client) GetFeatures(ctx context.Context, mbid string) (*Features, error) {
	if mbid == "" {
		return nil, nil
	}

	u := fmt.Sprintf("%s/%s/low-level", c.baseURL, url.PathEscape(mbid))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(ctx, req)
	if err != nil {
		return nil, domain.NewNetworkError(domain.SourceAcousticBrainz, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, nil
	case resp.StatusCode != http.StatusOK:
		return nil, domain.NewHTTPStatusError(domain.SourceAcousticBrainz, resp.StatusCode)
	}

	var body lowLevelResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, domain.NewParseError(domain.SourceAcousticBrainz, err)
	}

	out := &Features{BPM: body.Rhythm.BPM}
	if body.Tonal.KeyKey != "" {
		out.Key = strings.TrimSpace(body.Tonal.KeyKey + " " + body.Tonal.KeyScale)
	}
	return out, nil
}

type lowLevelResponse struct {
	Rhythm struct {
		BPM float64 `json:"bpm"`
	} `json:"rhythm"`
	Tonal struct {
		KeyKey   string `json:"key_key"`
		KeyScale string `json:"key_scale"`
	} `json:"tonal"`
}

// Package spotify is a Spotify Web API client using the client-credentials
// flow. It covers track detail, ISRC search, text search, and audio features.
package spotify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/setgraph/setgraph/internal/domain"
	"github.com/setgraph/setgraph/internal/httpclient"
)

const (
	apiBaseURL         = "https://api.spotify.com/v1"
	tokenURL           = "https://accounts.spotify.com/api/token"
	requestTimeout     = 10 * time.Second
	minRequestInterval = 250 * time.Millisecond
	tokenSlack         = 30 * time.Second
)

type Client struct {
	httpClient   *httpclient.Client
	baseURL      string
	tokenURL     string
	clientID     string
	clientSecret string

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewClient(clientID, clientSecret string) *Client {
	return &Client{
		httpClient: httpclient.NewClient(&http.Client{
			Timeout: requestTimeout,
		}, minRequestInterval),
		baseURL:      apiBaseURL,
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
	}
}

// SetBaseURLs overrides the endpoints, used by tests against httptest.
func (c *Client) SetBaseURLs(api, token string) {
	c.baseURL = strings.TrimSuffix(api, "/")
	c.tokenURL = token
}

// Track is the subset of a Spotify track the waterfall consumes.
type Track struct {
	ID         string
	Title      string
	Artist     string
	ArtistID   string
	ISRC       string
	DurationMS int
	Popularity int
	Label      string
}

// AudioFeatures carries the tempo and key analysis of one track.
type AudioFeatures struct {
	BPM        float64
	PitchClass int
	Mode       int
	Energy     float64
}

func (c *Client) GetTrack(ctx context.Context, trackID string) (*Track, error) {
	var resp trackResponse
	if err := c.getJSON(ctx, "/tracks/"+url.PathEscape(trackID), &resp); err != nil {
		return nil, err
	}
	return trackFromResponse(&resp), nil
}

func (c *Client) GetAudioFeatures(ctx context.Context, trackID string) (*AudioFeatures, error) {
	var resp audioFeaturesResponse
	if err := c.getJSON(ctx, "/audio-features/"+url.PathEscape(trackID), &resp); err != nil {
		return nil, err
	}
	return &AudioFeatures{
		BPM:        resp.Tempo,
		PitchClass: resp.Key,
		Mode:       resp.Mode,
		Energy:     resp.Energy,
	}, nil
}

// SearchByISRC finds the track carrying an ISRC, or nil when unknown.
func (c *Client) SearchByISRC(ctx context.Context, isrc string) (*Track, error) {
	if isrc == "" {
		return nil, nil
	}
	return c.searchOne(ctx, "isrc:"+isrc)
}

// SearchTrack text-searches by artist and title.
func (c *Client) SearchTrack(ctx context.Context, artist, title string) (*Track, error) {
	if title == "" {
		return nil, nil
	}
	q := fmt.Sprintf("track:%s", title)
	if artist != "" {
		q += fmt.Sprintf(" artist:%s", artist)
	}
	return c.searchOne(ctx, q)
}

func (c *Client) searchOne(ctx context.Context, query string) (*Track, error) {
	var resp searchResponse
	path := "/search?type=track&limit=1&q=" + url.QueryEscape(query)
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	if len(resp.Tracks.Items) == 0 {
		return nil, nil
	}
	return trackFromResponse(&resp.Tracks.Items[0]), nil
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.httpClient.Do(ctx, req)
	if err != nil {
		return domain.NewNetworkError(domain.SourceSpotify, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.NewNotFoundError(domain.SourceSpotify)
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.NewRateLimitedError(domain.SourceSpotify, httpclient.ParseRetryAfter(resp))
	case resp.StatusCode == http.StatusUnauthorized:
		// Token may have been revoked early; drop it so the next call
		// re-authenticates.
		c.mu.Lock()
		c.accessToken = ""
		c.mu.Unlock()
		return domain.NewHTTPStatusError(domain.SourceSpotify, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return domain.NewHTTPStatusError(domain.SourceSpotify, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return domain.NewParseError(domain.SourceSpotify, err)
	}
	return nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-tokenSlack)) {
		return c.accessToken, nil
	}

	body := strings.NewReader("grant_type=client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, body)
	if err != nil {
		return "", fmt.Errorf("failed to create token request: %w", err)
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.clientID + ":" + c.clientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(ctx, req)
	if err != nil {
		return "", domain.NewNetworkError(domain.SourceSpotify, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", domain.NewHTTPStatusError(domain.SourceSpotify, resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", domain.NewParseError(domain.SourceSpotify, err)
	}

	c.accessToken = tr.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

func trackFromResponse(tr *trackResponse) *Track {
	out := &Track{
		ID:         tr.ID,
		Title:      tr.Name,
		ISRC:       tr.ExternalIDs.ISRC,
		DurationMS: tr.DurationMS,
		Popularity: tr.Popularity,
		Label:      tr.Album.Label,
	}
	if len(tr.Artists) > 0 {
		out.Artist = tr.Artists[0].Name
		out.ArtistID = tr.Artists[0].ID
	}
	return out
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type searchResponse struct {
	Tracks struct {
		Items []trackResponse `json:"items"`
	} `json:"tracks"`
}

type trackResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	DurationMS  int    `json:"duration_ms"`
	Popularity  int    `json:"popularity"`
	ExternalIDs struct {
		ISRC string `json:"isrc"`
	} `json:"external_ids"`
	Artists []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Label string `json:"label"`
	} `json:"album"`
}

type audioFeaturesResponse struct {
	Tempo  float64 `json:"tempo"`
	Key    int     `json:"key"`
	Mode   int     `json:"mode"`
	Energy float64 `json:"energy"`
}

package scrape

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/setgraph/setgraph/internal/domain"
	"github.com/setgraph/setgraph/internal/robots"
)

const (
	fetchTimeout = 30 * time.Second
	maxBodyBytes = 4 * 1024 * 1024
)

// Fetcher is the shared fetch path all adapters use: robots acquire, HTTP
// GET with deadline, outcome report back to the governor.
type Fetcher struct {
	governor   *robots.Governor
	httpClient *http.Client
	userAgent  string
}

func NewFetcher(governor *robots.Governor, userAgent string) *Fetcher {
	return &Fetcher{
		governor: governor,
		httpClient: &http.Client{
			Timeout: fetchTimeout,
		},
		userAgent: userAgent,
	}
}

// Get fetches a URL under the governor's lease. Errors are typed for the
// retry policy: robots blocks are terminal, network trouble is retriable,
// HTTP statuses are classified by code.
func (f *Fetcher) Get(ctx context.Context, source domain.Source, rawURL string) (*RawResponse, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, domain.NewParseError(source, err)
	}

	if err := f.governor.Acquire(ctx, rawURL); err != nil {
		if errors.Is(err, robots.ErrRobotsBlocked) {
			return nil, domain.NewValidationError(source, err)
		}
		return nil, domain.NewNetworkError(source, err)
	}

	start := time.Now()
	outcome := robots.Outcome{}
	defer func() {
		outcome.ResponseTime = time.Since(start)
		f.governor.MarkComplete(u.Host, outcome)
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, domain.NewParseError(source, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/json;q=0.9,*/*;q=0.8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewNetworkError(source, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, domain.NewNetworkError(source, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		outcome.RateLimited = true
		retryAfter := 0 * time.Second
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if t, perr := time.ParseDuration(ra + "s"); perr == nil {
				retryAfter = t
			}
		}
		return nil, domain.NewRateLimitedError(source, retryAfter)
	case resp.StatusCode == http.StatusNotFound:
		outcome.Success = true // the host answered; nothing to back off from
		return nil, domain.NewNotFoundError(source)
	case resp.StatusCode >= 400:
		return nil, domain.NewHTTPStatusError(source, resp.StatusCode)
	}

	outcome.Success = true
	return &RawResponse{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		FetchedAt:  start,
		Duration:   time.Since(start),
	}, nil
}

package scrape

import (
	"context"
	"fmt"
	"time"

	"github.com/setgraph/setgraph/internal/domain"
)

// MockAdapter is an in-memory adapter for tests and dry runs. Responses are
// keyed by URL; unknown URLs return a not-found error so failure paths can be
// exercised without a network.
type MockAdapter struct {
	SourceName domain.Source
	Domains    []string
	Priority   int
	Hints      IntervalHints

	Responses map[string]*RawResponse
	Index     map[string][]TargetRef
	Detail    map[string][]domain.RawScrape

	FetchCalls []string
}

func NewMockAdapter(source domain.Source) *MockAdapter {
	return &MockAdapter{
		SourceName: source,
		Domains:    []string{"mock.invalid"},
		Priority:   1,
		Hints:      IntervalHints{Min: time.Minute, Max: 4 * time.Minute},
		Responses:  make(map[string]*RawResponse),
		Index:      make(map[string][]TargetRef),
		Detail:     make(map[string][]domain.RawScrape),
	}
}

func (m *MockAdapter) Name() domain.Source          { return m.SourceName }
func (m *MockAdapter) AllowedDomains() []string     { return m.Domains }
func (m *MockAdapter) PriorityHint() int            { return m.Priority }
func (m *MockAdapter) IntervalHints() IntervalHints { return m.Hints }

func (m *MockAdapter) SearchTarget(query string) TargetRef {
	return TargetRef{
		URL:      fmt.Sprintf("https://mock.invalid/search?q=%s", query),
		Kind:     TargetIndex,
		Priority: m.Priority,
	}
}

func (m *MockAdapter) Fetch(ctx context.Context, target TargetRef) (*RawResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.FetchCalls = append(m.FetchCalls, target.URL)
	resp, ok := m.Responses[target.URL]
	if !ok {
		return nil, domain.NewNotFoundError(m.SourceName)
	}
	return resp, nil
}

func (m *MockAdapter) ParseIndex(resp *RawResponse) ([]TargetRef, error) {
	return m.Index[resp.URL], nil
}

func (m *MockAdapter) ParseDetail(resp *RawResponse) ([]domain.RawScrape, error) {
	records, ok := m.Detail[resp.URL]
	if !ok {
		return nil, domain.NewParseError(m.SourceName, fmt.Errorf("no fixture for %s", resp.URL))
	}
	return records, nil
}

// SeedPlaylist registers a detail URL whose parse yields the standard bronze
// fan-out for the given entries.
func (m *MockAdapter) SeedPlaylist(url, name string, entries []string) {
	m.Responses[url] = &RawResponse{URL: url, StatusCode: 200, FetchedAt: time.Now()}
	m.Detail[url] = PlaylistBronze(m.SourceName, url, name, entries, nil)
}

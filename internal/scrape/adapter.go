// Package scrape defines the contract every site-specific scraper implements
// and the shared fetch plumbing that keeps adapters inside robots and rate
// limits. Adapters are stateless given their config: all crawl state lives in
// the governor, the scheduler, and the bronze store. Adapters never write to
// silver.
package scrape

import (
	"context"
	"net/http"
	"time"

	"github.com/setgraph/setgraph/internal/domain"
)

// TargetKind tells the scheduler what a target will yield when fetched.
type TargetKind string

const (
	// TargetIndex pages list further targets (e.g. a search result page).
	TargetIndex TargetKind = "index"
	// TargetDetail pages yield bronze records.
	TargetDetail TargetKind = "detail"
)

// TargetRef is one fetchable unit of work.
type TargetRef struct {
	URL      string     `json:"url"`
	Kind     TargetKind `json:"kind"`
	Priority int        `json:"priority"`
}

// RawResponse is the verbatim result of one fetch.
type RawResponse struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	FetchedAt  time.Time
	Duration   time.Duration
}

// IntervalHints bound how often the scheduler may run a source.
type IntervalHints struct {
	Min time.Duration
	Max time.Duration
}

// Adapter is the contract each source scraper implements.
type Adapter interface {
	// Name returns the source identifier for bronze records.
	Name() domain.Source

	// AllowedDomains lists the hosts this adapter may fetch from.
	AllowedDomains() []string

	// PriorityHint orders sources when scheduling competing work.
	PriorityHint() int

	// IntervalHints returns the adapter's preferred scheduling bounds.
	IntervalHints() IntervalHints

	// SearchTarget builds the index target for a seed query.
	SearchTarget(query string) TargetRef

	// Fetch retrieves a target, honoring the robots and rate governor.
	Fetch(ctx context.Context, target TargetRef) (*RawResponse, error)

	// ParseIndex extracts next-level targets from an index response.
	ParseIndex(resp *RawResponse) ([]TargetRef, error)

	// ParseDetail extracts bronze records from a detail response.
	ParseDetail(resp *RawResponse) ([]domain.RawScrape, error)
}

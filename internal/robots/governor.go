// Package robots enforces crawl politeness: robots.txt rules, per-host token
// buckets with adaptive back-off, and host-exclusive fetch leases.
package robots

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"golang.org/x/time/rate"

	"github.com/setgraph/setgraph/internal/cache"
	"github.com/setgraph/setgraph/internal/logger"
)

// ErrRobotsBlocked marks a URL robots.txt disallows; callers match it with
// errors.Is.
var ErrRobotsBlocked = errors.New("blocked by robots.txt")

const (
	// DefaultMinInterval is the conservative floor between requests to one
	// host when neither config nor robots.txt says otherwise.
	DefaultMinInterval = 10 * time.Second

	// maxBackoffFactor caps rate-limit doubling at 4x the base interval.
	maxBackoffFactor = 4

	robotsTTL          = 24 * time.Hour
	robotsFetchTimeout = 10 * time.Second

	// successWindow is how many recent outcomes feed the relax decision.
	successWindow = 20
	relaxRate     = 0.95
)

// HostStats are the per-host counters the scheduler reads.
type HostStats struct {
	TotalRequests      int64
	SuccessfulRequests int64
	RateLimitHits      int64
	LastResponseTime   time.Duration
	EffectiveDelay     time.Duration
}

// Outcome reports how a leased fetch went.
type Outcome struct {
	Success      bool
	RateLimited  bool
	ResponseTime time.Duration
}

type hostState struct {
	limiter        *rate.Limiter
	baseDelay      time.Duration
	effectiveDelay time.Duration
	lease          chan struct{}

	mu             sync.Mutex
	stats          HostStats
	recentOutcomes []bool
}

// Governor owns robots.txt data and per-host pacing. One instance is
// constructed at startup and shared by every adapter.
type Governor struct {
	userAgent   string
	minInterval time.Duration
	httpClient  *http.Client
	cache       cache.Cache
	logger      *logger.Logger

	mu    sync.Mutex
	hosts map[string]*hostState

	robotsMu sync.Mutex
	robots   map[string]*robotstxt.RobotsData
}

func NewGovernor(userAgent string, minInterval time.Duration, c cache.Cache, log *logger.Logger) *Governor {
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}
	if c == nil {
		c = cache.NewMemory()
	}
	if log == nil {
		log = logger.Default()
	}
	return &Governor{
		userAgent:   userAgent,
		minInterval: minInterval,
		httpClient:  &http.Client{Timeout: robotsFetchTimeout},
		cache:       c,
		logger:      log.WithComponent("robots"),
		hosts:       make(map[string]*hostState),
		robots:      make(map[string]*robotstxt.RobotsData),
	}
}

// robotsFor fetches and caches the parsed robots.txt for a host. A fetch
// failure yields permissive rules; robotstxt maps 4xx to allow-all and 5xx
// to disallow-all.
func (g *Governor) robotsFor(ctx context.Context, scheme, host string) *robotstxt.RobotsData {
	g.robotsMu.Lock()
	if rd, ok := g.robots[host]; ok {
		g.robotsMu.Unlock()
		return rd
	}
	g.robotsMu.Unlock()

	cacheKey := "robots:" + host
	if body, err := g.cache.Get(ctx, cacheKey); err == nil && body != nil {
		if rd, err := robotstxt.FromBytes(body); err == nil {
			g.storeRobots(host, rd)
			return rd
		}
	}

	rd := g.fetchRobots(ctx, scheme, host, cacheKey)
	g.storeRobots(host, rd)
	return rd
}

func (g *Governor) storeRobots(host string, rd *robotstxt.RobotsData) {
	g.robotsMu.Lock()
	g.robots[host] = rd
	g.robotsMu.Unlock()
}

func (g *Governor) fetchRobots(ctx context.Context, scheme, host, cacheKey string) *robotstxt.RobotsData {
	if scheme == "" {
		scheme = "https"
	}
	u := fmt.Sprintf("%s://%s/robots.txt", scheme, host)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return allowAll()
	}
	req.Header.Set("User-Agent", g.userAgent)

	resp, err := g.httpClient.Do(req)
	if err != nil {
		g.logger.Warn("robots.txt fetch failed", "host", host, "error", err)
		return allowAll()
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 512*1024))
	if err != nil {
		return allowAll()
	}

	rd, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		g.logger.Warn("robots.txt parse failed", "host", host, "error", err)
		return allowAll()
	}

	if resp.StatusCode == http.StatusOK {
		_ = g.cache.Set(ctx, cacheKey, body, robotsTTL)
	}
	return rd
}

func allowAll() *robotstxt.RobotsData {
	rd, _ := robotstxt.FromString("")
	return rd
}

// IsAllowed reports whether robots.txt permits fetching the URL.
func (g *Governor) IsAllowed(ctx context.Context, rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return false
	}
	rd := g.robotsFor(ctx, u.Scheme, u.Host)
	group := rd.FindGroup(g.userAgent)
	path := u.Path
	if path == "" {
		path = "/"
	}
	return group.Test(path)
}

// CrawlDelay returns the effective per-request interval for a host:
// max(robots crawl-delay, configured minimum), inflated by back-off.
func (g *Governor) CrawlDelay(host string) time.Duration {
	return g.hostStateFor(context.Background(), "https", host).effectiveDelay
}

func (g *Governor) hostStateFor(ctx context.Context, scheme, host string) *hostState {
	g.mu.Lock()
	if hs, ok := g.hosts[host]; ok {
		g.mu.Unlock()
		return hs
	}
	g.mu.Unlock()

	// Resolve robots delay outside the map lock; the fetch can block.
	base := g.minInterval
	rd := g.robotsFor(ctx, scheme, host)
	if group := rd.FindGroup(g.userAgent); group.CrawlDelay > base {
		base = group.CrawlDelay
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if hs, ok := g.hosts[host]; ok {
		return hs
	}
	hs := &hostState{
		limiter:        rate.NewLimiter(rate.Every(base), 1),
		baseDelay:      base,
		effectiveDelay: base,
		lease:          make(chan struct{}, 1),
	}
	g.hosts[host] = hs
	return hs
}

// Acquire blocks until the caller may fetch the URL: robots.txt must allow
// it, the host lease must be free, and the host bucket must have a token.
// The caller must call MarkComplete for the host afterwards.
func (g *Governor) Acquire(ctx context.Context, rawURL string) error {
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", rawURL, err)
	}

	if !g.IsAllowed(ctx, rawURL) {
		return fmt.Errorf("%w: %s", ErrRobotsBlocked, rawURL)
	}

	hs := g.hostStateFor(ctx, u.Scheme, u.Host)

	// Host-exclusive lease: at most one in-flight request per host.
	select {
	case hs.lease <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := hs.limiter.Wait(ctx); err != nil {
		<-hs.lease
		return err
	}

	hs.mu.Lock()
	hs.stats.TotalRequests++
	hs.mu.Unlock()
	return nil
}

// MarkComplete releases the host lease and feeds the adaptive back-off.
// 429s double the effective delay up to 4x the base; a sustained success
// streak relaxes it back toward the base interval.
func (g *Governor) MarkComplete(host string, outcome Outcome) {
	g.mu.Lock()
	hs, ok := g.hosts[host]
	g.mu.Unlock()
	if !ok {
		return
	}

	hs.mu.Lock()
	if outcome.Success {
		hs.stats.SuccessfulRequests++
	}
	if outcome.RateLimited {
		hs.stats.RateLimitHits++
	}
	if outcome.ResponseTime > 0 {
		hs.stats.LastResponseTime = outcome.ResponseTime
	}

	hs.recentOutcomes = append(hs.recentOutcomes, outcome.Success && !outcome.RateLimited)
	if len(hs.recentOutcomes) > successWindow {
		hs.recentOutcomes = hs.recentOutcomes[len(hs.recentOutcomes)-successWindow:]
	}

	switch {
	case outcome.RateLimited:
		doubled := hs.effectiveDelay * 2
		if capDelay := hs.baseDelay * maxBackoffFactor; doubled > capDelay {
			doubled = capDelay
		}
		if doubled != hs.effectiveDelay {
			hs.effectiveDelay = doubled
			hs.limiter.SetLimit(rate.Every(doubled))
			g.logger.Info("backing off host", "host", host, "delay", doubled)
		}
	case hs.effectiveDelay > hs.baseDelay && len(hs.recentOutcomes) == successWindow:
		if successRate(hs.recentOutcomes) > relaxRate {
			relaxed := hs.effectiveDelay / 2
			if relaxed < hs.baseDelay {
				relaxed = hs.baseDelay
			}
			hs.effectiveDelay = relaxed
			hs.limiter.SetLimit(rate.Every(relaxed))
			hs.recentOutcomes = nil
		}
	}
	hs.mu.Unlock()

	select {
	case <-hs.lease:
	default:
	}
}

func successRate(outcomes []bool) float64 {
	if len(outcomes) == 0 {
		return 0
	}
	ok := 0
	for _, s := range outcomes {
		if s {
			ok++
		}
	}
	return float64(ok) / float64(len(outcomes))
}

// Stats returns a copy of the counters for a host.
func (g *Governor) Stats(host string) HostStats {
	g.mu.Lock()
	hs, ok := g.hosts[host]
	g.mu.Unlock()
	if !ok {
		return HostStats{}
	}
	hs.mu.Lock()
	defer hs.mu.Unlock()
	out := hs.stats
	out.EffectiveDelay = hs.effectiveDelay
	return out
}

// HasCapacity reports whether a host could accept a request right now
// without blocking: lease free and a token available.
func (g *Governor) HasCapacity(host string) bool {
	g.mu.Lock()
	hs, ok := g.hosts[host]
	g.mu.Unlock()
	if !ok {
		// Unknown host: nothing fetched yet, so nothing is in the way.
		return true
	}
	return len(hs.lease) == 0 && hs.limiter.Tokens() >= 1
}

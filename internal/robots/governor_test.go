package robots

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/setgraph/setgraph/internal/cache"
	"github.com/setgraph/setgraph/internal/logger"
)

func testGovernor(t *testing.T, robotsBody string, robotsStatus int) (*Governor, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			w.WriteHeader(robotsStatus)
			_, _ = w.Write([]byte(robotsBody))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)

	g := NewGovernor("setgraph-test", 10*time.Millisecond, cache.NewMemory(), logger.Default())
	return g, srv
}

func TestIsAllowedHonorsDisallow(t *testing.T) {
	g, srv := testGovernor(t, "User-agent: *\nDisallow: /private/\n", http.StatusOK)

	if !g.IsAllowed(context.Background(), srv.URL+"/public/page") {
		t.Error("allowed path reported blocked")
	}
	if g.IsAllowed(context.Background(), srv.URL+"/private/page") {
		t.Error("disallowed path reported allowed")
	}
}

func TestIsAllowedPermissiveOnFetchFailure(t *testing.T) {
	g := NewGovernor("setgraph-test", 10*time.Millisecond, cache.NewMemory(), logger.Default())
	// Unreachable host: robots resolution falls back to allow-all.
	if !g.IsAllowed(context.Background(), "http://127.0.0.1:1/anything") {
		t.Error("unreachable robots.txt should be permissive")
	}
}

func TestAcquireBlockedByRobots(t *testing.T) {
	g, srv := testGovernor(t, "User-agent: *\nDisallow: /\n", http.StatusOK)

	err := g.Acquire(context.Background(), srv.URL+"/page")
	if err == nil {
		t.Fatal("expected robots.txt block")
	}
	if !errors.Is(err, ErrRobotsBlocked) {
		t.Errorf("error %v does not match ErrRobotsBlocked", err)
	}
}

func TestAcquireMarkCompleteCycle(t *testing.T) {
	g, srv := testGovernor(t, "User-agent: *\nAllow: /\n", http.StatusOK)
	u, _ := url.Parse(srv.URL)

	if err := g.Acquire(context.Background(), srv.URL+"/a"); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	g.MarkComplete(u.Host, Outcome{Success: true, ResponseTime: 5 * time.Millisecond})

	if err := g.Acquire(context.Background(), srv.URL+"/b"); err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	g.MarkComplete(u.Host, Outcome{Success: true})

	stats := g.Stats(u.Host)
	if stats.TotalRequests != 2 {
		t.Errorf("TotalRequests = %d, want 2", stats.TotalRequests)
	}
	if stats.SuccessfulRequests != 2 {
		t.Errorf("SuccessfulRequests = %d, want 2", stats.SuccessfulRequests)
	}
	if stats.LastResponseTime != 5*time.Millisecond {
		t.Errorf("LastResponseTime = %v, want 5ms", stats.LastResponseTime)
	}
}

func TestRateLimitDoublesDelayUpToCap(t *testing.T) {
	g, srv := testGovernor(t, "User-agent: *\nAllow: /\n", http.StatusOK)
	u, _ := url.Parse(srv.URL)

	if err := g.Acquire(context.Background(), srv.URL+"/a"); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	base := g.CrawlDelay(u.Host)

	for i := 0; i < 5; i++ {
		g.MarkComplete(u.Host, Outcome{RateLimited: true})
	}
	if got := g.CrawlDelay(u.Host); got != base*maxBackoffFactor {
		t.Errorf("delay after repeated 429s = %v, want %v", got, base*maxBackoffFactor)
	}
}

func TestHostLeaseIsExclusive(t *testing.T) {
	g, srv := testGovernor(t, "User-agent: *\nAllow: /\n", http.StatusOK)
	u, _ := url.Parse(srv.URL)

	if err := g.Acquire(context.Background(), srv.URL+"/a"); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	// Second acquire must block until MarkComplete releases the lease.
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := g.Acquire(ctx, srv.URL+"/b"); err == nil {
		t.Fatal("second acquire should have blocked while lease held")
	}

	g.MarkComplete(u.Host, Outcome{Success: true})
	if err := g.Acquire(context.Background(), srv.URL+"/c"); err != nil {
		t.Fatalf("acquire after release: %v", err)
	}
	g.MarkComplete(u.Host, Outcome{Success: true})
}

func TestCrawlDelayRespectsRobotsFloor(t *testing.T) {
	g, srv := testGovernor(t, "User-agent: *\nCrawl-delay: 1\n", http.StatusOK)
	u, _ := url.Parse(srv.URL)

	// Prime the robots cache over the test server's scheme.
	if !g.IsAllowed(context.Background(), srv.URL+"/") {
		t.Fatal("expected allow")
	}

	// robots crawl-delay of 1s exceeds the configured 10ms minimum.
	if got := g.CrawlDelay(u.Host); got != time.Second {
		t.Errorf("CrawlDelay = %v, want 1s", got)
	}
}

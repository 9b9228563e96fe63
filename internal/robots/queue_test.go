package robots

import (
	"context"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/setgraph/setgraph/internal/cache"
	"github.com/setgraph/setgraph/internal/logger"
)

func TestSmartQueuePriorityOrder(t *testing.T) {
	g := NewGovernor("setgraph-test", time.Hour, cache.NewMemory(), logger.Default())
	q := NewSmartQueue(g)

	q.Enqueue("https://a.example/low", 1)
	q.Enqueue("https://b.example/high", 10)
	q.Enqueue("https://c.example/mid", 5)

	if q.Len() != 3 {
		t.Fatalf("Len = %d, want 3", q.Len())
	}

	// Unknown hosts always have capacity, so order is pure priority.
	want := []string{"https://b.example/high", "https://c.example/mid", "https://a.example/low"}
	for _, w := range want {
		item := q.GetNext()
		if item == nil {
			t.Fatalf("GetNext returned nil, want %s", w)
		}
		if item.URL != w {
			t.Errorf("GetNext = %s, want %s", item.URL, w)
		}
	}
	if q.GetNext() != nil {
		t.Error("drained queue should return nil")
	}
}

func TestSmartQueueDropsInvalidURLs(t *testing.T) {
	g := NewGovernor("setgraph-test", time.Hour, cache.NewMemory(), logger.Default())
	q := NewSmartQueue(g)

	q.Enqueue("not a url at all\x00", 5)
	q.Enqueue("/relative/only", 5)
	if q.Len() != 0 {
		t.Errorf("Len = %d, want 0", q.Len())
	}
}

func TestSmartQueueSkipsBusyHost(t *testing.T) {
	g, srv := testGovernor(t, "User-agent: *\nAllow: /\n", http.StatusOK)
	q := NewSmartQueue(g)
	u, _ := url.Parse(srv.URL)

	// Holding the host lease makes its URLs non-runnable.
	if err := g.Acquire(context.Background(), srv.URL+"/busy"); err != nil {
		t.Fatalf("acquire: %v", err)
	}

	q.Enqueue(srv.URL+"/blocked", 10)
	q.Enqueue("https://other.example/free", 1)

	item := q.GetNext()
	if item == nil {
		t.Fatal("expected the free host's URL")
	}
	if item.URL != "https://other.example/free" {
		t.Errorf("GetNext = %s, want the free host despite lower priority", item.URL)
	}

	// Busy host's entry stays queued until the lease clears.
	if q.Len() != 1 {
		t.Fatalf("Len = %d, want 1", q.Len())
	}
	g.MarkComplete(u.Host, Outcome{Success: true})

	// Token was consumed by the acquire; wait for the 10ms bucket to refill.
	deadline := time.Now().Add(time.Second)
	for {
		if item = q.GetNext(); item != nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}
	if item == nil || item.URL != srv.URL+"/blocked" {
		t.Fatalf("GetNext after release = %+v, want blocked URL", item)
	}
}

package robots

import (
	"container/heap"
	"net/url"
	"sync"
	"time"
)

// PendingURL is one fetch the smart queue is holding until its host has
// capacity.
type PendingURL struct {
	URL        string
	Host       string
	Priority   int
	EnqueuedAt time.Time

	index int
}

type urlHeap []*PendingURL

func (h urlHeap) Len() int { return len(h) }

func (h urlHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].EnqueuedAt.Before(h[j].EnqueuedAt)
}

func (h urlHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *urlHeap) Push(x interface{}) {
	item := x.(*PendingURL)
	item.index = len(*h)
	*h = append(*h, item)
}

func (h *urlHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// SmartQueue hands out pending URLs only when their host bucket currently
// has capacity, so a slow host never blocks fetches for a fast one.
type SmartQueue struct {
	governor *Governor

	mu   sync.Mutex
	heap urlHeap
}

func NewSmartQueue(governor *Governor) *SmartQueue {
	return &SmartQueue{governor: governor}
}

// Enqueue adds a URL; invalid URLs are dropped.
func (q *SmartQueue) Enqueue(rawURL string, priority int) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return
	}
	q.mu.Lock()
	heap.Push(&q.heap, &PendingURL{
		URL:        rawURL,
		Host:       u.Host,
		Priority:   priority,
		EnqueuedAt: time.Now(),
	})
	q.mu.Unlock()
}

// GetNext returns the highest-priority pending URL whose host has capacity,
// or nil when nothing is runnable right now. The caller owns the returned
// URL and must route its fetch through Governor.Acquire / MarkComplete.
func (q *SmartQueue) GetNext() *PendingURL {
	q.mu.Lock()
	defer q.mu.Unlock()

	// Scan in heap order; skip entries whose host is busy and put them back.
	var skipped []*PendingURL
	var picked *PendingURL
	for q.heap.Len() > 0 {
		item := heap.Pop(&q.heap).(*PendingURL)
		if q.governor.HasCapacity(item.Host) {
			picked = item
			break
		}
		skipped = append(skipped, item)
	}
	for _, item := range skipped {
		heap.Push(&q.heap, item)
	}
	return picked
}

// Len reports how many URLs are waiting.
func (q *SmartQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

package scheduler

import (
	"testing"
	"time"

	"github.com/setgraph/setgraph/internal/config"
)

func TestNextIntervalBands(t *testing.T) {
	sc := config.SourceConfig{
		MinInterval: 10 * time.Minute,
		MaxInterval: 2 * time.Hour,
	}

	tests := []struct {
		name          string
		successRate   float64
		rateLimitHits int
		want          time.Duration
	}{
		{"healthy run stays at min", 1.0, 0, 10 * time.Minute},
		{"at the 0.95 boundary", 0.95, 0, 10 * time.Minute},
		{"mostly fine slows a little", 0.85, 0, 15 * time.Minute},
		{"half failing doubles", 0.60, 0, 20 * time.Minute},
		{"broken run backs way off", 0.20, 0, 40 * time.Minute},
		{"zero success rate", 0.0, 0, 40 * time.Minute},
		{"one rate limit hit", 1.0, 1, 15 * time.Minute},
		{"two hits compound", 1.0, 2, time.Duration(2.25 * float64(10*time.Minute))},
		{"penalty caps at four", 1.0, 10, 40 * time.Minute},
		{"penalty and band clamp to max", 0.20, 10, 2 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextInterval(sc, tt.successRate, tt.rateLimitHits)
			if got != tt.want {
				t.Errorf("nextInterval(%v, %d) = %v, want %v",
					tt.successRate, tt.rateLimitHits, got, tt.want)
			}
		})
	}
}

func TestRunFloorScalesToRunBudget(t *testing.T) {
	// A run burns up to seedsPerRun index fetches plus maxDetailPages detail
	// fetches per seed; the interval floor must cover all of them.
	if expectedRunRequests != seedsPerRun*(1+maxDetailPages) {
		t.Fatalf("expectedRunRequests = %d", expectedRunRequests)
	}

	tests := []struct {
		crawlDelay time.Duration
		want       time.Duration
	}{
		{0, 0},
		{time.Second, time.Duration(expectedRunRequests) * time.Second},
		{10 * time.Second, time.Duration(expectedRunRequests) * 10 * time.Second},
	}
	for _, tt := range tests {
		if got := runFloor(tt.crawlDelay); got != tt.want {
			t.Errorf("runFloor(%v) = %v, want %v", tt.crawlDelay, got, tt.want)
		}
	}
}

func TestNextIntervalNeverBelowMin(t *testing.T) {
	sc := config.SourceConfig{
		MinInterval: time.Hour,
		MaxInterval: 4 * time.Hour,
	}
	if got := nextInterval(sc, 1.0, 0); got < sc.MinInterval {
		t.Errorf("interval %v below configured minimum %v", got, sc.MinInterval)
	}
}

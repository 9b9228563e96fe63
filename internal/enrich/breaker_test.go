package enrich

import (
	"testing"

	"github.com/setgraph/setgraph/internal/domain"
	"github.com/setgraph/setgraph/internal/logger"
)

func TestBreakerOpensOnConsecutiveRetriableFailures(t *testing.T) {
	b := NewBreakerSet(logger.Default())
	src := domain.SourceSpotify

	fail := func() error {
		return domain.NewNetworkError(src, nil)
	}

	for i := 0; i < breakerFailureThreshold; i++ {
		if err := b.Do(src, fail); err == nil {
			t.Fatalf("call %d: expected failure", i)
		}
	}
	if got := b.State(src); got != "open" {
		t.Fatalf("state = %s, want open", got)
	}

	// Calls through an open breaker short-circuit to a retriable error
	// without invoking fn.
	called := false
	err := b.Do(src, func() error {
		called = true
		return nil
	})
	if called {
		t.Error("fn ran through an open breaker")
	}
	if domain.KindOf(err) != domain.ErrKindCircuitOpen {
		t.Errorf("error kind = %s, want circuit_open", domain.KindOf(err))
	}
	if !domain.IsRetriable(err) {
		t.Error("circuit-open error must be retriable")
	}
}

func TestBreakerOpensAfterThreeServerErrors(t *testing.T) {
	b := NewBreakerSet(logger.Default())
	src := domain.SourceSpotify

	for i := 0; i < 3; i++ {
		if b.State(src) != "closed" {
			t.Fatalf("breaker open after only %d failures", i)
		}
		_ = b.Do(src, func() error {
			return domain.NewHTTPStatusError(src, 503)
		})
	}
	if got := b.State(src); got != "open" {
		t.Fatalf("state = %s after three 5xx, want open", got)
	}
}

func TestBreakerIgnoresTerminalMisses(t *testing.T) {
	b := NewBreakerSet(logger.Default())
	src := domain.SourceDiscogs

	// Not-found answers are not service failures.
	for i := 0; i < breakerFailureThreshold*2; i++ {
		_ = b.Do(src, func() error {
			return domain.NewNotFoundError(src)
		})
	}
	if got := b.State(src); got != "closed" {
		t.Errorf("state = %s, want closed after terminal misses", got)
	}
}

func TestBreakerRecoversAfterSuccess(t *testing.T) {
	b := NewBreakerSet(logger.Default())
	src := domain.SourceLastFM

	// A success between failures resets the consecutive count.
	for i := 0; i < breakerFailureThreshold-1; i++ {
		_ = b.Do(src, func() error { return domain.NewNetworkError(src, nil) })
	}
	if err := b.Do(src, func() error { return nil }); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < breakerFailureThreshold-1; i++ {
		_ = b.Do(src, func() error { return domain.NewNetworkError(src, nil) })
	}
	if got := b.State(src); got != "closed" {
		t.Errorf("state = %s, want closed", got)
	}
}

func TestBreakersAreIndependentPerSource(t *testing.T) {
	b := NewBreakerSet(logger.Default())

	for i := 0; i < breakerFailureThreshold; i++ {
		_ = b.Do(domain.SourceSpotify, func() error {
			return domain.NewNetworkError(domain.SourceSpotify, nil)
		})
	}
	if b.State(domain.SourceSpotify) != "open" {
		t.Error("spotify breaker should be open")
	}
	if b.State(domain.SourceTidal) != "closed" {
		t.Error("tidal breaker must be unaffected")
	}
}

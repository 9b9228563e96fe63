package enrich

import (
	"errors"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/setgraph/setgraph/internal/domain"
	"github.com/setgraph/setgraph/internal/logger"
)

const (
	breakerFailureThreshold = 3
	breakerRecoveryTimeout  = 60 * time.Second
	breakerProbeSuccesses   = 2
)

// BreakerSet holds one circuit breaker per external service. A breaker opens
// after consecutive failures and blocks calls for the recovery timeout;
// half-open probes close it again after consecutive successes.
type BreakerSet struct {
	mu       sync.Mutex
	breakers map[domain.Source]*gobreaker.CircuitBreaker
	log      *logger.Logger
}

func NewBreakerSet(log *logger.Logger) *BreakerSet {
	return &BreakerSet{
		breakers: make(map[domain.Source]*gobreaker.CircuitBreaker),
		log:      log.WithComponent("breaker"),
	}
}

func (b *BreakerSet) breakerFor(source domain.Source) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cb, ok := b.breakers[source]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        string(source),
		MaxRequests: breakerProbeSuccesses,
		Timeout:     breakerRecoveryTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= breakerFailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			b.log.Warn("circuit breaker state change", "service", name, "from", from.String(), "to", to.String())
		},
		IsSuccessful: func(err error) bool {
			// Terminal misses (not found, validation) are answers, not
			// service failures; only retriable trouble trips the breaker.
			if err == nil {
				return true
			}
			return !domain.IsRetriable(err)
		},
	})
	b.breakers[source] = cb
	return cb
}

// Do runs fn under the source's breaker. An open breaker yields a
// circuit-open error, which the retry policy treats as retriable.
func (b *BreakerSet) Do(source domain.Source, fn func() error) error {
	_, err := b.breakerFor(source).Execute(func() (interface{}, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.NewCircuitOpenError(source)
	}
	return err
}

// State reports a breaker's state for /stats.
func (b *BreakerSet) State(source domain.Source) string {
	return b.breakerFor(source).State().String()
}

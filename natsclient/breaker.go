package natsclient

import (
	"sync"
	"time"
)

const initialBackoff = time.Second

// breaker counts consecutive failures. Every threshold failures it trips and
// doubles the backoff, up to maxBackoff.
type breaker struct {
	mu          sync.Mutex
	threshold   int32
	maxBackoff  time.Duration
	backoff     time.Duration
	round       int32
	total       int32
	lastFailure time.Time
}

func newBreaker(threshold int32, maxBackoff time.Duration) *breaker {
	return &breaker{threshold: threshold, maxBackoff: maxBackoff, backoff: initialBackoff}
}

// fail records one failure. When the round reaches the threshold it returns
// trip=true and the wait before the circuit may half-open.
func (b *breaker) fail(now time.Time) (trip bool, wait time.Duration, total int32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.total++
	b.round++
	b.lastFailure = now
	if b.round < b.threshold {
		return false, 0, b.total
	}
	wait = b.backoff
	b.backoff = min(b.backoff*2, b.maxBackoff)
	b.round = 0
	return true, wait, b.total
}

func (b *breaker) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.total, b.round = 0, 0
	b.backoff = initialBackoff
	b.lastFailure = time.Time{}
}

func (b *breaker) failures() int32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

func (b *breaker) currentBackoff() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.backoff
}

func (b *breaker) last() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastFailure
}

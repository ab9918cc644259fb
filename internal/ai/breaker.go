package ai

import (
	"sync"
	"time"
)

// breakerState represents the state of a provider probe breaker.
type breakerState int

const (
	// breakerClosed - probes pass through normally
	breakerClosed breakerState = iota
	// breakerOpen - probes are skipped until the cooldown elapses
	breakerOpen
	// breakerHalfOpen - a single probe is allowed to test recovery
	breakerHalfOpen
)

// providerBreaker guards health probes against flapping providers: after a
// run of consecutive probe failures the provider is skipped for a cooldown
// window instead of being re-probed on every resolve.
type providerBreaker struct {
	mu sync.Mutex

	failureThreshold int
	cooldown         time.Duration

	state               breakerState
	consecutiveFailures int
	openedAt            time.Time
}

func newProviderBreaker() *providerBreaker {
	return &providerBreaker{
		failureThreshold: 3,
		cooldown:         60 * time.Second,
		state:            breakerClosed,
	}
}

// Allow reports whether a probe may run now.
func (b *providerBreaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case breakerClosed:
		return true
	case breakerOpen:
		if time.Since(b.openedAt) >= b.cooldown {
			b.state = breakerHalfOpen
			return true
		}
		return false
	case breakerHalfOpen:
		return true
	}
	return true
}

// Record feeds a probe outcome back into the breaker.
func (b *providerBreaker) Record(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err == nil {
		b.consecutiveFailures = 0
		b.state = breakerClosed
		return
	}

	b.consecutiveFailures++
	if b.state == breakerHalfOpen || b.consecutiveFailures >= b.failureThreshold {
		b.state = breakerOpen
		b.openedAt = time.Now()
	}
}

// Open reports whether the breaker is currently rejecting probes.
func (b *providerBreaker) Open() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state == breakerOpen && time.Since(b.openedAt) < b.cooldown
}

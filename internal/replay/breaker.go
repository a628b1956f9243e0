package replay

import (
	"errors"
	"sync"
	"time"
)

var ErrCircuitOpen = errors.New("circuit breaker is open")

type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	}
	return "unknown"
}

// Breaker stops the sender from hammering a server that keeps failing.
// After maxFailures consecutive failures it rejects calls for cooldown, then
// lets one trial call through. Errors for which countable returns false (the
// server answered but refused the payload) do not trip it.
type Breaker struct {
	mu          sync.Mutex
	state       BreakerState
	failures    int
	maxFailures int
	cooldown    time.Duration
	openedAt    time.Time
	countable   func(error) bool
	now         func() time.Time
}

func NewBreaker(maxFailures int, cooldown time.Duration, countable func(error) bool) *Breaker {
	if maxFailures < 1 {
		maxFailures = 1
	}
	if countable == nil {
		countable = func(error) bool { return true }
	}
	return &Breaker{
		maxFailures: maxFailures,
		cooldown:    cooldown,
		countable:   countable,
		now:         time.Now,
	}
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Execute runs fn unless the breaker is open.
func (b *Breaker) Execute(fn func() error) error {
	if !b.allow() {
		return ErrCircuitOpen
	}

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil && b.countable(err) {
		b.failures++
		if b.state == BreakerHalfOpen || b.failures >= b.maxFailures {
			b.state = BreakerOpen
			b.openedAt = b.now()
		}
		return err
	}
	b.failures = 0
	b.state = BreakerClosed
	return err
}

func (b *Breaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false
		}
		b.state = BreakerHalfOpen
	}
	return true
}

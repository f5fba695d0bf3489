// Package control provides the circuit breaker guarding the update poll.
package control

import "time"

// State is the breaker state.
type State string

const (
	Closed   State = "closed"
	Open     State = "open"
	HalfOpen State = "half_open"
)

// Breaker trips after Threshold consecutive failures of one error class
// and stays open for Cooldown before allowing a single probe.
type Breaker struct {
	Threshold int
	Cooldown  time.Duration

	state       State
	failures    map[string]int
	openedAt    time.Time
	openedClass string
}

// NewBreaker creates a breaker; non-positive arguments fall back to
// 5 failures / 30s cooldown.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		Threshold: threshold,
		Cooldown:  cooldown,
		state:     Closed,
		failures:  map[string]int{},
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	return b.state
}

// OpenedClass returns the error class that tripped the breaker, or ""
// when it is closed.
func (b *Breaker) OpenedClass() string {
	return b.openedClass
}

// Allow reports whether new work is allowed at this instant. When the
// cooldown has elapsed the breaker moves to half-open and allows one
// probe.
func (b *Breaker) Allow(now time.Time) bool {
	if b.state != Open {
		return true
	}
	if now.Sub(b.openedAt) >= b.Cooldown {
		b.state = HalfOpen
		return true
	}
	return false
}

// RecordSuccess closes the breaker and clears all failure counts.
func (b *Breaker) RecordSuccess() {
	b.state = Closed
	b.openedClass = ""
	b.failures = map[string]int{}
}

// RecordFailure counts a failure in the given class, tripping the
// breaker at the threshold. A failed half-open probe reopens it
// immediately.
func (b *Breaker) RecordFailure(errClass string, now time.Time) {
	if errClass == "" {
		errClass = "unknown"
	}
	if b.state == HalfOpen {
		b.state = Open
		b.openedAt = now
		b.openedClass = errClass
		return
	}
	b.failures[errClass]++
	if b.failures[errClass] >= b.Threshold {
		b.state = Open
		b.openedAt = now
		b.openedClass = errClass
	}
}

package dispatch

import (
	"sync"
	"time"
)

// BreakerState is the circuit state for one target.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

const (
	defaultFailureThreshold = 5
	defaultOpenTimeout      = 30 * time.Second
	defaultProbeSuccesses   = 2
)

type targetState struct {
	state     BreakerState
	failures  int
	successes int
	openUntil time.Time
}

// Breaker tracks per-target health and short-circuits calls to targets
// that keep failing. The dispatcher consults it before trying the unified
// path so a down service degrades to one fallback per open window instead
// of one per payment.
type Breaker struct {
	mu               sync.Mutex
	targets          map[string]*targetState
	failureThreshold int
	openTimeout      time.Duration
	probeSuccesses   int
	now              func() time.Time
}

// NewBreaker creates a Breaker with default thresholds.
func NewBreaker() *Breaker {
	return NewBreakerWithSettings(defaultFailureThreshold, defaultOpenTimeout, defaultProbeSuccesses)
}

// NewBreakerWithSettings creates a Breaker that opens after failureThreshold
// consecutive failures, stays open for openTimeout, then closes again after
// probeSuccesses consecutive successes in the half-open window.
func NewBreakerWithSettings(failureThreshold int, openTimeout time.Duration, probeSuccesses int) *Breaker {
	return &Breaker{
		targets:          make(map[string]*targetState),
		failureThreshold: failureThreshold,
		openTimeout:      openTimeout,
		probeSuccesses:   probeSuccesses,
		now:              time.Now,
	}
}

func (b *Breaker) target(name string) *targetState {
	ts, ok := b.targets[name]
	if !ok {
		ts = &targetState{state: BreakerClosed}
		b.targets[name] = ts
	}
	return ts
}

// Allow reports whether a call to the target may proceed. An open circuit
// whose timeout has elapsed transitions to half-open and lets the call
// through as a probe.
func (b *Breaker) Allow(name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	ts := b.target(name)
	switch ts.state {
	case BreakerOpen:
		if b.now().After(ts.openUntil) {
			ts.state = BreakerHalfOpen
			ts.successes = 0
			return true
		}
		return false
	case BreakerHalfOpen:
		return true
	default:
		return true
	}
}

// RecordFailure counts a failed call. Enough consecutive failures open the
// circuit; any failure during the half-open probe re-opens it immediately.
func (b *Breaker) RecordFailure(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ts := b.target(name)
	switch ts.state {
	case BreakerClosed:
		ts.failures++
		if ts.failures >= b.failureThreshold {
			ts.state = BreakerOpen
			ts.openUntil = b.now().Add(b.openTimeout)
		}
	case BreakerHalfOpen:
		ts.state = BreakerOpen
		ts.openUntil = b.now().Add(b.openTimeout)
		ts.failures = 0
		ts.successes = 0
	}
}

// RecordSuccess counts a successful call. Successes reset the failure run
// and, in the half-open window, close the circuit once the probe quota is
// met.
func (b *Breaker) RecordSuccess(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ts := b.target(name)
	switch ts.state {
	case BreakerClosed:
		ts.failures = 0
	case BreakerHalfOpen:
		ts.successes++
		if ts.successes >= b.probeSuccesses {
			ts.state = BreakerClosed
			ts.failures = 0
			ts.successes = 0
		}
	}
}

// State returns the target's current circuit state without transitioning
// it. Unknown targets report closed.
func (b *Breaker) State(name string) BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	ts, ok := b.targets[name]
	if !ok {
		return BreakerClosed
	}
	return ts.state
}

package resilience

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

type BreakerState int

const (
	StateClosed BreakerState = iota
	StateHalfOpen
	StateOpen
)

func (s BreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	}
	return "unknown"
}

// Breaker is a named circuit breaker guarding one external dependency.
// closed -> open once failureCount reaches the threshold; open calls
// short-circuit until the reset timeout, then exactly one trial call is
// let through half-open.
type Breaker struct {
	name             string
	failureThreshold int
	resetTimeout     time.Duration
	logger           *zap.Logger

	mu              sync.Mutex
	state           BreakerState
	failureCount    int
	lastStateChange time.Time
	trialInFlight   bool

	onStateChange func(name string, state BreakerState)
}

func NewBreaker(name string, failureThreshold int, resetTimeout time.Duration, logger *zap.Logger) *Breaker {
	return &Breaker{
		name:             name,
		failureThreshold: failureThreshold,
		resetTimeout:     resetTimeout,
		logger:           logger.With(zap.String("breaker", name)),
		state:            StateClosed,
		lastStateChange:  time.Now(),
	}
}

func (b *Breaker) Name() string { return b.name }

// Allow reports whether a call may proceed right now. In half-open it
// admits a single trial; concurrent callers are rejected until the
// trial reports back.
func (b *Breaker) Allow(now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if now.Sub(b.lastStateChange) < b.resetTimeout {
			return false
		}
		b.transition(StateHalfOpen, now)
		b.trialInFlight = true
		return true
	case StateHalfOpen:
		if b.trialInFlight {
			return false
		}
		b.trialInFlight = true
		return true
	}
	return false
}

// RecordSuccess closes the breaker and resets the failure count.
func (b *Breaker) RecordSuccess(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trialInFlight = false
	b.failureCount = 0
	if b.state != StateClosed {
		b.transition(StateClosed, now)
	}
}

// RecordFailure counts a failure and opens the breaker when the
// threshold is hit. A failed half-open trial reopens immediately and
// restarts the timer.
func (b *Breaker) RecordFailure(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.trialInFlight = false
	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.failureThreshold {
			b.transition(StateOpen, now)
		}
	case StateHalfOpen:
		b.transition(StateOpen, now)
	}
}

func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Snapshot() BreakerSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BreakerSnapshot{
		Name:            b.name,
		State:           b.state.String(),
		FailureCount:    b.failureCount,
		Threshold:       b.failureThreshold,
		ResetTimeout:    b.resetTimeout,
		LastStateChange: b.lastStateChange,
	}
}

type BreakerSnapshot struct {
	Name            string        `json:"name"`
	State           string        `json:"state"`
	FailureCount    int           `json:"failure_count"`
	Threshold       int           `json:"threshold"`
	ResetTimeout    time.Duration `json:"reset_timeout"`
	LastStateChange time.Time     `json:"last_state_change"`
}

// ForceState is the operational override. Callers audit it.
func (b *Breaker) ForceState(state BreakerState, now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.trialInFlight = false
	if state == StateClosed {
		b.failureCount = 0
	}
	b.transition(state, now)
}

// Reset returns the breaker to closed with a clean slate.
func (b *Breaker) Reset(now time.Time) {
	b.ForceState(StateClosed, now)
}

func (b *Breaker) transition(state BreakerState, now time.Time) {
	if b.state == state {
		return
	}
	b.logger.Warn("Circuit breaker state change",
		zap.String("from", b.state.String()),
		zap.String("to", state.String()),
		zap.Int("failure_count", b.failureCount),
	)
	b.state = state
	b.lastStateChange = now
	if b.onStateChange != nil {
		b.onStateChange(b.name, state)
	}
}

// Package circuitbreaker stops calling a dependency that keeps failing and
// probes it again after a cool-down.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State of a breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned without calling the dependency while the breaker is
// open, or while the half-open probe is already in flight.
var ErrOpen = errors.New("circuit breaker is open")

// Config tunes a breaker.
type Config struct {
	// FailureThreshold consecutive failures open the breaker.
	FailureThreshold int

	// CoolDown is how long the breaker stays open before one probe call.
	CoolDown time.Duration

	// IsFailure decides which errors count. Nil counts every error.
	IsFailure func(error) bool

	// OnStateChange observes transitions.
	OnStateChange func(name string, from, to State)
}

// DefaultConfig opens after 5 failures and probes after 30s.
func DefaultConfig() Config {
	return Config{FailureThreshold: 5, CoolDown: 30 * time.Second}
}

// CircuitBreaker guards calls to one dependency. It is safe for concurrent use.
type CircuitBreaker struct {
	name string
	cfg  Config
	now  func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// New creates a closed breaker.
func New(name string, cfg Config) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.CoolDown <= 0 {
		cfg.CoolDown = DefaultConfig().CoolDown
	}
	return &CircuitBreaker{name: name, cfg: cfg, now: time.Now}
}

// Name returns the breaker's name.
func (cb *CircuitBreaker) Name() string { return cb.name }

// State returns the current state. An open breaker whose cool-down has
// elapsed reports half-open.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state == StateOpen && cb.now().Sub(cb.openedAt) >= cb.cfg.CoolDown {
		return StateHalfOpen
	}
	return cb.state
}

// Execute runs fn unless the breaker rejects the call with ErrOpen.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := cb.allow(); err != nil {
		return err
	}
	err := fn(ctx)
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		return nil
	case StateOpen:
		if cb.now().Sub(cb.openedAt) < cb.cfg.CoolDown {
			return ErrOpen
		}
		cb.transition(StateHalfOpen)
		cb.probing = true
		return nil
	default:
		if cb.probing {
			return ErrOpen
		}
		cb.probing = true
		return nil
	}
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	failed := err != nil
	if failed && cb.cfg.IsFailure != nil {
		failed = cb.cfg.IsFailure(err)
	}

	if cb.state == StateHalfOpen {
		cb.probing = false
		if failed {
			cb.open()
		} else {
			cb.failures = 0
			cb.transition(StateClosed)
		}
		return
	}

	if !failed {
		cb.failures = 0
		return
	}
	cb.failures++
	if cb.failures >= cb.cfg.FailureThreshold {
		cb.open()
	}
}

func (cb *CircuitBreaker) open() {
	cb.openedAt = cb.now()
	cb.transition(StateOpen)
}

func (cb *CircuitBreaker) transition(to State) {
	if cb.state == to {
		return
	}
	from := cb.state
	cb.state = to
	if cb.cfg.OnStateChange != nil {
		cb.cfg.OnStateChange(cb.name, from, to)
	}
}

// Reset closes the breaker.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = 0
	cb.probing = false
	cb.transition(StateClosed)
}

package sink

import (
	"context"
	"errors"
	"sync"
	"time"

	"shieldx-cti/pkg/event"
)

// BreakerState is the state of a Breaker.
type BreakerState int32

const (
	StateClosed BreakerState = iota
	StateOpen
	StateHalfOpen
)

func (s BreakerState) String() string {
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

// ErrCircuitOpen is returned while a sink's breaker rejects reports.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// BreakerSettings tunes a Breaker.
type BreakerSettings struct {
	// FailureThreshold consecutive failures open the circuit.
	FailureThreshold uint32
	// SuccessThreshold consecutive probe successes close it again.
	SuccessThreshold uint32
	// Timeout is how long the circuit stays open before probing.
	Timeout       time.Duration
	OnStateChange func(name string, from, to BreakerState)
}

// DefaultBreakerSettings returns the settings used for network sinks.
func DefaultBreakerSettings() BreakerSettings {
	return BreakerSettings{FailureThreshold: 5, SuccessThreshold: 2, Timeout: 30 * time.Second}
}

// Breaker stops calling a sink that keeps failing so an unreachable broker
// or database does not add its timeout to every request. While half-open
// one report at a time is let through as a probe.
type Breaker struct {
	next     Sink
	settings BreakerSettings
	now      func() time.Time

	mu          sync.Mutex
	state       BreakerState
	consecFail  uint32
	consecSucc  uint32
	openedUntil time.Time
	probing     bool
}

// NewBreaker wraps next.
func NewBreaker(next Sink, settings BreakerSettings) *Breaker {
	def := DefaultBreakerSettings()
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = def.FailureThreshold
	}
	if settings.SuccessThreshold == 0 {
		settings.SuccessThreshold = def.SuccessThreshold
	}
	if settings.Timeout == 0 {
		settings.Timeout = def.Timeout
	}
	return &Breaker{next: next, settings: settings, now: time.Now}
}

// Name implements Sink.
func (b *Breaker) Name() string { return b.next.Name() }

// State returns the current state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState()
}

// Emit implements Sink.
func (b *Breaker) Emit(ctx context.Context, r event.Report) error {
	if err := b.before(); err != nil {
		return err
	}
	err := b.next.Emit(ctx, r)
	b.after(err == nil)
	return err
}

func (b *Breaker) currentState() BreakerState {
	if b.state == StateOpen && !b.now().Before(b.openedUntil) {
		b.setState(StateHalfOpen)
	}
	return b.state
}

func (b *Breaker) before() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.currentState() {
	case StateOpen:
		return ErrCircuitOpen
	case StateHalfOpen:
		if b.probing {
			return ErrCircuitOpen
		}
		b.probing = true
	}
	return nil
}

func (b *Breaker) after(ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	half := b.state == StateHalfOpen
	b.probing = false

	if ok {
		b.consecFail = 0
		b.consecSucc++
		if half && b.consecSucc >= b.settings.SuccessThreshold {
			b.setState(StateClosed)
		}
		return
	}
	b.consecSucc = 0
	b.consecFail++
	if half || b.consecFail >= b.settings.FailureThreshold {
		b.openedUntil = b.now().Add(b.settings.Timeout)
		b.setState(StateOpen)
	}
}

func (b *Breaker) setState(to BreakerState) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	b.consecFail, b.consecSucc = 0, 0
	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.next.Name(), from, to)
	}
}

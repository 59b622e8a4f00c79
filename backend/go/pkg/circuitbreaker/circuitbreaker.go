package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// State represents the state of the circuit breaker.
type State int

const (
	// Closed is the initial state where requests are allowed.
	Closed State = iota
	// Open state is when the circuit has tripped and requests are blocked.
	Open
	// HalfOpen lets a single trial request through to test whether the upstream recovered.
	HalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

var (
	// ErrCircuitOpen is returned when the circuit breaker is in the Open state.
	ErrCircuitOpen = errors.New("circuit breaker is open")
	// ErrTrialInFlight is returned in HalfOpen while another trial request is running.
	ErrTrialInFlight = errors.New("circuit breaker is half-open and a trial request is in flight")
)

// Settings configures a Breaker.
type Settings struct {
	// FailureThreshold is the number of consecutive failures that trips the circuit.
	FailureThreshold uint32
	// SuccessThreshold is the number of consecutive HalfOpen successes that closes it again.
	SuccessThreshold uint32
	// Timeout is how long the circuit stays Open before allowing a trial request.
	Timeout time.Duration
	// IsFailure decides whether an error counts against the upstream.
	// Defaults to every non-nil error except context cancellation.
	IsFailure func(error) bool
	// OnStateChange is called with the lock released after each transition.
	OnStateChange func(name string, from, to State)
}

// Breaker guards calls to a single upstream dependency.
type Breaker struct {
	name     string
	settings Settings
	now      func() time.Time

	mu                   sync.Mutex
	state                State
	consecutiveFailures  uint32
	consecutiveSuccesses uint32
	openedAt             time.Time
	probing              bool
}

// New creates a Breaker. Zero thresholds default to 5 failures and 1 success, a zero timeout to 30s.
func New(name string, s Settings) *Breaker {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 5
	}
	if s.SuccessThreshold == 0 {
		s.SuccessThreshold = 1
	}
	if s.Timeout <= 0 {
		s.Timeout = 30 * time.Second
	}
	if s.IsFailure == nil {
		s.IsFailure = defaultIsFailure
	}
	return &Breaker{name: name, settings: s, now: time.Now}
}

func defaultIsFailure(err error) bool {
	return err != nil && !errors.Is(err, context.Canceled)
}

// Name returns the breaker name used in state change callbacks.
func (b *Breaker) Name() string { return b.name }

// State returns the current state of the circuit breaker.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState()
}

// currentState moves Open to HalfOpen once the timeout elapsed. Caller holds mu.
func (b *Breaker) currentState() State {
	if b.state == Open && b.now().Sub(b.openedAt) >= b.settings.Timeout {
		b.state = HalfOpen
		b.consecutiveSuccesses = 0
		b.probing = false
	}
	return b.state
}

// Execute runs fn if the circuit allows it and records the outcome.
func (b *Breaker) Execute(fn func() error) error {
	from, allowed, err := b.before()
	if !allowed {
		return err
	}
	fnErr := fn()
	b.after(from, fnErr)
	return fnErr
}

func (b *Breaker) before() (State, bool, error) {
	b.mu.Lock()
	prev := b.state
	st := b.currentState()
	b.mu.Unlock()
	b.notify(prev, st)

	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case Open:
		return b.state, false, ErrCircuitOpen
	case HalfOpen:
		if b.probing {
			return b.state, false, ErrTrialInFlight
		}
		b.probing = true
	}
	return b.state, true, nil
}

func (b *Breaker) after(from State, err error) {
	b.mu.Lock()
	prev := b.state
	if from == HalfOpen {
		b.probing = false
	}
	if b.settings.IsFailure(err) {
		b.onFailure()
	} else {
		b.onSuccess()
	}
	next := b.state
	b.mu.Unlock()
	b.notify(prev, next)
}

func (b *Breaker) onSuccess() {
	switch b.state {
	case HalfOpen:
		b.consecutiveSuccesses++
		if b.consecutiveSuccesses >= b.settings.SuccessThreshold {
			b.state = Closed
			b.consecutiveFailures = 0
			b.consecutiveSuccesses = 0
		}
	case Closed:
		b.consecutiveFailures = 0
	}
}

func (b *Breaker) onFailure() {
	switch b.state {
	case HalfOpen:
		b.trip()
	case Closed:
		b.consecutiveFailures++
		if b.consecutiveFailures >= b.settings.FailureThreshold {
			b.trip()
		}
	}
}

func (b *Breaker) trip() {
	b.state = Open
	b.openedAt = b.now()
	b.consecutiveFailures = 0
	b.consecutiveSuccesses = 0
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, from, to)
	}
}

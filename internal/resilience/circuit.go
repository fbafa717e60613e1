package resilience

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"
)

// CircuitState is the breaker's position.
type CircuitState int

const (
	// StateClosed lets requests through.
	StateClosed CircuitState = iota
	// StateOpen rejects requests until the reset timeout elapses.
	StateOpen
	// StateHalfOpen admits a limited number of probes.
	StateHalfOpen
)

func (s CircuitState) String() string {
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

// ErrCircuitOpen is returned when the breaker rejects a request.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// CircuitBreakerConfig controls a breaker. Zero fields take defaults.
type CircuitBreakerConfig struct {
	// FailureThreshold is the consecutive-failure count that opens the circuit.
	FailureThreshold int
	// ResetTimeout is how long the circuit stays open before probing.
	ResetTimeout time.Duration
	// HalfOpenMaxProbes caps concurrent probes while half-open.
	HalfOpenMaxProbes int
	// ShouldTrip decides whether an error counts toward the threshold.
	// Defaults to counting every error.
	ShouldTrip func(error) bool
	// OnStateChange observes transitions.
	OnStateChange func(from, to CircuitState)
}

func (c CircuitBreakerConfig) applyDefaults() CircuitBreakerConfig {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.ResetTimeout <= 0 {
		c.ResetTimeout = 30 * time.Second
	}
	if c.HalfOpenMaxProbes <= 0 {
		c.HalfOpenMaxProbes = 1
	}
	return c
}

// CircuitBreaker sheds load from a failing service. A run of failures opens
// the circuit; after ResetTimeout a probe is admitted, and its outcome
// closes or reopens the circuit.
type CircuitBreaker struct {
	cfg CircuitBreakerConfig

	mu           sync.Mutex
	state        CircuitState
	failures     int
	successes    int
	probes       int
	openedAt     time.Time
	nowFunc      func() time.Time
	totalTripped int
}

// NewCircuitBreaker returns a closed breaker.
func NewCircuitBreaker(cfg CircuitBreakerConfig) *CircuitBreaker {
	return &CircuitBreaker{
		cfg:     cfg.applyDefaults(),
		state:   StateClosed,
		nowFunc: time.Now,
	}
}

// Execute runs fn if the breaker admits the request and records the outcome.
func (b *CircuitBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := b.allowRequest(); err != nil {
		return err
	}
	err := fn(ctx)
	b.recordResult(err)
	return err
}

// ExecuteVal is Execute for functions that return a value.
func ExecuteVal[T any](ctx context.Context, b *CircuitBreaker, fn func(ctx context.Context) (T, error)) (T, error) {
	var result T
	err := b.Execute(ctx, func(ctx context.Context) error {
		var fnErr error
		result, fnErr = fn(ctx)
		return fnErr
	})
	return result, err
}

func (b *CircuitBreaker) allowRequest() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.nowFunc().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return ErrCircuitOpen
		}
		b.transitionTo(StateHalfOpen)
		fallthrough
	case StateHalfOpen:
		if b.probes >= b.cfg.HalfOpenMaxProbes {
			return ErrCircuitOpen
		}
		b.probes++
		return nil
	default:
		return nil
	}
}

func (b *CircuitBreaker) recordResult(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	counts := err != nil
	if err != nil && b.cfg.ShouldTrip != nil {
		counts = b.cfg.ShouldTrip(err)
	}

	switch b.state {
	case StateClosed:
		if counts {
			b.failures++
			if b.failures >= b.cfg.FailureThreshold {
				b.transitionTo(StateOpen)
			}
			return
		}
		if err == nil {
			b.successes++
			b.failures = 0
		}
	case StateHalfOpen:
		b.probes--
		if counts {
			b.transitionTo(StateOpen)
			return
		}
		if err == nil {
			b.successes++
			b.transitionTo(StateClosed)
		}
	}
}

// transition helper; callers hold b.mu.
func (b *CircuitBreaker) transitionTo(state CircuitState) {
	if b.state == state {
		return
	}
	from := b.state
	b.state = state
	switch state {
	case StateOpen:
		b.openedAt = b.nowFunc()
		b.totalTripped++
	case StateClosed:
		b.failures = 0
	case StateHalfOpen:
		b.probes = 0
	}
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, state)
	}
}

// State returns the current position, accounting for reset-timeout expiry.
func (b *CircuitBreaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.nowFunc().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		return StateHalfOpen
	}
	return b.state
}

// Reset force-closes the breaker and clears its counters.
func (b *CircuitBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transitionTo(StateClosed)
	b.failures = 0
	b.successes = 0
	b.probes = 0
}

// Counters is a point-in-time snapshot of breaker activity.
type Counters struct {
	Failures  int
	Successes int
	Tripped   int
}

// Counters returns a snapshot of the breaker's counters.
func (b *CircuitBreaker) Counters() Counters {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Counters{Failures: b.failures, Successes: b.successes, Tripped: b.totalTripped}
}

// ServiceBreakers holds one lazily-created breaker per named service, all
// sharing a config.
type ServiceBreakers struct {
	mu       sync.RWMutex
	breakers map[string]*CircuitBreaker
	cfg      CircuitBreakerConfig
}

// NewServiceBreakers returns an empty registry using cfg for new breakers.
func NewServiceBreakers(cfg CircuitBreakerConfig) *ServiceBreakers {
	return &ServiceBreakers{
		breakers: make(map[string]*CircuitBreaker),
		cfg:      cfg,
	}
}

// Get returns the breaker for service, creating it on first use.
func (s *ServiceBreakers) Get(service string) *CircuitBreaker {
	s.mu.RLock()
	b, ok := s.breakers[service]
	s.mu.RUnlock()
	if ok {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b, ok := s.breakers[service]; ok {
		return b
	}
	b = NewCircuitBreaker(s.cfg)
	s.breakers[service] = b
	return b
}

// States snapshots each known service's breaker position.
func (s *ServiceBreakers) States() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	states := make(map[string]string, len(s.breakers))
	for service, b := range s.breakers {
		states[service] = b.State().String()
	}
	return states
}

// Package resilience provides retry with exponential backoff and per-endpoint
// circuit breakers for every outbound dependency call.
package resilience

import (
	"fmt"
	"sync"
	"time"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

// Circuit breaker states for managing dependency failure patterns.
const (
	CircuitClosed   CircuitState = iota // Normal operation
	CircuitOpen                         // Failing, reject requests
	CircuitHalfOpen                     // Probing whether the dependency recovered
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// BreakerConfig defines circuit breaker behavior.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"` // consecutive failures before opening
	RecoveryTimeout  time.Duration `yaml:"recovery_timeout"`  // wait before allowing a half-open trial
}

// DefaultBreakerConfig provides the standard thresholds: open after 5
// consecutive failures, probe after 60s.
//
//nolint:gochecknoglobals // Sensible default config pattern.
var DefaultBreakerConfig = BreakerConfig{
	FailureThreshold: 5,
	RecoveryTimeout:  60 * time.Second,
}

// CircuitError is returned when a call is rejected because the circuit for
// its endpoint is not accepting requests.
type CircuitError struct {
	Endpoint string
	State    CircuitState
}

func (e *CircuitError) Error() string {
	return fmt.Sprintf("circuit for %s is %s", e.Endpoint, e.State)
}

// Breaker is a circuit breaker for one endpoint. Half-open admits exactly one
// trial call: success closes the circuit, failure reopens it and resets the
// recovery timer.
type Breaker struct {
	endpoint        string
	config          BreakerConfig
	onOpen          func(endpoint string)
	mu              sync.Mutex
	state           CircuitState
	failures        int
	trialInFlight   bool
	lastFailureTime time.Time
}

// NewBreaker creates a closed breaker for the endpoint.
func NewBreaker(endpoint string, config BreakerConfig) *Breaker {
	return &Breaker{
		endpoint: endpoint,
		config:   config,
		state:    CircuitClosed,
	}
}

// Allow reports whether a call may proceed, reserving the half-open trial
// slot when applicable. Returns a CircuitError when the call must be
// short-circuited without any I/O.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitClosed:
		return nil

	case CircuitOpen:
		if time.Since(b.lastFailureTime) >= b.config.RecoveryTimeout {
			b.state = CircuitHalfOpen
			b.trialInFlight = true
			return nil
		}
		return &CircuitError{Endpoint: b.endpoint, State: CircuitOpen}

	case CircuitHalfOpen:
		// One trial at a time.
		if b.trialInFlight {
			return &CircuitError{Endpoint: b.endpoint, State: CircuitHalfOpen}
		}
		b.trialInFlight = true
		return nil

	default:
		return &CircuitError{Endpoint: b.endpoint, State: b.state}
	}
}

// Record registers the outcome of an allowed call.
func (b *Breaker) Record(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == CircuitHalfOpen {
		b.trialInFlight = false
		if success {
			b.state = CircuitClosed
			b.failures = 0
		} else {
			// Trial failed: reopen and restart the recovery window.
			b.state = CircuitOpen
			b.lastFailureTime = time.Now()
			b.notifyOpen()
		}
		return
	}

	if success {
		b.failures = 0
		return
	}

	b.failures++
	b.lastFailureTime = time.Now()
	if b.state == CircuitClosed && b.failures >= b.config.FailureThreshold {
		b.state = CircuitOpen
		b.notifyOpen()
	}
}

func (b *Breaker) notifyOpen() {
	if b.onOpen != nil {
		b.onOpen(b.endpoint)
	}
}

// State returns the current breaker state.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset forces the breaker back to closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = CircuitClosed
	b.failures = 0
	b.trialInFlight = false
}

// BreakerSet holds one breaker per distinct endpoint, created on first use.
// Shared across concurrent turns; all transitions are mutex-guarded.
type BreakerSet struct {
	config   BreakerConfig
	mu       sync.Mutex
	onOpen   func(endpoint string)
	breakers map[string]*Breaker
}

// NewBreakerSet creates an empty breaker set with the given per-breaker config.
func NewBreakerSet(config BreakerConfig) *BreakerSet {
	return &BreakerSet{
		config:   config,
		breakers: make(map[string]*Breaker),
	}
}

// OnOpen registers a callback invoked whenever a breaker transitions to
// open, including half-open reopens. Set before traffic starts.
func (s *BreakerSet) OnOpen(fn func(endpoint string)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.onOpen = fn
	for _, b := range s.breakers {
		b.onOpen = fn
	}
}

// Get returns the breaker for the endpoint, creating it if needed.
func (s *BreakerSet) Get(endpoint string) *Breaker {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.breakers[endpoint]
	if !ok {
		b = NewBreaker(endpoint, s.config)
		b.onOpen = s.onOpen
		s.breakers[endpoint] = b
	}
	return b
}

// States returns a snapshot of breaker states keyed by endpoint.
func (s *BreakerSet) States() map[string]CircuitState {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]CircuitState, len(s.breakers))
	for name, b := range s.breakers {
		out[name] = b.State()
	}
	return out
}

package resilience

import (
	"errors"
	"math"
	"time"

	"conductor/pkg/faults"
)

// RetryConfig defines retry behavior for an invocation.
type RetryConfig struct {
	MaxRetries    int           `yaml:"max_retries"`    // retry attempts after the initial call
	InitialDelay  time.Duration `yaml:"initial_delay"`  // delay before the first retry
	MaxDelay      time.Duration `yaml:"max_delay"`      // cap on the backoff delay
	BackoffFactor float64       `yaml:"backoff_factor"` // multiplier for exponential backoff
	Jitter        bool          `yaml:"jitter"`         // add jitter to prevent thundering herd
}

// DefaultRetryConfig provides the standard retry behavior.
//
//nolint:gochecknoglobals // Sensible default config pattern.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:    3,
	InitialDelay:  200 * time.Millisecond,
	MaxDelay:      10 * time.Second,
	BackoffFactor: 2.0,
	Jitter:        true,
}

// Classifier determines whether an error should be retried.
type Classifier func(error) bool

// ShouldRetry is the default classifier: retry transient dependency faults,
// never circuit rejections (the breaker owns recovery timing).
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	var circuitErr *CircuitError
	if errors.As(err, &circuitErr) {
		return false
	}

	return faults.IsRetryable(err)
}

// Policy couples retry configuration with an error classifier.
type Policy struct {
	Config     RetryConfig
	Classifier Classifier
}

// NewPolicy creates a retry policy; a nil classifier means ShouldRetry.
func NewPolicy(config RetryConfig, classifier Classifier) *Policy {
	if classifier == nil {
		classifier = ShouldRetry
	}
	return &Policy{Config: config, Classifier: classifier}
}

// Delay computes the backoff before the given retry attempt (1-based).
func (p *Policy) Delay(attempt int) time.Duration {
	if attempt <= 0 {
		return 0
	}

	delay := time.Duration(float64(p.Config.InitialDelay) * math.Pow(p.Config.BackoffFactor, float64(attempt-1)))
	if delay > p.Config.MaxDelay {
		delay = p.Config.MaxDelay
	}

	if p.Config.Jitter && delay > 0 {
		sign := time.Duration(2*(time.Now().UnixNano()%2) - 1) // -1 or +1
		delay += time.Duration(float64(delay)*0.1) * sign
		if delay < 0 {
			delay = p.Config.InitialDelay
		}
	}

	return delay
}

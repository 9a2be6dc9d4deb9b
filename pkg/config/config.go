// Package config loads and validates the conductor configuration.
//
// Configuration is read once at startup from a YAML file, validated, and
// passed by value into the components that need it. There is no global
// config state: every subsystem receives its section explicitly.
package config

import (
	"fmt"
	"time"

	"conductor/pkg/admission"
	"conductor/pkg/resilience"
)

// Config is the root configuration document.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	LLM          LLMConfig          `yaml:"llm"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`
	Resilience   ResilienceConfig   `yaml:"resilience"`
	Cache        CacheConfig        `yaml:"cache"`
	Admission    AdmissionConfig    `yaml:"admission"`
	Checkpoint   CheckpointConfig   `yaml:"checkpoint"`
	EventLog     EventLogConfig     `yaml:"event_log"`
}

// ServerConfig tunes the HTTP transport.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// MaxConcurrentTurns bounds simultaneously running turns; further
	// requests are rejected with 503 until a slot frees.
	MaxConcurrentTurns int `yaml:"max_concurrent_turns"`
	// SuspensionTimeout converts an unanswered human-input pause into a
	// cancelled turn. Zero means wait forever.
	SuspensionTimeout time.Duration `yaml:"suspension_timeout"`
}

// LLMConfig selects and tunes the planning model.
type LLMConfig struct {
	// Provider is one of "anthropic", "openai", "ollama", "google", "mock".
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	Host      string `yaml:"host,omitempty"` // ollama only
	MaxTokens int    `yaml:"max_tokens"`
}

// OrchestratorConfig tunes the turn state machine.
type OrchestratorConfig struct {
	// MaxRounds bounds planning/execution iterations per turn.
	MaxRounds int `yaml:"max_rounds"`
	// ToolFanout caps concurrent handler invocations within one planning step.
	ToolFanout int `yaml:"tool_fanout"`
}

// ResilienceConfig tunes retries and circuit breaking for external calls.
type ResilienceConfig struct {
	Retry   resilience.RetryConfig   `yaml:"retry"`
	Breaker resilience.BreakerConfig `yaml:"breaker"`
}

// CacheConfig tunes the capability result cache. TTLs are a policy input
// keyed by operation class, not hardcoded per capability.
type CacheConfig struct {
	MaxEntries    int                      `yaml:"max_entries"`
	SweepInterval time.Duration            `yaml:"sweep_interval"`
	TTLClasses    map[string]time.Duration `yaml:"ttl_classes"`
}

// AdmissionConfig tunes budget admission.
type AdmissionConfig struct {
	DefaultBudget float64                   `yaml:"default_budget"`
	MaxPending    int                       `yaml:"max_pending"`
	Rates         map[string]admission.Rate `yaml:"rates"`
}

// CheckpointConfig locates turn storage.
type CheckpointConfig struct {
	Path string `yaml:"path"`
}

// EventLogConfig locates the append-only turn event journal. Files rotate
// daily inside Dir.
type EventLogConfig struct {
	Dir string `yaml:"dir"`
}

// TTL class names used by the built-in capabilities.
const (
	TTLClassVolatile = "volatile"
	TTLClassStable   = "stable"
)

// Default returns the configuration used when no file is provided.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:               ":8080",
			MaxConcurrentTurns: 32,
		},
		LLM: LLMConfig{
			Provider:  "anthropic",
			Model:     "claude-sonnet-4-5",
			MaxTokens: 4096,
		},
		Orchestrator: OrchestratorConfig{
			MaxRounds:  10,
			ToolFanout: 5,
		},
		Resilience: ResilienceConfig{
			Retry:   resilience.DefaultRetryConfig,
			Breaker: resilience.DefaultBreakerConfig,
		},
		Cache: CacheConfig{
			MaxEntries:    4096,
			SweepInterval: time.Minute,
			TTLClasses: map[string]time.Duration{
				TTLClassVolatile: 5 * time.Minute,
				TTLClassStable:   12 * time.Hour,
			},
		},
		Admission: AdmissionConfig{
			DefaultBudget: 100.0,
			MaxPending:    8,
			Rates: map[string]admission.Rate{
				"generate_creative": {
					UnitCost: 2.0,
					Tiers: []admission.Tier{
						{MinQuantity: 5, Discount: 0.10},
						{MinQuantity: 10, Discount: 0.25},
					},
				},
				"competitor_analysis": {UnitCost: 10.0},
				"trend_snapshot":      {UnitCost: 1.0},
				"pick_audience":       {UnitCost: 0.5},
			},
		},
		Checkpoint: CheckpointConfig{
			Path: "conductor.db",
		},
		EventLog: EventLogConfig{
			Dir: "logs",
		},
	}
}

// Validate checks the configuration for values that would misbehave at
// runtime. It returns the first problem found.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	if c.Server.MaxConcurrentTurns <= 0 {
		return fmt.Errorf("server.max_concurrent_turns must be positive, got %d", c.Server.MaxConcurrentTurns)
	}
	if c.Server.SuspensionTimeout < 0 {
		return fmt.Errorf("server.suspension_timeout must not be negative")
	}

	switch c.LLM.Provider {
	case "anthropic", "openai", "ollama", "google", "mock":
	default:
		return fmt.Errorf("llm.provider %q not supported", c.LLM.Provider)
	}
	if c.LLM.Model == "" && c.LLM.Provider != "mock" {
		return fmt.Errorf("llm.model must be set for provider %s", c.LLM.Provider)
	}

	if c.Orchestrator.MaxRounds <= 0 {
		return fmt.Errorf("orchestrator.max_rounds must be positive, got %d", c.Orchestrator.MaxRounds)
	}
	if c.Orchestrator.ToolFanout <= 0 {
		return fmt.Errorf("orchestrator.tool_fanout must be positive, got %d", c.Orchestrator.ToolFanout)
	}

	if c.Resilience.Retry.MaxRetries < 0 {
		return fmt.Errorf("resilience.retry.max_retries must not be negative")
	}
	if c.Resilience.Breaker.FailureThreshold <= 0 {
		return fmt.Errorf("resilience.breaker.failure_threshold must be positive")
	}
	if c.Resilience.Breaker.RecoveryTimeout <= 0 {
		return fmt.Errorf("resilience.breaker.recovery_timeout must be positive")
	}

	for class, ttl := range c.Cache.TTLClasses {
		if ttl <= 0 {
			return fmt.Errorf("cache.ttl_classes.%s must be positive", class)
		}
	}

	if c.Admission.DefaultBudget < 0 {
		return fmt.Errorf("admission.default_budget must not be negative")
	}
	for op, rate := range c.Admission.Rates {
		if rate.UnitCost < 0 {
			return fmt.Errorf("admission.rates.%s.unit_cost must not be negative", op)
		}
		for _, tier := range rate.Tiers {
			if tier.Discount < 0 || tier.Discount >= 1 {
				return fmt.Errorf("admission.rates.%s: discount must be in [0,1), got %.2f", op, tier.Discount)
			}
			if tier.MinQuantity <= 0 {
				return fmt.Errorf("admission.rates.%s: min_quantity must be positive", op)
			}
		}
	}

	if c.Checkpoint.Path == "" {
		return fmt.Errorf("checkpoint.path must not be empty")
	}

	return nil
}

// TTLFor resolves a TTL class name to its configured duration. Unknown
// classes get zero, which disables caching for the capability.
func (c *CacheConfig) TTLFor(class string) time.Duration {
	return c.TTLClasses[class]
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10, cfg.Orchestrator.MaxRounds)
	assert.Equal(t, 5, cfg.Orchestrator.ToolFanout)
	assert.Equal(t, 5, cfg.Resilience.Breaker.FailureThreshold)
	assert.Equal(t, 60*time.Second, cfg.Resilience.Breaker.RecoveryTimeout)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad provider", func(c *Config) { c.LLM.Provider = "skynet" }},
		{"zero rounds", func(c *Config) { c.Orchestrator.MaxRounds = 0 }},
		{"zero fanout", func(c *Config) { c.Orchestrator.ToolFanout = 0 }},
		{"zero threshold", func(c *Config) { c.Resilience.Breaker.FailureThreshold = 0 }},
		{"negative ttl", func(c *Config) { c.Cache.TTLClasses["stable"] = -time.Second }},
		{"discount over 1", func(c *Config) { c.Admission.Rates["generate_creative"] = c.Admission.Rates["generate_creative"]; r := c.Admission.Rates["generate_creative"]; r.Tiers[0].Discount = 1.5; c.Admission.Rates["generate_creative"] = r }},
		{"empty checkpoint path", func(c *Config) { c.Checkpoint.Path = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadLayersOverDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conductor.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
llm:
  provider: ollama
  model: llama3
  host: http://localhost:11434
orchestrator:
  max_rounds: 4
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, 4, cfg.Orchestrator.MaxRounds)
	// Untouched sections keep defaults.
	assert.Equal(t, 5, cfg.Orchestrator.ToolFanout)
	assert.Equal(t, ":8080", cfg.Server.Addr)
}

func TestLoadExpandsEnvVars(t *testing.T) {
	t.Setenv("CONDUCTOR_TEST_ADDR", ":9999")

	dir := t.TempDir()
	path := filepath.Join(dir, "conductor.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  addr: \"${CONDUCTOR_TEST_ADDR}\"\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Server.Addr, cfg.Server.Addr)
}

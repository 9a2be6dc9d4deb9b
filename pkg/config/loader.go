package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"conductor/pkg/logx"
)

// Load reads the YAML config at path, layers it over Default(), expands
// ${VAR} references from the environment, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	expanded := os.Expand(string(raw), func(name string) string {
		return os.Getenv(name)
	})

	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}

	logx.NewLogger("config").Info("loaded config from %s (provider=%s model=%s)", path, cfg.LLM.Provider, cfg.LLM.Model)

	return cfg, nil
}

// LoadOrDefault loads the config at path if it exists, otherwise returns
// the built-in defaults. A present-but-invalid file is still an error.
func LoadOrDefault(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		logx.NewLogger("config").Info("no config at %s, using defaults", path)
		return Default(), nil
	}

	return Load(path)
}

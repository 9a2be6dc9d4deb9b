package llm

import (
	"fmt"

	"conductor/pkg/config"
)

// NewClient builds the raw provider client selected by cfg. Middleware
// (resilience, metrics) is layered by the caller with Chain.
func NewClient(cfg config.LLMConfig, secrets *config.SecretStore) (Client, error) {
	switch cfg.Provider {
	case "mock":
		return NewMockClient(MockText("ok")), nil
	case "ollama":
		return NewOllamaClient(cfg.Host, cfg.Model), nil
	}

	apiKey, err := secrets.APIKeyFor(cfg.Provider)
	if err != nil {
		return nil, fmt.Errorf("no API key for provider %s: %w", cfg.Provider, err)
	}

	switch cfg.Provider {
	case "anthropic":
		return NewAnthropicClient(apiKey, cfg.Model), nil
	case "openai":
		return NewOpenAIClient(apiKey, cfg.Model), nil
	case "google":
		return NewGeminiClient(apiKey, cfg.Model), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}

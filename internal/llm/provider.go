package llm

import (
	"errors"
	"fmt"
	"time"
)

var ErrNoCredentials = errors.New("llm provider has no credentials")

type ProviderConfig struct {
	Provider  string // anthropic, openai, ollama
	APIKey    string
	AuthToken string // Anthropic OAuth token (Bearer auth)
	Model     string
	BaseURL   string
	Timeout   time.Duration
}

func NewClient(cfg ProviderConfig) (Client, error) {
	switch cfg.Provider {
	case "anthropic":
		if cfg.APIKey == "" && cfg.AuthToken == "" {
			return nil, fmt.Errorf("anthropic: %w", ErrNoCredentials)
		}
		return NewAnthropicClient(cfg), nil
	case "openai", "":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("openai: %w", ErrNoCredentials)
		}
		cfg.BaseURL = ""
		return NewOpenAIClient(cfg), nil
	case "ollama":
		if cfg.Model == "" {
			cfg.Model = "llama3.1"
		}
		cfg.APIKey = "ollama"
		return NewOpenAIClient(cfg), nil
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s", cfg.Provider)
	}
}

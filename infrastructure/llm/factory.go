package llm

import (
	"fmt"

	"github.com/felixgeelhaar/repoagent/domain/config"
	"github.com/felixgeelhaar/repoagent/infrastructure/logging"
)

// NewProvider builds the provider named by the model configuration.
func NewProvider(cfg config.ModelConfig) (Provider, error) {
	switch cfg.Provider {
	case "openai":
		return NewOpenAIProvider(OpenAIConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		}), nil
	case "anthropic":
		return NewAnthropicProvider(AnthropicConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		}), nil
	case "scripted":
		return NewScriptedProviderFromTexts(cfg.Responses...).RepeatLast(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownVendor, cfg.Provider)
	}
}

// NewClientFromConfig builds a provider and wraps it in a Client.
func NewClientFromConfig(cfg config.ModelConfig, logger *logging.Logger) (*Client, error) {
	provider, err := NewProvider(cfg)
	if err != nil {
		return nil, err
	}

	clientCfg := ClientConfig{
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
		JSONMode:    cfg.Provider == "openai",
		Timeout:     cfg.Timeout.Duration(),
	}
	if cfg.RateLimit.Enabled {
		clientCfg.RateLimit = &RateLimitConfig{Rate: cfg.RateLimit.Rate, Burst: cfg.RateLimit.Burst}
	}
	if cfg.CircuitBreaker.Enabled {
		clientCfg.Breaker = &BreakerConfig{
			Threshold: cfg.CircuitBreaker.Threshold,
			Timeout:   cfg.CircuitBreaker.Timeout.Duration(),
		}
	}
	return NewClient(provider, clientCfg, logger), nil
}

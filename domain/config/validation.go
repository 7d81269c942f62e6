package config

import (
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	// Path is the JSON path to the invalid field.
	Path string
	// Message describes the validation error.
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

// Error implements the error interface.
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	if len(e) == 1 {
		return e[0].Error()
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return fmt.Sprintf("%d validation errors:\n  - %s", len(e), strings.Join(msgs, "\n  - "))
}

// HasErrors returns true if there are any validation errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}

// Validator validates agent configuration.
type Validator struct {
	errors ValidationErrors
}

// NewValidator creates a new validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate validates the configuration and returns any errors.
func (v *Validator) Validate(config *AgentConfig) ValidationErrors {
	v.errors = nil

	v.validateRequired(config)
	v.validateModel(config)
	v.validateLoop(config)
	v.validateTools(config)
	v.validateBackends(config)
	v.validateObservability(config)

	return v.errors
}

func (v *Validator) addError(path, message string) {
	v.errors = append(v.errors, ValidationError{Path: path, Message: message})
}

func (v *Validator) oneOf(path, value string, allowed ...string) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v.addError(path, fmt.Sprintf("invalid value %q (want one of %s)", value, strings.Join(allowed, ", ")))
}

func (v *Validator) validateRequired(config *AgentConfig) {
	if config.Name == "" {
		v.addError("name", "name is required")
	}
	if config.Version == "" {
		v.addError("version", "version is required")
	}
}

func (v *Validator) validateModel(config *AgentConfig) {
	m := config.Model
	if m.Provider == "" {
		v.addError("model.provider", "provider is required")
	} else {
		v.oneOf("model.provider", m.Provider, "openai", "anthropic", "scripted")
	}
	if m.Provider == "scripted" && len(m.Responses) == 0 {
		v.addError("model.responses", "responses are required for the scripted provider")
	}
	if m.Temperature < 0 || m.Temperature > 2 {
		v.addError("model.temperature", "temperature must be between 0 and 2")
	}
	if m.MaxTokens < 0 {
		v.addError("model.max_tokens", "max_tokens must be non-negative")
	}
	if m.Timeout < 0 {
		v.addError("model.timeout", "timeout must be non-negative")
	}
	if m.RateLimit.Enabled {
		if m.RateLimit.Rate <= 0 {
			v.addError("model.rate_limit.rate", "rate must be positive when enabled")
		}
		if m.RateLimit.Burst <= 0 {
			v.addError("model.rate_limit.burst", "burst must be positive when enabled")
		}
	}
	if m.CircuitBreaker.Enabled && m.CircuitBreaker.Threshold <= 0 {
		v.addError("model.circuit_breaker.threshold", "threshold must be positive when enabled")
	}
}

func (v *Validator) validateLoop(config *AgentConfig) {
	l := config.Loop
	if l.MaxIterations < 0 {
		v.addError("loop.max_iterations", "max_iterations must be non-negative")
	}
	if l.MaxAttempts < 0 {
		v.addError("loop.max_attempts", "max_attempts must be non-negative")
	}
	if l.Multiplier != 0 && l.Multiplier < 1 {
		v.addError("loop.multiplier", "multiplier must be >= 1")
	}
	if l.InitialBackoff < 0 || l.MaxBackoff < 0 {
		v.addError("loop", "backoff durations must be non-negative")
	}
	if l.CheckpointEvery < 0 {
		v.addError("loop.checkpoint_every", "checkpoint_every must be non-negative")
	}
}

func (v *Validator) validateTools(config *AgentConfig) {
	t := config.Tools
	if t.ReadWindow < 0 {
		v.addError("tools.read_window", "read_window must be non-negative")
	}
	if t.ListDepth < -1 {
		v.addError("tools.list_depth", "list_depth must be -1 (unlimited) or more")
	}
	if t.MaxConcurrent < 0 {
		v.addError("tools.max_concurrent", "max_concurrent must be non-negative")
	}
}

func (v *Validator) validateBackends(config *AgentConfig) {
	if d := config.Cache.Driver; d != "" {
		v.oneOf("cache.driver", d, "none", "memory", "badger", "redis")
		if d == "redis" && config.Cache.Addr == "" {
			v.addError("cache.addr", "addr is required for the redis cache")
		}
	}
	if config.Cache.Size < 0 {
		v.addError("cache.size", "size must be non-negative")
	}
	if d := config.Storage.Driver; d != "" {
		v.oneOf("storage.driver", d, "memory", "file", "sqlite")
		if d == "sqlite" && config.Storage.DSN == "" {
			v.addError("storage.dsn", "dsn is required for the sqlite store")
		}
	}
	if config.Pool.Concurrency < 0 {
		v.addError("pool.concurrency", "concurrency must be non-negative")
	}
	if lvl := config.Logging.Level; lvl != "" {
		v.oneOf("logging.level", lvl, "trace", "debug", "info", "warn", "error")
	}
	if f := config.Logging.Format; f != "" {
		v.oneOf("logging.format", f, "json", "console")
	}
}

func (v *Validator) validateObservability(config *AgentConfig) {
	o := config.Observability
	if !o.Enabled {
		return
	}
	if o.Exporter != "" {
		v.oneOf("observability.exporter", o.Exporter, "none", "stdout", "otlp")
	}
	if o.Exporter == "otlp" && o.Endpoint == "" {
		v.addError("observability.endpoint", "endpoint is required for the otlp exporter")
	}
	if o.SampleRate < 0 || o.SampleRate > 1 {
		v.addError("observability.sample_rate", "sample_rate must be between 0 and 1")
	}
}

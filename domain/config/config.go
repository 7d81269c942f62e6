// Package config provides domain models for agent configuration.
package config

import "time"

// AgentConfig represents the complete configuration of the repository agent.
type AgentConfig struct {
	// Name is a human-readable name for this configuration.
	Name string `json:"name" yaml:"name"`
	// Version is the configuration schema version.
	Version string `json:"version" yaml:"version"`

	Model         ModelConfig         `json:"model" yaml:"model"`
	Loop          LoopConfig          `json:"loop,omitempty" yaml:"loop,omitempty"`
	Tools         ToolsConfig         `json:"tools,omitempty" yaml:"tools,omitempty"`
	Repository    RepositoryConfig    `json:"repository,omitempty" yaml:"repository,omitempty"`
	Cache         CacheConfig         `json:"cache,omitempty" yaml:"cache,omitempty"`
	Storage       StorageConfig       `json:"storage,omitempty" yaml:"storage,omitempty"`
	Pool          PoolConfig          `json:"pool,omitempty" yaml:"pool,omitempty"`
	Logging       LoggingConfig       `json:"logging,omitempty" yaml:"logging,omitempty"`
	Observability ObservabilityConfig `json:"observability,omitempty" yaml:"observability,omitempty"`
}

// ModelConfig configures the language model boundary.
type ModelConfig struct {
	// Provider is openai, anthropic or scripted.
	Provider string `json:"provider" yaml:"provider"`
	// Model is the provider's model identifier.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`
	// APIKey authenticates against the provider.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`
	// BaseURL overrides the provider endpoint.
	BaseURL     string  `json:"base_url,omitempty" yaml:"base_url,omitempty"`
	Temperature float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	// Timeout bounds a single model call. Timeouts count as transient failures.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// Responses are the canned replies of the scripted provider.
	Responses []string `json:"responses,omitempty" yaml:"responses,omitempty"`

	RateLimit      RateLimitConfig      `json:"rate_limit,omitempty" yaml:"rate_limit,omitempty"`
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker,omitempty" yaml:"circuit_breaker,omitempty"`
}

// RateLimitConfig configures rate limiting of model requests.
type RateLimitConfig struct {
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// Rate is requests per second.
	Rate  int `json:"rate,omitempty" yaml:"rate,omitempty"`
	Burst int `json:"burst,omitempty" yaml:"burst,omitempty"`
}

// CircuitBreakerConfig configures the model transport circuit breaker.
type CircuitBreakerConfig struct {
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	// Threshold is consecutive failures before opening.
	Threshold int `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	// Timeout is how long the circuit stays open.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

// LoopConfig bounds the control loop.
type LoopConfig struct {
	// MaxIterations is the iteration cap of one run.
	MaxIterations int `json:"max_iterations,omitempty" yaml:"max_iterations,omitempty"`
	// MaxAttempts is the total number of tries of one model call.
	MaxAttempts    int      `json:"max_attempts,omitempty" yaml:"max_attempts,omitempty"`
	InitialBackoff Duration `json:"initial_backoff,omitempty" yaml:"initial_backoff,omitempty"`
	MaxBackoff     Duration `json:"max_backoff,omitempty" yaml:"max_backoff,omitempty"`
	Multiplier     float64  `json:"multiplier,omitempty" yaml:"multiplier,omitempty"`
	// LenientJSON repairs malformed model JSON before giving up on a reply.
	LenientJSON bool `json:"lenient_json,omitempty" yaml:"lenient_json,omitempty"`
	// CheckpointEvery persists the run after every N iterations (0 disables).
	CheckpointEvery int `json:"checkpoint_every,omitempty" yaml:"checkpoint_every,omitempty"`
}

// ToolsConfig configures the repository capabilities.
type ToolsConfig struct {
	// ReadWindow is the maximum number of lines one read returns.
	ReadWindow int `json:"read_window,omitempty" yaml:"read_window,omitempty"`
	// ListDepth is the default depth of directory listings.
	ListDepth int `json:"list_depth,omitempty" yaml:"list_depth,omitempty"`
	// Timeout bounds a single capability execution.
	Timeout Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	// MaxConcurrent bounds capability executions across all runs.
	MaxConcurrent int `json:"max_concurrent,omitempty" yaml:"max_concurrent,omitempty"`
}

// RepositoryConfig points the agent at a repository.
type RepositoryConfig struct {
	Root string `json:"root,omitempty" yaml:"root,omitempty"`
	// Ignore holds extra gitignore-style patterns.
	Ignore []string `json:"ignore,omitempty" yaml:"ignore,omitempty"`
	// Watch rebuilds the index when files change.
	Watch bool `json:"watch,omitempty" yaml:"watch,omitempty"`
	// NoGitignore disables .gitignore handling.
	NoGitignore bool `json:"no_gitignore,omitempty" yaml:"no_gitignore,omitempty"`
}

// CacheConfig selects the observation cache backend.
type CacheConfig struct {
	// Driver is none, memory, badger or redis.
	Driver string   `json:"driver,omitempty" yaml:"driver,omitempty"`
	Size   int      `json:"size,omitempty" yaml:"size,omitempty"`
	TTL    Duration `json:"ttl,omitempty" yaml:"ttl,omitempty"`
	// Dir is the badger directory. Empty means in-memory.
	Dir       string `json:"dir,omitempty" yaml:"dir,omitempty"`
	Addr      string `json:"addr,omitempty" yaml:"addr,omitempty"`
	Password  string `json:"password,omitempty" yaml:"password,omitempty"`
	DB        int    `json:"db,omitempty" yaml:"db,omitempty"`
	KeyPrefix string `json:"key_prefix,omitempty" yaml:"key_prefix,omitempty"`
}

// StorageConfig selects the checkpoint store.
type StorageConfig struct {
	// Driver is memory, file or sqlite.
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty"`
	// Dir is the root of the file store.
	Dir string `json:"dir,omitempty" yaml:"dir,omitempty"`
	// DSN is the sqlite data source.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`
}

// PoolConfig bounds concurrent independent runs.
type PoolConfig struct {
	Concurrency int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
}

// LoggingConfig configures the logger.
type LoggingConfig struct {
	Level  string `json:"level,omitempty" yaml:"level,omitempty"`
	Format string `json:"format,omitempty" yaml:"format,omitempty"`
}

// ObservabilityConfig configures tracing and metrics.
type ObservabilityConfig struct {
	Enabled     bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	ServiceName string `json:"service_name,omitempty" yaml:"service_name,omitempty"`
	// Exporter is none, stdout or otlp.
	Exporter   string  `json:"exporter,omitempty" yaml:"exporter,omitempty"`
	Endpoint   string  `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	SampleRate float64 `json:"sample_rate,omitempty" yaml:"sample_rate,omitempty"`
}

// Duration is a time.Duration that supports JSON/YAML string representation.
type Duration time.Duration

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) {
	return []byte(`"` + time.Duration(d).String() + `"`), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	s := string(b)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(dur)
	return nil
}

// Duration returns the underlying time.Duration.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

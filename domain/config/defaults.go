package config

import "time"

// Defaults used when a field is left empty.
const (
	DefaultMaxIterations = 50
	DefaultMaxAttempts   = 5
	DefaultReadWindow    = 200
	DefaultListDepth     = 1
	DefaultConcurrency   = 4
	DefaultMaxTokens     = 4096
	DefaultTemperature   = 0.5
)

// Default returns a configuration with every default applied.
func Default() AgentConfig {
	cfg := AgentConfig{
		Name:    "repoagent",
		Version: "1",
		Model:   ModelConfig{Provider: "openai"},
	}
	ApplyDefaults(&cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields.
func ApplyDefaults(cfg *AgentConfig) {
	m := &cfg.Model
	if m.Temperature == 0 {
		m.Temperature = DefaultTemperature
	}
	if m.MaxTokens == 0 {
		m.MaxTokens = DefaultMaxTokens
	}
	if m.Timeout == 0 {
		m.Timeout = Duration(2 * time.Minute)
	}
	if m.CircuitBreaker.Enabled {
		if m.CircuitBreaker.Threshold == 0 {
			m.CircuitBreaker.Threshold = 5
		}
		if m.CircuitBreaker.Timeout == 0 {
			m.CircuitBreaker.Timeout = Duration(30 * time.Second)
		}
	}

	l := &cfg.Loop
	if l.MaxIterations == 0 {
		l.MaxIterations = DefaultMaxIterations
	}
	if l.MaxAttempts == 0 {
		l.MaxAttempts = DefaultMaxAttempts
	}
	if l.InitialBackoff == 0 {
		l.InitialBackoff = Duration(500 * time.Millisecond)
	}
	if l.MaxBackoff == 0 {
		l.MaxBackoff = Duration(10 * time.Second)
	}
	if l.Multiplier == 0 {
		l.Multiplier = 2
	}
	if l.CheckpointEvery == 0 {
		l.CheckpointEvery = 1
	}

	t := &cfg.Tools
	if t.ReadWindow == 0 {
		t.ReadWindow = DefaultReadWindow
	}
	if t.ListDepth == 0 {
		t.ListDepth = DefaultListDepth
	}
	if t.Timeout == 0 {
		t.Timeout = Duration(30 * time.Second)
	}
	if t.MaxConcurrent == 0 {
		t.MaxConcurrent = 8
	}

	if cfg.Repository.Root == "" {
		cfg.Repository.Root = "."
	}
	if cfg.Cache.Driver == "" {
		cfg.Cache.Driver = "memory"
	}
	if cfg.Cache.Size == 0 {
		cfg.Cache.Size = 1024
	}
	if cfg.Cache.KeyPrefix == "" {
		cfg.Cache.KeyPrefix = "repoagent:"
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "file"
	}
	if cfg.Storage.Dir == "" {
		cfg.Storage.Dir = "saved_states"
	}
	if cfg.Pool.Concurrency == 0 {
		cfg.Pool.Concurrency = DefaultConcurrency
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	if cfg.Observability.ServiceName == "" {
		cfg.Observability.ServiceName = "repoagent"
	}
	if cfg.Observability.Exporter == "" {
		cfg.Observability.Exporter = "none"
	}
	if cfg.Observability.SampleRate == 0 {
		cfg.Observability.SampleRate = 1
	}
}

package config

import (
	"errors"
	"testing"
	"time"

	domainconfig "github.com/felixgeelhaar/repoagent/domain/config"
	"github.com/felixgeelhaar/repoagent/infrastructure/resilience"
)

func TestBuilder_Defaults(t *testing.T) {
	t.Parallel()

	cfg := domainconfig.Default()
	s, err := NewBuilder(&cfg).Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if s.MaxIterations != 50 {
		t.Errorf("MaxIterations = %d, want 50", s.MaxIterations)
	}
	if s.Retry.MaxAttempts != 5 {
		t.Errorf("Retry.MaxAttempts = %d, want 5", s.Retry.MaxAttempts)
	}
	if s.Retry.InitialDelay != 500*time.Millisecond || s.Retry.MaxDelay != 10*time.Second {
		t.Errorf("Retry delays = %v / %v", s.Retry.InitialDelay, s.Retry.MaxDelay)
	}
	if s.Retry.Timeout != 2*time.Minute {
		t.Errorf("Retry.Timeout = %v, want 2m", s.Retry.Timeout)
	}
	if s.CheckpointEvery != 1 {
		t.Errorf("CheckpointEvery = %d, want 1", s.CheckpointEvery)
	}
	var exec resilience.ExecutorConfig
	for _, opt := range s.Executor {
		opt(&exec)
	}
	if exec.MaxConcurrent != 8 || exec.DefaultTimeout != 30*time.Second {
		t.Errorf("Executor = %+v", exec)
	}
	if len(s.Explore) != 3 {
		t.Errorf("Explore options = %d, want 3", len(s.Explore))
	}
	if s.ListDepth != 1 {
		t.Errorf("ListDepth = %d, want 1", s.ListDepth)
	}
	if s.Concurrency != 4 {
		t.Errorf("Concurrency = %d, want 4", s.Concurrency)
	}
	if s.Logging.Level != "info" || s.Logging.Format != "console" {
		t.Errorf("Logging = %+v", s.Logging)
	}
	if s.Observability != nil {
		t.Errorf("Observability options = %d, want none when disabled", len(s.Observability))
	}
}

func TestBuilder_ExplicitValues(t *testing.T) {
	t.Parallel()

	cfg := domainconfig.AgentConfig{
		Name:    "planner",
		Version: "2",
		Model:   domainconfig.ModelConfig{Provider: "anthropic", Timeout: domainconfig.Duration(time.Second)},
		Loop: domainconfig.LoopConfig{
			MaxIterations: 7,
			MaxAttempts:   2,
			LenientJSON:   true,
		},
		Tools:      domainconfig.ToolsConfig{ListDepth: -1, ReadWindow: 40},
		Repository: domainconfig.RepositoryConfig{Ignore: []string{"vendor/"}, NoGitignore: true},
		Cache:      domainconfig.CacheConfig{TTL: domainconfig.Duration(time.Hour)},
		Pool:       domainconfig.PoolConfig{Concurrency: 2},
		Logging:    domainconfig.LoggingConfig{Level: "debug", Format: "json"},
		Observability: domainconfig.ObservabilityConfig{
			Enabled:  true,
			Exporter: "stdout",
		},
	}

	s, err := NewBuilder(&cfg).Build()
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if s.MaxIterations != 7 || s.Retry.MaxAttempts != 2 || s.Retry.Timeout != time.Second {
		t.Errorf("loop settings = %d / %+v", s.MaxIterations, s.Retry)
	}
	if s.ListDepth != -1 {
		t.Errorf("ListDepth = %d, want -1", s.ListDepth)
	}
	if len(s.Index.Ignore) != 1 || !s.Index.NoGitignore {
		t.Errorf("Index = %+v", s.Index)
	}
	if s.CacheTTL != time.Hour {
		t.Errorf("CacheTTL = %v, want 1h", s.CacheTTL)
	}
	if s.Concurrency != 2 {
		t.Errorf("Concurrency = %d, want 2", s.Concurrency)
	}
	if s.Logging.Format != "json" {
		t.Errorf("Logging.Format = %s, want json", s.Logging.Format)
	}
	if len(s.Observability) == 0 {
		t.Error("Observability options missing")
	}
	if cfg.Cache.Driver != "" {
		t.Error("Build() mutated the caller's configuration")
	}
}

func TestBuilder_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  *domainconfig.AgentConfig
	}{
		{"nil", nil},
		{"missing name", &domainconfig.AgentConfig{Version: "1", Model: domainconfig.ModelConfig{Provider: "openai"}}},
		{"bad driver", &domainconfig.AgentConfig{
			Name: "a", Version: "1",
			Model:   domainconfig.ModelConfig{Provider: "openai"},
			Storage: domainconfig.StorageConfig{Driver: "postgres"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewBuilder(tt.cfg).Build(); !errors.Is(err, domainconfig.ErrValidationFailed) {
				t.Errorf("Build() error = %v, want ErrValidationFailed", err)
			}
		})
	}
}

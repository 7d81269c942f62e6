package config

import (
	"fmt"
	"time"

	domainconfig "github.com/felixgeelhaar/repoagent/domain/config"
	"github.com/felixgeelhaar/repoagent/infrastructure/llm"
	"github.com/felixgeelhaar/repoagent/infrastructure/logging"
	"github.com/felixgeelhaar/repoagent/infrastructure/observability"
	"github.com/felixgeelhaar/repoagent/infrastructure/repo"
	"github.com/felixgeelhaar/repoagent/infrastructure/resilience"
	"github.com/felixgeelhaar/repoagent/pack/explore"
)

// Builder translates configuration into component settings.
type Builder struct {
	config *domainconfig.AgentConfig
}

// NewBuilder creates a new configuration builder.
func NewBuilder(config *domainconfig.AgentConfig) *Builder {
	return &Builder{config: config}
}

// Settings are the runtime parameters derived from configuration.
type Settings struct {
	// MaxIterations is the iteration cap of one run.
	MaxIterations int
	// Retry is the shared per-iteration budget of model calls.
	Retry resilience.RetryConfig
	// CheckpointEvery persists runs every N iterations.
	CheckpointEvery int

	Executor []resilience.Option
	Parser   []llm.ParserOption
	Explore  []explore.Option
	// ListDepth is the depth of the initial repository map.
	ListDepth int
	Index     repo.IndexOptions

	// CacheTTL expires cached observations (0 = never).
	CacheTTL    time.Duration
	Concurrency int

	Logging       logging.Config
	Observability []observability.Option
}

// Build derives settings. The configuration is copied and defaulted first,
// so a partially filled configuration is accepted.
func (b *Builder) Build() (*Settings, error) {
	if b.config == nil {
		return nil, fmt.Errorf("%w: nil configuration", domainconfig.ErrValidationFailed)
	}
	cfg := *b.config
	domainconfig.ApplyDefaults(&cfg)

	if errs := domainconfig.NewValidator().Validate(&cfg); errs.HasErrors() {
		return nil, fmt.Errorf("%w: %v", domainconfig.ErrValidationFailed, errs)
	}

	s := &Settings{
		MaxIterations:   cfg.Loop.MaxIterations,
		CheckpointEvery: cfg.Loop.CheckpointEvery,
		Retry:           buildRetry(cfg.Loop, cfg.Model),
		Executor: []resilience.Option{
			resilience.WithMaxConcurrent(cfg.Tools.MaxConcurrent),
			resilience.WithTimeout(cfg.Tools.Timeout.Duration()),
		},
		Parser: []llm.ParserOption{llm.WithLenientJSON(cfg.Loop.LenientJSON)},
		Explore: []explore.Option{
			explore.WithReadWindow(cfg.Tools.ReadWindow),
			explore.WithListDepth(cfg.Tools.ListDepth),
			explore.WithTimeout(cfg.Tools.Timeout.Duration()),
		},
		ListDepth: cfg.Tools.ListDepth,
		Index: repo.IndexOptions{
			Ignore:      append([]string(nil), cfg.Repository.Ignore...),
			NoGitignore: cfg.Repository.NoGitignore,
		},
		CacheTTL:    cfg.Cache.TTL.Duration(),
		Concurrency: cfg.Pool.Concurrency,
		Logging: logging.Config{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
		},
	}
	if cfg.Observability.Enabled {
		s.Observability = observability.OptionsFromConfig(cfg.Observability, cfg.Version)
	}
	return s, nil
}

// buildRetry maps loop backoff settings onto a retry policy. The model
// timeout bounds every try.
func buildRetry(loop domainconfig.LoopConfig, model domainconfig.ModelConfig) resilience.RetryConfig {
	return resilience.RetryConfig{
		MaxAttempts:  loop.MaxAttempts,
		InitialDelay: loop.InitialBackoff.Duration(),
		MaxDelay:     loop.MaxBackoff.Duration(),
		Multiplier:   loop.Multiplier,
		Jitter:       0.1,
		Timeout:      model.Timeout.Duration(),
	}
}

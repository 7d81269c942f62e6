package application

import (
	"time"

	"github.com/felixgeelhaar/repoagent/domain/cache"
	"github.com/felixgeelhaar/repoagent/infrastructure/logging"
	"github.com/felixgeelhaar/repoagent/infrastructure/observability"
	"github.com/felixgeelhaar/repoagent/infrastructure/resilience"
)

// Option configures a control loop.
type Option func(*LoopConfig)

// New creates a control loop from options.
func New(opts ...Option) (*ControlLoop, error) {
	var config LoopConfig
	for _, opt := range opts {
		opt(&config)
	}
	return NewControlLoop(config)
}

// WithProfile sets the agent profile.
func WithProfile(p Profile) Option {
	return func(c *LoopConfig) {
		c.Profile = p
	}
}

// WithModel sets the model.
func WithModel(m ChatModel) Option {
	return func(c *LoopConfig) {
		c.Model = m
	}
}

// WithParser sets the decision parser.
func WithParser(p DecisionParser) Option {
	return func(c *LoopConfig) {
		c.Parser = p
	}
}

// WithExecutor sets the capability executor.
func WithExecutor(e *resilience.Executor) Option {
	return func(c *LoopConfig) {
		c.Executor = e
	}
}

// WithMaxIterations sets the iteration cap.
func WithMaxIterations(n int) Option {
	return func(c *LoopConfig) {
		c.MaxIterations = n
	}
}

// WithRetry sets the model call retry policy.
func WithRetry(r resilience.RetryConfig) Option {
	return func(c *LoopConfig) {
		c.Retry = r
	}
}

// WithCache enables the observation cache. Entries are keyed by the pinned
// repository revision and expire after ttl (0 = never).
func WithCache(cc cache.Cache, ttl time.Duration) Option {
	return func(c *LoopConfig) {
		c.Cache = cc
		c.CacheTTL = ttl
	}
}

// WithRepository pins every run to the repository snapshot current at its
// start.
func WithRepository(view RepositoryView) Option {
	return func(c *LoopConfig) {
		c.Repository = view
	}
}

// WithCheckpoints persists the run every n iterations and at the end.
// n = 0 only checkpoints the end of the run.
func WithCheckpoints(sink *CheckpointSink, every int) Option {
	return func(c *LoopConfig) {
		c.Checkpoints = sink
		c.CheckpointEvery = every
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(c *LoopConfig) {
		c.Logger = l
	}
}

// WithTelemetry sets the tracing and metrics provider.
func WithTelemetry(p *observability.Provider) Option {
	return func(c *LoopConfig) {
		c.Telemetry = p
	}
}

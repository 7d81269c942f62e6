package application

import (
	"context"
	"time"

	"github.com/felixgeelhaar/fortify/retry"

	"github.com/felixgeelhaar/repoagent/domain/run"
	"github.com/felixgeelhaar/repoagent/infrastructure/logging"
)

// CheckpointSink persists run checkpoints. Store failures are retried and
// then logged; they never end a run.
type CheckpointSink struct {
	store   run.Store
	retrier retry.Retry[struct{}]
	logger  *logging.Logger
}

// CheckpointConfig configures a CheckpointSink.
type CheckpointConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
}

// NewCheckpointSink wraps store.
func NewCheckpointSink(store run.Store, config CheckpointConfig, logger *logging.Logger) *CheckpointSink {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 3
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 50 * time.Millisecond
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &CheckpointSink{
		store: store,
		retrier: retry.New[struct{}](retry.Config{
			MaxAttempts:   config.MaxAttempts,
			InitialDelay:  config.InitialDelay,
			BackoffPolicy: retry.BackoffExponential,
			Multiplier:    2.0,
		}),
		logger: logger.With(logging.Component("checkpoint")),
	}
}

// Save writes cp, retrying transient store failures.
func (s *CheckpointSink) Save(ctx context.Context, cp *run.Checkpoint) error {
	if s == nil || s.store == nil {
		return nil
	}
	_, err := s.retrier.Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.store.Save(ctx, cp)
	})
	if err != nil {
		s.logger.Error().
			Add(logging.RunID(cp.RunID)).
			Add(logging.Iteration(cp.Iteration)).
			Add(logging.ErrorField(err)).
			Msg("checkpoint failed")
		return err
	}
	s.logger.Trace().
		Add(logging.RunID(cp.RunID)).
		Add(logging.Iteration(cp.Iteration)).
		Add(logging.Status(cp.Status)).
		Msg("checkpoint saved")
	return nil
}

// Store returns the underlying store.
func (s *CheckpointSink) Store() run.Store {
	return s.store
}

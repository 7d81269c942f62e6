package application

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/felixgeelhaar/repoagent/infrastructure/logging"
)

// LoopFactory builds a fresh loop for the named agent.
type LoopFactory func(agentName string) (*ControlLoop, error)

// Job is one independent request.
type Job struct {
	ID    string `json:"id" yaml:"id"`
	Agent string `json:"agent" yaml:"agent"`
	Task  Task   `json:"task" yaml:"task"`
}

// JobResult pairs a job with its outcome.
type JobResult struct {
	Job      Job
	Result   *Result
	Err      error
	Duration time.Duration
}

// Pool runs independent jobs with a concurrency ceiling. Every job gets its
// own loop, history, state and retry budget.
type Pool struct {
	factory LoopFactory
	limit   int
	logger  *logging.Logger
}

// NewPool creates a pool. limit below 1 means one job at a time.
func NewPool(factory LoopFactory, limit int, logger *logging.Logger) *Pool {
	if limit < 1 {
		limit = 1
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Pool{factory: factory, limit: limit, logger: logger.With(logging.Component("pool"))}
}

// Run executes jobs and returns their results in job order. A failed job
// does not stop the others; only ctx cancellation does.
func (p *Pool) Run(ctx context.Context, jobs []Job) []JobResult {
	results := make([]JobResult, len(jobs))

	var g errgroup.Group
	g.SetLimit(p.limit)
	for i, job := range jobs {
		results[i].Job = job
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return nil
			}
			start := time.Now()
			results[i].Result, results[i].Err = p.runOne(ctx, job)
			results[i].Duration = time.Since(start)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	p.logger.Info().
		Add(logging.Int("jobs", len(jobs))).
		Add(logging.Int("failed", failed)).
		Msg("batch completed")
	return results
}

func (p *Pool) runOne(ctx context.Context, job Job) (*Result, error) {
	if p.factory == nil {
		return nil, errors.New("pool has no loop factory")
	}
	loop, err := p.factory(job.Agent)
	if err != nil {
		return nil, err
	}
	res, err := loop.Run(ctx, job.Task)
	if err != nil {
		p.logger.Warn().
			Add(logging.Str("job", job.ID)).
			Add(logging.Agent(job.Agent)).
			Add(logging.ErrorField(err)).
			Msg("job failed")
	}
	return res, err
}

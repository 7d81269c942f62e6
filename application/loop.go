// Package application provides the control loop that drives an agent run and
// the services around it: dispatch, checkpoints and the worker pool.
package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/statekit"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/repoagent/domain/agent"
	"github.com/felixgeelhaar/repoagent/domain/cache"
	"github.com/felixgeelhaar/repoagent/domain/ledger"
	"github.com/felixgeelhaar/repoagent/domain/run"
	"github.com/felixgeelhaar/repoagent/domain/tool"
	"github.com/felixgeelhaar/repoagent/infrastructure/llm"
	"github.com/felixgeelhaar/repoagent/infrastructure/logging"
	"github.com/felixgeelhaar/repoagent/infrastructure/observability"
	"github.com/felixgeelhaar/repoagent/infrastructure/resilience"
	"github.com/felixgeelhaar/repoagent/infrastructure/statemachine"
)

// DefaultMaxIterations caps a run when the configuration does not.
const DefaultMaxIterations = 50

// ChatModel is the model boundary of the loop.
type ChatModel interface {
	Chat(ctx context.Context, messages []agent.Message) (llm.Reply, error)
}

// DecisionParser turns model text into a decision.
type DecisionParser interface {
	Parse(raw string) (agent.Decision, error)
}

// Task is one request handed to an agent.
type Task struct {
	// Prompt is the user request.
	Prompt string `json:"prompt" yaml:"prompt"`

	// Directory scopes the initial repository map. Empty means the root.
	Directory string `json:"directory,omitempty" yaml:"directory,omitempty"`

	// Context carries the output of an earlier run, such as the
	// exploration context a planner works from.
	Context string `json:"context,omitempty" yaml:"context,omitempty"`

	// Exploration is a structured exploration context. The planner renders
	// it, relevant file contents included, in place of Context.
	Exploration *agent.ExplorationContext `json:"exploration,omitempty" yaml:"exploration,omitempty"`
}

// Profile describes an agent variant.
type Profile struct {
	Name     string
	Registry *tool.Registry

	// Frame builds the initial history for a task.
	Frame func(ctx context.Context, task Task, registry *tool.Registry) ([]agent.Message, error)

	// Refresh returns a transient message shown to the model before every
	// decision. It is removed again once the decision is made.
	Refresh func(state agent.State) (string, bool)
}

// LoopConfig configures a ControlLoop.
type LoopConfig struct {
	Profile Profile
	Model   ChatModel
	Parser  DecisionParser

	MaxIterations int
	Retry         resilience.RetryConfig

	// Executor runs capabilities. Defaults to resilience.NewDefaultExecutor.
	Executor *resilience.Executor

	// Cache stores observations of cacheable capabilities. Optional.
	Cache    cache.Cache
	CacheTTL time.Duration

	// Repository pins each run to one repository snapshot. Optional.
	Repository RepositoryView

	// Checkpoints persists the run. Optional.
	Checkpoints     *CheckpointSink
	CheckpointEvery int

	Logger    *logging.Logger
	Telemetry *observability.Provider
}

// Result is the outcome of a run. It is returned for failed runs too, so
// the history and action log can be inspected.
type Result struct {
	RunID      string
	Agent      string
	Status     agent.Status
	Iterations int

	// Finish is the terminal action's argument object, verbatim.
	Finish json.RawMessage

	History []agent.Message
	Actions []ledger.ActionDetails
	State   agent.State
	Ledger  *ledger.Ledger
	Err     error
}

// FinishArgs decodes the terminal payload.
func (r *Result) FinishArgs() (tool.FinishArgs, error) {
	var args tool.FinishArgs
	if len(r.Finish) == 0 {
		return args, errors.New("run has no finish payload")
	}
	err := json.Unmarshal(r.Finish, &args)
	return args, err
}

// ControlLoop drives one agent: it asks the model for a decision, dispatches
// it and feeds the observation back until the terminal action or a budget
// ends the run. One loop runs one task at a time.
type ControlLoop struct {
	profile         Profile
	model           ChatModel
	parser          DecisionParser
	dispatcher      *Dispatcher
	repository      RepositoryView
	maxIterations   int
	retry           resilience.RetryConfig
	checkpoints     *CheckpointSink
	checkpointEvery int
	logger          *logging.Logger
	tracer          trace.Tracer
	instruments     *observability.Instruments
	machine         *statekit.MachineConfig[*statemachine.Context]
	busy            atomic.Bool
}

// NewControlLoop creates a loop. The profile's registry is frozen.
func NewControlLoop(config LoopConfig) (*ControlLoop, error) {
	if config.Profile.Name == "" {
		return nil, errors.New("profile name is required")
	}
	if config.Profile.Registry == nil {
		return nil, errors.New("profile registry is required")
	}
	if config.Profile.Frame == nil {
		return nil, errors.New("profile frame is required")
	}
	if config.Model == nil {
		return nil, errors.New("model is required")
	}
	if config.Parser == nil {
		config.Parser = llm.NewParser()
	}
	if config.MaxIterations <= 0 {
		config.MaxIterations = DefaultMaxIterations
	}
	if config.Retry.MaxAttempts <= 0 {
		config.Retry = resilience.DefaultRetryConfig()
	}
	if config.Logger == nil {
		config.Logger = logging.Nop()
	}
	if config.Telemetry == nil {
		config.Telemetry = observability.Nop()
	}

	dispatcher, err := NewDispatcher(DispatcherConfig{
		Registry:  config.Profile.Registry,
		Executor:  config.Executor,
		Cache:     config.Cache,
		CacheTTL:  config.CacheTTL,
		Logger:    config.Logger,
		Telemetry: config.Telemetry,
	})
	if err != nil {
		return nil, err
	}

	machine, err := statemachine.NewLoopMachine()
	if err != nil {
		return nil, fmt.Errorf("failed to create state machine: %w", err)
	}

	return &ControlLoop{
		profile:         config.Profile,
		model:           config.Model,
		parser:          config.Parser,
		dispatcher:      dispatcher,
		repository:      config.Repository,
		maxIterations:   config.MaxIterations,
		retry:           config.Retry,
		checkpoints:     config.Checkpoints,
		checkpointEvery: config.CheckpointEvery,
		logger:          config.Logger.With(logging.Agent(config.Profile.Name)),
		tracer:          config.Telemetry.Tracer(),
		instruments:     config.Telemetry.Instruments(),
		machine:         machine,
	}, nil
}

// Name returns the agent name.
func (l *ControlLoop) Name() string {
	return l.profile.Name
}

// runState is everything one Run owns.
type runState struct {
	id        string
	task      Task
	history   []agent.Message
	state     agent.State
	ledger    *ledger.Ledger
	interp    *statemachine.Interpreter
	revision  string
	createdAt time.Time
}

// Run executes task until the terminal action or a fatal error. State is
// reset on every call. The only errors are the fatal ones (retry budget and
// iteration cap), cancellation, and a bad task framing; the Result is
// returned alongside them.
func (l *ControlLoop) Run(ctx context.Context, task Task) (*Result, error) {
	if !l.busy.CompareAndSwap(false, true) {
		return nil, agent.ErrLoopBusy
	}
	defer l.busy.Store(false)

	// Every read of this run, framing included, sees one snapshot.
	revision := ""
	if l.repository != nil {
		ctx, revision = l.repository.Pin(ctx)
	}

	history, err := l.profile.Frame(ctx, task, l.dispatcher.Registry())
	if err != nil {
		return nil, fmt.Errorf("frame task: %w", err)
	}

	runID := uuid.NewString()
	runLedger := ledger.New(runID)
	r := &runState{
		id:        runID,
		task:      task,
		history:   history,
		state:     agent.NewState(),
		ledger:    runLedger,
		interp:    statemachine.NewInterpreter(l.machine, statemachine.NewContext(runID, runLedger)),
		revision:  revision,
		createdAt: time.Now(),
	}

	ctx, span := l.tracer.Start(ctx, "loop.run", trace.WithAttributes(
		attribute.String("agent", l.profile.Name),
		attribute.String("run_id", runID),
		attribute.String("revision", revision),
	))
	defer span.End()

	r.interp.Start()
	defer r.interp.Stop()
	runLedger.RecordRunStarted(l.profile.Name, task.Prompt)
	l.instruments.RunStarted(ctx, l.profile.Name)

	log := l.logger.With(logging.RunID(runID))
	log.Info().Add(logging.Int("max_iterations", l.maxIterations)).Msg("run started")

	for {
		terminal, err := l.iterate(ctx, r, log)
		if err != nil {
			return l.fail(ctx, r, span, log, err)
		}
		if terminal != nil {
			return l.finish(ctx, r, span, log, terminal)
		}

		iteration := r.interp.Advance()
		if iteration == l.maxIterations {
			return l.fail(ctx, r, span, log, &agent.MaxIterationsReachedError{Iterations: iteration})
		}
		if l.checkpointEvery > 0 && iteration%l.checkpointEvery == 0 {
			_ = l.checkpoints.Save(ctx, l.checkpoint(r))
		}
	}
}

// iterate runs one decision/dispatch cycle. It returns the finish payload
// when the terminal action was dispatched.
func (l *ControlLoop) iterate(ctx context.Context, r *runState, log *logging.Logger) (json.RawMessage, error) {
	iteration := r.interp.Context().Iteration
	ctx, span := l.tracer.Start(ctx, "loop.iteration", trace.WithAttributes(attribute.Int("iteration", iteration)))
	defer span.End()

	refreshed := false
	if l.profile.Refresh != nil {
		if msg, ok := l.profile.Refresh(r.state); ok {
			r.history = append(r.history, agent.UserMessage(msg))
			refreshed = true
		}
	}

	decision, usage, err := l.decide(ctx, r, log)
	if usage.Calls > 0 {
		r.state, _ = agent.AddUsage{Usage: usage}.Apply(r.state)
	}
	if refreshed {
		r.history = r.history[:len(r.history)-1]
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	r.history = append(r.history, agent.AssistantMessage(decision.Raw))

	out := l.dispatcher.Dispatch(ctx, DispatchRequest{
		RunID:     r.id,
		Iteration: iteration,
		State:     r.state,
		Ledger:    r.ledger,
		Revision:  r.revision,
	}, decision)

	obs := out.Observation
	if out.Delta != nil {
		next, err := out.Delta.Apply(r.state)
		r.ledger.RecordStateApplied(iteration, decision.Action, out.Delta, err)
		if err != nil {
			obs = agent.FailedErr(err)
		} else {
			r.state = next
		}
	}
	r.history = append(r.history, agent.UserMessage(obs.Text()))

	log.Debug().
		Add(logging.Iteration(iteration)).
		Add(logging.ToolName(decision.Action)).
		Add(logging.Success(obs.Success)).
		Msg("iteration completed")

	if out.Terminal {
		return out.Finish, nil
	}
	return nil, nil
}

// decide asks the model for a decision under the retry policy. Transport
// and decode failures share one budget.
func (l *ControlLoop) decide(ctx context.Context, r *runState, log *logging.Logger) (agent.Decision, agent.TokenUsage, error) {
	iteration := r.interp.Context().Iteration
	var usage agent.TokenUsage

	cfg := l.retry
	onRetry := cfg.OnRetry
	cfg.OnRetry = func(b resilience.RetryBudget, err error) {
		r.ledger.RecordRetry(iteration, b.Made, b.Allowed, err)
		log.Warn().
			Add(logging.Iteration(iteration)).
			Add(logging.Attempt(b.Made, b.Allowed)).
			Add(logging.ErrorField(err)).
			Msg("model call failed, retrying")
		if onRetry != nil {
			onRetry(b, err)
		}
	}
	policy := resilience.NewRetryPolicy[agent.Decision](cfg)

	decision, err := policy.Invoke(ctx, func(ctx context.Context, b resilience.RetryBudget) (agent.Decision, error) {
		ctx, span := l.tracer.Start(ctx, "model.call", trace.WithAttributes(attribute.Int("attempt", b.Made)))
		defer span.End()

		start := time.Now()
		reply, err := l.model.Chat(ctx, r.history)
		if err == nil {
			usage.PromptTokens += reply.Usage.PromptTokens
			usage.CompletionTokens += reply.Usage.CompletionTokens
			usage.Calls++
			l.instruments.Tokens(ctx, l.profile.Name, reply.Usage)

			var d agent.Decision
			d, err = l.parser.Parse(reply.Content)
			if err == nil {
				l.instruments.ModelAttempt(ctx, l.profile.Name, nil, time.Since(start))
				return d, nil
			}
		}
		l.instruments.ModelAttempt(ctx, l.profile.Name, err, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return agent.Decision{}, err
	})
	return decision, usage, err
}

func (l *ControlLoop) finish(ctx context.Context, r *runState, span trace.Span, log *logging.Logger, payload json.RawMessage) (*Result, error) {
	r.interp.Advance()
	if err := r.interp.Finish(payload); err != nil {
		return l.fail(ctx, r, span, log, err)
	}
	res := l.result(r)
	l.instruments.RunEnded(ctx, l.profile.Name, res.Status, res.Iterations, time.Since(r.createdAt))
	_ = l.checkpoints.Save(ctx, l.checkpoint(r))

	span.SetAttributes(attribute.String("status", res.Status.String()), attribute.Int("iterations", res.Iterations))
	span.SetStatus(codes.Ok, "")
	log.Info().
		Add(logging.Status(res.Status)).
		Add(logging.Iteration(res.Iterations)).
		Add(logging.Tokens(res.State.Usage)).
		Add(logging.Duration(time.Since(r.createdAt))).
		Msg("run finished")
	return res, nil
}

func (l *ControlLoop) fail(ctx context.Context, r *runState, span trace.Span, log *logging.Logger, cause error) (*Result, error) {
	_ = r.interp.Fail(cause)
	res := l.result(r)
	res.Err = cause
	// Persist even when the caller's context is gone.
	_ = l.checkpoints.Save(context.WithoutCancel(ctx), l.checkpoint(r))
	l.instruments.RunEnded(ctx, l.profile.Name, res.Status, res.Iterations, time.Since(r.createdAt))

	span.RecordError(cause)
	span.SetStatus(codes.Error, cause.Error())
	log.Error().
		Add(logging.Status(res.Status)).
		Add(logging.Iteration(res.Iterations)).
		Add(logging.ErrorField(cause)).
		Msg("run failed")
	return res, cause
}

func (l *ControlLoop) result(r *runState) *Result {
	mc := r.interp.Context()
	return &Result{
		RunID:      r.id,
		Agent:      l.profile.Name,
		Status:     r.interp.Status(),
		Iterations: mc.Iteration,
		Finish:     mc.Finish,
		History:    agent.CloneHistory(r.history),
		Actions:    r.ledger.Actions(),
		State:      r.state.Clone(),
		Ledger:     r.ledger,
		Err:        mc.Err,
	}
}

func (l *ControlLoop) checkpoint(r *runState) *run.Checkpoint {
	mc := r.interp.Context()
	cp := &run.Checkpoint{
		RunID:     r.id,
		Agent:     l.profile.Name,
		Task:      r.task.Prompt,
		Status:    r.interp.Status(),
		Iteration: mc.Iteration,
		History:   agent.CloneHistory(r.history),
		Actions:   r.ledger.Actions(),
		State:     r.state.Clone(),
		Finish:    mc.Finish,
		CreatedAt: r.createdAt,
		UpdatedAt: time.Now(),
	}
	if mc.Err != nil {
		cp.Error = mc.Err.Error()
	}
	return cp
}

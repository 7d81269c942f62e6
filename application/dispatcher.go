package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/repoagent/domain/agent"
	"github.com/felixgeelhaar/repoagent/domain/cache"
	"github.com/felixgeelhaar/repoagent/domain/ledger"
	"github.com/felixgeelhaar/repoagent/domain/tool"
	"github.com/felixgeelhaar/repoagent/infrastructure/logging"
	"github.com/felixgeelhaar/repoagent/infrastructure/observability"
	"github.com/felixgeelhaar/repoagent/infrastructure/resilience"
)

// Dispatch failure messages fed back to the model.
const (
	msgNoAction      = "No tool name provided."
	msgUnknownAction = "Tool %s not found."
)

// RepositoryView pins the repository a run observes. Pin returns a context
// whose reads resolve against one snapshot, and that snapshot's revision.
type RepositoryView interface {
	Pin(ctx context.Context) (context.Context, string)
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	Registry *tool.Registry
	Executor *resilience.Executor

	// Cache stores observations of cacheable specs. Optional.
	Cache    cache.Cache
	CacheTTL time.Duration

	Logger    *logging.Logger
	Telemetry *observability.Provider
}

// Dispatcher resolves a decision's action, runs it and turns whatever
// happens into an observation. Dispatch never fails.
type Dispatcher struct {
	registry    *tool.Registry
	executor    *resilience.Executor
	cache       cache.Cache
	cacheTTL    time.Duration
	logger      *logging.Logger
	tracer      trace.Tracer
	instruments *observability.Instruments
}

// NewDispatcher creates a dispatcher. The registry is frozen.
func NewDispatcher(config DispatcherConfig) (*Dispatcher, error) {
	if config.Registry == nil {
		return nil, errors.New("registry is required")
	}
	config.Registry.Freeze()

	if config.Executor == nil {
		config.Executor = resilience.NewDefaultExecutor()
	}
	if config.Logger == nil {
		config.Logger = logging.Nop()
	}
	if config.Telemetry == nil {
		config.Telemetry = observability.Nop()
	}

	return &Dispatcher{
		registry:    config.Registry,
		executor:    config.Executor,
		cache:       config.Cache,
		cacheTTL:    config.CacheTTL,
		logger:      config.Logger.With(logging.Component("dispatcher")),
		tracer:      config.Telemetry.Tracer(),
		instruments: config.Telemetry.Instruments(),
	}, nil
}

// Registry returns the dispatcher's registry.
func (d *Dispatcher) Registry() *tool.Registry {
	return d.registry
}

// DispatchRequest carries the loop context of one dispatch.
type DispatchRequest struct {
	RunID     string
	Iteration int
	State     agent.State
	Ledger    *ledger.Ledger

	// Revision identifies the repository snapshot the run is pinned to.
	// Cached observations are keyed by it.
	Revision string
}

// Outcome is the result of one dispatch.
type Outcome struct {
	Observation agent.Observation

	// Terminal is true iff the dispatched spec ends the run.
	Terminal bool

	// Finish holds the decision's raw argument object when Terminal.
	Finish json.RawMessage

	// Delta is the state change requested by a successful capability.
	Delta agent.Delta

	// Cached is true when the observation came from the cache.
	Cached bool

	Duration time.Duration
}

// Dispatch runs the decision's action.
func (d *Dispatcher) Dispatch(ctx context.Context, req DispatchRequest, decision agent.Decision) Outcome {
	args := decision.ArgsOrEmpty()
	if req.Ledger != nil {
		req.Ledger.RecordAction(req.Iteration, decision.Action, args)
	}

	ctx, span := d.tracer.Start(ctx, "dispatch", trace.WithAttributes(
		attribute.String("action", decision.Action),
		attribute.Int("iteration", req.Iteration),
	))
	defer span.End()

	start := time.Now()
	out := d.dispatch(ctx, req, decision, args)
	out.Duration = time.Since(start)

	if req.Ledger != nil {
		req.Ledger.RecordObservation(req.Iteration, ledger.ObservationDetails{
			Action:   decision.Action,
			Success:  out.Observation.Success,
			Terminal: out.Terminal,
			Cached:   out.Cached,
			Duration: out.Duration,
		})
	}

	span.SetAttributes(
		attribute.Bool("success", out.Observation.Success),
		attribute.Bool("terminal", out.Terminal),
		attribute.Bool("cached", out.Cached),
	)
	if !out.Observation.Success {
		span.SetStatus(codes.Error, out.Observation.ResponseText())
	}
	d.instruments.Dispatch(ctx, decision.Action, out.Observation.Success, out.Cached, out.Duration)

	d.logger.Debug().
		Add(logging.RunID(req.RunID)).
		Add(logging.Iteration(req.Iteration)).
		Add(logging.ToolName(decision.Action)).
		Add(logging.Success(out.Observation.Success)).
		Add(logging.Cached(out.Cached)).
		Add(logging.Duration(out.Duration)).
		Msg("action dispatched")

	return out
}

func (d *Dispatcher) dispatch(ctx context.Context, req DispatchRequest, decision agent.Decision, args json.RawMessage) Outcome {
	if !decision.HasAction() {
		return Outcome{Observation: agent.Failed(msgNoAction)}
	}

	spec, ok := d.registry.Resolve(decision.Action)
	if !ok {
		return Outcome{Observation: agent.Failed(fmt.Sprintf(msgUnknownAction, decision.Action))}
	}

	out := Outcome{Terminal: spec.IsTerminal()}
	if out.Terminal {
		out.Finish = append(json.RawMessage(nil), args...)
	}

	prepared, err := spec.Prepare(args)
	if err != nil {
		out.Observation = agent.FailedErr(err)
		return out
	}

	key := d.cacheKey(spec, prepared, req.Revision)
	if key != "" {
		if obs, hit := d.lookup(ctx, key); hit {
			out.Observation = obs
			out.Cached = true
			return out
		}
	}

	result, err := d.executor.Execute(ctx, spec, tool.Call{
		Args:      prepared,
		State:     req.State.Clone(),
		RunID:     req.RunID,
		Iteration: req.Iteration,
	})
	if err != nil {
		d.logger.Warn().
			Add(logging.RunID(req.RunID)).
			Add(logging.ToolName(spec.Name())).
			Add(logging.ErrorField(err)).
			Msg("action failed")
		out.Observation = agent.FailedErr(err)
		return out
	}

	out.Observation = result.Observation()
	if result.Success {
		out.Delta = result.Delta
	}
	if key != "" && result.Success && result.Delta == nil {
		d.store(ctx, key, out.Observation)
	}
	return out
}

type cachedObservation struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
}

func (d *Dispatcher) cacheKey(spec *tool.Spec, args json.RawMessage, revision string) string {
	if d.cache == nil || !spec.Annotations().Cacheable {
		return ""
	}
	// args come out of Prepare re-marshaled from a map, so keys are sorted.
	return cache.Key(spec.Name(), args, revision)
}

func (d *Dispatcher) lookup(ctx context.Context, key string) (agent.Observation, bool) {
	data, ok, err := d.cache.Get(ctx, key)
	if err != nil {
		d.logger.Warn().Add(logging.Str("key", key)).Add(logging.ErrorField(err)).Msg("cache get failed")
		return agent.Observation{}, false
	}
	if !ok {
		return agent.Observation{}, false
	}
	var cached cachedObservation
	if err := json.Unmarshal(data, &cached); err != nil {
		return agent.Observation{}, false
	}
	return agent.Observation{Success: cached.Success, Response: cached.Response}, true
}

func (d *Dispatcher) store(ctx context.Context, key string, obs agent.Observation) {
	data, err := json.Marshal(cachedObservation{Success: obs.Success, Response: obs.ResponseText()})
	if err != nil {
		return
	}
	if err := d.cache.Set(ctx, key, data, cache.SetOptions{TTL: d.cacheTTL}); err != nil {
		d.logger.Warn().Add(logging.Str("key", key)).Add(logging.ErrorField(err)).Msg("cache set failed")
	}
}

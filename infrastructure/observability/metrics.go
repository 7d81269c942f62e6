package observability

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/felixgeelhaar/repoagent/domain/agent"
)

// Instruments are the metric instruments of the agent runtime. A nil
// *Instruments records nothing.
type Instruments struct {
	runs           metric.Int64Counter
	iterations     metric.Int64Counter
	modelAttempts  metric.Int64Counter
	dispatches     metric.Int64Counter
	tokens         metric.Int64Counter
	runDuration    metric.Float64Histogram
	modelDuration  metric.Float64Histogram
	actionDuration metric.Float64Histogram
	activeRuns     metric.Int64UpDownCounter
}

// NewInstruments creates every instrument on meter.
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	i := &Instruments{}
	var err error

	if i.runs, err = meter.Int64Counter("repoagent.runs",
		metric.WithDescription("Completed runs by agent and final status"),
		metric.WithUnit("{run}")); err != nil {
		return nil, err
	}
	if i.iterations, err = meter.Int64Counter("repoagent.loop.iterations",
		metric.WithDescription("Loop iterations"),
		metric.WithUnit("{iteration}")); err != nil {
		return nil, err
	}
	if i.modelAttempts, err = meter.Int64Counter("repoagent.model.attempts",
		metric.WithDescription("Model call tries, including retried ones"),
		metric.WithUnit("{attempt}")); err != nil {
		return nil, err
	}
	if i.dispatches, err = meter.Int64Counter("repoagent.dispatch.actions",
		metric.WithDescription("Dispatched actions"),
		metric.WithUnit("{action}")); err != nil {
		return nil, err
	}
	if i.tokens, err = meter.Int64Counter("repoagent.model.tokens",
		metric.WithDescription("Tokens reported by the model provider"),
		metric.WithUnit("{token}")); err != nil {
		return nil, err
	}
	if i.runDuration, err = meter.Float64Histogram("repoagent.run.duration",
		metric.WithDescription("Run duration"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if i.modelDuration, err = meter.Float64Histogram("repoagent.model.duration",
		metric.WithDescription("Duration of one model call try"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if i.actionDuration, err = meter.Float64Histogram("repoagent.dispatch.duration",
		metric.WithDescription("Action execution duration"),
		metric.WithUnit("ms")); err != nil {
		return nil, err
	}
	if i.activeRuns, err = meter.Int64UpDownCounter("repoagent.runs.active",
		metric.WithDescription("Runs in progress"),
		metric.WithUnit("{run}")); err != nil {
		return nil, err
	}

	return i, nil
}

// RunStarted increments the active run gauge.
func (i *Instruments) RunStarted(ctx context.Context, agentName string) {
	if i == nil {
		return
	}
	i.activeRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("agent", agentName)))
}

// RunEnded records a finished or failed run.
func (i *Instruments) RunEnded(ctx context.Context, agentName string, status agent.Status, iterations int, d time.Duration) {
	if i == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("agent", agentName),
		attribute.String("status", status.String()),
	)
	i.activeRuns.Add(ctx, -1, metric.WithAttributes(attribute.String("agent", agentName)))
	i.runs.Add(ctx, 1, attrs)
	i.iterations.Add(ctx, int64(iterations), metric.WithAttributes(attribute.String("agent", agentName)))
	i.runDuration.Record(ctx, msec(d), attrs)
}

// ModelAttempt records one try of a model call.
func (i *Instruments) ModelAttempt(ctx context.Context, agentName string, err error, d time.Duration) {
	if i == nil {
		return
	}
	result := "ok"
	switch {
	case err == nil:
	case isDecode(err):
		result = "decode_error"
	default:
		result = "transport_error"
	}
	attrs := metric.WithAttributes(
		attribute.String("agent", agentName),
		attribute.String("result", result),
	)
	i.modelAttempts.Add(ctx, 1, attrs)
	i.modelDuration.Record(ctx, msec(d), attrs)
}

// Tokens records provider token usage.
func (i *Instruments) Tokens(ctx context.Context, agentName string, u agent.TokenUsage) {
	if i == nil {
		return
	}
	i.tokens.Add(ctx, int64(u.PromptTokens), metric.WithAttributes(
		attribute.String("agent", agentName), attribute.String("kind", "prompt")))
	i.tokens.Add(ctx, int64(u.CompletionTokens), metric.WithAttributes(
		attribute.String("agent", agentName), attribute.String("kind", "completion")))
}

// Dispatch records one dispatched action.
func (i *Instruments) Dispatch(ctx context.Context, action string, success, cached bool, d time.Duration) {
	if i == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("action", action),
		attribute.Bool("success", success),
		attribute.Bool("cached", cached),
	)
	i.dispatches.Add(ctx, 1, attrs)
	i.actionDuration.Record(ctx, msec(d), attrs)
}

func msec(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func isDecode(err error) bool {
	return errors.Is(err, agent.ErrDecode)
}

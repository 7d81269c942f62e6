package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/felixgeelhaar/repoagent/domain/agent"
	"github.com/felixgeelhaar/repoagent/infrastructure/llm"
	"github.com/felixgeelhaar/repoagent/infrastructure/logging"
	"github.com/felixgeelhaar/repoagent/infrastructure/observability"
	"github.com/felixgeelhaar/repoagent/infrastructure/repo"
	"github.com/felixgeelhaar/repoagent/infrastructure/resilience"
)

// Names of the single-call agents, as logged and measured.
const (
	RewriterAgent  = "rewriter"
	CollectorAgent = "collector"
)

const rewriteSystemPrompt = "You are a helpful coding assistant."

// AskerConfig configures an Asker.
type AskerConfig struct {
	Model  ChatModel
	Reader *repo.Reader

	// Decoder decodes replies. Defaults to a strict parser.
	Decoder *llm.Parser

	Retry resilience.RetryConfig

	// ListDepth is the depth of the overview a rewrite is framed with.
	ListDepth int

	Logger    *logging.Logger
	Telemetry *observability.Provider
}

// Asker makes single structured model calls: the rewrite of a feature
// request into an exploration request, and the context collector. Every
// call retries transport and decode failures under one budget.
type Asker struct {
	model       ChatModel
	reader      *repo.Reader
	decoder     *llm.Parser
	retry       resilience.RetryConfig
	depth       int
	logger      *logging.Logger
	tracer      trace.Tracer
	instruments *observability.Instruments
}

// NewAsker creates an Asker.
func NewAsker(config AskerConfig) (*Asker, error) {
	if config.Model == nil {
		return nil, errors.New("model is required")
	}
	if config.Reader == nil {
		return nil, errors.New("reader is required")
	}
	if config.Decoder == nil {
		config.Decoder = llm.NewParser()
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
	return &Asker{
		model:       config.Model,
		reader:      config.Reader,
		decoder:     config.Decoder,
		retry:       config.Retry,
		depth:       config.ListDepth,
		logger:      config.Logger,
		tracer:      config.Telemetry.Tracer(),
		instruments: config.Telemetry.Instruments(),
	}, nil
}

// Rewrite is an exploration request derived from a feature request.
type Rewrite struct {
	Thought           string `json:"thought"`
	ExplorationPrompt string `json:"exploration_prompt"`
}

// RewriteRequest turns a feature request into a request to explore how
// comparable features are built, framed with an overview of dir.
func (a *Asker) RewriteRequest(ctx context.Context, request, dir string) (Rewrite, error) {
	overview, err := Overview(ctx, a.reader, dir, a.depth)
	if err != nil {
		return Rewrite{}, err
	}
	prompt, err := render("rewrite.tmpl", promptData{RepoMap: overview, Request: request})
	if err != nil {
		return Rewrite{}, err
	}
	messages := []agent.Message{agent.SystemMessage(rewriteSystemPrompt), agent.UserMessage(prompt)}
	return ask(ctx, a, RewriterAgent, messages, func(r Rewrite) error {
		if strings.TrimSpace(r.ExplorationPrompt) == "" {
			return errors.New(`reply lacks "exploration_prompt"`)
		}
		return nil
	})
}

// ContextSelection is the collector's pick of what a feature touches.
type ContextSelection struct {
	Thought             string   `json:"thought"`
	Explanation         string   `json:"explanation"`
	RelevantFiles       []string `json:"relevant_files"`
	RelevantDirectories []string `json:"relevant_directories"`
}

// ExplorationContext converts the selection into the context a planner
// works from.
func (s ContextSelection) ExplorationContext() agent.ExplorationContext {
	c := agent.ExplorationContext{
		Explanation:   s.Explanation,
		RelevantFiles: append([]string(nil), s.RelevantFiles...),
	}
	for _, d := range s.RelevantDirectories {
		c.SimilarFeatureDirs = append(c.SimilarFeatureDirs, agent.SimilarFeatureDir{Directory: d})
	}
	return c
}

// CollectContext shows the model every file under dir once and returns the
// files and directories it picks for the feature.
func (a *Asker) CollectContext(ctx context.Context, request, dir string) (ContextSelection, error) {
	files, err := Overview(ctx, a.reader, dir, repo.UnlimitedDepth)
	if err != nil {
		return ContextSelection{}, err
	}
	prompt, err := render("collector.tmpl", promptData{RepoMap: files, Request: request})
	if err != nil {
		return ContextSelection{}, err
	}
	// The collector has no system prompt of its own.
	return ask[ContextSelection](ctx, a, CollectorAgent, []agent.Message{agent.UserMessage(prompt)}, nil)
}

// ask makes one model call and decodes its reply into T. check rejects
// decoded replies that are unusable; its errors count as decode failures.
func ask[T any](ctx context.Context, a *Asker, name string, messages []agent.Message, check func(T) error) (T, error) {
	log := a.logger.With(logging.Agent(name))

	cfg := a.retry
	onRetry := cfg.OnRetry
	cfg.OnRetry = func(b resilience.RetryBudget, err error) {
		log.Warn().
			Add(logging.Attempt(b.Made, b.Allowed)).
			Add(logging.ErrorField(err)).
			Msg("model call failed, retrying")
		if onRetry != nil {
			onRetry(b, err)
		}
	}

	out, err := resilience.NewRetryPolicy[T](cfg).Invoke(ctx, func(ctx context.Context, b resilience.RetryBudget) (T, error) {
		var out T
		ctx, span := a.tracer.Start(ctx, "model.call", trace.WithAttributes(
			attribute.String("agent", name),
			attribute.Int("attempt", b.Made),
		))
		defer span.End()

		start := time.Now()
		reply, err := a.model.Chat(ctx, messages)
		if err == nil {
			a.instruments.Tokens(ctx, name, reply.Usage)
			err = a.decoder.Decode(reply.Content, &out)
			if err == nil && check != nil {
				if cerr := check(out); cerr != nil {
					err = &agent.DecodeError{Raw: reply.Content, Err: cerr}
				}
			}
		}
		a.instruments.ModelAttempt(ctx, name, err, time.Since(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			var zero T
			return zero, err
		}
		return out, nil
	})
	if err != nil {
		log.Error().Add(logging.ErrorField(err)).Msg("model call gave up")
		return out, fmt.Errorf("%s: %w", name, err)
	}
	log.Debug().Msg("model call answered")
	return out, nil
}

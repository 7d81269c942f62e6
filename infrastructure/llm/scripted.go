package llm

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/repoagent/domain/agent"
)

// ScriptStep is one canned model reply.
type ScriptStep struct {
	// Content is returned as the reply text when Err is nil.
	Content string

	// Err, when set, is returned instead of a reply.
	Err error

	// Usage is reported with the reply.
	Usage agent.TokenUsage
}

// Reply returns a step answering with content.
func ReplyStep(content string) ScriptStep {
	return ScriptStep{Content: content}
}

// ErrorStep returns a step failing with err.
func ErrorStep(err error) ScriptStep {
	return ScriptStep{Err: err}
}

// ScriptedProvider replays a fixed sequence of replies for deterministic runs.
type ScriptedProvider struct {
	mu         sync.Mutex
	steps      []ScriptStep
	index      int
	repeatLast bool
	requests   []Request
}

// NewScriptedProvider creates a scripted provider with the given steps.
func NewScriptedProvider(steps ...ScriptStep) *ScriptedProvider {
	return &ScriptedProvider{steps: steps}
}

// NewScriptedProviderFromTexts creates a scripted provider from reply texts.
func NewScriptedProviderFromTexts(texts ...string) *ScriptedProvider {
	steps := make([]ScriptStep, len(texts))
	for i, text := range texts {
		steps[i] = ReplyStep(text)
	}
	return NewScriptedProvider(steps...)
}

// RepeatLast makes the provider answer with its final step forever once the
// script is exhausted.
func (p *ScriptedProvider) RepeatLast() *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.repeatLast = true
	return p
}

// Name returns the provider name.
func (p *ScriptedProvider) Name() string {
	return "scripted"
}

// Complete implements Provider.
func (p *ScriptedProvider) Complete(ctx context.Context, req Request) (Reply, error) {
	if err := ctx.Err(); err != nil {
		return Reply{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, Request{
		Model:       req.Model,
		Messages:    agent.CloneHistory(req.Messages),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		JSONMode:    req.JSONMode,
	})

	if len(p.steps) == 0 {
		return Reply{}, ErrScriptEnded
	}

	i := p.index
	if i >= len(p.steps) {
		if !p.repeatLast {
			return Reply{}, ErrScriptEnded
		}
		i = len(p.steps) - 1
	} else {
		p.index++
	}

	step := p.steps[i]
	if step.Err != nil {
		return Reply{}, step.Err
	}
	usage := step.Usage
	usage.Calls = 1
	return Reply{Content: step.Content, Model: "scripted", Usage: usage}, nil
}

// Requests returns copies of every request received so far.
func (p *ScriptedProvider) Requests() []Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Request, len(p.requests))
	copy(out, p.requests)
	return out
}

// Calls returns how many requests were received.
func (p *ScriptedProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

// Reset rewinds the script and forgets recorded requests.
func (p *ScriptedProvider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.index = 0
	p.requests = nil
}

// IsComplete returns true if every step has been consumed.
func (p *ScriptedProvider) IsComplete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.index >= len(p.steps)
}

package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/repoagent/domain/agent"
	"github.com/felixgeelhaar/repoagent/domain/config"
)

type blockingProvider struct{}

func (blockingProvider) Name() string { return "blocking" }

func (blockingProvider) Complete(ctx context.Context, _ Request) (Reply, error) {
	<-ctx.Done()
	return Reply{}, ctx.Err()
}

func TestClient_Chat(t *testing.T) {
	t.Parallel()

	p := NewScriptedProviderFromTexts(`{"thought":"t"}`)
	c := NewClient(p, ClientConfig{Model: "m", Temperature: 0.5, MaxTokens: 99}, nil)

	reply, err := c.Chat(context.Background(), testHistory)
	if err != nil {
		t.Fatalf("Chat() error = %v", err)
	}
	if reply.Content != `{"thought":"t"}` {
		t.Errorf("Content = %s", reply.Content)
	}

	req := p.Requests()[0]
	if req.Model != "m" || req.Temperature != 0.5 || req.MaxTokens != 99 {
		t.Errorf("Request = %+v", req)
	}
	if c.Provider() != "scripted" {
		t.Errorf("Provider() = %s", c.Provider())
	}
	if c.BreakerState() != "disabled" {
		t.Errorf("BreakerState() = %s, want disabled", c.BreakerState())
	}
}

func TestClient_WrapsFailuresAsTransport(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		provider Provider
		config   ClientConfig
		cause    error
	}{
		{"provider error", NewScriptedProvider(ErrorStep(errors.New("503"))), ClientConfig{}, nil},
		{"empty reply", NewScriptedProviderFromTexts(""), ClientConfig{}, ErrEmptyReply},
		{"timeout", blockingProvider{}, ClientConfig{Timeout: 10 * time.Millisecond}, context.DeadlineExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewClient(tt.provider, tt.config, nil).Chat(context.Background(), testHistory)
			var te *agent.TransportError
			if !errors.As(err, &te) {
				t.Fatalf("Chat() error = %v, want *agent.TransportError", err)
			}
			if te.Provider != tt.provider.Name() {
				t.Errorf("Provider = %s, want %s", te.Provider, tt.provider.Name())
			}
			if tt.cause != nil && !errors.Is(err, tt.cause) {
				t.Errorf("Chat() error = %v, want cause %v", err, tt.cause)
			}
		})
	}
}

func TestClient_RateLimit(t *testing.T) {
	t.Parallel()

	p := NewScriptedProviderFromTexts("a").RepeatLast()
	c := NewClient(p, ClientConfig{RateLimit: &RateLimitConfig{Rate: 1, Burst: 1}}, nil)

	if _, err := c.Chat(context.Background(), testHistory); err != nil {
		t.Fatalf("first Chat() error = %v", err)
	}
	_, err := c.Chat(context.Background(), testHistory)
	if !errors.Is(err, ErrRateLimited) || !errors.Is(err, agent.ErrTransport) {
		t.Errorf("second Chat() error = %v, want rate limited transport error", err)
	}
	if p.Calls() != 1 {
		t.Errorf("provider calls = %d, want 1", p.Calls())
	}
}

func TestClient_BreakerOpens(t *testing.T) {
	t.Parallel()

	p := NewScriptedProvider(ErrorStep(errors.New("down"))).RepeatLast()
	c := NewClient(p, ClientConfig{Breaker: &BreakerConfig{Threshold: 2, Timeout: time.Minute}}, nil)

	for i := 0; i < 4; i++ {
		if _, err := c.Chat(context.Background(), testHistory); !errors.Is(err, agent.ErrTransport) {
			t.Fatalf("Chat() error = %v, want transport error", err)
		}
	}
	if p.Calls() != 2 {
		t.Errorf("provider calls = %d, want 2 before the breaker opened", p.Calls())
	}
	if c.BreakerState() == "disabled" || c.BreakerState() == "closed" {
		t.Errorf("BreakerState() = %s, want open", c.BreakerState())
	}
}

func TestNewClientFromConfig(t *testing.T) {
	t.Parallel()

	cfg := config.ModelConfig{
		Provider:       "scripted",
		Responses:      []string{`{"thought":"t"}`},
		RateLimit:      config.RateLimitConfig{Enabled: true, Rate: 10},
		CircuitBreaker: config.CircuitBreakerConfig{Enabled: true, Threshold: 3},
	}
	c, err := NewClientFromConfig(cfg, nil)
	if err != nil {
		t.Fatalf("NewClientFromConfig() error = %v", err)
	}
	if c.BreakerState() == "disabled" {
		t.Error("breaker not configured")
	}
	for i := 0; i < 2; i++ {
		if _, err := c.Chat(context.Background(), testHistory); err != nil {
			t.Fatalf("Chat() error = %v", err)
		}
	}

	if _, err := NewClientFromConfig(config.ModelConfig{Provider: "nope"}, nil); !errors.Is(err, ErrUnknownVendor) {
		t.Errorf("NewClientFromConfig() error = %v, want ErrUnknownVendor", err)
	}
}

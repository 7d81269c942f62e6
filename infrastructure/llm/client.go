package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/ratelimit"

	"github.com/felixgeelhaar/repoagent/domain/agent"
	"github.com/felixgeelhaar/repoagent/infrastructure/logging"
)

const rateLimitKey = "model"

// ClientConfig configures a Client.
type ClientConfig struct {
	Model       string
	Temperature float64
	MaxTokens   int
	JSONMode    bool

	// Timeout bounds a single model call. Zero means no extra bound.
	Timeout time.Duration

	// RateLimit, when non-nil, throttles requests with a token bucket.
	RateLimit *RateLimitConfig

	// Breaker, when non-nil, stops calling a failing vendor for a while.
	Breaker *BreakerConfig
}

// RateLimitConfig configures the request token bucket.
type RateLimitConfig struct {
	Rate  int // requests per second
	Burst int
}

// BreakerConfig configures the transport circuit breaker.
type BreakerConfig struct {
	Threshold int           // consecutive failures that open the breaker
	Timeout   time.Duration // how long the breaker stays open
}

// Client is the model boundary of the control loop. Every failure it
// returns is an *agent.TransportError so the retry policy can treat it as
// transient.
type Client struct {
	provider Provider
	config   ClientConfig
	limiter  ratelimit.RateLimiter
	breaker  circuitbreaker.CircuitBreaker[Reply]
	logger   *logging.Logger
}

// NewClient wraps provider with timeouts, rate limiting and a breaker.
func NewClient(provider Provider, config ClientConfig, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Nop()
	}
	c := &Client{
		provider: provider,
		config:   config,
		logger:   logger.With(logging.Component("llm"), logging.Str("provider", provider.Name())),
	}

	if rl := config.RateLimit; rl != nil && rl.Rate > 0 {
		burst := rl.Burst
		if burst <= 0 {
			burst = rl.Rate
		}
		c.limiter = ratelimit.New(&ratelimit.Config{
			Rate:  rl.Rate,
			Burst: burst,
		})
	}

	if br := config.Breaker; br != nil && br.Threshold > 0 {
		timeout := br.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		threshold := br.Threshold
		c.breaker = circuitbreaker.New[Reply](circuitbreaker.Config{
			MaxRequests: 1,
			Interval:    timeout,
			Timeout:     timeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(threshold) // #nosec G115 -- threshold is validated
			},
		})
	}

	return c
}

// Provider returns the provider name.
func (c *Client) Provider() string {
	return c.provider.Name()
}

// BreakerState returns the breaker state, or "disabled".
func (c *Client) BreakerState() string {
	if c.breaker == nil {
		return "disabled"
	}
	return c.breaker.State().String()
}

// Chat sends the history to the model and returns its reply.
func (c *Client) Chat(ctx context.Context, messages []agent.Message) (Reply, error) {
	if c.limiter != nil && !c.limiter.Allow(ctx, rateLimitKey) {
		return Reply{}, c.transportErr(ErrRateLimited)
	}

	req := Request{
		Model:       c.config.Model,
		Messages:    messages,
		Temperature: c.config.Temperature,
		MaxTokens:   c.config.MaxTokens,
		JSONMode:    c.config.JSONMode,
	}

	start := time.Now()
	reply, err := c.call(ctx, req)
	if err != nil {
		c.logger.Warn().
			Add(logging.Duration(time.Since(start))).
			Add(logging.ErrorField(err)).
			Msg("model call failed")
		return Reply{}, c.transportErr(err)
	}

	c.logger.Debug().
		Add(logging.Duration(time.Since(start))).
		Add(logging.Tokens(reply.Usage)).
		Msg("model call completed")
	return reply, nil
}

func (c *Client) call(ctx context.Context, req Request) (Reply, error) {
	if c.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.Timeout)
		defer cancel()
	}

	complete := func(ctx context.Context) (Reply, error) {
		reply, err := c.provider.Complete(ctx, req)
		if err != nil {
			return Reply{}, err
		}
		if reply.Content == "" {
			return Reply{}, ErrEmptyReply
		}
		return reply, nil
	}

	if c.breaker == nil {
		return complete(ctx)
	}
	return c.breaker.Execute(ctx, complete)
}

func (c *Client) transportErr(err error) error {
	var te *agent.TransportError
	if errors.As(err, &te) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		err = fmt.Errorf("timeout: %w", err)
	}
	return &agent.TransportError{Provider: c.provider.Name(), Err: err}
}

// Package llm provides model providers, the resilient chat client used by the
// control loop and the parser that turns model text into decisions.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/felixgeelhaar/repoagent/domain/agent"
)

// Provider sends one chat completion to a model vendor.
type Provider interface {
	// Complete sends a chat completion request and returns the reply.
	Complete(ctx context.Context, req Request) (Reply, error)

	// Name returns the provider name for logging.
	Name() string
}

// Request is a single chat completion request.
type Request struct {
	Model       string
	Messages    []agent.Message
	Temperature float64
	MaxTokens   int
	JSONMode    bool // ask for a JSON object reply where the vendor supports it
}

// Reply is the text a model returned together with its token usage.
type Reply struct {
	Content string
	Model   string
	Usage   agent.TokenUsage
	Raw     json.RawMessage
}

// Provider errors.
var (
	ErrEmptyReply    = errors.New("model returned no content")
	ErrRateLimited   = errors.New("model rate limit exceeded")
	ErrNoMessages    = errors.New("messages list cannot be empty")
	ErrScriptEnded   = errors.New("scripted provider has no more responses")
	ErrUnknownVendor = errors.New("unknown model provider")
)

// APIError is a non-2xx answer from a vendor endpoint.
type APIError struct {
	Provider   string
	StatusCode int
	Type       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("%s error (status %d): %s: %s", e.Provider, e.StatusCode, e.Type, e.Message)
	}
	return fmt.Sprintf("%s error (status %d): %s", e.Provider, e.StatusCode, e.Message)
}

// vendorError builds an APIError from an error body without echoing large
// or sensitive payloads back into logs.
func vendorError(provider string, status int, body []byte) *APIError {
	var parsed struct {
		Error *struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		} `json:"error"`
	}
	apiErr := &APIError{Provider: provider, StatusCode: status}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil {
		apiErr.Type = parsed.Error.Type
		apiErr.Message = parsed.Error.Message
		return apiErr
	}
	apiErr.Message = truncate(string(body), 200)
	return apiErr
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}

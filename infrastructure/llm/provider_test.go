package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/repoagent/domain/agent"
	"github.com/felixgeelhaar/repoagent/domain/config"
)

var testHistory = []agent.Message{
	agent.SystemMessage("you explore repositories"),
	agent.UserMessage("find the entry point"),
}

func TestNewOpenAIProvider(t *testing.T) {
	t.Parallel()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "k", Model: "gpt-4o"})
	if p.baseURL != "https://api.openai.com" {
		t.Errorf("baseURL = %s, want https://api.openai.com", p.baseURL)
	}
	if p.client.Timeout != 120*time.Second {
		t.Errorf("Timeout = %v, want 120s", p.client.Timeout)
	}
	if p.Name() != "openai" {
		t.Errorf("Name() = %s, want openai", p.Name())
	}

	custom := NewOpenAIProvider(OpenAIConfig{BaseURL: "http://localhost:8080/", Timeout: time.Second})
	if custom.baseURL != "http://localhost:8080" {
		t.Errorf("baseURL = %s, want trailing slash trimmed", custom.baseURL)
	}
}

func TestOpenAIProvider_Complete(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("Path = %s, want /v1/chat/completions", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}

		var req openAIChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Model != "gpt-4o" {
			t.Errorf("Model = %s, want gpt-4o", req.Model)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("Messages = %+v", req.Messages)
		}
		if req.ResponseFormat == nil || req.ResponseFormat.Type != "json_object" {
			t.Errorf("ResponseFormat = %+v, want json_object", req.ResponseFormat)
		}

		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"model": "gpt-4o",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "{\"thought\":\"t\"}"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 12, "completion_tokens": 5}
		}`))
	}))
	defer server.Close()

	p := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL, Model: "gpt-4o"})
	reply, err := p.Complete(context.Background(), Request{Messages: testHistory, JSONMode: true})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if reply.Content != `{"thought":"t"}` {
		t.Errorf("Content = %s", reply.Content)
	}
	if reply.Usage.PromptTokens != 12 || reply.Usage.CompletionTokens != 5 || reply.Usage.Calls != 1 {
		t.Errorf("Usage = %+v", reply.Usage)
	}
	if len(reply.Raw) == 0 {
		t.Error("Raw is empty")
	}
}

func TestOpenAIProvider_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		wantAPI bool
	}{
		{"api error", http.StatusTooManyRequests, `{"error":{"type":"rate_limit","message":"slow down"}}`, nil, true},
		{"plain error", http.StatusBadGateway, `upstream gone`, nil, true},
		{"no choices", http.StatusOK, `{"choices":[]}`, ErrEmptyReply, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			p := NewOpenAIProvider(OpenAIConfig{BaseURL: server.URL})
			_, err := p.Complete(context.Background(), Request{Messages: testHistory})
			if err == nil {
				t.Fatal("Complete() error = nil")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Complete() error = %v, want %v", err, tt.wantErr)
			}
			var apiErr *APIError
			if tt.wantAPI {
				if !errors.As(err, &apiErr) {
					t.Fatalf("Complete() error = %T, want *APIError", err)
				}
				if apiErr.StatusCode != tt.status {
					t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, tt.status)
				}
			}
		})
	}

	if _, err := NewOpenAIProvider(OpenAIConfig{}).Complete(context.Background(), Request{}); !errors.Is(err, ErrNoMessages) {
		t.Errorf("Complete() without messages error = %v, want ErrNoMessages", err)
	}
}

func TestAnthropicProvider_Complete(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("Path = %s, want /v1/messages", r.URL.Path)
		}
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("x-api-key = %q", r.Header.Get("x-api-key"))
		}
		if r.Header.Get("anthropic-version") != anthropicVersion {
			t.Errorf("anthropic-version = %q", r.Header.Get("anthropic-version"))
		}

		var req anthropicRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.System != "you explore repositories" {
			t.Errorf("System = %q", req.System)
		}
		if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
			t.Errorf("Messages = %+v", req.Messages)
		}
		if req.MaxTokens != 1024 {
			t.Errorf("MaxTokens = %d, want 1024", req.MaxTokens)
		}

		_, _ = w.Write([]byte(`{
			"id": "msg_1",
			"role": "assistant",
			"model": "claude",
			"content": [{"type": "text", "text": "{\"thought\":"}, {"type": "text", "text": "\"t\"}"}],
			"usage": {"input_tokens": 20, "output_tokens": 4}
		}`))
	}))
	defer server.Close()

	p := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key", BaseURL: server.URL})
	reply, err := p.Complete(context.Background(), Request{Messages: testHistory})
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if reply.Content != `{"thought":"t"}` {
		t.Errorf("Content = %s", reply.Content)
	}
	if reply.Usage.PromptTokens != 20 || reply.Usage.CompletionTokens != 4 {
		t.Errorf("Usage = %+v", reply.Usage)
	}
}

func TestAnthropicProvider_Error(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	}))
	defer server.Close()

	_, err := NewAnthropicProvider(AnthropicConfig{BaseURL: server.URL}).Complete(context.Background(), Request{Messages: testHistory})
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("Complete() error = %v, want *APIError", err)
	}
	if apiErr.Type != "overloaded_error" || !strings.Contains(apiErr.Error(), "Overloaded") {
		t.Errorf("APIError = %v", apiErr)
	}
}

func TestNewProvider(t *testing.T) {
	t.Parallel()

	tests := []struct {
		provider string
		want     string
		wantErr  bool
	}{
		{"openai", "openai", false},
		{"anthropic", "anthropic", false},
		{"scripted", "scripted", false},
		{"cohere", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			t.Parallel()
			p, err := NewProvider(config.ModelConfig{Provider: tt.provider})
			if tt.wantErr {
				if !errors.Is(err, ErrUnknownVendor) {
					t.Errorf("NewProvider() error = %v, want ErrUnknownVendor", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewProvider() error = %v", err)
			}
			if p.Name() != tt.want {
				t.Errorf("Name() = %s, want %s", p.Name(), tt.want)
			}
		})
	}
}

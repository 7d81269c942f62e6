package application

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/repoagent/domain/agent"
	"github.com/felixgeelhaar/repoagent/domain/cache"
	"github.com/felixgeelhaar/repoagent/domain/run"
	"github.com/felixgeelhaar/repoagent/domain/tool"
	"github.com/felixgeelhaar/repoagent/infrastructure/llm"
	"github.com/felixgeelhaar/repoagent/infrastructure/resilience"
)

const (
	listFilesReply = `{"thought": "look around", "tool": "list_files", "tool_args": {"directory": "."}}`
	finishReply    = `{"thought": "all done", "tool": "finish", "tool_args": {"success": true, "response": "done"}}`
)

func listFilesSpec() *tool.Spec {
	type args struct {
		Directory string `json:"directory,omitempty"`
	}
	return tool.For("list_files", func(_ context.Context, _ tool.Call, _ args) (tool.Result, error) {
		return tool.OK("- [File]: main.go"), nil
	}).ReadOnly().MustBuild()
}

func testProfile(t *testing.T, specs ...*tool.Spec) Profile {
	t.Helper()
	reg, err := tool.NewRegistry(specs...)
	if err != nil {
		t.Fatalf("NewRegistry() error = %v", err)
	}
	return Profile{
		Name:     "tester",
		Registry: reg,
		Frame: func(_ context.Context, task Task, _ *tool.Registry) ([]agent.Message, error) {
			return []agent.Message{agent.SystemMessage("system"), agent.UserMessage(task.Prompt)}, nil
		},
	}
}

func newTestLoop(t *testing.T, provider llm.Provider, profile Profile, opts ...Option) *ControlLoop {
	t.Helper()
	base := []Option{
		WithProfile(profile),
		WithModel(llm.NewClient(provider, llm.ClientConfig{}, nil)),
		WithParser(llm.NewParser()),
		WithRetry(resilience.RetryConfig{MaxAttempts: 3}),
		WithMaxIterations(10),
	}
	loop, err := New(append(base, opts...)...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return loop
}

func roles(history []agent.Message) []agent.Role {
	out := make([]agent.Role, len(history))
	for i, m := range history {
		out[i] = m.Role
	}
	return out
}

func assertNoConsecutiveAssistant(t *testing.T, history []agent.Message) {
	t.Helper()
	for i := 1; i < len(history); i++ {
		if history[i].Role == agent.RoleAssistant && history[i-1].Role == agent.RoleAssistant {
			t.Errorf("consecutive assistant messages at %d", i)
		}
	}
}

// memStore is a run.Store that can be told to fail.
type memStore struct {
	mu    sync.Mutex
	saved map[string]*run.Checkpoint
	saves int
	fails int
}

func newMemStore() *memStore {
	return &memStore{saved: make(map[string]*run.Checkpoint)}
}

func (s *memStore) Save(_ context.Context, cp *run.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	if s.fails > 0 {
		s.fails--
		return errors.New("disk full")
	}
	s.saved[cp.RunID] = cp
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*run.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.saved[id]
	if !ok {
		return nil, run.ErrRunNotFound
	}
	return cp, nil
}

func (s *memStore) List(context.Context, run.ListFilter) ([]*run.Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*run.Checkpoint, 0, len(s.saved))
	for _, cp := range s.saved {
		out = append(out, cp)
	}
	return out, nil
}

func (s *memStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.saved, id)
	return nil
}

func (s *memStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

// memCache is a map-backed cache.Cache.
type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{entries: make(map[string][]byte)}
}

func (c *memCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *memCache) Set(_ context.Context, key string, value []byte, _ cache.SetOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	return nil
}

func (c *memCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
	return nil
}

func (c *memCache) Exists(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[key]
	return ok, nil
}

func (c *memCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string][]byte)
	return nil
}

// blockingModel blocks in Chat until released.
type blockingModel struct {
	entered chan struct{}
	release chan struct{}
}

func (m *blockingModel) Chat(ctx context.Context, _ []agent.Message) (llm.Reply, error) {
	select {
	case m.entered <- struct{}{}:
	default:
	}
	select {
	case <-m.release:
		return llm.Reply{Content: finishReply}, nil
	case <-ctx.Done():
		return llm.Reply{}, ctx.Err()
	case <-time.After(5 * time.Second):
		return llm.Reply{}, errors.New("never released")
	}
}

func newFinishProvider() *llm.ScriptedProvider {
	return llm.NewScriptedProviderFromTexts(finishReply)
}

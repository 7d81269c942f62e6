package llm

import (
	"context"
	"errors"
	"testing"

	"github.com/felixgeelhaar/repoagent/domain/agent"
)

func TestScriptedProvider(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	p := NewScriptedProvider(ReplyStep("one"), ErrorStep(boom), ReplyStep("three"))
	if p.Name() != "scripted" {
		t.Errorf("Name() = %s, want scripted", p.Name())
	}

	req := Request{Messages: []agent.Message{agent.UserMessage("hi")}}
	ctx := context.Background()

	r, err := p.Complete(ctx, req)
	if err != nil || r.Content != "one" {
		t.Fatalf("Complete() = %+v, %v", r, err)
	}
	if r.Usage.Calls != 1 {
		t.Errorf("Usage.Calls = %d, want 1", r.Usage.Calls)
	}
	if _, err := p.Complete(ctx, req); !errors.Is(err, boom) {
		t.Fatalf("Complete() error = %v, want boom", err)
	}
	if r, _ := p.Complete(ctx, req); r.Content != "three" {
		t.Fatalf("Content = %q, want three", r.Content)
	}
	if !p.IsComplete() {
		t.Error("IsComplete() = false")
	}
	if _, err := p.Complete(ctx, req); !errors.Is(err, ErrScriptEnded) {
		t.Errorf("Complete() past end error = %v, want ErrScriptEnded", err)
	}
	if p.Calls() != 4 {
		t.Errorf("Calls() = %d, want 4", p.Calls())
	}

	p.Reset()
	if p.Calls() != 0 || p.IsComplete() {
		t.Error("Reset() did not rewind")
	}
}

func TestScriptedProvider_RepeatLast(t *testing.T) {
	t.Parallel()

	p := NewScriptedProviderFromTexts("a", "b").RepeatLast()
	ctx := context.Background()
	var got []string
	for i := 0; i < 4; i++ {
		r, err := p.Complete(ctx, Request{})
		if err != nil {
			t.Fatal(err)
		}
		got = append(got, r.Content)
	}
	want := []string{"a", "b", "b", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("reply %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestScriptedProvider_RecordsHistoryCopies(t *testing.T) {
	t.Parallel()

	p := NewScriptedProviderFromTexts("ok")
	history := []agent.Message{agent.SystemMessage("sys")}
	if _, err := p.Complete(context.Background(), Request{Messages: history}); err != nil {
		t.Fatal(err)
	}
	history[0].Content = "mutated"

	reqs := p.Requests()
	if len(reqs) != 1 || reqs[0].Messages[0].Content != "sys" {
		t.Errorf("Requests() = %+v", reqs)
	}
}

func TestScriptedProvider_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewScriptedProviderFromTexts("x").Complete(ctx, Request{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Complete() error = %v, want context.Canceled", err)
	}
}

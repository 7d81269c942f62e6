package application

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/felixgeelhaar/repoagent/domain/agent"
	"github.com/felixgeelhaar/repoagent/domain/ledger"
	"github.com/felixgeelhaar/repoagent/domain/tool"
	"github.com/felixgeelhaar/repoagent/infrastructure/llm"
	"github.com/felixgeelhaar/repoagent/infrastructure/observability"
	"github.com/felixgeelhaar/repoagent/infrastructure/resilience"
)

func TestControlLoop_ListFilesThenFinish(t *testing.T) {
	t.Parallel()

	provider := llm.NewScriptedProviderFromTexts(listFilesReply, finishReply)
	loop := newTestLoop(t, provider, testProfile(t, listFilesSpec()))

	res, err := loop.Run(context.Background(), Task{Prompt: "find the entry point"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	args, err := res.FinishArgs()
	if err != nil {
		t.Fatalf("FinishArgs() error = %v", err)
	}
	if args != (tool.FinishArgs{Success: true, Response: "done"}) {
		t.Errorf("FinishArgs() = %+v, want {true done}", args)
	}
	if res.Status != agent.StatusFinished {
		t.Errorf("Status = %v, want finished", res.Status)
	}
	if len(res.Actions) != 2 {
		t.Errorf("len(Actions) = %d, want 2", len(res.Actions))
	}
	if res.Actions[0].Action != "list_files" || res.Actions[1].Action != tool.FinishName {
		t.Errorf("Actions = %+v", res.Actions)
	}
	if len(res.History) != 2+4 {
		t.Fatalf("len(History) = %d, want 6", len(res.History))
	}

	wantRoles := []agent.Role{
		agent.RoleSystem, agent.RoleUser,
		agent.RoleAssistant, agent.RoleUser,
		agent.RoleAssistant, agent.RoleUser,
	}
	for i, r := range roles(res.History) {
		if r != wantRoles[i] {
			t.Errorf("History[%d].Role = %v, want %v", i, r, wantRoles[i])
		}
	}
	if res.History[2].Content != listFilesReply {
		t.Errorf("assistant turn = %q, want the raw reply", res.History[2].Content)
	}
	if want := "## Observation\nStatus: True\nResponse: - [File]: main.go"; res.History[3].Content != want {
		t.Errorf("observation = %q, want %q", res.History[3].Content, want)
	}
	if res.Iterations != 2 {
		t.Errorf("Iterations = %d, want 2", res.Iterations)
	}
	if res.State.Usage.Calls != 2 {
		t.Errorf("Usage.Calls = %d, want 2", res.State.Usage.Calls)
	}
	if res.Err != nil {
		t.Errorf("Err = %v", res.Err)
	}
	assertNoConsecutiveAssistant(t, res.History)
}

func TestControlLoop_AlwaysMalformed(t *testing.T) {
	t.Parallel()

	provider := llm.NewScriptedProviderFromTexts("I think we should look at main.go").RepeatLast()
	loop := newTestLoop(t, provider, testProfile(t, listFilesSpec()))

	res, err := loop.Run(context.Background(), Task{Prompt: "explore"})

	var exhausted *agent.RetryBudgetExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Run() error = %v, want RetryBudgetExhaustedError", err)
	}
	if exhausted.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", exhausted.Attempts)
	}
	if !errors.Is(err, agent.ErrDecode) {
		t.Errorf("error %v does not wrap the decode failure", err)
	}
	if provider.Calls() != 3 {
		t.Errorf("model calls = %d, want 3", provider.Calls())
	}
	if res == nil {
		t.Fatal("Run() returned no partial result")
	}
	if res.Status != agent.StatusFailed {
		t.Errorf("Status = %v, want failed", res.Status)
	}
	for i, m := range res.History {
		if m.Role == agent.RoleAssistant {
			t.Errorf("History[%d] is an assistant message", i)
		}
	}
	if len(res.History) != 2 {
		t.Errorf("len(History) = %d, want 2", len(res.History))
	}
	if len(res.Actions) != 0 {
		t.Errorf("Actions = %+v, want none", res.Actions)
	}
	if retries := res.Ledger.EntriesByType(ledger.EntryRetry); len(retries) != 2 {
		t.Errorf("retry entries = %d, want 2", len(retries))
	}
	if failed := res.Ledger.EntriesByType(ledger.EntryRunFailed); len(failed) != 1 {
		t.Errorf("run_failed entries = %d, want 1", len(failed))
	}
}

func TestControlLoop_DispatchFailuresBecomeObservations(t *testing.T) {
	t.Parallel()

	broken := tool.NewBuilder("broken").
		WithCapability(tool.CapabilityFunc(func(context.Context, tool.Call) (tool.Result, error) {
			return tool.Result{}, errors.New("permission denied")
		})).
		MustBuild()

	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{
			name:  "unknown action",
			reply: `{"thought": "x", "tool": "delete_repo", "tool_args": {}}`,
			want:  "## Observation\nStatus: False\nResponse: Tool delete_repo not found.",
		},
		{
			name:  "no action",
			reply: `{"thought": "hmm"}`,
			want:  "## Observation\nStatus: False\nResponse: No tool name provided.",
		},
		{
			name:  "capability error",
			reply: `{"thought": "x", "tool": "broken", "tool_args": {}}`,
			want:  "## Observation\nStatus: False\nResponse: permission denied",
		},
		{
			name:  "invalid arguments",
			reply: `{"thought": "x", "tool": "list_files", "tool_args": {"directory": 7}}`,
			want:  "## Observation\nStatus: False\nResponse: invalid tool arguments",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			provider := llm.NewScriptedProviderFromTexts(tt.reply, finishReply)
			loop := newTestLoop(t, provider, testProfile(t, listFilesSpec(), broken))

			res, err := loop.Run(context.Background(), Task{Prompt: "go"})
			if err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if !strings.HasPrefix(res.History[3].Content, tt.want) {
				t.Errorf("observation = %q, want prefix %q", res.History[3].Content, tt.want)
			}
			if len(res.Actions) != 2 {
				t.Errorf("len(Actions) = %d, want 2", len(res.Actions))
			}
			if len(res.History) != 6 {
				t.Errorf("len(History) = %d, want 6", len(res.History))
			}
		})
	}
}

func TestControlLoop_MaxIterations(t *testing.T) {
	t.Parallel()

	provider := llm.NewScriptedProviderFromTexts(listFilesReply).RepeatLast()
	loop := newTestLoop(t, provider, testProfile(t, listFilesSpec()), WithMaxIterations(3))

	res, err := loop.Run(context.Background(), Task{Prompt: "loop forever"})

	var maxErr *agent.MaxIterationsReachedError
	if !errors.As(err, &maxErr) {
		t.Fatalf("Run() error = %v, want MaxIterationsReachedError", err)
	}
	if maxErr.Iterations != 3 {
		t.Errorf("Iterations = %d, want 3", maxErr.Iterations)
	}
	if res.Status != agent.StatusFailed {
		t.Errorf("Status = %v, want failed", res.Status)
	}
	if len(res.History) != 2+6 {
		t.Errorf("len(History) = %d, want 8", len(res.History))
	}
	if len(res.Actions) != 3 {
		t.Errorf("len(Actions) = %d, want 3", len(res.Actions))
	}
	assertNoConsecutiveAssistant(t, res.History)
}

func TestControlLoop_TransientFailuresShareOneBudget(t *testing.T) {
	t.Parallel()

	provider := llm.NewScriptedProvider(
		llm.ErrorStep(errors.New("503 service unavailable")),
		llm.ReplyStep("not json at all"),
		llm.ReplyStep(finishReply),
	)
	loop := newTestLoop(t, provider, testProfile(t))

	res, err := loop.Run(context.Background(), Task{Prompt: "finish"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if provider.Calls() != 3 {
		t.Errorf("model calls = %d, want 3", provider.Calls())
	}
	if len(res.History) != 4 {
		t.Errorf("len(History) = %d, want 4", len(res.History))
	}
	retries := res.Ledger.EntriesByType(ledger.EntryRetry)
	if len(retries) != 2 {
		t.Fatalf("retry entries = %d, want 2", len(retries))
	}
	var first ledger.RetryDetails
	if err := retries[0].DecodeDetails(&first); err != nil {
		t.Fatal(err)
	}
	if first.Attempt != 1 || first.MaxAttempts != 3 || !strings.Contains(first.Error, "503") {
		t.Errorf("first retry = %+v", first)
	}
}

func TestControlLoop_BudgetResetsEachIteration(t *testing.T) {
	t.Parallel()

	provider := llm.NewScriptedProviderFromTexts(
		"garbage", "garbage", listFilesReply,
		"garbage", "garbage", finishReply,
	)
	loop := newTestLoop(t, provider, testProfile(t, listFilesSpec()))

	if _, err := loop.Run(context.Background(), Task{Prompt: "go"}); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if provider.Calls() != 6 {
		t.Errorf("model calls = %d, want 6", provider.Calls())
	}
}

func TestControlLoop_RefreshMessage(t *testing.T) {
	t.Parallel()

	profile := testProfile(t, listFilesSpec())
	refreshes := 0
	profile.Refresh = func(agent.State) (string, bool) {
		refreshes++
		return "## Current Plan: \n[]", true
	}
	provider := llm.NewScriptedProviderFromTexts("garbage", listFilesReply, finishReply)
	loop := newTestLoop(t, provider, profile)

	res, err := loop.Run(context.Background(), Task{Prompt: "plan"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if refreshes != 2 {
		t.Errorf("refreshes = %d, want 2", refreshes)
	}

	for i, req := range provider.Requests() {
		last := req.Messages[len(req.Messages)-1]
		if last.Content != "## Current Plan: \n[]" {
			t.Errorf("request %d last message = %q, want the refresh message", i, last.Content)
		}
	}
	for _, m := range res.History {
		if strings.HasPrefix(m.Content, "## Current Plan") {
			t.Error("refresh message left in the history")
		}
	}
	if len(res.History) != 6 {
		t.Errorf("len(History) = %d, want 6", len(res.History))
	}
}

func TestControlLoop_AppliesDeltas(t *testing.T) {
	t.Parallel()

	type planArgs struct {
		Files []string `json:"files"`
	}
	plan := tool.For("plan", func(_ context.Context, _ tool.Call, a planArgs) (tool.Result, error) {
		return tool.OK("Plan updated successfully.").WithDelta(agent.ReplacePlan{Plan: []agent.Task{
			{Step: 1, TaskDescription: "edit", Update: a.Files},
		}}), nil
	}).UpdatesState().MustBuild()

	provider := llm.NewScriptedProviderFromTexts(
		`{"thought": "plan", "tool": "plan", "tool_args": {"files": ["a.go"]}}`,
		`{"thought": "bad plan", "tool": "plan", "tool_args": {"files": []}}`,
		finishReply,
	)
	loop := newTestLoop(t, provider, testProfile(t, plan))

	res, err := loop.Run(context.Background(), Task{Prompt: "plan"})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(res.State.Plan) != 1 || res.State.Plan[0].Update[0] != "a.go" {
		t.Errorf("Plan = %+v, want the first plan kept", res.State.Plan)
	}
	if !strings.HasPrefix(res.History[3].Content, "## Observation\nStatus: True") {
		t.Errorf("first observation = %q", res.History[3].Content)
	}
	if !strings.HasPrefix(res.History[5].Content, "## Observation\nStatus: False") {
		t.Errorf("rejected delta observation = %q", res.History[5].Content)
	}
	applied := res.Ledger.EntriesByType(ledger.EntryStateApplied)
	if len(applied) != 2 {
		t.Fatalf("state entries = %d, want 2", len(applied))
	}
	var rejected ledger.StateDetails
	if err := applied[1].DecodeDetails(&rejected); err != nil {
		t.Fatal(err)
	}
	if rejected.Error == "" {
		t.Error("rejected delta recorded without an error")
	}
}

func TestControlLoop_Busy(t *testing.T) {
	t.Parallel()

	model := &blockingModel{entered: make(chan struct{}, 1), release: make(chan struct{})}
	loop, err := New(WithProfile(testProfile(t)), WithModel(model), WithRetry(resilience.RetryConfig{MaxAttempts: 1}))
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	var firstErr error
	go func() {
		defer wg.Done()
		_, firstErr = loop.Run(context.Background(), Task{Prompt: "first"})
	}()

	select {
	case <-model.entered:
	case <-time.After(5 * time.Second):
		t.Fatal("first run never reached the model")
	}

	if _, err := loop.Run(context.Background(), Task{Prompt: "second"}); !errors.Is(err, agent.ErrLoopBusy) {
		t.Errorf("concurrent Run() error = %v, want ErrLoopBusy", err)
	}

	close(model.release)
	wg.Wait()
	if firstErr != nil {
		t.Fatalf("first Run() error = %v", firstErr)
	}

	model.release = make(chan struct{})
	close(model.release)
	if _, err := loop.Run(context.Background(), Task{Prompt: "third"}); err != nil {
		t.Errorf("Run() after completion error = %v", err)
	}
}

func TestControlLoop_StateIsResetBetweenRuns(t *testing.T) {
	t.Parallel()

	provider := llm.NewScriptedProviderFromTexts(listFilesReply, finishReply, finishReply)
	loop := newTestLoop(t, provider, testProfile(t, listFilesSpec()))

	first, err := loop.Run(context.Background(), Task{Prompt: "one"})
	if err != nil {
		t.Fatal(err)
	}
	second, err := loop.Run(context.Background(), Task{Prompt: "two"})
	if err != nil {
		t.Fatal(err)
	}
	if first.RunID == second.RunID {
		t.Error("runs share an id")
	}
	if len(second.History) != 4 || len(second.Actions) != 1 {
		t.Errorf("second run history = %d, actions = %d, want 4 and 1", len(second.History), len(second.Actions))
	}
	if second.History[1].Content != "two" {
		t.Errorf("second run task = %q", second.History[1].Content)
	}
}

func TestControlLoop_Cancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	provider := llm.NewScriptedProviderFromTexts(finishReply)
	loop := newTestLoop(t, provider, testProfile(t))

	res, err := loop.Run(ctx, Task{Prompt: "never"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if res.Status != agent.StatusFailed {
		t.Errorf("Status = %v, want failed", res.Status)
	}
	if provider.Calls() != 0 {
		t.Errorf("model calls = %d, want 0", provider.Calls())
	}
}

func TestControlLoop_Checkpoints(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	sink := NewCheckpointSink(store, CheckpointConfig{}, nil)
	provider := llm.NewScriptedProviderFromTexts(listFilesReply, listFilesReply, finishReply)
	loop := newTestLoop(t, provider, testProfile(t, listFilesSpec()), WithCheckpoints(sink, 1))

	res, err := loop.Run(context.Background(), Task{Prompt: "persist"})
	if err != nil {
		t.Fatal(err)
	}
	if store.count() != 3 {
		t.Errorf("saves = %d, want 3", store.count())
	}
	cp, err := store.Get(context.Background(), res.RunID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if cp.Status != agent.StatusFinished || cp.Agent != "tester" || cp.Task != "persist" {
		t.Errorf("checkpoint = %+v", cp)
	}
	if len(cp.History) != len(res.History) || len(cp.Actions) != 3 || len(cp.Finish) == 0 {
		t.Errorf("checkpoint history = %d, actions = %d, finish = %s", len(cp.History), len(cp.Actions), cp.Finish)
	}
}

func TestControlLoop_CheckpointsFailedRun(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	sink := NewCheckpointSink(store, CheckpointConfig{}, nil)
	provider := llm.NewScriptedProviderFromTexts("garbage").RepeatLast()
	loop := newTestLoop(t, provider, testProfile(t), WithCheckpoints(sink, 0))

	res, err := loop.Run(context.Background(), Task{Prompt: "fail"})
	if err == nil {
		t.Fatal("Run() succeeded")
	}
	cp, gerr := store.Get(context.Background(), res.RunID)
	if gerr != nil {
		t.Fatalf("Get() error = %v", gerr)
	}
	if cp.Status != agent.StatusFailed || !strings.Contains(cp.Error, "retry budget exhausted") {
		t.Errorf("checkpoint = %+v", cp)
	}
}

func TestControlLoop_Telemetry(t *testing.T) {
	t.Parallel()

	recorder := tracetest.NewSpanRecorder()
	telemetry, err := observability.New(observability.WithSpanProcessor(recorder))
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = telemetry.Shutdown(context.Background()) }()

	provider := llm.NewScriptedProviderFromTexts(listFilesReply, finishReply)
	loop := newTestLoop(t, provider, testProfile(t, listFilesSpec()), WithTelemetry(telemetry))
	if _, err := loop.Run(context.Background(), Task{Prompt: "trace"}); err != nil {
		t.Fatal(err)
	}

	counts := make(map[string]int)
	for _, s := range recorder.Ended() {
		counts[s.Name()]++
	}
	want := map[string]int{"loop.run": 1, "loop.iteration": 2, "model.call": 2, "dispatch": 2}
	for name, n := range want {
		if counts[name] != n {
			t.Errorf("%s spans = %d, want %d", name, counts[name], n)
		}
	}
}

func TestNewControlLoop_Validation(t *testing.T) {
	t.Parallel()

	model := llm.NewClient(llm.NewScriptedProviderFromTexts(finishReply), llm.ClientConfig{}, nil)
	profile := testProfile(t)

	tests := []struct {
		name string
		opts []Option
	}{
		{"no profile", []Option{WithModel(model)}},
		{"no model", []Option{WithProfile(profile)}},
		{"no frame", []Option{WithModel(model), WithProfile(Profile{Name: "x", Registry: profile.Registry})}},
	}
	for _, tt := range tests {
		if _, err := New(tt.opts...); err == nil {
			t.Errorf("%s: New() succeeded", tt.name)
		}
	}

	loop, err := New(WithProfile(profile), WithModel(model))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if loop.Name() != "tester" {
		t.Errorf("Name() = %s", loop.Name())
	}
	if !profile.Registry.Frozen() {
		t.Error("registry not frozen")
	}
}

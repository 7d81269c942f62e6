package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadBatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := []struct {
		name    string
		content string
		wantErr string
		check   func(t *testing.T, ids, agents []string)
	}{
		{
			name:    "yaml with defaults",
			content: "jobs:\n  - task:\n      prompt: where is the cart?\n  - id: plan\n    agent: planner\n    task:\n      prompt: add coupons\n      directory: cart\n",
			check: func(t *testing.T, ids, agents []string) {
				if strings.Join(ids, ",") != "job-1,plan" {
					t.Errorf("ids = %v", ids)
				}
				if strings.Join(agents, ",") != "explorer,planner" {
					t.Errorf("agents = %v", agents)
				}
			},
		},
		{
			name:    "json document",
			content: `{"jobs": [{"id": "a", "agent": "explorer", "task": {"prompt": "x"}}]}`,
			check: func(t *testing.T, ids, _ []string) {
				if len(ids) != 1 || ids[0] != "a" {
					t.Errorf("ids = %v", ids)
				}
			},
		},
		{name: "empty", content: "jobs: []\n", wantErr: "no jobs"},
		{name: "duplicate", content: "jobs:\n  - id: a\n    task: {prompt: x}\n  - id: a\n    task: {prompt: y}\n", wantErr: "duplicate job id"},
		{name: "no prompt", content: "jobs:\n  - id: a\n", wantErr: "has no prompt"},
		{name: "broken", content: "jobs: [", wantErr: "parse batch file"},
	}

	for i, tt := range tests {
		path := filepath.Join(dir, tt.name+".yaml")
		if err := os.WriteFile(path, []byte(tt.content), 0o644); err != nil {
			t.Fatal(err)
		}
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			jobs, err := loadBatch(path)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Errorf("case %d: loadBatch() error = %v, want %q", i, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("loadBatch() error = %v", err)
			}
			var ids, agents []string
			for _, j := range jobs {
				ids = append(ids, j.ID)
				agents = append(agents, j.Agent)
			}
			tt.check(t, ids, agents)
		})
	}
}

func TestApp_Batch(t *testing.T) {
	t.Parallel()

	cfgPath, _ := testConfig(t, testRepo(t), "pool:\n  concurrency: 2\n", finishReply)
	batch := filepath.Join(t.TempDir(), "jobs.yaml")
	content := "jobs:\n  - id: one\n    task:\n      prompt: first\n  - id: two\n    agent: planner\n    task:\n      prompt: second\n  - id: three\n    agent: reviewer\n    task:\n      prompt: third\n"
	if err := os.WriteFile(batch, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	out, _, err := execute(t, "batch", batch, "-c", cfgPath)
	if err == nil || !strings.Contains(err.Error(), "1 of 3 jobs failed") {
		t.Fatalf("batch error = %v, want one failed job", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("batch output = %q", out)
	}
	if !strings.HasPrefix(lines[0], "one") || !strings.HasSuffix(lines[0], "ok") {
		t.Errorf("line 1 = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "two") || !strings.HasSuffix(lines[1], "ok") {
		t.Errorf("line 2 = %q", lines[1])
	}
	if !strings.Contains(lines[2], "FAILED: unknown agent") {
		t.Errorf("line 3 = %q", lines[2])
	}

	out, _, err = execute(t, "runs", "list", "-c", cfgPath)
	if err != nil {
		t.Fatalf("runs list failed: %v", err)
	}
	if n := len(strings.Split(strings.TrimSpace(out), "\n")); n != 2 {
		t.Errorf("runs list shows %d runs, want 2:\n%s", n, out)
	}
}

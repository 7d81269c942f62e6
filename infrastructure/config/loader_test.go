package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	domainconfig "github.com/felixgeelhaar/repoagent/domain/config"
)

const yamlConfig = `
name: explorer
version: "1"
model:
  provider: scripted
  responses:
    - '{"thought": "done", "tool": "finish", "tool_args": {"success": true, "response": "ok"}}'
loop:
  max_iterations: 12
  max_attempts: 3
  initial_backoff: 250ms
tools:
  read_window: 80
  list_depth: 2
repository:
  root: ./testdata
  ignore:
    - "*.pb.go"
cache:
  driver: badger
storage:
  driver: sqlite
  dsn: file:runs.db
`

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoader_LoadFile_YAML(t *testing.T) {
	t.Parallel()

	cfg, err := NewLoader().LoadFile(writeFile(t, "agent.yaml", yamlConfig))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}

	if cfg.Name != "explorer" {
		t.Errorf("Name = %s, want explorer", cfg.Name)
	}
	if cfg.Loop.MaxIterations != 12 {
		t.Errorf("MaxIterations = %d, want 12", cfg.Loop.MaxIterations)
	}
	if cfg.Loop.InitialBackoff.Duration() != 250*time.Millisecond {
		t.Errorf("InitialBackoff = %v, want 250ms", cfg.Loop.InitialBackoff.Duration())
	}
	if cfg.Tools.ReadWindow != 80 || cfg.Tools.ListDepth != 2 {
		t.Errorf("Tools = %+v", cfg.Tools)
	}
	if len(cfg.Repository.Ignore) != 1 || cfg.Repository.Ignore[0] != "*.pb.go" {
		t.Errorf("Ignore = %v", cfg.Repository.Ignore)
	}
	if cfg.Cache.Driver != "badger" || cfg.Storage.DSN != "file:runs.db" {
		t.Errorf("backends = %+v / %+v", cfg.Cache, cfg.Storage)
	}
	if len(cfg.Model.Responses) != 1 {
		t.Errorf("Responses = %d, want 1", len(cfg.Model.Responses))
	}
}

func TestLoader_AppliesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := NewLoader().LoadString("name: a\nversion: \"1\"\nmodel:\n  provider: openai\n", FormatYAML)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	want := domainconfig.Default()
	if cfg.Loop.MaxIterations != want.Loop.MaxIterations {
		t.Errorf("MaxIterations = %d, want %d", cfg.Loop.MaxIterations, want.Loop.MaxIterations)
	}
	if cfg.Storage.Driver != "file" || cfg.Storage.Dir != "saved_states" {
		t.Errorf("Storage = %+v", cfg.Storage)
	}
	if cfg.Repository.Root != "." {
		t.Errorf("Root = %q, want .", cfg.Repository.Root)
	}
}

func TestLoader_LoadFile_JSON(t *testing.T) {
	t.Parallel()

	content := `{
  "name": "planner",
  "version": "1",
  "model": {"provider": "anthropic", "model": "claude", "timeout": "45s"},
  "loop": {"lenient_json": true, "checkpoint_every": 5}
}`
	cfg, err := NewLoader().LoadFile(writeFile(t, "agent.json", content))
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if cfg.Model.Provider != "anthropic" || cfg.Model.Timeout.Duration() != 45*time.Second {
		t.Errorf("Model = %+v", cfg.Model)
	}
	if !cfg.Loop.LenientJSON || cfg.Loop.CheckpointEvery != 5 {
		t.Errorf("Loop = %+v", cfg.Loop)
	}
}

func TestLoader_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := []struct {
		name    string
		path    string
		wantErr error
	}{
		{"not found", filepath.Join(dir, "missing.yaml"), domainconfig.ErrConfigNotFound},
		{"directory", dir, domainconfig.ErrInvalidFormat},
		{"unsupported", writeFile(t, "agent.toml", "name = 'x'"), domainconfig.ErrUnsupportedFormat},
		{"invalid yaml", writeFile(t, "bad.yaml", "name: [unclosed"), domainconfig.ErrInvalidFormat},
		{"invalid json", writeFile(t, "bad.json", "{"), domainconfig.ErrInvalidFormat},
		{"unknown json field", writeFile(t, "extra.json", `{"name":"a","version":"1","model":{"provider":"openai"},"agent":{}}`), domainconfig.ErrInvalidFormat},
		{"validation", writeFile(t, "invalid.yaml", "name: a\nversion: \"1\"\nmodel:\n  provider: cohere\n"), domainconfig.ErrValidationFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := NewLoader().LoadFile(tt.path)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("LoadFile() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoader_ValidationDisabled(t *testing.T) {
	t.Parallel()

	l := NewLoaderWithOptions(WithValidation(false))
	cfg, err := l.LoadString("model:\n  provider: cohere\n", FormatYAML)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	if cfg.Model.Provider != "cohere" {
		t.Errorf("Provider = %s, want cohere", cfg.Model.Provider)
	}
}

func TestLoader_EnvExpansion(t *testing.T) {
	t.Setenv("REPOAGENT_TEST_API_KEY", "sk-test")

	content := "name: a\nversion: \"1\"\nmodel:\n  provider: openai\n  api_key: ${REPOAGENT_TEST_API_KEY}\n  model: ${REPOAGENT_TEST_MODEL:-gpt-4o-mini}\n"

	cfg, err := NewLoader().LoadString(content, FormatYAML)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	if cfg.Model.APIKey != "sk-test" {
		t.Errorf("APIKey = %q, want sk-test", cfg.Model.APIKey)
	}
	if cfg.Model.Model != "gpt-4o-mini" {
		t.Errorf("Model = %q, want gpt-4o-mini", cfg.Model.Model)
	}

	raw, err := NewLoaderWithOptions(WithEnvExpansion(false)).LoadString(content, FormatYAML)
	if err != nil {
		t.Fatalf("LoadString() error = %v", err)
	}
	if raw.Model.APIKey != "${REPOAGENT_TEST_API_KEY}" {
		t.Errorf("APIKey = %q, want the literal reference", raw.Model.APIKey)
	}
}

func TestLoader_StrictEnv(t *testing.T) {
	t.Parallel()

	content := "name: a\nversion: \"1\"\nmodel:\n  provider: openai\n  api_key: ${REPOAGENT_TEST_NEVER_SET}\n"
	_, err := NewLoaderWithOptions(WithStrictEnv(true)).LoadString(content, FormatYAML)
	if !errors.Is(err, domainconfig.ErrMissingEnvVar) {
		t.Errorf("LoadString() error = %v, want ErrMissingEnvVar", err)
	}
}

func TestFormatFromPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		path string
		want Format
		ok   bool
	}{
		{"a.yaml", FormatYAML, true},
		{"a.YML", FormatYAML, true},
		{"dir/a.json", FormatJSON, true},
		{"a.toml", "", false},
		{"noext", "", false},
	}
	for _, tt := range tests {
		got, err := FormatFromPath(tt.path)
		if (err == nil) != tt.ok || got != tt.want {
			t.Errorf("FormatFromPath(%q) = %q, %v", tt.path, got, err)
		}
	}
}

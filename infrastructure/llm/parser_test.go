package llm

import (
	"errors"
	"testing"

	"github.com/felixgeelhaar/repoagent/domain/agent"
)

func TestParser_Parse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		raw        string
		wantAction string
		wantArgs   string
		wantErr    error
	}{
		{
			name:       "full decision",
			raw:        `{"thought":"look around","tool":"list_files","tool_args":{"directory":"."}}`,
			wantAction: "list_files",
			wantArgs:   `{"directory":"."}`,
		},
		{
			name:     "no action",
			raw:      `{"thought":"thinking"}`,
			wantArgs: `{}`,
		},
		{
			name:       "null args",
			raw:        `{"thought":"t","tool":"finish","tool_args":null}`,
			wantAction: "finish",
			wantArgs:   `{}`,
		},
		{
			name:       "unknown fields tolerated",
			raw:        `{"thought":"t","tool":"finish","tool_args":{},"mood":"great"}`,
			wantAction: "finish",
			wantArgs:   `{}`,
		},
		{
			name:       "json fence",
			raw:        "```json\n{\"thought\":\"t\",\"tool\":\"read_file\"}\n```",
			wantAction: "read_file",
			wantArgs:   `{}`,
		},
		{
			name:       "bare fence",
			raw:        "```\n{\"thought\":\"t\",\"tool\":\"read_file\"}\n```",
			wantAction: "read_file",
			wantArgs:   `{}`,
		},
		{
			name:       "single line fence",
			raw:        "```json{\"thought\":\"t\",\"tool\":\"read_file\"}```",
			wantAction: "read_file",
			wantArgs:   `{}`,
		},
		{name: "prose", raw: "I will list the files now.", wantErr: ErrNotObject},
		{name: "array", raw: `[{"thought":"t"}]`, wantErr: ErrNotObject},
		{name: "truncated", raw: `{"thought":"t","tool":"list_fi`, wantErr: ErrNotObject},
		{name: "missing thought", raw: `{"tool":"finish"}`, wantErr: ErrMissingThought},
		{name: "null thought", raw: `{"thought":null}`, wantErr: ErrMissingThought},
		{name: "numeric thought", raw: `{"thought":3}`, wantErr: ErrInvalidField},
		{name: "numeric tool", raw: `{"thought":"t","tool":7}`, wantErr: ErrInvalidField},
		{name: "string args", raw: `{"thought":"t","tool":"x","tool_args":"a=b"}`, wantErr: ErrArgsNotAnObject},
		{name: "array args", raw: `{"thought":"t","tool":"x","tool_args":[1]}`, wantErr: ErrArgsNotAnObject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			d, err := Parse(tt.raw)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Parse() error = %v, want %v", err, tt.wantErr)
				}
				var de *agent.DecodeError
				if !errors.As(err, &de) {
					t.Fatalf("Parse() error type = %T, want *agent.DecodeError", err)
				}
				if de.Raw != tt.raw {
					t.Errorf("DecodeError.Raw = %q, want %q", de.Raw, tt.raw)
				}
				if !errors.Is(err, agent.ErrDecode) {
					t.Error("errors.Is(err, agent.ErrDecode) = false")
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if d.Action != tt.wantAction {
				t.Errorf("Action = %q, want %q", d.Action, tt.wantAction)
			}
			if string(d.Args) != tt.wantArgs {
				t.Errorf("Args = %s, want %s", d.Args, tt.wantArgs)
			}
			if d.Raw != tt.raw {
				t.Errorf("Raw = %q, want %q", d.Raw, tt.raw)
			}
		})
	}
}

func TestParser_Lenient(t *testing.T) {
	t.Parallel()

	broken := `{"thought": "trailing comma", "tool": "finish", "tool_args": {"success": true,},}`

	if _, err := NewParser().Parse(broken); !errors.Is(err, agent.ErrDecode) {
		t.Fatalf("strict Parse() error = %v, want decode error", err)
	}

	d, err := NewParser(WithLenientJSON(true)).Parse(broken)
	if err != nil {
		t.Fatalf("lenient Parse() error = %v", err)
	}
	if d.Action != "finish" {
		t.Errorf("Action = %q, want finish", d.Action)
	}
	if d.Raw != broken {
		t.Errorf("Raw = %q, want original text", d.Raw)
	}

	if _, err := NewParser(WithLenientJSON(true)).Parse(`{"tool":"finish"}`); !errors.Is(err, ErrMissingThought) {
		t.Errorf("lenient Parse() without thought error = %v, want ErrMissingThought", err)
	}
}

func TestParser_Decode(t *testing.T) {
	t.Parallel()

	type reply struct {
		Thought string   `json:"thought"`
		Files   []string `json:"files"`
	}

	tests := []struct {
		name      string
		lenient   bool
		raw       string
		wantFiles int
		wantErr   error
	}{
		{name: "plain", raw: `{"thought":"t","files":["a.go","b.go"]}`, wantFiles: 2},
		{name: "fenced", raw: "```json\n{\"thought\":\"t\",\"files\":[\"a.go\"]}\n```", wantFiles: 1},
		{name: "not an object", raw: `["a.go"]`, wantErr: ErrNotObject},
		{name: "wrong field type", raw: `{"thought":"t","files":"a.go"}`, wantErr: ErrInvalidField},
		{name: "broken strict", raw: `{"thought":"t","files":["a.go",],}`, wantErr: ErrNotObject},
		{name: "broken lenient", lenient: true, raw: `{"thought":"t","files":["a.go",],}`, wantFiles: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var got reply
			err := NewParser(WithLenientJSON(tt.lenient)).Decode(tt.raw, &got)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) || !errors.Is(err, agent.ErrDecode) {
					t.Fatalf("Decode() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if len(got.Files) != tt.wantFiles {
				t.Errorf("Files = %v, want %d entries", got.Files, tt.wantFiles)
			}
		})
	}
}

package application

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"text/template"

	"github.com/felixgeelhaar/repoagent/domain/agent"
	"github.com/felixgeelhaar/repoagent/domain/pack"
	"github.com/felixgeelhaar/repoagent/domain/tool"
	"github.com/felixgeelhaar/repoagent/infrastructure/repo"
	"github.com/felixgeelhaar/repoagent/pack/explore"
	"github.com/felixgeelhaar/repoagent/pack/state"
)

// Agent names.
const (
	ExplorerAgent = "explorer"
	PlannerAgent  = "planner"
)

const plannerSystemPrompt = "You are a skilled programmer and solutions architect tasked with developing a granular " +
	"spec and plan to achieve a high-level coding objective on a code repository. Your role is to analyze the given " +
	"objective, explore the codebase using the provided tools, and create a detailed plan to accomplish the goal."

//go:embed prompts/*.tmpl
var promptFS embed.FS

var prompts = template.Must(template.ParseFS(promptFS, "prompts/*.tmpl"))

type promptData struct {
	RepoMap string
	Tools   string
	Request string
	Context string
}

// AgentDeps are the shared resources an agent profile is built from.
type AgentDeps struct {
	Reader *repo.Reader

	// ListDepth is the depth of the initial repository map.
	ListDepth int

	Explore []explore.Option
}

// NewProfile returns the profile of the named agent.
func NewProfile(name string, deps AgentDeps) (Profile, error) {
	switch name {
	case ExplorerAgent:
		return ExplorerProfile(deps)
	case PlannerAgent:
		return PlannerProfile(deps)
	default:
		return Profile{}, fmt.Errorf("unknown agent %q", name)
	}
}

// ExplorerProfile builds the explorer: it reads the repository and records
// an exploration context.
func ExplorerProfile(deps AgentDeps) (Profile, error) {
	reg, err := registry(deps,
		[]string{explore.ListFiles, explore.ReadFile, explore.ReadCodeSnippet, explore.FileInfo, explore.Dependencies},
		[]string{state.UpdateContext},
	)
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		Name:     ExplorerAgent,
		Registry: reg,
		Frame: func(ctx context.Context, task Task, reg *tool.Registry) ([]agent.Message, error) {
			repoMap, err := initialMap(ctx, deps, task.Directory)
			if err != nil {
				return nil, err
			}
			system, err := render("explorer.tmpl", promptData{RepoMap: repoMap, Tools: reg.Catalog()})
			if err != nil {
				return nil, err
			}
			return []agent.Message{
				agent.SystemMessage(system),
				agent.UserMessage(task.Prompt),
			}, nil
		},
	}, nil
}

// PlannerProfile builds the planner: it turns a request and an exploration
// context into a plan. The current plan is shown before every decision.
func PlannerProfile(deps AgentDeps) (Profile, error) {
	reg, err := registry(deps,
		[]string{explore.ListFiles, explore.ReadFile, explore.ReadCodeSnippet, explore.Dependencies},
		[]string{state.UpdatePlan},
	)
	if err != nil {
		return Profile{}, err
	}
	return Profile{
		Name:     PlannerAgent,
		Registry: reg,
		Frame: func(ctx context.Context, task Task, reg *tool.Registry) ([]agent.Message, error) {
			repoMap, err := initialMap(ctx, deps, task.Directory)
			if err != nil {
				return nil, err
			}
			exploration := task.Context
			if task.Exploration != nil {
				exploration = PlannerContext(ctx, deps.Reader, *task.Exploration)
			}
			instructions, err := render("planner.tmpl", promptData{
				RepoMap: repoMap,
				Tools:   reg.Catalog(),
				Request: task.Prompt,
				Context: exploration,
			})
			if err != nil {
				return nil, err
			}
			return []agent.Message{
				agent.SystemMessage(plannerSystemPrompt),
				agent.UserMessage(instructions),
			}, nil
		},
		Refresh: func(s agent.State) (string, bool) {
			return "## Current Plan: \n" + s.PlanJSON(), true
		},
	}, nil
}

func registry(deps AgentDeps, exploreSpecs, stateSpecs []string) (*tool.Registry, error) {
	if deps.Reader == nil {
		return nil, errors.New("agent needs a repository reader")
	}
	ex, err := explore.New(deps.Reader, deps.Explore...)
	if err != nil {
		return nil, err
	}
	ex, err = ex.Select(exploreSpecs...)
	if err != nil {
		return nil, err
	}
	st, err := state.New().Select(stateSpecs...)
	if err != nil {
		return nil, err
	}
	return pack.Registry(ex, st)
}

func initialMap(ctx context.Context, deps AgentDeps, dir string) (string, error) {
	return Overview(ctx, deps.Reader, dir, deps.ListDepth)
}

// Overview renders the tree under dir, depth levels deep. An empty dir is
// the root; a zero depth is one level.
func Overview(ctx context.Context, reader *repo.Reader, dir string, depth int) (string, error) {
	if dir == "" {
		dir = "."
	}
	if depth == 0 {
		depth = 1
	}
	out, err := reader.Index(ctx).RenderTree(dir, depth)
	if err != nil {
		return "", fmt.Errorf("list %s: %w", dir, err)
	}
	return out, nil
}

func render(name string, data promptData) (string, error) {
	var b strings.Builder
	if err := prompts.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("render %s: %w", name, err)
	}
	return b.String(), nil
}

// plannerFileWindow bounds the lines of each relevant file shown to the
// planner.
const plannerFileWindow = 500

// PlannerContext renders an exploration context for the planner prompt,
// with the head of every relevant file inlined. A relevant file may carry a
// ":note" suffix; read failures are shown in place of the content.
func PlannerContext(ctx context.Context, reader *repo.Reader, c agent.ExplorationContext) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Explanation:\n%s\n", c.Explanation)
	fmt.Fprintf(&b, "Code Flow Graph:\n%s\n", c.CodeFlowGraph)
	b.WriteString("Relevant Files:\n")
	for _, f := range c.RelevantFiles {
		path, _, _ := strings.Cut(f, ":")
		fmt.Fprintf(&b, "- %s\n", f)
		out, err := reader.Window(ctx, strings.TrimSpace(path), 1, 0, plannerFileWindow)
		if err != nil {
			out = err.Error()
		}
		b.WriteString(out)
		b.WriteString("\n" + strings.Repeat("-", 50) + "\n")
	}
	b.WriteString("Relevant Directories:\n")
	for _, d := range c.SimilarFeatureDirs {
		fmt.Fprintf(&b, "- %s", d.Directory)
		if d.Description != "" {
			fmt.Fprintf(&b, ": %s", d.Description)
		}
		b.WriteByte('\n')
		for _, f := range d.Files {
			fmt.Fprintf(&b, "    - %s\n", f)
		}
	}
	return b.String()
}

// ExplorationContext renders what an explorer run found, for a planner
// task. The recorded context wins over the finish response.
func ExplorationContext(res *Result) string {
	if res == nil {
		return ""
	}
	if res.State.Context != nil {
		data, err := json.MarshalIndent(res.State.Context, "", "    ")
		if err == nil {
			return string(data)
		}
	}
	if args, err := res.FinishArgs(); err == nil {
		return args.Response
	}
	return ""
}

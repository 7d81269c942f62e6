// Package state provides the capabilities that change an agent's state.
// They never touch the state directly: each returns a delta that the loop
// applies after dispatch.
package state

import (
	"context"

	"github.com/felixgeelhaar/repoagent/domain/agent"
	"github.com/felixgeelhaar/repoagent/domain/pack"
	"github.com/felixgeelhaar/repoagent/domain/tool"
)

// Spec names.
const (
	UpdateContext = "update_context"
	UpdatePlan    = "update_plan"
)

// New creates the state pack.
func New() *pack.Pack {
	return pack.NewBuilder("state").
		WithDescription("Agent state updates").
		WithVersion("1.0.0").
		AddSpecs(updateContextSpec(), updatePlanSpec()).
		Build()
}

// --- update_context ---

type similarFeatureDir struct {
	Directory   string   `json:"directory" jsonschema:"the directory implementing a similar feature"`
	Description string   `json:"description,omitempty" jsonschema:"what the directory does"`
	Files       []string `json:"files,omitempty" jsonschema:"the files of interest in the directory"`
}

type updateContextArgs struct {
	Explanation        string              `json:"explanation" jsonschema:"the explanation of the code flow graph"`
	CodeFlowGraph      string              `json:"code_flow_graph" jsonschema:"the call graph of the relevant code in Mermaid format"`
	RelevantFiles      []string            `json:"relevant_files" jsonschema:"the files relevant to the request"`
	SimilarFeatureDirs []similarFeatureDir `json:"similar_feature_dirs" jsonschema:"directories that implement something similar"`
}

func updateContextSpec() *tool.Spec {
	return tool.For(UpdateContext, func(_ context.Context, _ tool.Call, args updateContextArgs) (tool.Result, error) {
		c := agent.ExplorationContext{
			Explanation:   args.Explanation,
			CodeFlowGraph: args.CodeFlowGraph,
			RelevantFiles: args.RelevantFiles,
		}
		for _, d := range args.SimilarFeatureDirs {
			c.SimilarFeatureDirs = append(c.SimilarFeatureDirs, agent.SimilarFeatureDir(d))
		}
		return tool.OK("Context updated successfully").WithDelta(agent.ReplaceContext{Context: c}), nil
	}).
		WithDescription("Record what you found in the repository: an explanation, the code flow graph, " +
			"the relevant files and directories with similar features. Replaces the previous findings.").
		UpdatesState().
		MustBuild()
}

// --- update_plan ---

type task struct {
	Step            int      `json:"step" jsonschema:"the step number of the task"`
	TaskDescription string   `json:"task_description" jsonschema:"what the task does"`
	Create          []string `json:"create,omitempty" jsonschema:"the files to create"`
	CreateInfo      string   `json:"create_info,omitempty" jsonschema:"what to put in the created files"`
	Update          []string `json:"update,omitempty" jsonschema:"the files to update"`
	UpdateInfo      string   `json:"update_info,omitempty" jsonschema:"what to change; mention function names, type names and line numbers"`
	Reference       []string `json:"reference,omitempty" jsonschema:"the files needed to understand the change"`
	ReferenceInfo   string   `json:"reference_info,omitempty" jsonschema:"what to look at in the referenced files"`
}

type updatePlanArgs struct {
	UpdatedPlan []task `json:"updated_plan" jsonschema:"the complete plan replacing the current one"`
}

func updatePlanSpec() *tool.Spec {
	return tool.For(UpdatePlan, func(_ context.Context, _ tool.Call, args updatePlanArgs) (tool.Result, error) {
		plan := make([]agent.Task, len(args.UpdatedPlan))
		for i, t := range args.UpdatedPlan {
			plan[i] = agent.Task(t)
		}
		return tool.OK("Plan updated successfully.").WithDelta(agent.ReplacePlan{Plan: plan}), nil
	}).
		WithDescription("Replace the current plan with the updated plan. Pass every step. " +
			"Each task must create or update at least one file. Read a file before planning to update it, " +
			"and always list references.").
		UpdatesState().
		MustBuild()
}

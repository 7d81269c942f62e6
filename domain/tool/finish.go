package tool

import "context"

// FinishName is the name of the terminal spec present in every registry.
const FinishName = "finish"

// FinishArgs are the arguments of the finish action, returned verbatim by a run.
type FinishArgs struct {
	Success  bool   `json:"success" jsonschema:"whether the task was completed successfully"`
	Response string `json:"response" jsonschema:"the final answer or a summary of the outcome"`
}

// Finish builds the terminal spec.
func Finish() *Spec {
	return For(FinishName, func(_ context.Context, _ Call, args FinishArgs) (Result, error) {
		return Result{Success: args.Success, Response: args.Response}, nil
	}).
		WithDescription("Finish the task. Call this when the work is done or cannot be completed.").
		Terminal().
		MustBuild()
}

package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/felixgeelhaar/repoagent/application"
)

// batchFile is the document read by the batch command. JSON documents are
// valid YAML and decode the same way.
type batchFile struct {
	Jobs []application.Job `yaml:"jobs"`
}

// batchOptions holds options for the batch command.
type batchOptions struct {
	concurrency int
	jsonOutput  bool
}

// newBatchCmd creates the batch command.
func (a *App) newBatchCmd() *cobra.Command {
	opts := &batchOptions{}

	cmd := &cobra.Command{
		Use:   "batch <file>",
		Short: "Run independent requests concurrently",
		Long: `Run every job of a batch file with a concurrency ceiling. Each job gets its
own loop, history, state and retry budget; a failing job does not stop the
others.

Batch file:
  jobs:
    - id: discounts
      agent: explorer
      task:
        prompt: How are discounts applied?
    - id: coupons
      agent: planner
      task:
        prompt: Add coupon codes to checkout
        directory: checkout

Examples:
  repoagent batch jobs.yaml --concurrency 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runBatch(cmd.Context(), args[0], opts)
		},
	}

	cmd.Flags().IntVar(&opts.concurrency, "concurrency", 0, "Concurrent jobs (overrides pool.concurrency)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

// loadBatch reads and checks a batch file.
func loadBatch(path string) ([]application.Job, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}
	var f batchFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse batch file: %w", err)
	}
	if len(f.Jobs) == 0 {
		return nil, errors.New("batch file has no jobs")
	}

	seen := make(map[string]bool, len(f.Jobs))
	for i := range f.Jobs {
		job := &f.Jobs[i]
		if job.ID == "" {
			job.ID = fmt.Sprintf("job-%d", i+1)
		}
		if seen[job.ID] {
			return nil, fmt.Errorf("duplicate job id %q", job.ID)
		}
		seen[job.ID] = true
		if job.Agent == "" {
			job.Agent = application.ExplorerAgent
		}
		if job.Task.Prompt == "" {
			return nil, fmt.Errorf("job %q has no prompt", job.ID)
		}
	}
	return f.Jobs, nil
}

func (a *App) runBatch(ctx context.Context, path string, opts *batchOptions) (err error) {
	jobs, err := loadBatch(path)
	if err != nil {
		return err
	}

	rt, err := a.bootstrap(ctx, modeAgent)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(context.WithoutCancel(ctx)); err == nil {
			err = cerr
		}
	}()

	limit := rt.settings.Concurrency
	if opts.concurrency > 0 {
		limit = opts.concurrency
	}
	pool := application.NewPool(rt.newLoop, limit, rt.logger)
	results := pool.Run(ctx, jobs)

	failed := 0
	outputs := make([]map[string]any, 0, len(results))
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
		if opts.jsonOutput {
			entry := map[string]any{"id": r.Job.ID, "agent": r.Job.Agent}
			if r.Result != nil {
				entry["run"] = newRunOutput(r.Result, r.Duration)
			}
			if r.Err != nil {
				entry["error"] = r.Err.Error()
			}
			outputs = append(outputs, entry)
			continue
		}
		status := "ok"
		if r.Err != nil {
			status = "FAILED: " + r.Err.Error()
		}
		iterations := 0
		if r.Result != nil {
			iterations = r.Result.Iterations
		}
		_, _ = fmt.Fprintf(a.stdout, "%-20s %-9s %3d iterations  %-8s %s\n",
			r.Job.ID, r.Job.Agent, iterations, r.Duration.Round(time.Millisecond), status)
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(outputs); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d jobs failed", failed, len(jobs))
	}
	return nil
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/repoagent/domain/agent"
	"github.com/felixgeelhaar/repoagent/domain/run"
)

// runsOptions holds options for the runs commands.
type runsOptions struct {
	agent      string
	status     []string
	limit      int
	history    bool
	jsonOutput bool
}

// newRunsCmd creates the runs command group.
func (a *App) newRunsCmd() *cobra.Command {
	opts := &runsOptions{}

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Inspect checkpointed runs",
		Long: `Inspect runs persisted by the configured store (storage.driver).

Examples:
  repoagent runs list --agent planner --limit 5
  repoagent runs show 3f2c... --history
  repoagent runs delete 3f2c...`,
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List runs, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(ctx context.Context, store run.Store) error {
				return a.listRuns(ctx, store, opts)
			})
		},
	}
	list.Flags().StringVar(&opts.agent, "agent", "", "Only runs of this agent")
	list.Flags().StringSliceVar(&opts.status, "status", nil, "Only runs with these statuses")
	list.Flags().IntVar(&opts.limit, "limit", 20, "Maximum number of runs (0 = all)")
	list.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output as JSON")

	show := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(ctx context.Context, store run.Store) error {
				return a.showRun(ctx, store, args[0], opts)
			})
		},
	}
	show.Flags().BoolVar(&opts.history, "history", false, "Print the conversation history")
	show.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output the checkpoint as JSON")

	del := &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Delete one run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(ctx context.Context, store run.Store) error {
				if err := store.Delete(ctx, args[0]); err != nil {
					return err
				}
				_, _ = fmt.Fprintf(a.stdout, "Deleted run %s\n", args[0])
				return nil
			})
		},
	}

	cmd.AddCommand(list, show, del)
	return cmd
}

func (a *App) withStore(ctx context.Context, fn func(context.Context, run.Store) error) (err error) {
	rt, err := a.bootstrap(ctx, modeStore)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(context.WithoutCancel(ctx)); err == nil {
			err = cerr
		}
	}()
	return fn(ctx, rt.store)
}

func (a *App) listRuns(ctx context.Context, store run.Store, opts *runsOptions) error {
	filter := run.ListFilter{Agent: opts.agent, Limit: opts.limit}
	for _, s := range opts.status {
		filter.Status = append(filter.Status, agent.Status(s))
	}
	cps, err := store.List(ctx, filter)
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		summaries := make([]map[string]any, 0, len(cps))
		for _, cp := range cps {
			summaries = append(summaries, map[string]any{
				"run_id":     cp.RunID,
				"agent":      cp.Agent,
				"status":     cp.Status,
				"iteration":  cp.Iteration,
				"task":       cp.Task,
				"updated_at": cp.UpdatedAt,
			})
		}
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(summaries)
	}

	if len(cps) == 0 {
		_, _ = fmt.Fprintln(a.stdout, "No runs found.")
		return nil
	}
	for _, cp := range cps {
		_, _ = fmt.Fprintf(a.stdout, "%s  %-8s %-8s %3d  %s  %s\n",
			cp.RunID, cp.Agent, cp.Status, cp.Iteration,
			cp.UpdatedAt.Local().Format(time.DateTime), truncate(firstLine(cp.Task), 60))
	}
	return nil
}

func (a *App) showRun(ctx context.Context, store run.Store, id string, opts *runsOptions) error {
	cp, err := store.Get(ctx, id)
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cp)
	}

	_, _ = fmt.Fprintf(a.stdout, "Run %s\n", cp.RunID)
	_, _ = fmt.Fprintf(a.stdout, "  Agent: %s\n", cp.Agent)
	_, _ = fmt.Fprintf(a.stdout, "  Status: %s\n", cp.Status)
	_, _ = fmt.Fprintf(a.stdout, "  Iteration: %d\n", cp.Iteration)
	_, _ = fmt.Fprintf(a.stdout, "  Task: %s\n", cp.Task)
	_, _ = fmt.Fprintf(a.stdout, "  Started: %s\n", cp.CreatedAt.Local().Format(time.DateTime))
	_, _ = fmt.Fprintf(a.stdout, "  Updated: %s\n", cp.UpdatedAt.Local().Format(time.DateTime))
	if cp.Error != "" {
		_, _ = fmt.Fprintf(a.stdout, "  Error: %s\n", cp.Error)
	}
	if len(cp.Finish) > 0 {
		_, _ = fmt.Fprintf(a.stdout, "  Finish: %s\n", cp.Finish)
	}

	_, _ = fmt.Fprintf(a.stdout, "\nActions (%d):\n", len(cp.Actions))
	for i, act := range cp.Actions {
		_, _ = fmt.Fprintf(a.stdout, "  %d. %s %s\n", i+1, act.Action, truncate(string(act.Args), 100))
	}

	if opts.history {
		_, _ = fmt.Fprintf(a.stdout, "\nHistory (%d messages):\n", len(cp.History))
		for _, m := range cp.History {
			_, _ = fmt.Fprintf(a.stdout, "\n[%s]\n%s\n", m.Role, m.Content)
		}
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

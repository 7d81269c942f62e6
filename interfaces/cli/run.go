package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/repoagent/application"
	"github.com/felixgeelhaar/repoagent/domain/agent"
	"github.com/felixgeelhaar/repoagent/infrastructure/logging"
)

// runOptions holds options for the explore and plan commands.
type runOptions struct {
	prompt        string
	directory     string
	contextPath   string
	exploreFirst  bool
	rewrite       bool
	maxIterations int
	timeout       time.Duration
	jsonOutput    bool
}

// newExploreCmd creates the explore command.
func (a *App) newExploreCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "explore [request]",
		Short: "Explore the repository for a request",
		Long: `Run the explorer agent. It reads the repository with its tools and records
an exploration context: an explanation, the code flow, the relevant files and
directories with similar features.

With --rewrite, a feature request is first turned into a request to explore
how similar features are built, and the explorer runs on that.

Examples:
  repoagent explore -r ./shop "How are discounts applied to a cart?"
  repoagent explore --rewrite "Add a delete button to the details form"
  echo "Where is the HTTP router configured?" | repoagent explore`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAgent(cmd, application.ExplorerAgent, args, opts)
		},
	}
	a.addRunFlags(cmd, opts)
	cmd.Flags().BoolVar(&opts.rewrite, "rewrite", false, "Rewrite the request into an exploration of similar features first")

	return cmd
}

// newPlanCmd creates the plan command.
func (a *App) newPlanCmd() *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "plan [objective]",
		Short: "Plan a coding objective",
		Long: `Run the planner agent. It explores the repository and maintains a plan of
granular tasks until it finishes.

The planner can start from an exploration context, either read from a file
(--context) or produced by an explorer run on the same objective (--explore).
A context file written by an explorer run or by collect is rendered with the
contents of its relevant files; any other file is used verbatim.

Examples:
  repoagent plan "Add a coupon code to checkout"
  repoagent plan --explore "Add a coupon code to checkout"
  repoagent plan --context exploration.json "Add a coupon code to checkout"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runAgent(cmd, application.PlannerAgent, args, opts)
		},
	}
	a.addRunFlags(cmd, opts)
	cmd.Flags().StringVar(&opts.contextPath, "context", "", "File holding an exploration context")
	cmd.Flags().BoolVar(&opts.exploreFirst, "explore", false, "Run the explorer first and plan from its context")
	cmd.Flags().BoolVar(&opts.rewrite, "rewrite", false, "With --explore, rewrite the objective into an exploration of similar features")

	return cmd
}

func (a *App) addRunFlags(cmd *cobra.Command, opts *runOptions) {
	cmd.Flags().StringVarP(&opts.directory, "dir", "d", "", "Directory the initial repository map starts from")
	cmd.Flags().IntVar(&opts.maxIterations, "max-iterations", 0, "Iteration cap (overrides loop.max_iterations)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "Overall run timeout")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")
}

// readPrompt takes the prompt from the argument or, failing that, stdin.
func readPrompt(in io.Reader, args []string) (string, error) {
	if len(args) > 0 && strings.TrimSpace(args[0]) != "" {
		return args[0], nil
	}
	if in == nil {
		return "", errors.New("no request given")
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read request: %w", err)
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		return "", errors.New("no request given (pass it as an argument or on stdin)")
	}
	return prompt, nil
}

// runAgent executes one agent run, optionally preceded by an explorer run.
func (a *App) runAgent(cmd *cobra.Command, agentName string, args []string, opts *runOptions) (err error) {
	ctx := cmd.Context()
	prompt, err := readPrompt(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	opts.prompt = prompt

	task := application.Task{Prompt: opts.prompt, Directory: opts.directory}
	if opts.contextPath != "" {
		data, err := os.ReadFile(opts.contextPath)
		if err != nil {
			return fmt.Errorf("read exploration context: %w", err)
		}
		task.Context, task.Exploration = readContext(data)
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
	if opts.maxIterations > 0 {
		rt.settings.MaxIterations = opts.maxIterations
	}

	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	exploring := agentName == application.ExplorerAgent || opts.exploreFirst
	exploreTask := task
	if exploring && opts.rewrite {
		if exploreTask.Prompt, err = rt.rewrite(ctx, task); err != nil {
			return err
		}
	}
	if agentName == application.ExplorerAgent {
		task = exploreTask
	}

	if agentName == application.PlannerAgent && opts.exploreFirst {
		explored, err := a.runOnce(ctx, rt, application.ExplorerAgent, exploreTask, opts)
		if err != nil {
			return err
		}
		if explored.State.Context != nil {
			c := explored.State.Context.Clone()
			task.Exploration = &c
		} else {
			task.Context = application.ExplorationContext(explored)
		}
	}

	_, err = a.runOnce(ctx, rt, agentName, task, opts)
	return err
}

// rewrite turns the task's feature request into an exploration request.
func (rt *runtime) rewrite(ctx context.Context, task application.Task) (string, error) {
	asker, err := rt.newAsker()
	if err != nil {
		return "", err
	}
	rw, err := asker.RewriteRequest(ctx, task.Prompt, task.Directory)
	if err != nil {
		return "", fmt.Errorf("rewrite request: %w", err)
	}
	rt.logger.Info().
		Add(logging.Str("exploration_prompt", rw.ExplorationPrompt)).
		Msg("request rewritten")
	return rw.ExplorationPrompt, nil
}

// readContext reads an exploration context file. A JSON exploration context
// is returned structured, anything else as text.
func readContext(data []byte) (string, *agent.ExplorationContext) {
	var c agent.ExplorationContext
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&c); err == nil && !isEmptyContext(c) {
		return "", &c
	}
	return string(data), nil
}

func isEmptyContext(c agent.ExplorationContext) bool {
	return c.Explanation == "" && c.CodeFlowGraph == "" && len(c.RelevantFiles) == 0 && len(c.SimilarFeatureDirs) == 0
}

func (a *App) runOnce(ctx context.Context, rt *runtime, agentName string, task application.Task, opts *runOptions) (*application.Result, error) {
	loop, err := rt.newLoop(agentName)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", agentName, err)
	}

	start := time.Now()
	res, runErr := loop.Run(ctx, task)
	duration := time.Since(start)

	if res != nil {
		if opts.jsonOutput {
			if err := a.printResultJSON(res, duration); err != nil {
				return res, err
			}
		} else {
			a.printResult(res, duration)
		}
	}
	if runErr != nil {
		return res, fmt.Errorf("%s run failed: %w", agentName, runErr)
	}
	return res, nil
}

// runOutput is the JSON rendering of a run.
type runOutput struct {
	RunID      string          `json:"run_id"`
	Agent      string          `json:"agent"`
	Status     agent.Status    `json:"status"`
	Iterations int             `json:"iterations"`
	Duration   string          `json:"duration"`
	Finish     json.RawMessage `json:"finish,omitempty"`
	State      agent.State     `json:"state"`
	Error      string          `json:"error,omitempty"`
}

func newRunOutput(res *application.Result, duration time.Duration) runOutput {
	out := runOutput{
		RunID:      res.RunID,
		Agent:      res.Agent,
		Status:     res.Status,
		Iterations: res.Iterations,
		Duration:   duration.Round(time.Millisecond).String(),
		Finish:     res.Finish,
		State:      res.State,
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

func (a *App) printResultJSON(res *application.Result, duration time.Duration) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(newRunOutput(res, duration))
}

func (a *App) printResult(res *application.Result, duration time.Duration) {
	_, _ = fmt.Fprintf(a.stdout, "Run completed\n")
	_, _ = fmt.Fprintf(a.stdout, "  Run ID: %s\n", res.RunID)
	_, _ = fmt.Fprintf(a.stdout, "  Agent: %s\n", res.Agent)
	_, _ = fmt.Fprintf(a.stdout, "  Iterations: %d\n", res.Iterations)
	_, _ = fmt.Fprintf(a.stdout, "  Duration: %s\n", duration.Round(time.Millisecond))
	_, _ = fmt.Fprintf(a.stdout, "  Tokens: %d (%d calls)\n", res.State.Usage.Total(), res.State.Usage.Calls)

	switch res.Status {
	case agent.StatusFinished:
		_, _ = fmt.Fprintf(a.stdout, "  Status: SUCCESS\n")
		if args, err := res.FinishArgs(); err == nil {
			_, _ = fmt.Fprintf(a.stdout, "  Completed: %t\n", args.Success)
			_, _ = fmt.Fprintf(a.stdout, "  Response: %s\n", args.Response)
		}
	case agent.StatusFailed:
		_, _ = fmt.Fprintf(a.stdout, "  Status: FAILED\n")
		if res.Err != nil {
			_, _ = fmt.Fprintf(a.stdout, "  Error: %s\n", res.Err)
		}
	}

	if res.State.Context != nil {
		_, _ = fmt.Fprintf(a.stdout, "\nExploration context:\n%s\n", application.ExplorationContext(res))
	}
	if len(res.State.Plan) > 0 {
		_, _ = fmt.Fprintf(a.stdout, "\nPlan:\n")
		for _, t := range res.State.Plan {
			_, _ = fmt.Fprintf(a.stdout, "  %d. %s\n", t.Step, firstLine(t.TaskDescription))
		}
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

type collectOptions struct {
	directory  string
	output     string
	jsonOutput bool
}

// newCollectCmd creates the collect command.
func (a *App) newCollectCmd() *cobra.Command {
	opts := &collectOptions{}

	cmd := &cobra.Command{
		Use:   "collect [feature]",
		Short: "Pick the files a feature touches in one model call",
		Long: `Show the model every file under a directory together with a feature
description, and print the files and directories it picks. Unlike explore,
no tools are used.

With --output the selection is written as an exploration context that
plan --context accepts.

Examples:
  repoagent collect "Add a coupon code to checkout"
  repoagent collect -d internal --output context.json "Add a coupon code"`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runCollect(cmd, args, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.directory, "dir", "d", "", "Directory whose files are listed")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "Write the selection as an exploration context to this file")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output the selection as JSON")

	return cmd
}

func (a *App) runCollect(cmd *cobra.Command, args []string, opts *collectOptions) (err error) {
	ctx := cmd.Context()
	feature, err := readPrompt(cmd.InOrStdin(), args)
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

	asker, err := rt.newAsker()
	if err != nil {
		return err
	}
	sel, err := asker.CollectContext(ctx, feature, opts.directory)
	if err != nil {
		return fmt.Errorf("collect context: %w", err)
	}

	if opts.output != "" {
		data, err := json.MarshalIndent(sel.ExplorationContext(), "", "    ")
		if err != nil {
			return err
		}
		if err := os.WriteFile(opts.output, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", opts.output, err)
		}
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(sel)
	}

	_, _ = fmt.Fprintf(a.stdout, "Thought: %s\n", sel.Thought)
	if sel.Explanation != "" {
		_, _ = fmt.Fprintf(a.stdout, "Explanation: %s\n", sel.Explanation)
	}
	_, _ = fmt.Fprintf(a.stdout, "\nRelevant files:\n%s", bullets(sel.RelevantFiles))
	_, _ = fmt.Fprintf(a.stdout, "\nRelevant directories:\n%s", bullets(sel.RelevantDirectories))
	return nil
}

func bullets(items []string) string {
	if len(items) == 0 {
		return "  (none)\n"
	}
	var b strings.Builder
	for _, it := range items {
		fmt.Fprintf(&b, "  - %s\n", it)
	}
	return b.String()
}

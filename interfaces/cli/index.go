package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/repoagent/application"
)

// indexOptions holds options for the index command.
type indexOptions struct {
	directory  string
	depth      int
	jsonOutput bool
}

// newIndexCmd creates the index command.
func (a *App) newIndexCmd() *cobra.Command {
	opts := &indexOptions{}

	cmd := &cobra.Command{
		Use:   "index [directory]",
		Short: "Index the repository and print its tree",
		Long: `Index the repository the way the agents see it and print the tree.

Ignored files (.gitignore and repository.ignore patterns) are left out.

Examples:
  repoagent index -r ./myrepo
  repoagent index internal --depth -1`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				opts.directory = args[0]
			}
			return a.index(cmd.Context(), opts)
		},
	}

	cmd.Flags().IntVar(&opts.depth, "depth", 1, "Listing depth (-1 = unlimited)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output the index summary as JSON")

	return cmd
}

func (a *App) index(ctx context.Context, opts *indexOptions) (err error) {
	rt, err := a.bootstrap(ctx, modeRepository)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(context.WithoutCancel(ctx)); err == nil {
			err = cerr
		}
	}()

	dir := opts.directory
	if dir == "" {
		dir = "."
	}
	idx := rt.snapshot.Current()
	tree, err := idx.RenderTree(dir, opts.depth)
	if err != nil {
		return err
	}

	if opts.jsonOutput {
		enc := json.NewEncoder(a.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"root":     idx.Root(),
			"revision": idx.Revision(),
			"files":    idx.FileCount(),
			"built_at": idx.BuiltAt(),
			"tree":     tree,
		})
	}

	_, _ = fmt.Fprintf(a.stdout, "Root: %s\n", idx.Root())
	_, _ = fmt.Fprintf(a.stdout, "Revision: %s\n", idx.Revision())
	_, _ = fmt.Fprintf(a.stdout, "Files: %d\n\n", idx.FileCount())
	_, _ = fmt.Fprintln(a.stdout, tree)
	return nil
}

// toolsOptions holds options for the tools command.
type toolsOptions struct {
	verbose bool
}

// newToolsCmd creates the tools command.
func (a *App) newToolsCmd() *cobra.Command {
	opts := &toolsOptions{}

	cmd := &cobra.Command{
		Use:   "tools [explorer|planner]",
		Short: "List the tools an agent may call",
		Long: `List the tools registered for an agent.

With --verbose the catalog is printed exactly as the model sees it,
including the JSON schema of every tool's arguments.

Examples:
  repoagent tools planner
  repoagent tools explorer -v`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := application.ExplorerAgent
			if len(args) > 0 {
				name = args[0]
			}
			return a.listTools(cmd.Context(), name, opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "Print the full catalog")

	return cmd
}

func (a *App) listTools(ctx context.Context, name string, opts *toolsOptions) (err error) {
	rt, err := a.bootstrap(ctx, modeRepository)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := rt.Close(context.WithoutCancel(ctx)); err == nil {
			err = cerr
		}
	}()

	profile, err := application.NewProfile(name, application.AgentDeps{Reader: rt.reader})
	if err != nil {
		return err
	}

	if opts.verbose {
		_, _ = fmt.Fprint(a.stdout, profile.Registry.Catalog())
		return nil
	}
	_, _ = fmt.Fprintf(a.stdout, "Tools of %s (%d):\n", profile.Name, len(profile.Registry.Names()))
	for _, spec := range profile.Registry.Specs() {
		_, _ = fmt.Fprintf(a.stdout, "  %-18s %s\n", spec.Name(), firstLine(spec.Description()))
	}
	return nil
}

// Package cli provides the command-line interface of the repository agent.
package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/repoagent"
	domainconfig "github.com/felixgeelhaar/repoagent/domain/config"
	infraconfig "github.com/felixgeelhaar/repoagent/infrastructure/config"
)

// Version information set at build time.
var (
	Version   = repoagent.Version
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// globalOptions are flags shared by every command.
type globalOptions struct {
	configPath string
	repoRoot   string
	logLevel   string
	logFormat  string
}

// App represents the CLI application.
type App struct {
	root    *cobra.Command
	stdout  io.Writer
	stderr  io.Writer
	global  globalOptions
	getenv  func(string) string
}

// New creates a new CLI application.
func New() *App {
	app := &App{
		stdout: os.Stdout,
		stderr: os.Stderr,
		getenv: os.Getenv,
	}

	app.root = &cobra.Command{
		Use:   "repoagent",
		Short: "Explore a code repository and plan changes with a language model",
		Long: `repoagent drives a language model through a bounded decide, act and observe
loop over a code repository.

The explorer agent reads the repository and records an exploration context.
The planner agent turns a coding objective into a step-by-step plan.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := app.root.PersistentFlags()
	pf.StringVarP(&app.global.configPath, "config", "c", "", "Path to configuration file (YAML or JSON)")
	pf.StringVarP(&app.global.repoRoot, "repo", "r", "", "Repository root (overrides repository.root)")
	pf.StringVar(&app.global.logLevel, "log-level", "", "Log level (overrides logging.level)")
	pf.StringVar(&app.global.logFormat, "log-format", "", "Log format: json or console (overrides logging.format)")

	app.root.AddCommand(
		app.newVersionCmd(),
		app.newValidateCmd(),
		app.newSchemaCmd(),
		app.newIndexCmd(),
		app.newToolsCmd(),
		app.newExploreCmd(),
		app.newPlanCmd(),
		app.newCollectCmd(),
		app.newBatchCmd(),
		app.newRunsCmd(),
	)

	return app
}

// WithOutput sets custom output writers.
func (a *App) WithOutput(stdout, stderr io.Writer) *App {
	a.stdout = stdout
	a.stderr = stderr
	a.root.SetOut(stdout)
	a.root.SetErr(stderr)
	return a
}

// Execute runs the CLI application.
func (a *App) Execute(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	return a.root.ExecuteContext(ctx)
}

// ExecuteWithArgs runs the CLI with specific arguments.
func (a *App) ExecuteWithArgs(ctx context.Context, args []string) error {
	a.root.SetArgs(args)
	return a.Execute(ctx)
}

// loadConfig reads the configuration file, or the defaults when none is
// given, and applies command-line overrides.
func (a *App) loadConfig() (*domainconfig.AgentConfig, error) {
	var cfg *domainconfig.AgentConfig
	if a.global.configPath != "" {
		loaded, err := infraconfig.NewLoaderWithOptions(infraconfig.WithValidation(false)).LoadFile(a.global.configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load configuration: %w", err)
		}
		cfg = loaded
	} else {
		d := domainconfig.Default()
		cfg = &d
	}

	if a.global.repoRoot != "" {
		cfg.Repository.Root = a.global.repoRoot
	}
	if a.global.logLevel != "" {
		cfg.Logging.Level = a.global.logLevel
	}
	if a.global.logFormat != "" {
		cfg.Logging.Format = a.global.logFormat
	}
	if cfg.Model.APIKey == "" {
		cfg.Model.APIKey = a.apiKeyFromEnv(cfg.Model.Provider)
	}

	if errs := domainconfig.NewValidator().Validate(cfg); errs.HasErrors() {
		return nil, fmt.Errorf("%w: %v", domainconfig.ErrValidationFailed, errs)
	}
	return cfg, nil
}

func (a *App) apiKeyFromEnv(provider string) string {
	if key := a.getenv("REPOAGENT_API_KEY"); key != "" {
		return key
	}
	switch provider {
	case "openai":
		return a.getenv("OPENAI_API_KEY")
	case "anthropic":
		return a.getenv("ANTHROPIC_API_KEY")
	}
	return ""
}

// newVersionCmd creates the version command.
func (a *App) newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			_, _ = fmt.Fprintf(a.stdout, "repoagent version %s\n", Version)
			_, _ = fmt.Fprintf(a.stdout, "  Git commit: %s\n", GitCommit)
			_, _ = fmt.Fprintf(a.stdout, "  Build date: %s\n", BuildDate)
		},
	}
}

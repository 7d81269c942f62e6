package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	infraconfig "github.com/felixgeelhaar/repoagent/infrastructure/config"
)

// validateOptions holds options for the validate command.
type validateOptions struct {
	strict bool
}

// newValidateCmd creates the validate command.
func (a *App) newValidateCmd() *cobra.Command {
	opts := &validateOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Long: `Validate an agent configuration file for correctness.

This command checks:
  - File format (YAML or JSON)
  - Unknown keys and value types against the configuration schema
  - Required fields and value constraints
  - Environment variable references (in strict mode)

Examples:
  # Validate a configuration file
  repoagent validate -c agent.yaml

  # Strict validation (fail on missing env vars)
  repoagent validate -c agent.yaml --strict`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.validateConfig(opts)
		},
	}

	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Fail on missing environment variables")

	return cmd
}

// validateConfig validates the configuration file.
func (a *App) validateConfig(opts *validateOptions) error {
	path := a.global.configPath
	if path == "" {
		return errors.New("configuration file path is required (-c flag)")
	}

	format, err := infraconfig.FormatFromPath(path)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	expanded, err := infraconfig.ExpandEnvMode(string(raw), opts.strict)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if err := infraconfig.ValidateDocument([]byte(expanded), format); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	loader := infraconfig.NewLoaderWithOptions(infraconfig.WithEnvExpansion(false))
	config, err := loader.LoadString(expanded, format)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	settings, err := infraconfig.NewBuilder(config).Build()
	if err != nil {
		return fmt.Errorf("configuration build failed: %w", err)
	}

	_, _ = fmt.Fprintf(a.stdout, "✓ Configuration is valid\n")
	_, _ = fmt.Fprintf(a.stdout, "  Name: %s\n", config.Name)
	_, _ = fmt.Fprintf(a.stdout, "  Version: %s\n", config.Version)

	_, _ = fmt.Fprintf(a.stdout, "\nConfiguration summary:\n")
	_, _ = fmt.Fprintf(a.stdout, "  Model: %s", config.Model.Provider)
	if config.Model.Model != "" {
		_, _ = fmt.Fprintf(a.stdout, " (%s)", config.Model.Model)
	}
	_, _ = fmt.Fprintln(a.stdout)
	_, _ = fmt.Fprintf(a.stdout, "  Max iterations: %d\n", settings.MaxIterations)
	_, _ = fmt.Fprintf(a.stdout, "  Max attempts: %d\n", settings.Retry.MaxAttempts)
	_, _ = fmt.Fprintf(a.stdout, "  Repository: %s\n", config.Repository.Root)
	_, _ = fmt.Fprintf(a.stdout, "  Cache: %s\n", config.Cache.Driver)
	_, _ = fmt.Fprintf(a.stdout, "  Storage: %s\n", config.Storage.Driver)
	if config.Model.RateLimit.Enabled {
		_, _ = fmt.Fprintf(a.stdout, "  Rate limiting: enabled (rate=%d, burst=%d)\n",
			config.Model.RateLimit.Rate, config.Model.RateLimit.Burst)
	}
	if config.Model.CircuitBreaker.Enabled {
		_, _ = fmt.Fprintf(a.stdout, "  Circuit breaker: enabled (threshold=%d)\n", config.Model.CircuitBreaker.Threshold)
	}
	if config.Observability.Enabled {
		_, _ = fmt.Fprintf(a.stdout, "  Telemetry: %s\n", config.Observability.Exporter)
	}
	return nil
}

// schemaOptions holds options for the schema command.
type schemaOptions struct {
	outputPath string
}

// newSchemaCmd creates the schema command.
func (a *App) newSchemaCmd() *cobra.Command {
	opts := &schemaOptions{}

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Export the configuration JSON schema",
		Long: `Export the JSON Schema (draft 2020-12) of agent configuration files.

Examples:
  # Export schema to stdout
  repoagent schema

  # Export schema to a file
  repoagent schema -o schema.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.exportSchema(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.outputPath, "output", "o", "", "Output file path (default: stdout)")

	return cmd
}

func (a *App) exportSchema(opts *schemaOptions) error {
	schemaJSON, err := infraconfig.SchemaJSON()
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	if opts.outputPath == "" {
		_, _ = fmt.Fprintln(a.stdout, schemaJSON)
		return nil
	}

	if err := os.WriteFile(opts.outputPath, []byte(schemaJSON), 0o600); err != nil {
		return fmt.Errorf("failed to write schema file: %w", err)
	}
	_, _ = fmt.Fprintf(a.stdout, "Schema exported to %s\n", opts.outputPath)
	return nil
}

package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/moolen/ferry/internal/app"
	"github.com/moolen/ferry/internal/config"
	"github.com/moolen/ferry/internal/logging"
	"github.com/spf13/cobra"
)

const Version = "0.1.0"

type rootOptions struct {
	showConfig    bool
	configFile    string
	logLevelFlags []string // Supports multiple --log-level flags
	logFile       string
}

// NewRootCommand builds the ferry command. Running it without flags starts
// the service and blocks until SIGINT or SIGTERM.
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "ferry",
		Short: "Ferry - HTTP, NATS and PostgreSQL service with ordered startup and shutdown",
		Long: `Ferry serves HTTP requests backed by a PostgreSQL pool and a NATS connection.
Components are started in registration order, connections are retried with a
bounded number of attempts, and shutdown stops every component after the ones
that depend on it. Configuration is read from environment variables; run with
--config to list them.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, opts)
		},
	}

	flags := cmd.Flags()
	flags.BoolVarP(&opts.showConfig, "config", "c", false, "Print the configuration environment variables and exit")
	flags.StringVar(&opts.configFile, "config-file", "", "Optional YAML file with configuration; environment variables take precedence")
	// Supports per-package log levels: --log-level debug --log-level broker=debug
	flags.StringSliceVar(&opts.logLevelFlags, "log-level", []string{"info"},
		"Log level for packages. Use 'default=level' for default, or 'package.name=level' for per-package.\n"+
			"Examples: --log-level debug (all), --log-level database=debug --log-level lifecycle.*=warn")
	flags.StringVar(&opts.logFile, "log-file", "", "Write logs to this file instead of stdout/stderr")

	return cmd
}

// Execute runs the root command with os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

func run(cmd *cobra.Command, opts *rootOptions) error {
	if opts.showConfig {
		fmt.Fprintln(cmd.OutOrStdout(), "Application environment variables:")
		fmt.Fprintln(cmd.OutOrStdout())
		fmt.Fprint(cmd.OutOrStdout(), config.MarkdownTable())
		return nil
	}

	if err := setupLog(opts.logLevelFlags); err != nil {
		return err
	}
	if opts.logFile != "" {
		if err := logging.OpenFile(opts.logFile); err != nil {
			return err
		}
		defer func() { _ = logging.Close() }()
	}

	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return err
	}

	logger := logging.GetLogger("ferry")
	logger.Info("Starting ferry %s", Version)

	a, err := app.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to assemble application: %w", err)
	}
	if err := a.Run(cmd.Context()); err != nil {
		return err
	}

	logger.Info("Shutdown complete")
	return nil
}

// setupLog initializes the logging system with parsed log level flags
// Supports per-package log levels and environment variables
// Priority: CLI flags > Environment variables > Initialize default
func setupLog(flags []string) error {
	defaultLevel, packageLevels, err := parseLogLevelFlags(flags)
	if err != nil {
		return err
	}
	return logging.Initialize(defaultLevel, packageLevels)
}

// parseLogLevelFlags parses CLI flags and environment variables
// Priority: CLI flags > Environment variables
//
// CLI format: ["debug"], ["default=info", "broker.consumer=debug"], or ["info"]
// Env vars: LOG_LEVEL_BROKER_CONSUMER=debug (package name uppercased, dots to underscores)
//
// Returns: (defaultLevel, packageLevels map, error)
func parseLogLevelFlags(flags []string) (string, map[string]string, error) {
	result := make(map[string]string)

	for _, envPair := range os.Environ() {
		if !strings.HasPrefix(envPair, "LOG_LEVEL_") {
			continue
		}
		parts := strings.SplitN(envPair, "=", 2)
		if len(parts) != 2 {
			continue
		}
		result[convertEnvKeyToPackageName(parts[0])] = parts[1]
	}

	for _, flag := range flags {
		pkg, level, found := strings.Cut(flag, "=")
		if !found {
			result["default"] = flag
			continue
		}
		result[pkg] = level
	}

	defaultLevel := "info"
	if level, exists := result["default"]; exists {
		defaultLevel = level
		delete(result, "default")
	}

	if err := validateLogLevel(defaultLevel); err != nil {
		return "", nil, err
	}
	for pkg, level := range result {
		if err := validateLogLevel(level); err != nil {
			return "", nil, fmt.Errorf("invalid log level for package %q: %v", pkg, err)
		}
	}

	return defaultLevel, result, nil
}

// convertEnvKeyToPackageName converts LOG_LEVEL_BROKER_CONSUMER -> broker.consumer
func convertEnvKeyToPackageName(envKey string) string {
	name := strings.TrimPrefix(envKey, "LOG_LEVEL_")
	return strings.ToLower(strings.ReplaceAll(name, "_", "."))
}

// validateLogLevel checks if a level string is valid
func validateLogLevel(level string) error {
	if _, err := logging.ParseLevel(level); err != nil {
		return fmt.Errorf("invalid log level: %s (must be one of: debug, info, warn, error, fatal)", level)
	}
	return nil
}

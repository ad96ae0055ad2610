package cli

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/stateres/internal/config"
	"github.com/roach88/stateres/internal/store"
	"github.com/roach88/stateres/internal/telemetry"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	LogLevel string
	Database string

	// Config holds the environment defaults the flags started from.
	Config config.Config

	// RunID is a UUIDv7 attached to logs and JSON responses.
	RunID string

	Logger   *slog.Logger
	shutdown func(context.Context) error
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the stateres CLI.
// Flag defaults come from the environment (see package config).
func NewRootCommand() *cobra.Command {
	cfg, cfgErr := config.Load()
	opts := &RootOptions{Config: cfg}

	cmd := &cobra.Command{
		Use:   "stateres",
		Short: "stateres - room state resolution",
		Long: `Resolve forked room state deterministically.

Events live in a SQLite store; state sets are read from files or named
snapshots and merged with the state resolution v2 algorithm.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgErr != nil {
				return WrapExitError(ExitCommandError, "invalid environment", cfgErr)
			}
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return opts.setup(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if opts.shutdown == nil {
				return nil
			}
			if err := opts.shutdown(cmd.Context()); err != nil {
				opts.Logger.Warn("trace shutdown failed", "error", err)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output (forces debug logging)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", cfg.Format, "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", cfg.LogLevel, "log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&opts.Database, "db", cfg.Database, "path to SQLite event store")

	cmd.AddCommand(NewImportCommand(opts))
	cmd.AddCommand(NewResolveCommand(opts))
	cmd.AddCommand(NewAuthChainCommand(opts))
	cmd.AddCommand(NewSnapshotCommand(opts))
	cmd.AddCommand(NewScenarioCommand(opts))

	return cmd
}

// setup configures logging and tracing for a command run.
func (o *RootOptions) setup(cmd *cobra.Command) error {
	level, err := config.ParseLogLevel(o.LogLevel)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --log-level", err)
	}
	if o.Verbose {
		level = slog.LevelDebug
	}

	o.RunID = uuid.Must(uuid.NewV7()).String()
	handler := slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})
	o.Logger = slog.New(handler).With("run_id", o.RunID)
	slog.SetDefault(o.Logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	shutdown, err := telemetry.Setup(ctx, o.Config.ServiceName, o.Config.OTelEndpoint)
	if err != nil {
		// Tracing is optional; resolution still runs on the no-op tracer.
		o.Logger.Warn("tracing disabled", "error", err)
	}
	o.shutdown = shutdown
	return nil
}

// openStore opens the --db store.
func (o *RootOptions) openStore() (*store.Store, error) {
	if o.Database == "" {
		return nil, NewExitError(ExitCommandError, "--db is required (or set STATERES_DB)")
	}
	st, err := store.Open(o.Database)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// logger returns the configured logger, or the default before setup ran.
func (o *RootOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

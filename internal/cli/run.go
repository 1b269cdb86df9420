package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/tokenflow/engine/internal/firing"
	"github.com/tokenflow/engine/internal/store"
	"github.com/tokenflow/engine/internal/validate"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database   string
	Injections string
	TTL        time.Duration
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <catalogue-dir> <process.json>",
		Short: "Compile a process, inject tokens, and pump the Firing Engine to completion",
		Long: `Load a resource-spec catalogue and a process definition, compile the
process graph, inject the tokens listed in --inject, and call RunStep
in a loop until the queue drains. Every completed token is persisted to
--db, keyed by its trace id.

Example:
  tokenflow run ./specs ./process.json --inject ./injections.json --db ./run.db`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the sqlite token store (required)")
	cmd.Flags().StringVar(&opts.Injections, "inject", "", "path to a JSON array of token injections (required)")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", time.Hour, "maximum token age before it is dropped as expired")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("inject")

	return cmd
}

func runProcess(opts *RunOptions, catalogueDir, processPath string, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	cat, err := LoadCatalogue(catalogueDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load catalogue", err)
	}

	def, err := LoadProcessDef(processPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load process definition", err)
	}
	proc, err := def.BuildProcess()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build process graph", err)
	}

	chainValidator := validate.NewChainValidator(cat)
	proc.Compile(chainValidator)

	injections, err := LoadInjections(opts.Injections)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load injections", err)
	}
	if err := ApplyInjections(proc, injections); err != nil {
		return WrapExitError(ExitCommandError, "failed to apply injections", err)
	}

	st, err := store.Open(opts.Database, opts.Table)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open token store", err)
	}
	defer st.Close()
	repo := store.NewTokenRepository(st, logger)

	tokenValidator := validate.NewTokenValidator(cat)
	eng := firing.New(tokenValidator, BuiltinRegistry(), opts.TTL, firing.WithLogger(logger))

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	steps := 0
	for {
		result := eng.RunStep(ctx, proc)
		if result == nil {
			break
		}
		steps++
		formatter.VerboseLog("step %d: task=%s success=%v message=%q routes=%d", steps, result.TaskID, result.Success, result.Message, result.RoutesTriggered)
	}

	for _, tok := range proc.Completed() {
		if err := repo.Save(ctx, tok); err != nil {
			return WrapExitError(ExitFailure, "failed to persist completed token", err)
		}
	}

	return formatter.Success(fmt.Sprintf("ran %d step(s), %d token(s) completed and persisted", steps, len(proc.Completed())))
}

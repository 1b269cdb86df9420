package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tokenflow/engine/internal/firing"
	"github.com/tokenflow/engine/internal/store"
	"github.com/tokenflow/engine/internal/validate"
)

// BatchOptions holds flags for the batch command.
type BatchOptions struct {
	*RootOptions
	Database string
	Specs    []string // "process.json=injections.json" pairs
	TTL      time.Duration
}

// batchSpec is one parsed "process.json=injections.json" pair.
type batchSpec struct {
	ProcessPath    string
	InjectionsPath string
}

// NewBatchCommand creates the batch command.
//
// A host may run multiple processes in parallel even though a single
// graph.Process is not itself safe for concurrent access: batch gives each
// --process entry its own independently-owned graph.Process, pumped to
// completion on its own goroutine and coordinated by an errgroup.Group so
// the first process failure cancels the rest and its error surfaces to the
// caller.
func NewBatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "batch <catalogue-dir>",
		Short: "Run several independent processes against one catalogue concurrently",
		Long: `Load one resource-spec catalogue, then compile and run each
--process entry as its own independently-owned process graph on its own
goroutine. All processes share the catalogue (read-only, safe to share)
and the sqlite token store; each owns its own queue and pending buffers.

Example:
  tokenflow batch ./specs --db ./run.db \
    --process ./a.json=./a-inject.json \
    --process ./b.json=./b-inject.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the sqlite token store (required)")
	cmd.Flags().StringArrayVar(&opts.Specs, "process", nil, "process.json=injections.json pair (repeatable, required)")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", time.Hour, "maximum token age before it is dropped as expired")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("process")

	return cmd
}

func parseBatchSpecs(raw []string) ([]batchSpec, error) {
	specs := make([]batchSpec, 0, len(raw))
	for _, r := range raw {
		parts := strings.SplitN(r, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid --process entry %q: want process.json=injections.json", r)
		}
		specs = append(specs, batchSpec{ProcessPath: parts[0], InjectionsPath: parts[1]})
	}
	return specs, nil
}

func runBatch(opts *BatchOptions, catalogueDir string, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	specs, err := parseBatchSpecs(opts.Specs)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --process flags", err)
	}

	cat, err := LoadCatalogue(catalogueDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load catalogue", err)
	}
	chainValidator := validate.NewChainValidator(cat)
	tokenValidator := validate.NewTokenValidator(cat)

	st, err := store.Open(opts.Database, opts.Table)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open token store", err)
	}
	defer st.Close()
	repo := store.NewTokenRepository(st, logger)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	type outcome struct {
		processID string
		steps     int
		completed int
	}
	results := make([]outcome, len(specs))

	group, gctx := errgroup.WithContext(ctx)
	for i, spec := range specs {
		i, spec := i, spec
		group.Go(func() error {
			def, err := LoadProcessDef(spec.ProcessPath)
			if err != nil {
				return fmt.Errorf("%s: %w", spec.ProcessPath, err)
			}
			proc, err := def.BuildProcess()
			if err != nil {
				return fmt.Errorf("%s: %w", spec.ProcessPath, err)
			}
			proc.Compile(chainValidator)

			injections, err := LoadInjections(spec.InjectionsPath)
			if err != nil {
				return fmt.Errorf("%s: %w", spec.InjectionsPath, err)
			}
			if err := ApplyInjections(proc, injections); err != nil {
				return fmt.Errorf("%s: %w", spec.InjectionsPath, err)
			}

			eng := firing.New(tokenValidator, BuiltinRegistry(), opts.TTL, firing.WithLogger(logger))

			steps := 0
			for {
				result := eng.RunStep(gctx, proc)
				if result == nil {
					break
				}
				steps++
			}

			for _, tok := range proc.Completed() {
				if err := repo.Save(gctx, tok); err != nil {
					return fmt.Errorf("process %s: persisting completed token: %w", def.ProcessID, err)
				}
			}

			results[i] = outcome{processID: def.ProcessID, steps: steps, completed: len(proc.Completed())}
			return nil
		})
	}

	if err := group.Wait(); err != nil {
		return WrapExitError(ExitFailure, "batch run failed", err)
	}

	totalCompleted := 0
	for _, o := range results {
		totalCompleted += o.completed
		formatter.VerboseLog("process %s: %d step(s), %d token(s) completed", o.processID, o.steps, o.completed)
	}
	return formatter.Success(fmt.Sprintf("ran %d process(es), %d token(s) completed and persisted", len(specs), totalCompleted))
}

package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tokenflow/engine/internal/ir"
	"github.com/tokenflow/engine/internal/store"
)

// InjectOptions holds flags for the inject command.
type InjectOptions struct {
	*RootOptions
	Database string
	TraceID  string
	SourceID string
	Content  string
	Topics   string
}

// NewInjectCommand creates the inject command.
func NewInjectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InjectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inject",
		Short: "Write a standalone token into the token store",
		Long: `Construct a token from --content/--topics and persist it directly to
--db, generating a trace id and source id via uuid when not supplied.

This writes to storage only — it does not run the Firing Engine. Use
'tokenflow run --inject' to drive a token through a compiled process.

Example:
  tokenflow inject --db ./run.db --content '{"text":"hello"}' --topics '{"greeting":0.9}'`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInject(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the sqlite token store (required)")
	cmd.Flags().StringVar(&opts.TraceID, "trace-id", "", "trace id (generated via uuid if empty)")
	cmd.Flags().StringVar(&opts.SourceID, "source-id", "", "source id (generated via uuid if empty)")
	cmd.Flags().StringVar(&opts.Content, "content", "{}", "token content as JSON")
	cmd.Flags().StringVar(&opts.Topics, "topics", "{}", "token topic scores as JSON")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runInject(opts *InjectOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	var content map[string]any
	if err := json.Unmarshal([]byte(opts.Content), &content); err != nil {
		return WrapExitError(ExitCommandError, "invalid --content JSON", err)
	}
	var topics map[string]float64
	if err := json.Unmarshal([]byte(opts.Topics), &topics); err != nil {
		return WrapExitError(ExitCommandError, "invalid --topics JSON", err)
	}

	traceID := opts.TraceID
	if traceID == "" {
		traceID = uuid.NewString()
	}
	sourceID := opts.SourceID
	if sourceID == "" {
		sourceID = uuid.NewString()
	}

	tok, err := ir.New(traceID, sourceID, content, topics, time.Now())
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid token", err)
	}

	st, err := store.Open(opts.Database, opts.Table)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open token store", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	repo := store.NewTokenRepository(st, logger)
	if err := repo.Save(cmd.Context(), tok); err != nil {
		return WrapExitError(ExitFailure, "failed to save token", err)
	}

	return formatter.Success(fmt.Sprintf("injected trace_id=%s source_id=%s", traceID, sourceID))
}

package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tokenflow/engine/internal/store"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database string
	SourceID string
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "List every stored token spawned from a source id",
		Long: `Look up every token persisted under --source-id and print its trace
id, history, and current content/topics.

Example:
  tokenflow trace --db ./run.db --source-id <id>`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the sqlite token store (required)")
	cmd.Flags().StringVar(&opts.SourceID, "source-id", "", "source id to look up (required)")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("source-id")

	return cmd
}

// traceEntry is the JSON/text shape of one looked-up token.
type traceEntry struct {
	TraceID string             `json:"trace_id"`
	History []string           `json:"history"`
	Content map[string]any     `json:"content"`
	Topics  map[string]float64 `json:"topics"`
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	st, err := store.Open(opts.Database, opts.Table)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open token store", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	repo := store.NewTokenRepository(st, logger)

	tokens, err := repo.LookupBySource(cmd.Context(), opts.SourceID)
	if err != nil {
		return WrapExitError(ExitFailure, "failed to look up tokens", err)
	}

	entries := make([]traceEntry, 0, len(tokens))
	for _, tok := range tokens {
		entries = append(entries, traceEntry{
			TraceID: tok.TraceID,
			History: tok.History,
			Content: tok.Content,
			Topics:  tok.Topics,
		})
	}

	if opts.Format == "json" {
		return formatter.Success(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "no tokens found for source_id %s\n", opts.SourceID)
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(cmd.OutOrStdout(), "trace_id=%s history=%v content=%v topics=%v\n", e.TraceID, e.History, e.Content, e.Topics)
	}
	return nil
}

// Package cli wraps the spec catalogue, process graph, and firing engine in
// a thin cobra command surface: a RootOptions struct threaded through every
// subcommand, an ExitError carrying a process exit code, and an
// OutputFormatter choosing between text and a JSON envelope.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds flags shared by every subcommand.
type RootOptions struct {
	Verbose bool
	Format  string
	Table   string
}

// ValidFormats enumerates the accepted --format values.
var ValidFormats = []string{"text", "json"}

// NewRootCommand builds the tokenflow root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "tokenflow",
		Short: "tokenflow - a colored-token workflow engine",
		Long:  "Compile, run, inject into, and trace a token-driven process graph.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json)")
	cmd.PersistentFlags().StringVar(&opts.Table, "table", "tokens", "sqlite table name for token persistence")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewBatchCommand(opts))
	cmd.AddCommand(NewInjectCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tokenflow/engine/internal/validate"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <catalogue-dir> <process.json>",
		Short: "Validate a process graph against a resource-spec catalogue",
		Long: `Load a resource-spec catalogue from a CUE directory, parse a process
definition, and run the Process Graph's two static checks: chain
compatibility between every linked task pair, and cycle detection.

Example:
  tokenflow compile ./specs ./process.json`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], args[1], cmd)
		},
	}

	return cmd
}

func runCompile(opts *CompileOptions, catalogueDir, processPath string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout(), Verbose: opts.Verbose}

	cat, err := LoadCatalogue(catalogueDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load catalogue", err)
	}
	formatter.VerboseLog("loaded %d resource specs from %s", cat.Len(), catalogueDir)

	def, err := LoadProcessDef(processPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load process definition", err)
	}

	proc, err := def.BuildProcess()
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to build process graph", err)
	}

	chainValidator := validate.NewChainValidator(cat)
	if ok := proc.Compile(chainValidator); !ok {
		compileErr := proc.CompileErrors(chainValidator)
		return WrapExitError(ExitFailure, fmt.Sprintf("compile failed with %d error(s)", proc.ErrorCount()), compileErr)
	}

	return formatter.Success(fmt.Sprintf("process %q compiled: %d tasks", def.ProcessID, len(def.Tasks)))
}

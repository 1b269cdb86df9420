// Command tokenflow is a thin cobra wrapper around the engine packages
// under internal/ — compile a process graph, run it to completion, inject
// a standalone token, or trace one by source id.
package main

import (
	"fmt"
	"os"

	"github.com/tokenflow/engine/internal/cli"
)

func main() {
	root := cli.NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}

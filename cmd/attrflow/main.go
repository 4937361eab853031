// Command attrflow validates, runs and tests attribute propagation
// topologies.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/attrflow/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}

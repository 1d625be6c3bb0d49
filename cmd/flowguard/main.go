// Command flowguard operates a FlowGuard ledger from the command line.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/flowguard/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}

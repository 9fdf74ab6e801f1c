// Command codex is the symbolic registry and fusion engine CLI.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/codex/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}

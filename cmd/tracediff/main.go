// Command tracediff checks a CPU emulator's execution trace against a
// reference log.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/tracediff/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		if !cli.IsReported(err) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(cli.GetExitCode(err))
	}
}

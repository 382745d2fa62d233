// Command swiftdriver plans and runs Swift builds described by a CUE manifest.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/swiftdriver/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "swiftdriver:", err)
		os.Exit(cli.ExitCodeOf(err))
	}
}

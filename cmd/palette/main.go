// Command palette renders html/template files that use palette components.
package main

import (
	"fmt"
	"os"

	"impractical.co/palette/internal/cli"
)

// Build information injected via ldflags.
var (
	version = "dev"
	commit  = "none"
)

func main() {
	root := cli.NewRootCommand(fmt.Sprintf("%s (commit: %s)", version, commit))
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

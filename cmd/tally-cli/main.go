// Command tally-cli computes per-category totals for a spreadsheet from the
// command line and inspects the configured record store.
package main

import (
	"os"

	"tally/internal/cli"
)

func main() {
	cli.LoadEnvFile()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

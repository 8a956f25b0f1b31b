// Command foreman is the CLI launcher for the Agent Loop and Sprint
// Scheduler (spec §6 "CLI surface").
package main

import (
	"os"

	"github.com/re-cinq/foreman/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}

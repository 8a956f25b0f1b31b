// Package cli implements foreman's command-line surface (spec §6 "CLI
// surface (launcher)"), built on github.com/spf13/cobra the way the
// teacher's internal/cli package is.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is set at build time via ldflags.
var Version = "dev"

var configPath string

var rootCmd = &cobra.Command{
	Use:   "foreman",
	Short: "Run and supervise autonomous coding agents",
	Long: `foreman launches and supervises autonomous coding-agent sessions: a
single-threaded Agent Loop that cycles a backend through initializer,
coder, manager, QA, and cleanup roles against signal files in the project
directory, or a Sprint Scheduler that fans a goal out across a dependency
DAG of concurrent worker agents, each isolated in its own git worktree.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "agent_config.yaml", "Path to agent config file")
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("foreman %s\n", Version)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

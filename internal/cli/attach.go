package cli

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/re-cinq/foreman/internal/session"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(attachCmd)
}

var attachCmd = &cobra.Command{
	Use:   "attach NAME",
	Short: "Attach to a running session's live log output",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := session.Open()
		if err != nil {
			return err
		}
		status, err := store.Get(args[0])
		if err != nil {
			return err
		}
		if status.State != "running" {
			return fmt.Errorf("session %q is not running (last known pid %d)", args[0], status.PID)
		}

		fmt.Printf("attached to session %q (pid %d) -- Ctrl-C to detach\n", status.Name, status.PID)
		tailCmd := exec.Command("tail", "-n", "20", "-f", status.LogFile)
		tailCmd.Stdout = os.Stdout
		tailCmd.Stderr = os.Stderr
		return tailCmd.Run()
	},
}

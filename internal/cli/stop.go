package cli

import (
	"fmt"

	"github.com/re-cinq/foreman/internal/session"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(stopCmd)
}

var stopCmd = &cobra.Command{
	Use:   "stop NAME",
	Short: "Stop a running session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := session.Open()
		if err != nil {
			return err
		}
		if err := store.Stop(args[0]); err != nil {
			return err
		}
		fmt.Printf("stopped session %q\n", args[0])
		return nil
	},
}

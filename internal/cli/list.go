package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/re-cinq/foreman/internal/session"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(listCmd)
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List known sessions and their liveness",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := session.Open()
		if err != nil {
			return err
		}
		statuses, err := store.List()
		if err != nil {
			return err
		}
		if len(statuses) == 0 {
			fmt.Println("no sessions")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 2, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tSTATE\tTYPE\tPID\tSTARTED")
		for _, s := range statuses {
			fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", s.Name, s.State, s.Type, s.PID, s.StartTime.Format("2006-01-02 15:04:05"))
		}
		return w.Flush()
	},
}

package cli

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/re-cinq/foreman/internal/session"
	"github.com/re-cinq/foreman/internal/sprint"
	"github.com/spf13/cobra"
)

var (
	statusFollow   bool
	statusInterval float64
)

func init() {
	statusCmd.Flags().BoolVarP(&statusFollow, "follow", "f", false, "Live-update status (like watch)")
	statusCmd.Flags().Float64VarP(&statusInterval, "interval", "n", 2.0, "Seconds between updates (with --follow)")
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the status of every known Session and the current Sprint Plan",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repoDir, err := os.Getwd()
		if err != nil {
			return err
		}
		if statusFollow {
			return followStatus(repoDir)
		}
		return renderStatus(os.Stdout, repoDir)
	},
}

func followStatus(repoDir string) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	interval := time.Duration(statusInterval * float64(time.Second))
	var lastOutput string

	for {
		var buf bytes.Buffer
		if err := renderStatus(&buf, repoDir); err != nil {
			fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		output := buf.String()

		if output != lastOutput {
			fmt.Print("\033[H\033[2J")
			fmt.Printf("Every %.1fs: foreman status\n\n", statusInterval)
			fmt.Print(output)
			lastOutput = output
		}

		select {
		case <-sigCh:
			fmt.Println()
			return nil
		case <-time.After(interval):
		}
	}
}

func renderStatus(w io.Writer, repoDir string) error {
	store, err := session.Open()
	if err != nil {
		return err
	}
	statuses, err := store.List()
	if err != nil {
		return err
	}

	fmt.Fprintln(w, "Session Status")
	fmt.Fprintln(w, "──────────────────────────────────────")
	if len(statuses) == 0 {
		fmt.Fprintln(w, "  (no sessions)")
	}
	for _, s := range statuses {
		sym, _ := sessionStateDisplay(s.State == "running", s.State)
		fmt.Fprintf(w, "  %s  %-20s  %-10s  pid %d\n", sym, s.Name, s.State, s.PID)
	}

	data, derr := gatherStatuslineData(repoDir)
	if derr == nil && len(data.Tasks) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "Sprint: %s\n", data.SprintGoal)
		fmt.Fprintln(w, "──────────────────────────────────────")
		for _, t := range data.Tasks {
			sym, _ := taskStateDisplay(sprint.Status(t.Status))
			fmt.Fprintf(w, "  %s  %-10s  %-10s  %s\n", sym, t.ID, t.Status, t.Title)
		}
	}

	return nil
}

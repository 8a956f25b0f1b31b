package cli

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/re-cinq/foreman/internal/adapters/notify"
	"github.com/re-cinq/foreman/internal/adapters/pr"
	"github.com/re-cinq/foreman/internal/adapters/ticket"
	"github.com/re-cinq/foreman/internal/backend"
	"github.com/re-cinq/foreman/internal/completion"
	"github.com/re-cinq/foreman/internal/config"
	"github.com/re-cinq/foreman/internal/control"
	"github.com/re-cinq/foreman/internal/gitsafe"
	"github.com/re-cinq/foreman/internal/loop"
	"github.com/re-cinq/foreman/internal/metrics"
	"github.com/re-cinq/foreman/internal/obslog"
	"github.com/re-cinq/foreman/internal/session"
	"github.com/spf13/cobra"
)

var (
	runDetached      bool
	runName          string
	runTicket        string
	runSkipChecks    bool
	runVerbose       bool
	runModel         string
	runMaxIterations int
)

func init() {
	runCmd.Flags().BoolVar(&runDetached, "detached", false, "Spawn the session as a background process and return immediately")
	runCmd.Flags().StringVar(&runName, "name", "", "Session name (defaults to the project directory name)")
	runCmd.Flags().StringVar(&runTicket, "ticket", "", "Bind this session to a Jira ticket key, switching to the jira-* prompt roles")
	runCmd.Flags().BoolVar(&runSkipChecks, "skip-checks", false, "Skip creating a disposable git branch (the session still refuses to start on a protected branch such as main)")
	runCmd.Flags().BoolVar(&runVerbose, "verbose", false, "Verbose logging")
	runCmd.Flags().StringVar(&runModel, "model", "", "Override the configured backend model")
	runCmd.Flags().IntVar(&runMaxIterations, "max-iterations", 0, "Override settings.max_iterations (0 keeps the configured value)")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Launch an Agent Loop session in the current project",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadAndValidateConfig(configPath)
		if err != nil {
			return err
		}
		if runModel != "" {
			cfg.Backend.Model = runModel
		}
		if runMaxIterations > 0 {
			cfg.Settings.MaxIterations = runMaxIterations
		}
		if runTicket != "" {
			if cfg.Jira == nil {
				cfg.Jira = &config.JiraConfig{}
			}
			cfg.Jira.TicketKey = runTicket
		}

		projectDir, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolving working directory: %w", err)
		}

		name := runName
		if name == "" {
			name = filepath.Base(projectDir)
		}

		if runDetached {
			return spawnDetached(name, projectDir)
		}

		return runForeground(cmd.Context(), cfg, name, projectDir)
	},
}

// spawnDetached re-execs the current binary with --detached stripped,
// backgrounds it in its own session group, and records it in the Session
// Store — the same Setsid/Release daemonisation the teacher's trigger
// command used, now recorded through internal/session instead of a bare
// PID file.
func spawnDetached(name, projectDir string) error {
	store, err := session.Open()
	if err != nil {
		return fmt.Errorf("opening session store: %w", err)
	}

	self, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolving self: %w", err)
	}

	args := []string{"run", "--config", configPath, "--name", name}
	if runTicket != "" {
		args = append(args, "--ticket", runTicket)
	}
	if runSkipChecks {
		args = append(args, "--skip-checks")
	}
	if runVerbose {
		args = append(args, "--verbose")
	}
	if runModel != "" {
		args = append(args, "--model", runModel)
	}
	if runMaxIterations > 0 {
		args = append(args, "--max-iterations", fmt.Sprint(runMaxIterations))
	}
	command := append([]string{self}, args...)

	rec, err := store.Start(name, command, session.TypeDetached, "")
	if err != nil {
		return err
	}

	logFile, err := os.OpenFile(rec.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening session log: %w", err)
	}
	defer logFile.Close()

	c := exec.Command(self, args...)
	c.Dir = projectDir
	c.Stdin = nil
	c.Stdout = logFile
	c.Stderr = logFile
	c.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	// Strip CLAUDECODE so a detached session can still invoke a CLI-subprocess
	// backend even when launched from inside a Claude Code session.
	for _, e := range os.Environ() {
		if !strings.HasPrefix(e, "CLAUDECODE=") {
			c.Env = append(c.Env, e)
		}
	}

	if err := c.Start(); err != nil {
		return fmt.Errorf("spawning detached session: %w", err)
	}
	if err := store.Attach(rec, c.Process.Pid); err != nil {
		return err
	}
	if err := c.Process.Release(); err != nil {
		return fmt.Errorf("detaching session: %w", err)
	}

	fmt.Printf("started session %q (pid %d)\n", name, c.Process.Pid)
	return nil
}

func runForeground(ctx context.Context, cfg *config.Config, name, projectDir string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		if _, ok := <-sigCh; ok {
			cancel()
		}
	}()

	repo := gitsafe.NewRepo(projectDir)
	if !runSkipChecks {
		ticketOrSession := name
		if cfg.IsTicketBound() {
			ticketOrSession = cfg.Jira.TicketKey
		}
		branch, err := repo.EnsureSafe(ticketOrSession)
		if err != nil {
			return fmt.Errorf("git safety check: %w", err)
		}
		fmt.Printf("working on disposable branch %s\n", branch)
	} else if err := repo.AssertSafe(); err != nil {
		return err
	}

	logger := obslog.Discard()
	if runVerbose {
		if l, err := obslog.Open(filepath.Join(projectDir, "session.log")); err == nil {
			logger = l
			defer logger.Close()
		}
	}

	be, err := backend.New(cfg)
	if err != nil {
		return fmt.Errorf("constructing backend: %w", err)
	}

	l := loop.New(projectDir, cfg, be, loop.DefaultPromptBuilder(projectDir))
	l.Logger = logger
	l.Metrics = metrics.FromEnv(name)

	if cfg.Settings.DashboardURL != "" {
		ctrl := control.New(name, cfg.Settings.DashboardURL)
		defer ctrl.Close()
		l.Control = ctrl
	}

	fanout := buildNotifier(name)
	l.Notify = func(event, message string) { fanout.Notify(notify.Kind(event), message) }

	if cfg.IsTicketBound() {
		l.OnSignOff = func(ctx context.Context) error {
			return runCompletionWorkflow(ctx, cfg, repo, projectDir)
		}
	}

	result, err := l.Run(ctx)
	if err != nil {
		return fmt.Errorf("session %q: %w", name, err)
	}
	fmt.Printf("session %q finished after %d iteration(s): %s\n", name, result.Iterations, result.Reason)
	return nil
}

func buildNotifier(agentID string) *notify.Fanout {
	return notify.New(agentID, os.Getenv("SLACK_WEBHOOK_URL"), os.Getenv("DISCORD_WEBHOOK_URL"), nil)
}

func runCompletionWorkflow(ctx context.Context, cfg *config.Config, repo *gitsafe.Repo, projectDir string) error {
	var tickets *ticket.Client
	if url := os.Getenv("JIRA_URL"); url != "" {
		tickets = ticket.New(url, os.Getenv("JIRA_EMAIL"), os.Getenv("JIRA_TOKEN"))
	}

	var prs *pr.Client
	if token := firstNonEmpty(os.Getenv("GIT_TOKEN"), os.Getenv("GITHUB_TOKEN")); token != "" {
		prs = pr.New(token, os.Getenv("GIT_HOST"))
	}

	w := &completion.Workflow{
		Repo:       repo,
		Tickets:    tickets,
		PRs:        prs,
		TicketKey:  cfg.Jira.TicketKey,
		DoneStatus: cfg.DoneStatus(),
	}
	_, err := w.Run(ctx, projectDir)
	return err
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

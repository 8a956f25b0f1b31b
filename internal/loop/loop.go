package loop

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/re-cinq/foreman/internal/backend"
	"github.com/re-cinq/foreman/internal/config"
	"github.com/re-cinq/foreman/internal/control"
	"github.com/re-cinq/foreman/internal/metrics"
	"github.com/re-cinq/foreman/internal/obslog"
	"github.com/re-cinq/foreman/internal/toolexec"
)

const (
	signedOffFile      = "PROJECT_SIGNED_OFF"
	cleanupReportFile  = "cleanup_report.txt"
	triggerManagerFile = "TRIGGER_MANAGER"
	completedFile      = "COMPLETED"
	qaPassedFile       = "QA_PASSED"
	humanInLoopFile    = "human_in_loop.txt"
	featureListFile    = "feature_list.json"
	stateFile          = ".agent_state.json"

	// cleanupExtension is the number of extra iterations allowed past
	// max_iterations to let a sign-off's cleanup turn finish (spec §4.G
	// "Cap handling").
	cleanupExtension = 5
)

// feature mirrors one entry of feature_list.json; only Passes is consulted
// by role selection (spec §4.G "auto sign-off candidate").
type feature struct {
	Name   string `json:"name"`
	Passes bool   `json:"passes"`
}

// PromptBuilder renders the prompt text for a role. Supplied by the caller
// so prompt content (templates, per-project customisation) stays outside
// the loop's concerns.
type PromptBuilder func(role Role) string

// CompletionHook runs exactly once, the first iteration sign-off is
// observed on a ticket-bound Session (spec §4.I).
type CompletionHook func(ctx context.Context) error

// Notifier is a best-effort event sink; errors are never propagated (spec
// §7 "Best-effort").
type Notifier func(event, message string)

// Loop drives one Session through iterations until a terminal signal or
// the iteration cap (spec §4.G).
type Loop struct {
	Dir       string
	Cfg       *config.Config
	Backend   backend.Backend
	Executor  *toolexec.Executor
	Control   *control.Client // optional
	Prompts   PromptBuilder
	OnSignOff CompletionHook // optional, ticket-bound Sessions only
	Notify    Notifier       // optional
	Logger    *obslog.Logger // optional
	Metrics   metrics.Sink   // optional; defaults to a no-op sink

	State State

	watcher *signalWatcher // low-latency pause-wait wake-up; nil if unavailable
}

// New constructs a Loop and resumes State from disk if a state file exists
// (spec §4.G "Resume").
func New(dir string, cfg *config.Config, be backend.Backend, prompts PromptBuilder) *Loop {
	l := &Loop{
		Dir:      dir,
		Cfg:      cfg,
		Backend:  be,
		Executor: toolexec.NewExecutor(dir, cfg.Settings.BlockTimeout.Duration()),
		Prompts:  prompts,
		Metrics:  metrics.NoOp(),
		State:    State{IsFirstRun: !exists(filepath.Join(dir, featureListFile))},
	}
	l.loadState()
	return l
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func (l *Loop) path(name string) string { return filepath.Join(l.Dir, name) }

func (l *Loop) loadState() {
	data, err := os.ReadFile(l.path(stateFile))
	if err != nil {
		return
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		l.logf("failed to parse %s, starting fresh: %s", stateFile, err)
		return
	}
	l.State = st
}

func (l *Loop) saveState() {
	data, err := json.MarshalIndent(l.State, "", "  ")
	if err != nil {
		return
	}
	_ = os.WriteFile(l.path(stateFile), data, 0o644)
}

func (l *Loop) logf(format string, args ...any) {
	if l.Logger != nil {
		l.Logger.Infof(format, args...)
	}
}

func (l *Loop) notify(event, msg string) {
	if l.Notify != nil {
		l.Notify(event, msg)
	}
}

func (l *Loop) metricsSink() metrics.Sink {
	if l.Metrics != nil {
		return l.Metrics
	}
	return metrics.NoOp()
}

func (l *Loop) report(partial map[string]any) {
	if l.Control != nil {
		l.Control.ReportState(partial)
	}
}

// readSignals gathers the project directory's signal-file state fresh
// each iteration (spec §4.G).
func (l *Loop) readSignals() Signals {
	sig := Signals{
		SignedOff:            exists(l.path(signedOffFile)),
		CleanupReportPresent: exists(l.path(cleanupReportFile)),
		TriggerManagerFile:   exists(l.path(triggerManagerFile)),
		CompletedPresent:     exists(l.path(completedFile)),
		QAPassedPresent:      exists(l.path(qaPassedFile)),
	}

	if data, err := os.ReadFile(l.path(featureListFile)); err == nil {
		sig.FeatureListExists = true
		var features []feature
		if json.Unmarshal(data, &features) == nil && len(features) > 0 {
			allPass := true
			for _, f := range features {
				if !f.Passes {
					allPass = false
					break
				}
			}
			sig.AllFeaturesPassing = allPass
		}
	}

	if data, err := os.ReadFile(l.path(humanInLoopFile)); err == nil {
		sig.HumanInLoopPresent = true
		lines := strings.SplitN(string(data), "\n", 2)
		sig.HumanInLoopReason = strings.TrimSpace(lines[0])
	}

	return sig
}

// cleanStaleSignals removes signal files left by a prior aborted run, on a
// fresh (first-run) Session only (spec §4.G "Resume").
func (l *Loop) cleanStaleSignals() {
	for _, f := range []string{completedFile, qaPassedFile, signedOffFile} {
		_ = os.Remove(l.path(f))
	}
}

// Result is the outcome of Run.
type Result struct {
	Reason     string // "max_iterations" | "stopped" | "human_in_loop" | "too_many_errors" | "cleanup_complete"
	Iterations int
}

// Run drives the Session to completion (spec §4.G main loop, grounded on
// base_agent.py's run_autonomous_loop).
func (l *Loop) Run(ctx context.Context) (Result, error) {
	if l.State.IsFirstRun {
		l.cleanStaleSignals()
	}

	watcher, ok := newSignalWatcher(l.Dir)
	if ok {
		l.watcher = watcher
		defer watcher.Close()
	}

	l.report(map[string]any{"current_task": "Initializing", "is_running": true})

	for {
		if l.Cfg.Settings.MaxIterations >= 0 && l.State.Iteration >= l.Cfg.Settings.MaxIterations {
			sig := l.readSignals()
			extend := sig.SignedOff && !sig.CleanupReportPresent &&
				l.State.Iteration < l.Cfg.Settings.MaxIterations+cleanupExtension
			if !extend {
				return l.finish("max_iterations"), nil
			}
			l.logf("max iterations reached, extending for cleanup (iteration %d)", l.State.Iteration+1)
		}

		if stop, err := l.checkControlSignals(ctx); err != nil {
			return Result{}, err
		} else if stop {
			return l.finish("stopped"), nil
		}

		if l.Control != nil && l.Control.Snapshot().SkipRequested {
			l.Control.ClearSkip()
			continue
		}

		l.State.Iteration++
		l.report(map[string]any{"iteration": l.State.Iteration, "current_task": "Preparing Prompt"})

		sig := l.readSignals()
		if sig.HumanInLoopPresent {
			l.notify("human_in_loop", "Human intervention requested: "+sig.HumanInLoopReason)
			l.report(map[string]any{"is_running": false, "current_task": "Stopped: Human in Loop (" + sig.HumanInLoopReason + ")"})
			return l.finish("human_in_loop"), nil
		}
		if sig.SignedOff {
			l.notify("project_completion", "Project has been signed off and completed.")
			if l.OnSignOff != nil && l.Cfg.IsTicketBound() {
				if err := l.OnSignOff(ctx); err != nil {
					l.logf("completion workflow failed (best-effort): %s", err)
				}
				l.OnSignOff = nil // run exactly once
			}
			if sig.CleanupReportPresent {
				return l.finish("cleanup_complete"), nil
			}
			l.logf("project signed off, continuing for final cleanup")
		}

		if err := l.executeIteration(ctx, sig); err != nil {
			return Result{}, err
		}

		if l.State.ConsecutiveErrors >= l.Cfg.Settings.MaxConsecutiveErrs {
			l.logf("too many consecutive errors (%d), stopping", l.State.ConsecutiveErrors)
			return l.finish("too_many_errors"), nil
		}
	}
}

func (l *Loop) finish(reason string) Result {
	l.report(map[string]any{"is_running": false, "current_task": "Completed"})
	return Result{Reason: reason, Iterations: l.State.Iteration}
}

// checkControlSignals polls for stop/pause and, while paused, re-polls
// control at least every 100ms (sooner when the signal watcher reports a
// file change). It runs at the top of each iteration, so control is not
// polled while a backend call or tool blocks are running.
func (l *Loop) checkControlSignals(ctx context.Context) (bool, error) {
	if l.Control == nil {
		return false, nil
	}
	snap := l.Control.Poll(ctx)
	if snap.StopRequested {
		l.report(map[string]any{"is_running": false, "current_task": "Stopped"})
		return true, nil
	}
	if snap.PauseRequested {
		l.report(map[string]any{"current_task": "Paused", "is_paused": true})
		for snap.PauseRequested {
			select {
			case <-ctx.Done():
				return false, ctx.Err()
			case <-l.watcher.Events():
			case <-time.After(100 * time.Millisecond):
			}
			snap = l.Control.Poll(ctx)
			if snap.StopRequested {
				return true, nil
			}
		}
		l.report(map[string]any{"current_task": "Resuming...", "is_paused": false})
	}
	return false, nil
}

func (l *Loop) executeIteration(ctx context.Context, sig Signals) error {
	flags := Flags{
		TicketBound:      l.Cfg.IsTicketBound(),
		RunManagerFirst:  l.Cfg.Settings.RunManagerFirst,
		ManagerFrequency: l.Cfg.Settings.ManagerFrequency,
	}
	decision := SelectRole(IterationState{Iteration: l.State.Iteration, HasRunManagerFirst: l.State.HasRunManagerFirst}, flags, sig)
	l.applyDecision(decision)

	prompt := l.Prompts(decision.Role)
	prompt = l.injectJiraContext(prompt)
	prompt = l.Cfg.ResolvePreamble() + "\n\n" + prompt

	l.report(map[string]any{"current_task": fmt.Sprintf("Executing %s", decision.Role)})

	start := time.Now()
	result, err := l.Backend.Run(ctx, prompt, l.Dir, func(line string) {
		l.report(map[string]any{"last_log": line})
	})
	l.metricsSink().ObserveHistogram("foreman_backend_run_seconds", time.Since(start).Seconds(), map[string]string{"role": string(decision.Role)})
	if err != nil {
		l.State.ConsecutiveErrors++
		l.notify("error", "Agent encountered error: "+err.Error())
		l.metricsSink().IncCounter("foreman_backend_errors_total", map[string]string{"role": string(decision.Role)})
		l.saveState()
		return nil // transient (spec §7): retried next iteration, not propagated
	}

	blocks := toolexec.Parse(result.Content)
	execLog := l.Executor.Run(ctx, blocks)

	actions := make([]string, 0, len(execLog.Results))
	for _, r := range execLog.Results {
		actions = append(actions, describeAction(r))
	}
	l.State.pushHistory(actions)
	l.report(map[string]any{"last_log": l.State.RecentHistory})

	l.State.ConsecutiveErrors = 0
	l.State.IsFirstRun = false
	l.notify("iteration", fmt.Sprintf("Iteration %d complete. Actions: %d", l.State.Iteration, len(actions)))
	l.metricsSink().IncCounter("foreman_iterations_total", map[string]string{"role": string(decision.Role)})
	l.saveState()
	return nil
}

func describeAction(r toolexec.Result) string {
	return fmt.Sprintf("%s:%s", r.Block.Kind, r.Block.Arg)
}

func (l *Loop) applyDecision(d Decision) {
	if d.ConsumeTriggerManager {
		_ = os.Remove(l.path(triggerManagerFile))
	}
	if d.ConsumeManagerFirst {
		l.State.HasRunManagerFirst = true
	}
}

// injectJiraContext substitutes the jira ticket tokens into a prompt when
// the Session is ticket-bound (spec §4.G "Jira substitution").
func (l *Loop) injectJiraContext(prompt string) string {
	if !l.Cfg.IsTicketBound() {
		return prompt
	}
	ticketKey := l.Cfg.Jira.TicketKey
	suffix := ticketKey
	if len(suffix) > 8 {
		suffix = suffix[len(suffix)-8:]
	}
	prompt = strings.ReplaceAll(prompt, "{jira_ticket_context}", "Ticket: "+ticketKey)
	prompt = strings.ReplaceAll(prompt, "{unique_branch_suffix}", suffix)
	return prompt
}

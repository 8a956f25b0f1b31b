package sprint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/re-cinq/foreman/internal/backend"
	"github.com/re-cinq/foreman/internal/knowledge"
	"github.com/re-cinq/foreman/internal/toolexec"
	"github.com/re-cinq/foreman/internal/worktree"
	"golang.org/x/sync/semaphore"
)

// maxDependencyContextChars bounds how much of a dependency's recorded
// output gets appended to a dependent task's worker prompt.
const maxDependencyContextChars = 2000

// WorkerPromptFunc renders the worker prompt for a task.
type WorkerPromptFunc func(task Task) string

// Notifier is a best-effort event sink.
type Notifier func(event, message string)

// Scheduler drives a Plan to completion with bounded parallelism, one
// isolated Worktree per task (spec §4.H).
type Scheduler struct {
	RepoDir      string
	MaxAgents    int
	MaxTurns     int
	BlockTimeout time.Duration

	NewBackend   func(task Task) backend.Backend
	WorkerPrompt WorkerPromptFunc
	Worktrees    *worktree.Manager
	Notify       Notifier
	// Knowledge is the optional cross-task knowledge store (.agent_db.sqlite,
	// spec §6). A nil Knowledge disables dependency-output context and
	// output recording; every call against it is a safe no-op.
	Knowledge *knowledge.Store

	mu         sync.Mutex
	plan       *Plan
	tasksByID  map[string]*Task
	completed  map[string]bool
	failed     map[string]bool
	runningSet map[string]bool
}

// NewScheduler constructs a Scheduler for one Plan.
func NewScheduler(repoDir string, maxAgents, maxTurns int, wt *worktree.Manager) *Scheduler {
	return &Scheduler{
		RepoDir:    repoDir,
		MaxAgents:  maxAgents,
		MaxTurns:   maxTurns,
		Worktrees:  wt,
		tasksByID:  make(map[string]*Task),
		completed:  make(map[string]bool),
		failed:     make(map[string]bool),
		runningSet: make(map[string]bool),
	}
}

func (s *Scheduler) notify(event, msg string) {
	if s.Notify != nil {
		s.Notify(event, msg)
	}
}

// Run executes plan to completion: admission-controlled dispatch of
// runnable tasks until every task is COMPLETED or FAILED, or a deadlock is
// detected (spec §4.H "Deadlock").
func (s *Scheduler) Run(ctx context.Context, plan *Plan) error {
	s.mu.Lock()
	s.plan = plan
	for i := range plan.Tasks {
		t := &plan.Tasks[i]
		s.tasksByID[t.ID] = t
	}
	s.mu.Unlock()

	sem := semaphore.NewWeighted(int64(s.MaxAgents))
	var wg sync.WaitGroup

	for {
		s.mu.Lock()
		total := len(s.plan.Tasks)
		done := len(s.completed) + len(s.failed)
		if done >= total {
			s.mu.Unlock()
			break
		}

		runnable := s.runnableLocked()
		deadlock := len(s.runningSet) == 0 && len(runnable) == 0 && done < total
		s.mu.Unlock()

		if deadlock {
			wg.Wait()
			return fmt.Errorf("sprint deadlock: no running or runnable tasks with %d/%d tasks incomplete", total-done, total)
		}

		for _, task := range runnable {
			if !sem.TryAcquire(1) {
				break
			}
			s.mu.Lock()
			task.Status = StatusInProgress
			s.runningSet[task.ID] = true
			s.mu.Unlock()

			wg.Add(1)
			go func(t *Task) {
				defer wg.Done()
				defer sem.Release(1)
				s.runWorker(ctx, t)
			}(task)
		}

		select {
		case <-ctx.Done():
			wg.Wait()
			return ctx.Err()
		case <-time.After(200 * time.Millisecond):
		}
	}

	wg.Wait()
	s.updateFeatureList()
	return nil
}

// runnableLocked returns tasks whose dependencies are all COMPLETED and
// which aren't already running. Caller must hold s.mu.
func (s *Scheduler) runnableLocked() []*Task {
	var out []*Task
	for i := range s.plan.Tasks {
		t := &s.plan.Tasks[i]
		if t.Status != StatusPending && t.Status != StatusBlocked {
			continue
		}
		if s.runningSet[t.ID] {
			continue
		}
		depsMet := true
		for _, d := range t.Dependencies {
			if !s.completed[d] {
				depsMet = false
				break
			}
		}
		if depsMet {
			t.Status = StatusPending
			out = append(out, t)
		} else {
			t.Status = StatusBlocked
		}
	}
	return out
}

func (s *Scheduler) finishTask(task *Task, status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()
	task.Status = status
	delete(s.runningSet, task.ID)
	switch status {
	case StatusCompleted:
		s.completed[task.ID] = true
	case StatusFailed:
		s.failed[task.ID] = true
	}
}

// runWorker drives one task's bounded mini-loop: ≤ MaxTurns turns against
// the worker prompt in an isolated Worktree, terminating on a completion
// sentinel, the turn cap, or a loop detector (spec §4.H).
func (s *Scheduler) runWorker(ctx context.Context, task *Task) {
	wtPath := s.RepoDir
	if s.Worktrees != nil {
		path, err := s.Worktrees.Create(task.ID)
		if err != nil {
			s.notify("sprint_task_failed", fmt.Sprintf("task %s: worktree creation failed: %s", task.ID, err))
			s.finishTask(task, StatusFailed)
			return
		}
		wtPath = path
	}

	be := s.NewBackend(*task)
	executor := toolexec.NewExecutor(wtPath, s.BlockTimeout)
	prompt := s.WorkerPrompt(*task)
	if depCtx := s.dependencyContext(ctx, task); depCtx != "" {
		prompt = prompt + "\n\n" + depCtx
	}

	var prevActions []string
	var prevText string
	identicalActionStreak := 0
	identicalTextStreak := 0

	final := StatusFailed
	for turn := 1; turn <= s.MaxTurns; turn++ {
		result, err := be.Run(ctx, prompt, wtPath, nil)
		if err != nil {
			continue // transient: backend errors retried next turn, up to the turn cap
		}

		if strings.Contains(result.Content, sentinelComplete) {
			final = StatusCompleted
			prevText = result.Content
			break
		}
		if strings.Contains(result.Content, sentinelFailed) {
			final = StatusFailed
			break
		}

		blocks := toolexec.Parse(result.Content)
		execLog := executor.Run(ctx, blocks)
		actions := make([]string, 0, len(execLog.Results))
		for _, r := range execLog.Results {
			actions = append(actions, fmt.Sprintf("%s:%s", r.Block.Kind, r.Block.Arg))
		}

		if hasRunawayToken(result.Content) {
			s.notify("sprint_task_failed", fmt.Sprintf("task %s: runaway output detector tripped", task.ID))
			final = StatusFailed
			break
		}
		if sameActions(actions, prevActions) {
			identicalActionStreak++
		} else {
			identicalActionStreak = 0
		}
		if result.Content == prevText {
			identicalTextStreak++
		} else {
			identicalTextStreak = 0
		}
		if identicalActionStreak >= identicalRepeatLimit || identicalTextStreak >= identicalRepeatLimit {
			s.notify("sprint_task_failed", fmt.Sprintf("task %s: loop detector tripped on turn %d", task.ID, turn))
			final = StatusFailed
			break
		}

		prevActions, prevText = actions, result.Content
	}

	if final == StatusCompleted {
		if s.Worktrees != nil {
			ok, err := s.Worktrees.Merge(task.ID)
			if err != nil || !ok {
				s.notify("sprint_task_failed", fmt.Sprintf("task %s: merge failed: %v", task.ID, err))
				final = StatusFailed
			}
		}
	}
	if s.Worktrees != nil {
		s.Worktrees.Cleanup(task.ID, final == StatusCompleted)
	}

	if final == StatusCompleted {
		task.Output = truncate(prevText, maxDependencyContextChars)
		if err := s.Knowledge.RecordTaskOutput(ctx, task.ID, task.FeatureName, task.Output); err != nil {
			s.notify("sprint_task_complete", fmt.Sprintf("task %s: knowledge store write failed: %s", task.ID, err))
		}
		s.notify("sprint_task_complete", fmt.Sprintf("Task Completed: %s", task.Title))
	}
	s.finishTask(task, final)
}

// dependencyContext renders a "what your dependencies produced" section from
// the knowledge store for a task with completed Dependencies, so a worker
// doesn't have to rediscover what upstream tasks already did.
func (s *Scheduler) dependencyContext(ctx context.Context, task *Task) string {
	if s.Knowledge == nil || len(task.Dependencies) == 0 {
		return ""
	}
	outputs, err := s.Knowledge.TaskOutputs(ctx, task.Dependencies)
	if err != nil || len(outputs) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Context from completed dependency tasks:\n")
	for _, dep := range task.Dependencies {
		out, ok := outputs[dep]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "- %s: %s\n", dep, out)
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func sameActions(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// hasRunawayToken reports whether any single whitespace-delimited token of
// length ≥ 3 appears ≥ runawayTokenCount times in text (spec §4.H
// "Runaway-output detector").
func hasRunawayToken(text string) bool {
	counts := make(map[string]int)
	for _, tok := range strings.Fields(text) {
		if len(tok) < 3 {
			continue
		}
		counts[tok]++
		if counts[tok] >= runawayTokenCount {
			return true
		}
	}
	return false
}

type featureEntry struct {
	Name   string `json:"name"`
	Status string `json:"status,omitempty"`
	Passes bool   `json:"passes,omitempty"`
}

// updateFeatureList marks each feature whose entire planned-task subset is
// COMPLETED as "completed" in feature_list.json (spec §4.H "Feature-list
// update").
func (s *Scheduler) updateFeatureList() {
	path := filepath.Join(s.RepoDir, "feature_list.json")
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	var features []featureEntry
	if json.Unmarshal(data, &features) != nil {
		return
	}

	tasksByFeature := make(map[string][]*Task)
	for i := range s.plan.Tasks {
		t := &s.plan.Tasks[i]
		if t.FeatureName != "" {
			tasksByFeature[t.FeatureName] = append(tasksByFeature[t.FeatureName], t)
		}
	}

	updated := false
	for i := range features {
		tasks, ok := tasksByFeature[features[i].Name]
		if !ok || len(tasks) == 0 {
			continue
		}
		allDone := true
		for _, t := range tasks {
			if t.Status != StatusCompleted {
				allDone = false
				break
			}
		}
		if allDone && features[i].Status != "completed" {
			features[i].Status = "completed"
			updated = true
		}
	}

	if updated {
		if out, err := json.MarshalIndent(features, "", "  "); err == nil {
			_ = os.WriteFile(path, out, 0o644)
		}
	}
}

// Package worktree implements the Worktree Manager (spec §4.D): isolated
// per-task git worktrees for the Sprint Scheduler, so concurrent tasks never
// collide on the parent repository's working tree.
//
// Grounded on original_source/agents/shared/worktree_manager.py
// (WorktreeManager.create_worktree/merge_worktree/rescue_worktree/
// cleanup_worktree) and the teacher's engine.go worktree plumbing
// (gitops.WorktreePath, repo.CreateWorktree, rebaseWorktree).
package worktree

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/re-cinq/foreman/internal/fileutil"
)

// Manager creates and tears down per-task worktrees under
// <repo>/.sprint_workspaces. Merges are serialized because they mutate the
// parent repository's checked-out branch (spec §4.D invariant).
type Manager struct {
	RepoPath     string
	WorktreesDir string

	gitAvailable bool
	mergeMu      sync.Mutex
}

// New probes for git availability and prepares the worktrees directory.
// If git is unavailable, the Manager degrades to a no-op mode (spec §4.D
// "degrade to no-op if git worktree is unavailable"): callers run tasks
// directly against RepoPath instead of an isolated copy.
func New(repoPath string) (*Manager, error) {
	wtDir := filepath.Join(repoPath, ".sprint_workspaces")
	if err := fileutil.EnsureDir(wtDir); err != nil {
		return nil, fmt.Errorf("preparing worktrees dir: %w", err)
	}
	m := &Manager{RepoPath: repoPath, WorktreesDir: wtDir}
	m.gitAvailable = probeGit()
	return m, nil
}

func probeGit() bool {
	cmd := exec.Command("git", "--version")
	return cmd.Run() == nil
}

// Available reports whether isolated worktrees are in effect for this
// Manager, i.e. whether git worktree support was detected at construction.
func (m *Manager) Available() bool { return m.gitAvailable }

func branchName(taskID string) string { return "sprint/task-" + taskID }

func (m *Manager) path(taskID string) string { return filepath.Join(m.WorktreesDir, taskID) }

func (m *Manager) runGit(dir string, args ...string) (string, error) {
	cmd := exec.Command("git", args...)
	cmd.Dir = dir
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("git %s: %s: %w", strings.Join(args, " "), strings.TrimSpace(string(out)), err)
	}
	return strings.TrimSpace(string(out)), nil
}

// Create prepares an isolated worktree for taskID, based on the parent
// repo's current HEAD. If a worktree already exists at the target path
// (a stale leftover from a crashed run) it is force-cleaned up first.
// Degrades to returning RepoPath directly when git is unavailable.
func (m *Manager) Create(taskID string) (string, error) {
	if !m.gitAvailable {
		return m.RepoPath, nil
	}

	wtPath := m.path(taskID)
	if _, err := os.Stat(wtPath); err == nil {
		m.Cleanup(taskID, true)
	}

	if _, err := m.runGit(m.RepoPath, "worktree", "add", "-b", branchName(taskID), wtPath, "HEAD"); err != nil {
		return "", fmt.Errorf("creating worktree for task %s: %w", taskID, err)
	}
	return wtPath, nil
}

// Merge merges a task's branch back into the branch currently checked out
// in the parent repo, using --no-ff so the task's history is preserved.
// Merges are serialized: concurrent tasks finishing at the same time must
// not race on the parent repo's working tree.
func (m *Manager) Merge(taskID string) (bool, error) {
	if !m.gitAvailable {
		return true, nil
	}

	m.mergeMu.Lock()
	defer m.mergeMu.Unlock()

	_, err := m.runGit(m.RepoPath, "merge", "--no-ff", branchName(taskID), "-m", "Merge task "+taskID)
	if err != nil {
		return false, err
	}
	return true, nil
}

// Rescue commits any uncommitted work-in-progress in a task's worktree so
// it survives a forced shutdown or cancellation. A failed commit (nothing
// to commit) is not treated as an error.
func (m *Manager) Rescue(taskID string) bool {
	if !m.gitAvailable {
		return false
	}
	wtPath := m.path(taskID)
	if _, err := os.Stat(wtPath); err != nil {
		return false
	}

	if _, err := m.runGit(wtPath, "add", "."); err != nil {
		return false
	}
	_, _ = m.runGit(wtPath, "commit", "-m", fmt.Sprintf("WIP: saved progress for task %s on interrupt", taskID))
	return true
}

// Cleanup removes a task's worktree and, if deleteBranch is set, its
// branch. Falls back to a forced directory removal plus `worktree prune`
// if `git worktree remove` itself fails (e.g. a dirty worktree).
func (m *Manager) Cleanup(taskID string, deleteBranch bool) {
	if !m.gitAvailable {
		return
	}
	wtPath := m.path(taskID)

	if _, err := os.Stat(wtPath); err == nil {
		if _, err := m.runGit(m.RepoPath, "worktree", "remove", "--force", wtPath); err != nil {
			_ = os.RemoveAll(wtPath)
			_, _ = m.runGit(m.RepoPath, "worktree", "prune")
		}
	}

	if deleteBranch {
		_, _ = m.runGit(m.RepoPath, "branch", "-D", branchName(taskID))
	}
}

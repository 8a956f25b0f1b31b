// Package fileutil collects small filesystem helpers shared across foreman:
// project-relative paths under .foreman, the user-level data directory used
// by the Session Store, and a process-wide stderr logger for best-effort
// diagnostics that have no owning Session.
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// EnsureDir creates a directory and all parent directories with 0755 permissions.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0o755)
}

// ForemanDir returns the per-project state directory, `.foreman` at the
// repository root.
func ForemanDir(repoDir string) string {
	return filepath.Join(repoDir, ".foreman")
}

// ForemanSubdir builds a path to a subdirectory within .foreman.
func ForemanSubdir(repoDir, subdir string) string {
	return filepath.Join(ForemanDir(repoDir), subdir)
}

// SprintWorkspaceDir returns the root directory under which sprint worktrees
// are created, `.sprint_workspaces` per spec §6.
func SprintWorkspaceDir(repoDir string) string {
	return filepath.Join(repoDir, ".sprint_workspaces")
}

// TaskWorktreePath returns the expected worktree path for a sprint task.
func TaskWorktreePath(repoDir, taskID string) string {
	return filepath.Join(SprintWorkspaceDir(repoDir), taskID)
}

// UserDataDir returns the root directory for session records, logs, and the
// operator-level agent_config.yaml, honouring XDG_DATA_HOME when set.
func UserDataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "foreman"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving user home: %w", err)
	}
	return filepath.Join(home, ".local", "share", "foreman"), nil
}

// UserLogDir returns the directory that holds detached-session log files.
func UserLogDir() (string, error) {
	dataDir, err := UserDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "logs"), nil
}

// UserConfigPath returns the path to the operator-level agent_config.yaml.
func UserConfigPath() (string, error) {
	dataDir, err := UserDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dataDir, "agent_config.yaml"), nil
}

// AgentDBPath returns the per-project optional key/value and knowledge store
// path, `.agent_db.sqlite` at the repository root (spec §6 persisted state
// layout).
func AgentDBPath(repoDir string) string {
	return filepath.Join(repoDir, ".agent_db.sqlite")
}

// LogError writes a timestamped diagnostic line to stderr, for code paths
// that have no owning Session log writer to report through; see
// internal/obslog for the per-Session equivalent.
func LogError(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	fmt.Fprintf(os.Stderr, "%s [foreman] %s\n", time.Now().UTC().Format(time.RFC3339), msg)
}

package gitsafe

import (
	"os/exec"
	"testing"

	"github.com/re-cinq/foreman/internal/fileutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func initRepo(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		require.NoErrorf(t, err, "git %v: %s", args, out)
	}
	run("init", "-q")
	run("config", "user.email", "t@example.com")
	run("config", "user.name", "t")
	run("commit", "--allow-empty", "-q", "-m", "init")
	return dir
}

func TestIsProtected(t *testing.T) {
	assert.True(t, IsProtected("main"))
	assert.True(t, IsProtected("Master"))
	assert.False(t, IsProtected("agent/foo-123"))
}

func TestEnsureSafeNeverLeavesProtectedBranch(t *testing.T) {
	dir := initRepo(t)
	r := NewRepo(dir)

	branch, err := r.EnsureSafe("TICKET-1")
	require.NoError(t, err)
	assert.False(t, IsProtected(branch))

	current, err := r.CurrentBranch()
	require.NoError(t, err)
	assert.Equal(t, branch, current)
}

func TestPushRefusesProtectedBranch(t *testing.T) {
	dir := initRepo(t)
	r := NewRepo(dir)
	ok, err := r.Push("main")
	require.NoError(t, err)
	assert.False(t, ok, "push to main must be refused")
}

func TestAssertSafeFatalOnProtectedBranch(t *testing.T) {
	dir := initRepo(t)
	cmd := exec.Command("git", "branch", "-M", "main")
	cmd.Dir = dir
	require.NoError(t, cmd.Run())

	r := NewRepo(dir)
	err := r.AssertSafe()
	require.Error(t, err)
}

func TestWorktreePathHelpersAreDisjoint(t *testing.T) {
	a := fileutil.TaskWorktreePath("repo", "task-1")
	b := fileutil.TaskWorktreePath("repo", "task-2")
	assert.NotEqual(t, a, b)
}

package worktree

import (
	"os"
	"os/exec"
	"path/filepath"
	"testing"

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
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("hello\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	run("add", ".")
	run("commit", "-q", "-m", "init")
	return dir
}

func TestCreateMergeCleanup(t *testing.T) {
	dir := initRepo(t)
	m, err := New(dir)
	require.NoError(t, err)
	require.True(t, m.Available())

	wtPath, err := m.Create("task-1")
	require.NoError(t, err)
	assert.DirExists(t, wtPath)

	err = os.WriteFile(filepath.Join(wtPath, "change.txt"), []byte("work\n"), 0o644)
	require.NoError(t, err)
	_, err = m.runGit(wtPath, "add", ".")
	require.NoError(t, err)
	_, err = m.runGit(wtPath, "commit", "-q", "-m", "task work")
	require.NoError(t, err)

	ok, err := m.Merge("task-1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.FileExists(t, filepath.Join(dir, "change.txt"))

	m.Cleanup("task-1", true)
	assert.NoDirExists(t, wtPath)
}

func TestCreateCleansUpStaleDirectory(t *testing.T) {
	dir := initRepo(t)
	m, err := New(dir)
	require.NoError(t, err)

	p1, err := m.Create("task-2")
	require.NoError(t, err)
	m.Cleanup("task-2", true)
	require.NoError(t, os.MkdirAll(p1, 0o755)) // simulate a leftover dir from a crashed run

	p2, err := m.Create("task-2")
	require.NoError(t, err, "Create should force-clean the stale path and succeed")
	assert.DirExists(t, p2)
}

func TestRescueCommitsWIP(t *testing.T) {
	dir := initRepo(t)
	m, err := New(dir)
	require.NoError(t, err)

	wtPath, err := m.Create("task-3")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(wtPath, "wip.txt"), []byte("partial\n"), 0o644))

	ok := m.Rescue("task-3")
	assert.True(t, ok)

	out, err := m.runGit(wtPath, "status", "--porcelain")
	require.NoError(t, err)
	assert.Empty(t, out, "rescue should have committed the pending change")
}

func TestDegradesToNoopWithoutGit(t *testing.T) {
	m := &Manager{RepoPath: t.TempDir(), gitAvailable: false}
	path, err := m.Create("task-x")
	require.NoError(t, err)
	assert.Equal(t, m.RepoPath, path)

	ok, err := m.Merge("task-x")
	require.NoError(t, err)
	assert.True(t, ok)

	assert.False(t, m.Rescue("task-x"))
	m.Cleanup("task-x", true) // must not panic
}

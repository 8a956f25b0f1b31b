package session

import (
	"os"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	s, err := Open()
	require.NoError(t, err)
	return s
}

func TestStartAttachListStop(t *testing.T) {
	s := testStore(t)

	rec, err := s.Start("build", []string{"sleep", "5"}, TypeDetached, "")
	require.NoError(t, err)

	cmd := exec.Command("sleep", "5")
	require.NoError(t, cmd.Start())
	defer cmd.Process.Kill()

	require.NoError(t, s.Attach(rec, cmd.Process.Pid))

	statuses, err := s.List()
	require.NoError(t, err)
	require.Len(t, statuses, 1)
	assert.Equal(t, "running", statuses[0].State)
	assert.Equal(t, "build", statuses[0].Name)

	require.NoError(t, s.Stop("build"))

	_, err = s.Get("build")
	assert.Error(t, err, "stopped session record should be removed")
}

func TestStartRefusesDuplicateRunningSession(t *testing.T) {
	s := testStore(t)

	rec, err := s.Start("dup", []string{"sleep", "5"}, TypeDetached, "")
	require.NoError(t, err)
	cmd := exec.Command("sleep", "5")
	require.NoError(t, cmd.Start())
	defer cmd.Process.Kill()
	require.NoError(t, s.Attach(rec, cmd.Process.Pid))

	_, err = s.Start("dup", []string{"sleep", "5"}, TypeDetached, "")
	assert.Error(t, err)
}

func TestStartReapsStaleDeadSession(t *testing.T) {
	s := testStore(t)

	rec, err := s.Start("stale", []string{"true"}, TypeDetached, "")
	require.NoError(t, err)
	require.NoError(t, s.Attach(rec, 999999)) // almost certainly not a live pid

	_, err = s.Start("stale", []string{"true"}, TypeDetached, "")
	assert.NoError(t, err, "a record pointing at a dead pid should be reaped, not block restart")
}

func TestIsProcessAliveFalseForInvalidPID(t *testing.T) {
	assert.False(t, IsProcessAlive(0))
	assert.False(t, IsProcessAlive(-1))
}

func TestLogPathReturnsSessionLogFile(t *testing.T) {
	s := testStore(t)
	rec, err := s.Start("logtest", []string{"echo", "hi"}, TypeDetached, "")
	require.NoError(t, err)
	require.NoError(t, s.Attach(rec, os.Getpid()))

	path, err := s.LogPath("logtest")
	require.NoError(t, err)
	assert.FileExists(t, path)
	// Not Stop: the record's pid is this test process, which Stop would SIGTERM.
	_ = os.Remove(s.recordPath("logtest"))
}

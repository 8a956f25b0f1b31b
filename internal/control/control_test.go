package control

import (
	"context"
	"testing"
	"time"

	"github.com/re-cinq/foreman/internal/control/testserver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestReportStateIsAsyncAndReachesServer(t *testing.T) {
	srv := testserver.New()
	defer srv.Close()

	c := New("agent-1", srv.URL())
	defer c.Close()

	c.ReportState(map[string]any{"current_task": "Coding"})

	waitFor(t, func() bool {
		hb, ok := srv.LastHeartbeat("agent-1")
		return ok && hb["current_task"] == "Coding"
	})
}

func TestPollFoldsCommandsIntoLocalState(t *testing.T) {
	srv := testserver.New()
	defer srv.Close()

	c := New("agent-2", srv.URL())
	defer c.Close()

	srv.Enqueue("agent-2", "pause")
	snap := c.Poll(context.Background())
	assert.True(t, snap.PauseRequested)

	srv.Enqueue("agent-2", "resume")
	snap = c.Poll(context.Background())
	assert.False(t, snap.PauseRequested, "resume must clear pause_requested")

	srv.Enqueue("agent-2", "skip")
	snap = c.Poll(context.Background())
	assert.True(t, snap.SkipRequested)
	c.ClearSkip()
	assert.False(t, c.Snapshot().SkipRequested)
}

func TestPollIsResilientToUnreachableServer(t *testing.T) {
	c := New("agent-3", "http://127.0.0.1:1") // nothing listening
	defer c.Close()

	snap := c.Poll(context.Background())
	require.False(t, snap.StopRequested)
}

func TestStopCommandFolds(t *testing.T) {
	srv := testserver.New()
	defer srv.Close()
	c := New("agent-4", srv.URL())
	defer c.Close()

	srv.Enqueue("agent-4", "stop")
	snap := c.Poll(context.Background())
	assert.True(t, snap.StopRequested)
}

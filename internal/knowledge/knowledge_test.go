package knowledge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSetGetRoundTrip(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	_, ok, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.Set(ctx, "sprint_goal", "ship the thing"))
	value, ok, err := s.Get(ctx, "sprint_goal")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "ship the thing", value)

	require.NoError(t, s.Set(ctx, "sprint_goal", "ship the other thing"))
	value, ok, err = s.Get(ctx, "sprint_goal")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "ship the other thing", value)
}

func TestTaskOutputsOnlyReturnsKnownIDs(t *testing.T) {
	s, err := Open("")
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	require.NoError(t, s.RecordTaskOutput(ctx, "task-1", "auth", "implemented login handler"))

	outputs, err := s.TaskOutputs(ctx, []string{"task-1", "task-2"})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"task-1": "implemented login handler"}, outputs)
}

func TestNilStoreIsSafe(t *testing.T) {
	var s *Store
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "v"))
	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, s.RecordTaskOutput(ctx, "t", "f", "c"))
	outputs, err := s.TaskOutputs(ctx, []string{"t"})
	require.NoError(t, err)
	require.Empty(t, outputs)
	require.NoError(t, s.Close())
}

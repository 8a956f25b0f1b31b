package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockCyclesAndThenRepeatsLastResponse(t *testing.T) {
	m := &Mock{Responses: []string{"first", "second"}}
	r1, err := m.Run(context.Background(), "p1", "/tmp", nil)
	require.NoError(t, err)
	assert.Equal(t, "first", r1.Content)

	r2, _ := m.Run(context.Background(), "p2", "/tmp", nil)
	assert.Equal(t, "second", r2.Content)

	r3, _ := m.Run(context.Background(), "p3", "/tmp", nil)
	assert.Equal(t, "second", r3.Content, "repeats the last scripted response once exhausted")

	assert.Equal(t, 3, m.Calls())
	require.Len(t, m.Invocations, 3)
	assert.Equal(t, "p1", m.Invocations[0].Prompt)
}

func TestCLIRunMissingBinaryIsFatal(t *testing.T) {
	c := &CLI{Command: "definitely-not-a-real-binary-xyz"}
	_, err := c.Run(context.Background(), "hi", t.TempDir(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBackendMissing)
}

func TestFilterEnvIncludesAllowlistedNames(t *testing.T) {
	t.Setenv("JIRA_TOKEN", "secret")
	t.Setenv("TOTALLY_UNRELATED_VAR", "leak-me-not")

	env := FilterEnv(nil)
	var sawJira, sawLeak bool
	for _, kv := range env {
		if kv == "JIRA_TOKEN=secret" {
			sawJira = true
		}
		if kv == "TOTALLY_UNRELATED_VAR=leak-me-not" {
			sawLeak = true
		}
	}
	assert.True(t, sawJira, "allowlisted var must pass through")
	assert.False(t, sawLeak, "non-allowlisted var must be filtered")
}

func TestFilterEnvExtraOptIn(t *testing.T) {
	t.Setenv("MY_CUSTOM_FLAG", "yes")
	env := FilterEnv([]string{"MY_CUSTOM_FLAG"})
	found := false
	for _, kv := range env {
		if kv == "MY_CUSTOM_FLAG=yes" {
			found = true
		}
	}
	assert.True(t, found)
}

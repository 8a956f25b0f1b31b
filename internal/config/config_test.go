package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := parse([]byte(`
backend:
  kind: cli
  command: claude
`))
	require.NoError(t, err)
	assert.Equal(t, 120*time.Second, cfg.Backend.Timeout.Duration())
	assert.Equal(t, 5, cfg.Settings.ManagerFrequency)
	assert.Equal(t, 3, cfg.Settings.MaxConsecutiveErrs)
	assert.Equal(t, 3, cfg.Sprint.MaxAgents)
	assert.Equal(t, 10, cfg.Sprint.MaxTurns)
}

func TestDurationUnmarshal(t *testing.T) {
	cfg, err := parse([]byte(`
backend:
  kind: mock
settings:
  block_timeout: 45s
`))
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, cfg.Settings.BlockTimeout.Duration())
}

func TestValidateRequiresCommandForCLI(t *testing.T) {
	cfg := &Config{Backend: BackendConfig{Kind: "cli"}, Sprint: SprintConfig{MaxAgents: 1, MaxTurns: 1}, Settings: Settings{ManagerFrequency: 1}}
	errs := Validate(cfg)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0].Error(), "backend.command")
}

func TestValidateUnknownBackendKind(t *testing.T) {
	cfg := &Config{Backend: BackendConfig{Kind: "telepathy"}, Sprint: SprintConfig{MaxAgents: 1, MaxTurns: 1}, Settings: Settings{ManagerFrequency: 1}}
	errs := Validate(cfg)
	require.NotEmpty(t, errs)
}

func TestIsTicketBound(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.IsTicketBound())
	cfg.Jira = &JiraConfig{TicketKey: "PROJ-1"}
	assert.True(t, cfg.IsTicketBound())
}

func TestDoneStatusDefault(t *testing.T) {
	cfg := &Config{}
	assert.Equal(t, "Code Review", cfg.DoneStatus())
	cfg.Jira = &JiraConfig{StatusMap: map[string]string{"done": "Done"}}
	assert.Equal(t, "Done", cfg.DoneStatus())
}

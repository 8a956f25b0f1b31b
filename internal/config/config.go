// Package config loads and validates foreman's YAML configuration, the
// project-level agent_config.yaml described in spec §6. It follows the
// teacher's gopkg.in/yaml.v3 conventions: a custom Duration type for
// human-readable durations, defaulting during Load, and a Validate pass
// returning all errors rather than failing on the first.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration object for one project.
type Config struct {
	Backend     BackendConfig `yaml:"backend"`
	Settings    Settings      `yaml:"settings"`
	Sprint      SprintConfig  `yaml:"sprint,omitempty"`
	Jira        *JiraConfig   `yaml:"jira,omitempty"`
	Permissions *Permissions  `yaml:"permissions,omitempty"`
	Preamble    string        `yaml:"preamble,omitempty"`
}

// BackendConfig selects and configures the Backend Runner variant (§4.B).
type BackendConfig struct {
	Kind string `yaml:"kind"` // cli | chat | local | mock
	// CLI-subprocess variant.
	Command string   `yaml:"command,omitempty"`
	Args    []string `yaml:"args,omitempty"`
	// Chat-API / Local-inference variants.
	BaseURL string `yaml:"base_url,omitempty"`
	Model   string `yaml:"model,omitempty"`
	// Shared.
	Timeout    Duration `yaml:"timeout,omitempty"`    // default 120s, §4.B activity timeout
	ExtraEnv   []string `yaml:"extra_env,omitempty"`  // opt-in allowlist additions, §4.B
	WrapperGit bool     `yaml:"wrapper_git,omitempty"` // parsed but not read: foreman does not install the §4.C git shim itself
}

// Settings holds the per-Session iteration and safety knobs from spec §3/§7.
type Settings struct {
	MaxIterations      int      `yaml:"max_iterations"`
	ManagerFrequency   int      `yaml:"manager_frequency"`
	MaxConsecutiveErrs int      `yaml:"max_consecutive_errors"` // N in invariant (v), default 3
	BlockTimeout       Duration `yaml:"block_timeout"`          // Tool-Block Bash timeout, default 120s
	RunManagerFirst    bool     `yaml:"run_manager_first"`
	PollInterval       Duration `yaml:"poll_interval"`           // default 30s; not read by the Agent Loop or the control client
	DashboardURL       string   `yaml:"dashboard_url,omitempty"` // Control/Heartbeat base URL (§4.F); empty disables it
}

// SprintConfig holds the Sprint Scheduler's admission-control knobs (§4.H).
type SprintConfig struct {
	MaxAgents int      `yaml:"max_agents"` // default 3
	MaxTurns  int      `yaml:"max_turns"`  // default 10
	Planner   string   `yaml:"planner_prompt,omitempty"`
	Worker    string   `yaml:"worker_prompt,omitempty"`
}

// JiraConfig carries ticket-binding configuration; its presence switches the
// Agent Loop's role selection to the jira-* variants (§4.G).
type JiraConfig struct {
	TicketKey string            `yaml:"ticket_key,omitempty"`
	StatusMap map[string]string `yaml:"status_map,omitempty"` // e.g. "done" -> "Code Review"
}

// Permissions mirrors a Claude-Code-style settings.json permissions block.
// It is only parsed from config; foreman does not write it into worktrees
// or pass it to a backend.
type Permissions struct {
	Allow []string `yaml:"allow" json:"allow"`
	Deny  []string `yaml:"deny,omitempty" json:"deny,omitempty"`
}

// Duration wraps time.Duration for YAML unmarshaling from strings like "10s".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Duration() time.Duration { return time.Duration(d) }

// DefaultPreamble is prepended to prompts when no custom preamble is set.
const DefaultPreamble = "You are running non-interactively. Do not ask questions or wait for confirmation.\n" +
	"If something is unclear, make your best judgement and proceed.\n" +
	"Signal completion only through the documented signal files and sentinels."

// ResolvePreamble returns the effective preamble: configured, else default.
func (cfg *Config) ResolvePreamble() string {
	if cfg.Preamble != "" {
		return cfg.Preamble
	}
	return DefaultPreamble
}

// Load reads and parses a YAML config file, applying defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return parse(data)
}

func parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Backend.Kind == "" {
		cfg.Backend.Kind = "cli"
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = Duration(120 * time.Second)
	}
	if cfg.Settings.ManagerFrequency == 0 {
		cfg.Settings.ManagerFrequency = 5
	}
	if cfg.Settings.MaxConsecutiveErrs == 0 {
		cfg.Settings.MaxConsecutiveErrs = 3
	}
	if cfg.Settings.BlockTimeout == 0 {
		cfg.Settings.BlockTimeout = Duration(120 * time.Second)
	}
	if cfg.Settings.PollInterval == 0 {
		cfg.Settings.PollInterval = Duration(30 * time.Second)
	}
	if cfg.Sprint.MaxAgents == 0 {
		cfg.Sprint.MaxAgents = 3
	}
	if cfg.Sprint.MaxTurns == 0 {
		cfg.Sprint.MaxTurns = 10
	}
}

// Validate checks a Config for structural errors, returning all of them
// rather than failing fast — the teacher's config.Validate convention.
func Validate(cfg *Config) []error {
	var errs []error

	switch cfg.Backend.Kind {
	case "cli":
		if cfg.Backend.Command == "" {
			errs = append(errs, fmt.Errorf("backend.command is required when backend.kind is %q", cfg.Backend.Kind))
		}
	case "chat", "local":
		if cfg.Backend.BaseURL == "" {
			errs = append(errs, fmt.Errorf("backend.base_url is required when backend.kind is %q", cfg.Backend.Kind))
		}
	case "mock":
		// no requirements
	default:
		errs = append(errs, fmt.Errorf("backend.kind %q is not one of cli|chat|local|mock", cfg.Backend.Kind))
	}

	if cfg.Settings.MaxIterations < 0 {
		errs = append(errs, fmt.Errorf("settings.max_iterations must be >= 0"))
	}
	if cfg.Settings.ManagerFrequency < 1 {
		errs = append(errs, fmt.Errorf("settings.manager_frequency must be >= 1"))
	}
	if cfg.Sprint.MaxAgents < 1 {
		errs = append(errs, fmt.Errorf("sprint.max_agents must be >= 1"))
	}
	if cfg.Sprint.MaxTurns < 1 {
		errs = append(errs, fmt.Errorf("sprint.max_turns must be >= 1"))
	}

	return errs
}

// IsTicketBound reports whether the Session is bound to a Jira ticket,
// switching prompt-role selection to the jira-* variants (§4.G).
func (cfg *Config) IsTicketBound() bool {
	return cfg.Jira != nil && cfg.Jira.TicketKey != ""
}

// DoneStatus returns the configured "done" Jira status name for ticket
// transition, defaulting to "Code Review" as the original implementation
// does (original_source/shared/workflow.py).
func (cfg *Config) DoneStatus() string {
	if cfg.Jira != nil && cfg.Jira.StatusMap != nil {
		if s, ok := cfg.Jira.StatusMap["done"]; ok && s != "" {
			return s
		}
	}
	return "Code Review"
}

// Package loop implements the Agent Loop (spec §4.G): the prompt-role
// state machine, iteration bookkeeping, and the main drive loop that ties
// the Backend, Tool-Block executor, Git Safety Layer, and Control/Heartbeat
// Client together for a single Session.
//
// Grounded on original_source/agents/shared/base_agent.py's BaseAgent
// (select_prompt, save_state/load_state, run_autonomous_loop).
package loop

// Role is one of the eight prompt roles the loop can select per iteration
// (spec §4.G).
type Role string

const (
	RoleInitializer     Role = "initializer"
	RoleCoder           Role = "coder"
	RoleManager         Role = "manager"
	RoleQA              Role = "qa"
	RoleCleaner         Role = "cleaner"
	RoleJiraInitializer Role = "jira-initializer"
	RoleJiraWorker      Role = "jira-worker"
	RoleJiraManager     Role = "jira-manager"
)

// Signals captures the presence of the project directory's signal files
// and feature-list state at the start of an iteration. It is read fresh
// each iteration; the loop never caches it across iterations.
type Signals struct {
	SignedOff            bool
	CleanupReportPresent bool
	TriggerManagerFile   bool
	FeatureListExists    bool
	AllFeaturesPassing   bool
	CompletedPresent     bool
	QAPassedPresent      bool
	HumanInLoopPresent   bool
	HumanInLoopReason    string
}

// Flags are the per-Session configuration inputs to role selection.
type Flags struct {
	TicketBound      bool
	RunManagerFirst  bool
	ManagerFrequency int
}

// IterationState is the subset of State consulted by SelectRole.
type IterationState struct {
	Iteration          int
	HasRunManagerFirst bool
}

// Decision is the outcome of SelectRole: the chosen prompt role plus any
// side effects the caller (applyDecision) must carry out before running the
// backend for this iteration.
type Decision struct {
	Role Role

	// ConsumeTriggerManager: the TRIGGER_MANAGER file must be deleted.
	ConsumeTriggerManager bool
	// ConsumeManagerFirst: HasRunManagerFirst must be set true.
	ConsumeManagerFirst bool
	// ExternallyTriggered records that this manager turn was triggered by
	// the TRIGGER_MANAGER file, for logging/telemetry only.
	ExternallyTriggered bool
}

// State is the persisted per-Session record (.agent_state.json, spec §6).
type State struct {
	Iteration          int      `json:"iteration"`
	ConsecutiveErrors  int      `json:"consecutive_errors"`
	IsFirstRun         bool     `json:"is_first_run"`
	HasRunManagerFirst bool     `json:"has_run_manager_first"`
	RecentHistory      []string `json:"recent_history"`
}

// recentHistoryCap bounds the action ring (spec §4.G "recent-action ring").
const recentHistoryCap = 10

func (s *State) pushHistory(actions []string) {
	s.RecentHistory = append(s.RecentHistory, actions...)
	if len(s.RecentHistory) > recentHistoryCap {
		s.RecentHistory = s.RecentHistory[len(s.RecentHistory)-recentHistoryCap:]
	}
}

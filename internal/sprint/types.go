// Package sprint implements the Sprint Scheduler (spec §4.H): given a
// repository and a goal, produce a task DAG and drive it to completion
// with bounded parallelism, isolating each task in its own Worktree.
//
// Grounded on original_source/agents/shared/sprint.py's SprintManager
// (run_planning_phase's JSON-salvage fallback, execute_sprint's
// runnable-set/admission-control loop, run_worker's turn cap and sentinel
// detection) and the teacher's engine.go topological dispatch for the
// parallel-levels idiom.
package sprint

// Status is a Task's place in its lifecycle.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusBlocked    Status = "BLOCKED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusFailed     Status = "FAILED"
)

// Task is one unit of sprint work (spec §3 Data Model, Task).
type Task struct {
	ID           string   `json:"id"`
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Dependencies []string `json:"dependencies"`
	FeatureName  string   `json:"feature_name,omitempty"`

	Status Status `json:"status"`
	Output string `json:"output,omitempty"`
}

// Plan is the planner's output: a goal and its decomposed task DAG.
type Plan struct {
	Goal  string `json:"sprint_goal"`
	Tasks []Task `json:"tasks"`
}

// completion sentinels (spec §4.H).
const (
	sentinelComplete = "SPRINT_TASK_COMPLETE"
	sentinelFailed   = "SPRINT_TASK_FAILED"
)

// detector thresholds (spec §4.H "Detectors").
const (
	identicalRepeatLimit = 3
	runawayTokenCount    = 20
)

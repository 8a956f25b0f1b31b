package sprint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/re-cinq/foreman/internal/backend"
)

const planFile = "sprint_plan.json"

// fencedJSONPattern salvages a fenced ```json or ```write:sprint_plan.json
// block from the planner's raw response when it failed to actually write
// the file (spec §4.H planning phase fallback, grounded on sprint.py's
// run_planning_phase regex salvage).
var fencedJSONPattern = regexp.MustCompile("(?s)```(?:json|write:sprint_plan\\.json)\\n(.*?)\\n```")

// Plan runs the planning phase: invokes be with the planner prompt and
// parses the resulting sprint_plan.json, salvaging it from a fenced block
// in the raw response if the backend didn't write the file directly.
func Plan(ctx context.Context, be backend.Backend, repoDir, prompt string) (*Plan, error) {
	result, err := be.Run(ctx, prompt, repoDir, nil)
	if err != nil {
		return nil, fmt.Errorf("sprint planning: backend run failed: %w", err)
	}

	planPath := filepath.Join(repoDir, planFile)
	if _, statErr := os.Stat(planPath); statErr != nil {
		match := fencedJSONPattern.FindStringSubmatch(result.Content)
		if match == nil {
			return nil, fmt.Errorf("sprint planning: %s not written and no JSON block found in response", planFile)
		}
		if err := os.WriteFile(planPath, []byte(match[1]), 0o644); err != nil {
			return nil, fmt.Errorf("sprint planning: writing salvaged plan: %w", err)
		}
	}

	data, err := os.ReadFile(planPath)
	if err != nil {
		return nil, fmt.Errorf("sprint planning: reading %s: %w", planFile, err)
	}

	var plan Plan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("sprint planning: parsing %s: %w", planFile, err)
	}
	for i := range plan.Tasks {
		plan.Tasks[i].Status = StatusPending
	}
	return &plan, nil
}

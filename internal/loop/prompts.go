package loop

import (
	"os"
	"path/filepath"
)

// defaultPrompts holds the built-in instruction text per Role, used when a
// project doesn't supply its own override file. Grounded on
// original_source/agents/gemini/prompts.py's get_*_prompt functions, which
// load role prompts from a shared prompts/ directory; foreman roots that
// override directory in the project instead of beside the binary, since a
// single statically-linked binary has no writable sibling directory.
var defaultPrompts = map[Role]string{
	RoleInitializer: "You are the initializer. Read the project goal, then write " +
		"feature_list.json enumerating the features needed to satisfy it, each " +
		"with {name, passes: false}. Do not implement anything yet.",
	RoleJiraInitializer: "You are the initializer for a ticket-bound session. The " +
		"ticket context below is your goal. Write feature_list.json enumerating " +
		"the features needed to close the ticket, each with {name, passes: false}.",
	RoleCoder: "You are the coding agent. Pick the highest-priority feature in " +
		"feature_list.json that isn't passing, implement it, and run its tests. " +
		"Mark it passing only once its tests are green. Write COMPLETED when " +
		"every feature passes.",
	RoleJiraWorker: "You are the coding agent working this ticket. Pick the " +
		"highest-priority feature in feature_list.json that isn't passing, " +
		"implement it, and run its tests. Write COMPLETED when every feature passes.",
	RoleManager: "You are the manager. Review recent progress against " +
		"feature_list.json. If everything genuinely passes and the work is " +
		"production-ready, write PROJECT_SIGNED_OFF. Otherwise leave notes on " +
		"what remains and let the coder continue.",
	RoleJiraManager: "You are the manager for a ticket-bound session. Review " +
		"progress against the ticket's acceptance criteria. If the ticket is " +
		"genuinely done, write PROJECT_SIGNED_OFF.",
	RoleQA: "You are QA. Independently verify every feature in feature_list.json " +
		"actually passes its tests. If everything checks out, write QA_PASSED. " +
		"Otherwise report what's broken.",
	RoleCleaner: "You are the cleanup agent. The project has been signed off. " +
		"Remove scratch files, stray debug output, and dead code; leave the " +
		"tree in a state fit for review. Write cleanup_report.txt when done.",
}

// DefaultPromptBuilder returns a PromptBuilder that reads
// "<projectDir>/prompts/<role>.md" when present, else falls back to the
// built-in default text for that role.
func DefaultPromptBuilder(projectDir string) PromptBuilder {
	return func(role Role) string {
		path := filepath.Join(projectDir, "prompts", string(role)+".md")
		if data, err := os.ReadFile(path); err == nil {
			return string(data)
		}
		return defaultPrompts[role]
	}
}

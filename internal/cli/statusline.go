package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/re-cinq/foreman/internal/sprint"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statuslineCmd)
}

var statuslineCmd = &cobra.Command{
	Use:   "statusline",
	Short: "Render Session/Sprint status for Claude Code's statusline (reads JSON from stdin)",
	RunE: func(cmd *cobra.Command, args []string) error {
		input, err := io.ReadAll(os.Stdin)
		if err != nil {
			return err
		}

		dir := resolveProjectDir(input)
		if dir == "" {
			return nil // silent exit
		}

		repoDir := findGitRoot(dir)
		if repoDir == "" {
			return nil
		}

		data, err := gatherStatuslineData(repoDir)
		if err != nil {
			return nil // silent exit
		}
		if rendered := renderStatusline(data); rendered != "" {
			fmt.Print(rendered)
		}
		return nil
	},
}

// claudeCodeInput represents the JSON object Claude Code passes on stdin.
type claudeCodeInput struct {
	CWD       string `json:"cwd"`
	Workspace *struct {
		ProjectDir string `json:"project_dir"`
	} `json:"workspace"`
}

// resolveProjectDir extracts the project directory from Claude Code's stdin JSON.
func resolveProjectDir(input []byte) string {
	var ci claudeCodeInput
	if err := json.Unmarshal(input, &ci); err != nil {
		return ""
	}
	if ci.Workspace != nil && ci.Workspace.ProjectDir != "" {
		return ci.Workspace.ProjectDir
	}
	return ci.CWD
}

func renderSession(s SessionData) string {
	sym, clr := sessionStateDisplay(s.State == "running", s.State)
	return fmt.Sprintf("%s%s %s%s", clr, s.Name, sym, ansiReset)
}

func renderTask(t TaskData) string {
	sym, clr := taskStateDisplay(sprint.Status(t.Status))
	return fmt.Sprintf("%s%s %s%s", clr, t.ID, sym, ansiReset)
}

// renderStatusline produces the full ANSI-colored statusline: running
// Sessions first, then the current Sprint Plan's task chain if one exists.
func renderStatusline(data StatuslineOutput) string {
	var parts []string

	if len(data.Sessions) > 0 {
		rendered := make([]string, len(data.Sessions))
		for i, s := range data.Sessions {
			rendered[i] = renderSession(s)
		}
		parts = append(parts, strings.Join(rendered, "  "))
	}

	if len(data.Tasks) > 0 {
		downstream := make(map[string][]string)
		for _, e := range data.Graph {
			downstream[e.From] = append(downstream[e.From], e.To)
		}
		byID := make(map[string]TaskData, len(data.Tasks))
		hasParent := make(map[string]bool, len(data.Tasks))
		for _, t := range data.Tasks {
			byID[t.ID] = t
		}
		for _, e := range data.Graph {
			hasParent[e.To] = true
		}

		var chains []string
		for _, t := range data.Tasks {
			if hasParent[t.ID] {
				continue
			}
			chains = append(chains, renderTaskChain(t.ID, byID, downstream))
		}
		if len(chains) > 0 {
			parts = append(parts, fmt.Sprintf("%s: %s", data.SprintGoal, strings.Join(chains, ", ")))
		}
	}

	return strings.Join(parts, "\n")
}

func renderTaskChain(id string, byID map[string]TaskData, downstream map[string][]string) string {
	chain := []string{id}
	for {
		children := downstream[chain[len(chain)-1]]
		if len(children) != 1 {
			break
		}
		chain = append(chain, children[0])
	}

	rendered := make([]string, len(chain))
	for i, tid := range chain {
		rendered[i] = renderTask(byID[tid])
	}
	return strings.Join(rendered, " ── ")
}


package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/re-cinq/foreman/internal/gitsafe"
	"github.com/re-cinq/foreman/internal/session"
	"github.com/re-cinq/foreman/internal/sprint"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statuslineDataCmd)
}

var statuslineDataCmd = &cobra.Command{
	Use:    "statusline-data",
	Short:  "Output JSON status data for Sessions and the current Sprint Plan (for statusline rendering)",
	Hidden: true,
	Args:   cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		repoDir, err := os.Getwd()
		if err != nil {
			return err
		}
		output, err := gatherStatuslineData(repoDir)
		if err != nil {
			return err
		}
		data, err := json.Marshal(output)
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

// StatuslineOutput is the top-level JSON blob for statusline rendering.
type StatuslineOutput struct {
	SourceBranch string          `json:"source_branch"`
	SourceCommit string          `json:"source_commit,omitempty"`
	Dirty        bool            `json:"dirty"`
	Sessions     []SessionData   `json:"sessions"`
	SprintGoal   string          `json:"sprint_goal,omitempty"`
	Tasks        []TaskData      `json:"tasks,omitempty"`
	Graph        []GraphEdge     `json:"graph,omitempty"`
}

// SessionData represents one Session's status for statusline rendering.
type SessionData struct {
	Name    string `json:"name"`
	State   string `json:"state"`
	Type    string `json:"type"`
	PID     int    `json:"pid,omitempty"`
	LogFile string `json:"log_file,omitempty"`
}

// TaskData represents one Sprint task's status for statusline rendering.
type TaskData struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Status string `json:"status"`
}

// GraphEdge represents a dependency: a task in From must complete before To.
type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// gatherStatuslineData collects Session Store status and, if present, the
// project directory's sprint_plan.json, without serializing.
func gatherStatuslineData(repoDir string) (StatuslineOutput, error) {
	var out StatuslineOutput

	repo := gitsafe.NewRepo(repoDir)
	if branch, err := repo.CurrentBranch(); err == nil {
		out.SourceBranch = branch
	}
	if head, err := repo.HeadCommit("HEAD"); err == nil {
		out.SourceCommit = head
	}
	if dirty, err := repo.HasChanges(); err == nil {
		out.Dirty = dirty
	}

	if store, err := session.Open(); err == nil {
		if statuses, err := store.List(); err == nil {
			for _, s := range statuses {
				out.Sessions = append(out.Sessions, SessionData{
					Name: s.Name, State: s.State, Type: string(s.Type),
					PID: s.PID, LogFile: s.LogFile,
				})
			}
		}
	}

	if data, err := os.ReadFile(filepath.Join(repoDir, sprintPlanFile)); err == nil {
		var plan sprint.Plan
		if json.Unmarshal(data, &plan) == nil {
			out.SprintGoal = plan.Goal
			idSet := make(map[string]bool, len(plan.Tasks))
			for _, t := range plan.Tasks {
				idSet[t.ID] = true
			}
			for _, t := range plan.Tasks {
				out.Tasks = append(out.Tasks, TaskData{ID: t.ID, Title: t.Title, Status: string(t.Status)})
				for _, dep := range t.Dependencies {
					if idSet[dep] {
						out.Graph = append(out.Graph, GraphEdge{From: dep, To: t.ID})
					}
				}
			}
		}
	}

	return out, nil
}

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/re-cinq/foreman/internal/sprint"
	"github.com/spf13/cobra"
)

// sprintPlanFile mirrors internal/sprint's unexported planFile constant --
// the on-disk name a Sprint Plan is persisted under in the project
// directory (spec §6 persisted state layout).
const sprintPlanFile = "sprint_plan.json"

var vizPlanPath string

func init() {
	vizCmd.Flags().StringVar(&vizPlanPath, "plan", "", "Path to a sprint_plan.json (defaults to ./sprint_plan.json)")
	rootCmd.AddCommand(vizCmd)
}

var vizCmd = &cobra.Command{
	Use:   "viz",
	Short: "Visualize a Sprint Plan's task dependency DAG",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := vizPlanPath
		if path == "" {
			path = filepath.Join(".", sprintPlanFile)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading sprint plan: %w", err)
		}
		var plan sprint.Plan
		if err := json.Unmarshal(data, &plan); err != nil {
			return fmt.Errorf("parsing sprint plan: %w", err)
		}

		printTaskGraph(&plan)
		return nil
	},
}

type vizNode struct {
	task       sprint.Task
	downstream []string
}

func printTaskGraph(plan *sprint.Plan) {
	fmt.Printf("goal: %s\n", plan.Goal)

	idSet := make(map[string]bool, len(plan.Tasks))
	for _, t := range plan.Tasks {
		idSet[t.ID] = true
	}

	nodes := make(map[string]*vizNode, len(plan.Tasks))
	for _, t := range plan.Tasks {
		nodes[t.ID] = &vizNode{task: t}
	}

	var roots []string
	for _, t := range plan.Tasks {
		if len(t.Dependencies) == 0 {
			roots = append(roots, t.ID)
			continue
		}
		for _, dep := range t.Dependencies {
			if idSet[dep] {
				nodes[dep].downstream = append(nodes[dep].downstream, t.ID)
			}
		}
	}

	for i, root := range roots {
		printTaskBranch(nodes, root, "", i == len(roots)-1)
	}
}

func printTaskBranch(nodes map[string]*vizNode, id string, prefix string, isLast bool) {
	connector := "├── "
	if isLast {
		connector = "└── "
	}

	n := nodes[id]
	fmt.Printf("%s%s%s [%s] %s\n", prefix, connector, id, n.task.Status, n.task.Title)

	childPrefix := prefix
	if isLast {
		childPrefix += "    "
	} else {
		childPrefix += "│   "
	}

	for i, child := range n.downstream {
		printTaskBranch(nodes, child, childPrefix, i == len(n.downstream)-1)
	}
}

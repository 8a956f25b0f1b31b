package cli

import (
	"fmt"
	"os"

	"github.com/re-cinq/foreman/internal/backend"
	"github.com/re-cinq/foreman/internal/fileutil"
	"github.com/re-cinq/foreman/internal/knowledge"
	"github.com/re-cinq/foreman/internal/sprint"
	"github.com/re-cinq/foreman/internal/worktree"
	"github.com/spf13/cobra"
)

var sprintGoal string

func init() {
	sprintCmd.Flags().StringVar(&sprintGoal, "goal", "", "Sprint goal text fed to the planner role (required)")
	rootCmd.AddCommand(sprintCmd)
}

var sprintCmd = &cobra.Command{
	Use:   "sprint",
	Short: "Plan and run a Sprint: parallel dependency-DAG task execution (spec §4.H)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if sprintGoal == "" {
			return fmt.Errorf("--goal is required")
		}

		cfg, err := loadAndValidateConfig(configPath)
		if err != nil {
			return err
		}

		projectDir, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("resolving working directory: %w", err)
		}

		be, err := backend.New(cfg)
		if err != nil {
			return fmt.Errorf("constructing backend: %w", err)
		}

		ctx := cmd.Context()
		fmt.Println("planning sprint...")
		plan, err := sprint.Plan(ctx, be, projectDir, plannerPrompt(sprintGoal))
		if err != nil {
			return err
		}
		fmt.Printf("sprint %q planned with %d task(s)\n", plan.Goal, len(plan.Tasks))

		store, err := knowledge.Open(fileutil.AgentDBPath(projectDir))
		if err != nil {
			return fmt.Errorf("opening knowledge store: %w", err)
		}
		defer store.Close()

		wt, err := worktree.New(projectDir)
		if err != nil {
			return fmt.Errorf("preparing worktree manager: %w", err)
		}

		sched := sprint.NewScheduler(projectDir, cfg.Sprint.MaxAgents, cfg.Sprint.MaxTurns, wt)
		sched.Knowledge = store
		sched.NewBackend = func(sprint.Task) backend.Backend { return be }
		sched.WorkerPrompt = workerPrompt
		sched.Notify = func(event, message string) { fmt.Printf("[%s] %s\n", event, message) }

		if err := sched.Run(ctx, plan); err != nil {
			return fmt.Errorf("sprint run: %w", err)
		}
		fmt.Println("sprint complete")
		return nil
	},
}

func plannerPrompt(goal string) string {
	return "You are the sprint planner. Break the following goal into a dependency-ordered " +
		"task DAG and write sprint_plan.json with {sprint_goal, tasks: [{id, title, description, " +
		"dependencies, feature_name}]}. Goal: " + goal
}

func workerPrompt(task sprint.Task) string {
	return fmt.Sprintf("You are a sprint worker. Complete task %s: %s\n%s\nEmit SPRINT_TASK_COMPLETE "+
		"when done, or SPRINT_TASK_FAILED if you cannot finish it.", task.ID, task.Title, task.Description)
}

package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

const defaultConfigTemplate = `backend:
  kind: cli
  command: claude
  args: ["--print", "--dangerously-skip-permissions"]

settings:
  max_iterations: 50
  manager_frequency: 5
  max_consecutive_errors: 3
`

func init() {
	rootCmd.AddCommand(initCmd)
}

var initCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Scaffold an agent_config.yaml and Claude Code statusline wiring in a repository",
	Long: `Scaffold a foreman project in the target repository (defaults to current
directory): a starter agent_config.yaml if one doesn't already exist, and
the Claude Code statusline command in .claude/settings.local.json.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}

		absDir, err := filepath.Abs(dir)
		if err != nil {
			return fmt.Errorf("resolving path: %w", err)
		}

		if _, err := os.Stat(filepath.Join(absDir, ".git")); err != nil {
			return fmt.Errorf("%s is not a git repository (no .git directory)", absDir)
		}

		cfgPath := filepath.Join(absDir, "agent_config.yaml")
		if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
			if err := os.WriteFile(cfgPath, []byte(defaultConfigTemplate), 0o644); err != nil {
				return fmt.Errorf("writing agent_config.yaml: %w", err)
			}
			fmt.Println("  config agent_config.yaml")
		} else {
			fmt.Println("  skip   agent_config.yaml (already exists)")
		}

		if err := initStatusline(absDir); err != nil {
			return fmt.Errorf("configuring statusline: %w", err)
		}
		fmt.Println("  config .claude/settings.local.json (statusline)")

		fmt.Println("\nDone.")
		return nil
	},
}

// initStatusline adds or updates the statusline config in .claude/settings.local.json.
func initStatusline(repoDir string) error {
	selfBin, err := os.Executable()
	if err != nil {
		selfBin = "foreman" // fall back to expecting it in PATH
	}

	claudeDir := filepath.Join(repoDir, ".claude")
	if err := os.MkdirAll(claudeDir, 0o755); err != nil {
		return err
	}
	settingsPath := filepath.Join(claudeDir, "settings.local.json")

	settings := make(map[string]interface{})
	if data, err := os.ReadFile(settingsPath); err == nil {
		if err := json.Unmarshal(data, &settings); err != nil {
			return fmt.Errorf("parsing existing %s: %w", settingsPath, err)
		}
	}

	settings["statusLine"] = map[string]string{
		"command": selfBin + " statusline",
		"type":    "command",
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(settingsPath, data, 0o644)
}

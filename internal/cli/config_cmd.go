package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/re-cinq/foreman/internal/fileutil"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configAgent string

func init() {
	configCmd.AddCommand(configListKeysCmd)
	configCmd.AddCommand(configSetCmd)
	configListModelsCmd.Flags().StringVar(&configAgent, "agent", "", "Restrict to one backend kind (cli|chat|local)")
	configCmd.AddCommand(configListModelsCmd)
	rootCmd.AddCommand(configCmd)
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and edit the operator-level agent_config.yaml",
}

// loadOperatorDoc reads the user-level config as a raw YAML mapping node,
// so `config set` can touch keys foreman's typed Config doesn't know
// about (e.g. backend-specific extras) without losing them on rewrite.
func loadOperatorDoc() (map[string]any, string, error) {
	path, err := fileutil.UserConfigPath()
	if err != nil {
		return nil, "", err
	}
	doc := map[string]any{}
	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, "", fmt.Errorf("parsing %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, "", err
	}
	return doc, path, nil
}

func saveOperatorDoc(doc map[string]any, path string) error {
	if err := fileutil.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	data, err := yaml.Marshal(doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

var configListKeysCmd = &cobra.Command{
	Use:   "list-keys",
	Short: "List every key currently set in the operator config",
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, path, err := loadOperatorDoc()
		if err != nil {
			return err
		}
		keys := flattenKeys("", doc)
		sort.Strings(keys)
		if len(keys) == 0 {
			fmt.Printf("no keys set (config file: %s)\n", path)
			return nil
		}
		for _, k := range keys {
			fmt.Println(k)
		}
		return nil
	},
}

func flattenKeys(prefix string, v any) []string {
	m, ok := v.(map[string]any)
	if !ok {
		if prefix == "" {
			return nil
		}
		return []string{prefix}
	}
	var keys []string
	for k, vv := range m {
		full := k
		if prefix != "" {
			full = prefix + "." + k
		}
		keys = append(keys, flattenKeys(full, vv)...)
	}
	return keys
}

var configSetCmd = &cobra.Command{
	Use:   "set KEY VALUE",
	Short: "Set a dot-path key in the operator config (e.g. backend.model)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, path, err := loadOperatorDoc()
		if err != nil {
			return err
		}
		setDotPath(doc, strings.Split(args[0], "."), args[1])
		if err := saveOperatorDoc(doc, path); err != nil {
			return err
		}
		fmt.Printf("set %s = %s (%s)\n", args[0], args[1], path)
		return nil
	},
}

func setDotPath(doc map[string]any, parts []string, value string) {
	if len(parts) == 1 {
		doc[parts[0]] = value
		return
	}
	next, ok := doc[parts[0]].(map[string]any)
	if !ok {
		next = map[string]any{}
		doc[parts[0]] = next
	}
	setDotPath(next, parts[1:], value)
}

// knownModels is a static catalog, not a live API lookup -- no model-listing
// endpoint exists for any of the backend kinds the Backend Runner supports,
// so this mirrors what each provider's own CLI/docs advertise at the time
// of writing.
var knownModels = map[string][]string{
	"cli":   {"claude-opus-4", "claude-sonnet-4", "claude-haiku-4"},
	"chat":  {"gpt-4.1", "gpt-4o", "o3"},
	"local": {"llama3", "qwen2.5-coder", "deepseek-coder-v2"},
}

var configListModelsCmd = &cobra.Command{
	Use:   "list-models",
	Short: "List known model names per backend kind",
	RunE: func(cmd *cobra.Command, args []string) error {
		kinds := []string{"cli", "chat", "local"}
		if configAgent != "" {
			kinds = []string{configAgent}
		}
		for _, kind := range kinds {
			models, ok := knownModels[kind]
			if !ok {
				return fmt.Errorf("unknown agent kind %q", kind)
			}
			fmt.Printf("%s:\n", kind)
			for _, m := range models {
				fmt.Printf("  %s\n", m)
			}
		}
		return nil
	},
}

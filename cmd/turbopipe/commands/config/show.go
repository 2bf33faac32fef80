package config

import (
	"fmt"
	"sort"

	"github.com/marmos91/turbopipe/internal/cli/output"
	"github.com/marmos91/turbopipe/pkg/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the effective TurboPipe configuration after defaults and
environment overrides are applied. A missing config file is not an error.

By default outputs YAML format. Use --output to change format.

Examples:
  # Show effective config as YAML
  turbopipe config show

  # Show as a flat key/value table
  turbopipe config show --output table

  # Show what an override would produce
  TURBOPIPE_ENGINE_WORKERS=8 turbopipe config show -o json`,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (yaml|json|table)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath(cmd))
	if err != nil {
		return err
	}

	format, err := output.ParseFormat(showOutput)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch format {
	case output.FormatJSON:
		return output.PrintJSON(out, cfg)
	case output.FormatTable:
		pairs, err := flatten(cfg)
		if err != nil {
			return err
		}
		return output.KeyValues(out, pairs)
	default:
		return output.PrintYAML(out, cfg)
	}
}

// flatten renders cfg as dotted key/value pairs, sorted by key.
func flatten(cfg *config.Config) ([][2]string, error) {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var pairs [][2]string
	var walk func(prefix string, node map[string]any)
	walk = func(prefix string, node map[string]any) {
		for k, v := range node {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if child, ok := v.(map[string]any); ok {
				walk(key, child)
				continue
			}
			pairs = append(pairs, [2]string{key, fmt.Sprint(v)})
		}
	}
	walk("", tree)

	sort.Slice(pairs, func(i, j int) bool { return pairs[i][0] < pairs[j][0] })
	return pairs, nil
}

package config

import (
	"fmt"

	"github.com/marmos91/turbopipe/pkg/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the TurboPipe configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  turbopipe config validate

  # Validate specific config file
  turbopipe config validate --config ./turbopipe.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configPath(cmd)

	cfg, err := config.MustLoad(path)
	if err != nil {
		return err
	}

	displayPath := path
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	var warnings []string
	if cfg.Engine.Snapshot && cfg.Engine.Workers == 1 {
		warnings = append(warnings, "Snapshot mode with a single worker copies every buffer without adding parallelism")
	}
	if cfg.API.Enabled && !cfg.Metrics.Enabled {
		warnings = append(warnings, "API server enabled with metrics disabled - /metrics will return 404")
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file: %s\n", displayPath)
	_, _ = fmt.Fprintln(out, "Validation: OK")

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(out, "\nWarnings:")
		for _, w := range warnings {
			_, _ = fmt.Fprintf(out, "  - %s\n", w)
		}
	}

	_, _ = fmt.Fprintf(out, "\nConfiguration summary:\n")
	_, _ = fmt.Fprintf(out, "  Workers:         %d\n", cfg.Engine.Workers)
	_, _ = fmt.Fprintf(out, "  Queue size:      %d\n", cfg.Engine.QueueSize)
	_, _ = fmt.Fprintf(out, "  Chunk size:      %s\n", cfg.Engine.ChunkSize)
	_, _ = fmt.Fprintf(out, "  Snapshot:        %t\n", cfg.Engine.Snapshot)
	_, _ = fmt.Fprintf(out, "  Log level:       %s\n", cfg.Logging.Level)

	return nil
}

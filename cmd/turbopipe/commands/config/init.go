package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/marmos91/turbopipe/internal/cli/prompt"
	"github.com/marmos91/turbopipe/pkg/config"
	"github.com/spf13/cobra"
)

var initForce bool

// prompter is replaced in tests.
var prompter = prompt.Prompter{}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a default configuration file",
	Long: `Initialize a TurboPipe configuration file with default values.

By default, the configuration file is created at $XDG_CONFIG_HOME/turbopipe/config.yaml.
Use --config to specify a custom path. An existing file is only replaced
after confirmation or with --force.

Examples:
  # Initialize with default location
  turbopipe config init

  # Initialize with custom path
  turbopipe config init --config ./turbopipe.yaml

  # Overwrite without asking
  turbopipe config init --force`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing config file without asking")
}

func runInit(cmd *cobra.Command, args []string) error {
	path := configPath(cmd)
	if path == "" {
		path = config.GetDefaultConfigPath()
	}

	force := initForce
	if _, err := os.Stat(path); err == nil && !force {
		ok, err := prompter.ConfirmWithForce(fmt.Sprintf("Overwrite %s", path), force)
		if err != nil {
			if errors.Is(err, prompt.ErrAborted) {
				return nil
			}
			return err
		}
		if !ok {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Aborted, existing configuration kept.")
			return nil
		}
		force = true
	}

	if err := config.InitConfigToPath(path, force); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	out := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(out, "Configuration file created at: %s\n", path)
	_, _ = fmt.Fprintln(out, "\nNext steps:")
	_, _ = fmt.Fprintln(out, "  1. Edit the configuration file to tune the engine")
	_, _ = fmt.Fprintln(out, "  2. Check it with: turbopipe config validate")
	_, _ = fmt.Fprintf(out, "  3. Run a benchmark: turbopipe bench --config %s\n", path)
	return nil
}

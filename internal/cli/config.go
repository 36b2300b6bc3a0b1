package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/signal-radar/internal/core"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
	Long: `Commands for inspecting the configuration loaded from .radarconfig and
RADAR_* environment variables.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Config == nil {
			return fmt.Errorf("configuration not loaded")
		}
		data, err := yaml.Marshal(Config)
		if err != nil {
			return fmt.Errorf("formatting configuration as YAML: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "# base path: %s\n%s", BasePath, data)
		return nil
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration for invalid values",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Config == nil {
			return fmt.Errorf("configuration not loaded")
		}
		mgr := ConfigMgr
		if mgr == nil {
			mgr = core.NewConfigurationManager(BasePath)
		}
		if err := mgr.ValidateConfig(Config); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Configuration is valid.")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(configCmd)
}

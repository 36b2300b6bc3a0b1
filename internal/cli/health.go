package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/signal-radar/internal/integration"
)

var healthJSON bool

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check which data source a session would use",
	Long: `Probe the configured backend (source.url) within source.health_timeout and
report which data source a new session would be bound to. When no backend is
configured, or it does not answer in time, the simulated source is used.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Config == nil {
			return fmt.Errorf("configuration not loaded")
		}
		_, status := integration.SelectSource(commandContext(cmd), Config)

		if healthJSON {
			data, err := json.MarshalIndent(status, "", "  ")
			if err != nil {
				return fmt.Errorf("formatting status as JSON: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			return nil
		}

		printSourceStatus(cmd, status)
		return nil
	},
}

func printSourceStatus(cmd *cobra.Command, status integration.SourceStatus) {
	out := cmd.OutOrStdout()
	if status.URL != "" {
		fmt.Fprintf(out, "  %-16s %s\n", "Backend:", status.URL)
		if status.Fallback {
			fmt.Fprintf(out, "  %-16s unavailable (%s)\n", "Backend status:", status.Error)
		} else {
			fmt.Fprintf(out, "  %-16s healthy in %s\n", "Backend status:", status.ResponseTime.Round(time.Millisecond))
		}
	} else {
		fmt.Fprintf(out, "  %-16s none configured\n", "Backend:")
	}
	fmt.Fprintf(out, "  %-16s %s\n", "Session source:", status.Name)
}

func init() {
	healthCmd.Flags().BoolVar(&healthJSON, "json", false, "Output status as JSON")
	rootCmd.AddCommand(healthCmd)
}

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/signal-radar/internal/observability"
)

var alertsNotify bool

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Show active alerts and warnings",
	Long: `Evaluate alert conditions against the event log and display any triggered alerts.

Alerts check for sessions whose live updates are persistently degraded,
bursts of protocol violations, repeated job failures, and a high incremental
poll failure rate. With --notify the alerts are also posted to the configured
webhook (notifications.webhook_url).`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if AlertEngine == nil {
			return fmt.Errorf("alert engine not initialized (observability may be disabled)")
		}

		alerts, err := AlertEngine.Evaluate()
		if err != nil {
			return fmt.Errorf("evaluating alerts: %w", err)
		}

		out := cmd.OutOrStdout()
		if len(alerts) == 0 {
			fmt.Fprintln(out, "No active alerts.")
			return nil
		}

		fmt.Fprintf(out, "%d active alert(s):\n\n", len(alerts))
		for _, alert := range alerts {
			severity := strings.ToUpper(string(alert.Severity))
			fmt.Fprintf(out, "  [%s] %s\n", severity, alert.Message)
			fmt.Fprintf(out, "         triggered at %s\n\n", alert.TriggeredAt.Format("2006-01-02 15:04 UTC"))
		}

		if alertsNotify {
			if _, nop := Notifier.(observability.NopNotifier); nop || Notifier == nil {
				return fmt.Errorf("no notifier configured (set notifications.webhook_url)")
			}
			if err := Notifier.Notify(alerts); err != nil {
				return fmt.Errorf("sending alerts: %w", err)
			}
			fmt.Fprintf(out, "Sent %d alert(s).\n", len(alerts))
		}

		return nil
	},
}

func init() {
	alertsCmd.Flags().BoolVar(&alertsNotify, "notify", false, "Post the alerts to the configured webhook")
	rootCmd.AddCommand(alertsCmd)
}

package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/signal-radar/internal/core"
	radarmcp "github.com/valter-silva-au/signal-radar/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the radar MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the radar MCP server on stdio",
	Long: `Start the radar MCP server on stdio transport.

The server owns one radar session and exposes it as MCP tools that AI
assistants can call: radar_track, radar_snapshot, radar_reset, radar_retry,
radar_subscribe, get_metrics, get_alerts.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

		session, _, err := openSession(ctx)
		if err != nil {
			return err
		}
		runner := core.NewRunner(session)
		runner.Start(ctx)
		defer runner.Stop()

		srv := radarmcp.NewServer(runner, MetricsCalc, AlertEngine, appVersion)
		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("running MCP server: %w", err)
		}

		return nil
	},
}

func init() {
	mcpCmd.AddCommand(mcpServeCmd)
	rootCmd.AddCommand(mcpCmd)
}

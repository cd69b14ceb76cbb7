package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/valter-silva-au/chatrange/internal/integration"
	crmcp "github.com/valter-silva-au/chatrange/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the chatrange MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chatrange MCP server on stdio",
	Long: `Start the chatrange MCP server on stdio transport.

The server exposes chatrange functionality as MCP tools that AI assistants
can call: capture_range, list_captures, get_capture, summarize_capture,
get_metrics, get_alerts. capture_range runs against simulated conversations.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Archive == nil || Recorder == nil {
			return fmt.Errorf("capture archive not initialized")
		}

		srv := crmcp.NewServer(crmcp.Services{
			Capturer:    integration.Simulator{Config: *config(), Events: Events},
			Archive:     Archive,
			Recorder:    Recorder,
			MetricsCalc: MetricsCalc,
			AlertEngine: AlertEngine,
		}, appVersion)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer stop()

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

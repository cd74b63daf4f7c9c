package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	relaymcp "github.com/valter-silva-au/ai-dev-relay/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "MCP server commands",
	Long:  "Commands for running the relay MCP (Model Context Protocol) server.",
}

var mcpServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the relay MCP server on stdio",
	Long: `Start the relay MCP server on stdio transport.

The server exposes read-only views of the workflow as MCP tools an agent can
call: list_tasks, get_task, evaluate_gate, get_compliance_report, get_metrics.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if Ledger == nil || Gate == nil {
			return fmt.Errorf("task ledger not initialized")
		}

		srv := relaymcp.NewServer(relaymcp.Services{
			Ledger:   Ledger,
			Progress: Progress,
			Deps:     Deps,
			Gate:     Gate,
			Reports:  Reports,
			Metrics:  MetricsCalc,
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

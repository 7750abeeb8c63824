package cmd

import (
	"github.com/spf13/cobra"

	"github.com/twinlab/digital-twin/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the digital twin as MCP tools on stdio",
	Long: `Serve query_digital_twin, search_profile and get_database_info over the
Model Context Protocol stdio transport. Logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

func runMCP(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	server, err := mcp.NewServer(a.twin, a.logger)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()
	return server.Run(ctx)
}

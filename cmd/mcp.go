package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/joescharf/diary/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for Claude Code integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets Claude Code query the diary natively. Configure in Claude
Code with:

  {
    "mcpServers": {
      "diary": { "command": "diary", "args": ["mcp"] }
    }
  }

Available tools: diary_recent_sessions, diary_sessions_by_date`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		return mcp.NewServer(s).ServeStdio(context.Background())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

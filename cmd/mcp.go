package cmd

import (
	"context"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mindbridge/intake/internal/mcp"
	"github.com/mindbridge/intake/internal/orchestrator"
	"github.com/mindbridge/intake/internal/sessions"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for assistant integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an MCP client drive intake sessions, habits, and the schedule
natively. Configure with:

  {
    "mcpServers": {
      "intake": { "command": "intake", "args": ["mcp"] }
    }
  }

Available tools: intake_start_session, intake_send_message,
intake_session_state, intake_choose_privacy, intake_choose_specialist,
intake_choose_time_slot, intake_post_match, intake_end_session,
intake_list_habits, intake_create_habit, intake_toggle_habit,
intake_list_schedule, intake_reschedule, intake_confirm_session`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}

		cat, err := getCatalog()
		if err != nil {
			return err
		}

		// stdout carries the protocol; logs go to stderr.
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		manager := sessions.NewManager(getBackendClient(), orchestrator.WithLogger(logger))
		server := mcp.NewServer(s, manager, cat, viper.GetString("user_id"))

		return server.ServeStdio(context.Background())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}

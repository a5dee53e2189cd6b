// Package commands implements the support-agent command line.
package commands

import (
	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
)

// NewRootCmd builds the root command with every subcommand attached.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "support-agent",
		Short: "Customer support agent that classifies and routes queries",
		Long: `support-agent classifies each customer query by topic and sentiment,
routes it to a technical, billing or general responder, and escalates
negative conversations to a human.

Conversations are kept per session in memory, SQLite, PostgreSQL or DynamoDB.
The same pipeline is served from the terminal, AWS Lambda, Telegram and MCP.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ./support-agent.yaml)")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log level (debug, info, warn, error)")

	cmd.AddCommand(
		NewChatCmd(),
		NewAskCmd(),
		NewResetCmd(),
		NewHistoryCmd(),
		NewLambdaCmd(),
		NewTelegramCmd(),
		NewMCPCmd(),
		NewVersionCmd(),
	)
	return cmd
}

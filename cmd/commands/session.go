package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"support-agent/internal/usecase"
)

func NewAskCmd() *cobra.Command {
	var session string
	cmd := &cobra.Command{
		Use:   "ask <query>",
		Short: "Answer a single support query",
		Long: `Run one query through the pipeline and print the reply.

Pass --session to continue a conversation; the session id is printed after
every answer.`,
		Example: `  support-agent ask "My internet is down"
  support-agent ask --session 7f9c2e4a "It is still down"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			snap, err := rt.svc.Process(cmd.Context(), usecase.ProcessInput{
				Query:      strings.Join(args, " "),
				SessionKey: session,
			})
			if err != nil {
				return errors.New(usecase.UserMessage(err))
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderReply(snap))
			fmt.Fprintln(out, stageStyle.Render("session "+snap.SessionKey))
			return nil
		},
	}
	cmd.Flags().StringVarP(&session, "session", "s", "", "conversation to continue")
	return cmd
}

func NewResetCmd() *cobra.Command {
	var session string
	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget a stored conversation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			if err := rt.svc.Reset(cmd.Context(), session); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "conversation %s cleared\n", session)
			return nil
		},
	}
	cmd.Flags().StringVarP(&session, "session", "s", "", "conversation to clear")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

func NewHistoryCmd() *cobra.Command {
	var session string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the transcript of a conversation",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			turns, err := rt.svc.History(cmd.Context(), session)
			if err != nil {
				return err
			}
			printTranscript(cmd.OutOrStdout(), turns)
			return nil
		},
	}
	cmd.Flags().StringVarP(&session, "session", "s", "", "conversation to show")
	_ = cmd.MarkFlagRequired("session")
	return cmd
}

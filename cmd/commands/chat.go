package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"support-agent/internal/domain"
	"support-agent/internal/usecase"
)

// chatService is what the REPL needs from usecase.Service.
type chatService interface {
	Stream(ctx context.Context, in usecase.ProcessInput) iter.Seq2[domain.Snapshot, error]
	Reset(ctx context.Context, sessionKey string) error
	History(ctx context.Context, sessionKey string) ([]domain.ConversationTurn, error)
}

const chatHelp = `Type a question and press enter.
  /new      start a new conversation
  /reset    clear this conversation
  /history  show this conversation
  /quit     leave`

func NewChatCmd() *cobra.Command {
	var session string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive support conversation",
		Long: `Start an interactive support conversation in the terminal.

Each answer shows the pipeline stages as they complete, followed by the
reply and its category and sentiment badges.`,
		Example: `  support-agent chat
  support-agent chat --session 7f9c2e4a`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()
			return runChat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), rt.svc, session)
		},
	}
	cmd.Flags().StringVarP(&session, "session", "s", "", "continue an existing conversation")
	return cmd
}

// runChat reads queries from in until EOF or /quit.
func runChat(ctx context.Context, in io.Reader, out io.Writer, svc chatService, session string) error {
	if session == "" {
		session = uuid.NewString()
	}
	fmt.Fprintln(out, chatHelp)
	fmt.Fprintln(out, stageStyle.Render("session "+session))

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, userStyle.Render("you> "))
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
			continue
		case "/quit", "/exit":
			return nil
		case "/help":
			fmt.Fprintln(out, chatHelp)
		case "/new":
			session = uuid.NewString()
			fmt.Fprintln(out, stageStyle.Render("new conversation "+session))
		case "/reset":
			if err := svc.Reset(ctx, session); err != nil {
				fmt.Fprintln(out, renderError(usecase.UserMessage(err)))
				continue
			}
			fmt.Fprintln(out, stageStyle.Render("conversation cleared"))
		case "/history":
			turns, err := svc.History(ctx, session)
			if err != nil {
				fmt.Fprintln(out, renderError(usecase.UserMessage(err)))
				continue
			}
			printTranscript(out, turns)
		default:
			if strings.HasPrefix(line, "/") {
				fmt.Fprintln(out, renderError("unknown command "+line))
				continue
			}
			streamAnswer(ctx, out, svc, usecase.ProcessInput{Query: line, SessionKey: session})
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}

func streamAnswer(ctx context.Context, out io.Writer, svc chatService, in usecase.ProcessInput) {
	for snap, err := range svc.Stream(ctx, in) {
		if err != nil {
			fmt.Fprintln(out, renderError(usecase.UserMessage(err)))
			return
		}
		fmt.Fprintln(out, renderStage(snap))
		if snap.Final {
			fmt.Fprintln(out, renderReply(snap))
		}
	}
}

func printTranscript(out io.Writer, turns []domain.ConversationTurn) {
	if len(turns) == 0 {
		fmt.Fprintln(out, stageStyle.Render("no messages yet"))
		return
	}
	for _, t := range turns {
		fmt.Fprintln(out, renderTurn(t))
	}
	fmt.Fprintln(out, renderStats(turns))
}

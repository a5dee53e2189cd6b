package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-lambda-go/lambda"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"support-agent/handler"
	supportmcp "support-agent/internal/mcp"
	"support-agent/internal/telegram"
)

func NewLambdaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lambda",
		Short: "Serve the pipeline as an AWS Lambda behind API Gateway",
		Long: `Serve POST /process and POST /reset as an AWS Lambda function behind an
API Gateway proxy integration. Configuration comes from the environment.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := newRuntime(cmd.Context())
			if err != nil {
				return err
			}
			defer rt.Close()

			h, err := handler.NewHandler(rt.svc, rt.logger)
			if err != nil {
				return err
			}
			lambda.StartWithOptions(h.Handle, lambda.WithContext(cmd.Context()))
			return nil
		},
	}
}

func NewTelegramCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "telegram",
		Short: "Serve the pipeline as a Telegram bot",
		Long: `Serve the pipeline as a Telegram bot using long polling. Each chat is its
own conversation. The token comes from telegram.token, TELEGRAM_TOKEN, or
<param_prefix>/telegram in SSM Parameter Store.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			token, err := telegramToken(ctx, rt)
			if err != nil {
				return err
			}
			api, err := tgbotapi.NewBotAPI(token)
			if err != nil {
				return fmt.Errorf("failed to create bot: %w", err)
			}
			bot, err := telegram.New(api, rt.svc, rt.logger)
			if err != nil {
				return err
			}

			u := tgbotapi.NewUpdate(0)
			u.Timeout = rt.cfg.Telegram.PollTimeout
			updates := api.GetUpdatesChan(u)
			go func() {
				<-ctx.Done()
				api.StopReceivingUpdates()
			}()

			rt.logger.Info("telegram bot started", zap.String("username", api.Self.UserName))
			if err := bot.Run(ctx, updates); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func telegramToken(ctx context.Context, rt *runtime) (string, error) {
	if rt.cfg.Telegram.Token != "" {
		return rt.cfg.Telegram.Token, nil
	}
	if rt.cfg.Completion.ParamPrefix == "" {
		return "", errors.New("telegram token is not configured: set telegram.token or TELEGRAM_TOKEN")
	}
	lazy, err := ssmToken(ctx, rt.aws, rt.cfg.Completion.ParamPrefix, "telegram")
	if err != nil {
		return "", err
	}
	return lazy.Get(ctx)
}

func NewMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Start MCP server for LLM agents",
		Long: `Start an MCP (Model Context Protocol) server on stdio so LLM agents can
file support queries, read transcripts and reset conversations.`,
		Example: `  support-agent mcp

  # claude_desktop_config.json:
  # {
  #   "mcpServers": {
  #     "support": {"command": "support-agent", "args": ["mcp"]}
  #   }
  # }`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			rt, err := newRuntime(ctx)
			if err != nil {
				return err
			}
			defer rt.Close()

			server, err := supportmcp.NewServer(rt.svc, versionInfo.Version, rt.logger)
			if err != nil {
				return err
			}
			serverErr := make(chan error, 1)
			go func() {
				serverErr <- mcpserver.ServeStdio(server)
			}()

			rt.logger.Info("mcp server listening on stdio")
			select {
			case <-ctx.Done():
				rt.logger.Info("shutdown signal received")
				return nil
			case err := <-serverErr:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			}
		},
	}
}

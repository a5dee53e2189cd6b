// Package telegram serves the support pipeline to Telegram chats. Each chat
// is one conversation session.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"support-agent/internal/domain"
	"support-agent/internal/usecase"
)

const (
	welcomeText = `Hi! I'm the support assistant.
Describe your problem and I'll route it to the right team.
Use /reset to start a new conversation and /help for commands.`

	helpText = `Available commands:
/start - Show the welcome message
/help - Show this help message
/reset - Forget this conversation

Any other message is treated as a support question.`

	resetText = "Conversation cleared. What can I help you with?"
)

// Sender is the part of *tgbotapi.BotAPI the bot uses to reply.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type SupportService interface {
	Process(ctx context.Context, in usecase.ProcessInput) (domain.Snapshot, error)
	Reset(ctx context.Context, sessionKey string) error
}

type Bot struct {
	api    Sender
	svc    SupportService
	logger *zap.Logger
}

func New(api Sender, svc SupportService, logger *zap.Logger) (*Bot, error) {
	if api == nil {
		return nil, errors.New("telegram: sender must not be nil")
	}
	if svc == nil {
		return nil, errors.New("telegram: service must not be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bot{api: api, svc: svc, logger: logger}, nil
}

// SessionKey maps a chat to its conversation session.
func SessionKey(chatID int64) string {
	return "tg:" + strconv.FormatInt(chatID, 10)
}

// Run handles updates until ctx is done or updates is closed. Messages from
// different chats are handled concurrently; Run waits for in-flight
// handlers before returning.
func (b *Bot) Run(ctx context.Context, updates <-chan tgbotapi.Update) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			wg.Add(1)
			go func(msg *tgbotapi.Message) {
				defer wg.Done()
				b.HandleMessage(ctx, msg)
			}(update.Message)
		}
	}
}

func (b *Bot) HandleMessage(ctx context.Context, message *tgbotapi.Message) {
	if message.Chat == nil {
		return
	}
	chatID := message.Chat.ID
	log := b.logger.With(zap.Int64("chat_id", chatID))

	if message.IsCommand() {
		b.handleCommand(ctx, log, message)
		return
	}

	content := message.Text
	if content == "" {
		content = message.Caption
	}
	if strings.TrimSpace(content) == "" {
		b.reply(log, message, "I can only answer text messages.")
		return
	}

	snap, err := b.svc.Process(ctx, usecase.ProcessInput{Query: content, SessionKey: SessionKey(chatID)})
	if err != nil {
		log.Warn("failed to process message",
			zap.String("code", string(usecase.CodeOf(err))),
			zap.Error(err))
		b.reply(log, message, usecase.UserMessage(err))
		return
	}
	b.reply(log, message, formatReply(snap))
}

func (b *Bot) handleCommand(ctx context.Context, log *zap.Logger, message *tgbotapi.Message) {
	switch message.Command() {
	case "start":
		b.send(log, message.Chat.ID, welcomeText)
	case "reset", "new":
		if err := b.svc.Reset(ctx, SessionKey(message.Chat.ID)); err != nil {
			log.Error("failed to reset conversation", zap.Error(err))
			b.send(log, message.Chat.ID, usecase.UserMessage(err))
			return
		}
		b.send(log, message.Chat.ID, resetText)
	default:
		b.send(log, message.Chat.ID, helpText)
	}
}

func formatReply(snap domain.Snapshot) string {
	return fmt.Sprintf("%s\n\nCategory: %s | Sentiment: %s", snap.Response, snap.Category, snap.Sentiment)
}

func (b *Bot) reply(log *zap.Logger, to *tgbotapi.Message, text string) {
	msg := tgbotapi.NewMessage(to.Chat.ID, text)
	msg.ReplyToMessageID = to.MessageID
	if _, err := b.api.Send(msg); err != nil {
		log.Error("failed to send reply", zap.Error(err))
	}
}

func (b *Bot) send(log *zap.Logger, chatID int64, text string) {
	if _, err := b.api.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		log.Error("failed to send message", zap.Error(err))
	}
}

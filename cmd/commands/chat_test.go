package commands

import (
	"bytes"
	"context"
	"iter"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"support-agent/internal/domain"
	"support-agent/internal/usecase"
)

type fakeChatService struct {
	inputs []usecase.ProcessInput
	resets []string
	turns  map[string][]domain.ConversationTurn
	err    error
}

func (f *fakeChatService) Stream(_ context.Context, in usecase.ProcessInput) iter.Seq2[domain.Snapshot, error] {
	f.inputs = append(f.inputs, in)
	return func(yield func(domain.Snapshot, error) bool) {
		if f.err != nil {
			yield(domain.Snapshot{}, f.err)
			return
		}
		base := domain.Snapshot{SessionKey: in.SessionKey, Query: in.Query, Category: domain.CategoryBilling}
		steps := []domain.Snapshot{base, base, base}
		steps[0].Stage = domain.StageCategorize
		steps[1].Stage = domain.StageAnalyzeSentiment
		steps[1].Sentiment = domain.SentimentPositive
		steps[2].Stage = domain.StageBillingResponder
		steps[2].Sentiment = domain.SentimentPositive
		steps[2].Response = "Refund issued."
		steps[2].Final = true
		for _, s := range steps {
			if !yield(s, nil) {
				return
			}
		}
		now := time.Now()
		f.turns[in.SessionKey] = append(f.turns[in.SessionKey],
			domain.ConversationTurn{Role: domain.RoleUser, Content: in.Query, CreatedAt: now},
			domain.ConversationTurn{Role: domain.RoleAgent, Content: "Refund issued.", CreatedAt: now,
				Metadata: &domain.TurnMetadata{Category: domain.CategoryBilling, Sentiment: domain.SentimentPositive}},
		)
	}
}

func (f *fakeChatService) Reset(_ context.Context, key string) error {
	f.resets = append(f.resets, key)
	delete(f.turns, key)
	return nil
}

func (f *fakeChatService) History(_ context.Context, key string) ([]domain.ConversationTurn, error) {
	return f.turns[key], nil
}

func newFakeChat() *fakeChatService {
	return &fakeChatService{turns: map[string][]domain.ConversationTurn{}}
}

func TestRunChat_StreamsStagesAndReply(t *testing.T) {
	svc := newFakeChat()
	var out bytes.Buffer

	err := runChat(context.Background(), strings.NewReader("I was double charged\n/quit\n"), &out, svc, "s-1")
	require.NoError(t, err)

	require.Equal(t, []usecase.ProcessInput{{Query: "I was double charged", SessionKey: "s-1"}}, svc.inputs)
	text := out.String()
	require.Contains(t, text, "categorized: Billing")
	require.Contains(t, text, "sentiment analyzed: Positive")
	require.Contains(t, text, "billing answered")
	require.Contains(t, text, "Refund issued.")
}

func TestRunChat_Commands(t *testing.T) {
	svc := newFakeChat()
	var out bytes.Buffer

	input := strings.Join([]string{
		"first question",
		"/history",
		"/reset",
		"/history",
		"/new",
		"second question",
		"/bogus",
		"",
	}, "\n")
	err := runChat(context.Background(), strings.NewReader(input), &out, svc, "s-1")
	require.NoError(t, err)

	require.Equal(t, []string{"s-1"}, svc.resets)
	require.Len(t, svc.inputs, 2)
	require.Equal(t, "s-1", svc.inputs[0].SessionKey)
	require.NotEqual(t, "s-1", svc.inputs[1].SessionKey)
	require.NotEmpty(t, svc.inputs[1].SessionKey)

	text := out.String()
	require.Contains(t, text, "2 messages (1 from you, 1 from the agent)")
	require.Contains(t, text, "conversation cleared")
	require.Contains(t, text, "no messages yet")
	require.Contains(t, text, "new conversation")
	require.Contains(t, text, "unknown command /bogus")
}

func TestRunChat_GeneratesSession(t *testing.T) {
	svc := newFakeChat()
	var out bytes.Buffer

	require.NoError(t, runChat(context.Background(), strings.NewReader("hello\n"), &out, svc, ""))
	require.Len(t, svc.inputs, 1)
	require.NotEmpty(t, svc.inputs[0].SessionKey)
}

func TestRunChat_ShowsUserMessageOnError(t *testing.T) {
	svc := newFakeChat()
	svc.err = &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "query_too_long"}
	var out bytes.Buffer

	require.NoError(t, runChat(context.Background(), strings.NewReader("x\n"), &out, svc, "s"))
	require.Contains(t, out.String(), usecase.UserMessage(svc.err))
}

func TestRunChat_StopsWhenContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer

	err := runChat(ctx, strings.NewReader("/help\n/help\n"), &out, newFakeChat(), "s")
	require.ErrorIs(t, err, context.Canceled)
}

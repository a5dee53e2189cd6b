package commands

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"support-agent/internal/domain"
)

func TestRenderStage(t *testing.T) {
	tests := []struct {
		snap domain.Snapshot
		want string
	}{
		{domain.Snapshot{Stage: domain.StageCategorize, Category: domain.CategoryTechnical}, "categorized: Technical"},
		{domain.Snapshot{Stage: domain.StageAnalyzeSentiment, Sentiment: domain.SentimentNegative}, "sentiment analyzed: Negative"},
		{domain.Snapshot{Stage: domain.StageEscalate}, "escalated to a human agent"},
		{domain.Snapshot{Stage: "Custom"}, "Custom"},
	}
	for _, tc := range tests {
		t.Run(string(tc.snap.Stage), func(t *testing.T) {
			require.Contains(t, renderStage(tc.snap), tc.want)
		})
	}
}

func TestRenderReply_IncludesBadges(t *testing.T) {
	out := renderReply(domain.Snapshot{
		Response:  "Try restarting.",
		Category:  domain.CategoryTechnical,
		Sentiment: domain.SentimentNeutral,
	})
	require.Contains(t, out, "Try restarting.")
	require.Contains(t, out, "Technical")
	require.Contains(t, out, "Neutral")
}

func TestRenderTurnAndStats(t *testing.T) {
	now := time.Now()
	turns := []domain.ConversationTurn{
		{Role: domain.RoleUser, Content: "hi", CreatedAt: now},
		{Role: domain.RoleAgent, Content: "hello", CreatedAt: now, Metadata: &domain.TurnMetadata{Category: domain.CategoryGeneral, Sentiment: domain.SentimentPositive}},
		{Role: domain.RoleUser, Content: "bye", CreatedAt: now},
		{Role: domain.RoleAgent, Content: "bye!", CreatedAt: now},
	}

	require.Contains(t, renderTurn(turns[0]), "you>")
	agent := renderTurn(turns[1])
	require.Contains(t, agent, "agent>")
	require.Contains(t, agent, "General")
	require.Contains(t, agent, "Positive")
	require.Contains(t, renderStats(turns), "4 messages (2 from you, 2 from the agent)")
}

package commands

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"support-agent/internal/domain"
)

var (
	mutedColor   = lipgloss.Color("#8A8A8A")
	accentColor  = lipgloss.Color("#2196F3")
	dangerColor  = lipgloss.Color("#e53935")
	successColor = lipgloss.Color("#8BC34A")
	warningColor = lipgloss.Color("#FFC107")

	stageStyle = lipgloss.NewStyle().Foreground(mutedColor)
	agentStyle = lipgloss.NewStyle().Bold(true).Foreground(accentColor)
	userStyle  = lipgloss.NewStyle().Bold(true)
	errorStyle = lipgloss.NewStyle().Foreground(dangerColor)
	badgeStyle = lipgloss.NewStyle().Padding(0, 1).Foreground(lipgloss.Color("#FFFFFF"))
)

var stageLabels = map[domain.Stage]string{
	domain.StageCategorize:         "categorized",
	domain.StageAnalyzeSentiment:   "sentiment analyzed",
	domain.StageTechnicalResponder: "technical support answered",
	domain.StageBillingResponder:   "billing answered",
	domain.StageGeneralResponder:   "general support answered",
	domain.StageEscalate:           "escalated to a human agent",
}

func categoryBadge(c domain.Category) string {
	color := accentColor
	switch c {
	case domain.CategoryTechnical:
		color = lipgloss.Color("#4db6ac")
	case domain.CategoryBilling:
		color = warningColor
	}
	return badgeStyle.Background(color).Render(string(c))
}

func sentimentBadge(s domain.Sentiment) string {
	color := mutedColor
	switch s {
	case domain.SentimentPositive:
		color = successColor
	case domain.SentimentNegative:
		color = dangerColor
	}
	return badgeStyle.Background(color).Render(string(s))
}

// renderStage is the progress line printed as each stage completes.
func renderStage(snap domain.Snapshot) string {
	label, ok := stageLabels[snap.Stage]
	if !ok {
		label = string(snap.Stage)
	}
	line := "  · " + label
	switch snap.Stage {
	case domain.StageCategorize:
		line += ": " + string(snap.Category)
	case domain.StageAnalyzeSentiment:
		line += ": " + string(snap.Sentiment)
	}
	return stageStyle.Render(line)
}

func renderReply(snap domain.Snapshot) string {
	var b strings.Builder
	b.WriteString(agentStyle.Render("agent>"))
	b.WriteString(" ")
	b.WriteString(snap.Response)
	b.WriteString("\n       ")
	b.WriteString(categoryBadge(snap.Category))
	b.WriteString(" ")
	b.WriteString(sentimentBadge(snap.Sentiment))
	return b.String()
}

func renderTurn(t domain.ConversationTurn) string {
	ts := t.CreatedAt.Local().Format("15:04")
	if t.Role == domain.RoleUser {
		return fmt.Sprintf("%s %s %s", stageStyle.Render(ts), userStyle.Render("you>"), t.Content)
	}
	line := fmt.Sprintf("%s %s %s", stageStyle.Render(ts), agentStyle.Render("agent>"), t.Content)
	if t.Metadata != nil {
		line += " " + categoryBadge(t.Metadata.Category) + " " + sentimentBadge(t.Metadata.Sentiment)
	}
	return line
}

// renderStats summarizes a transcript by speaker.
func renderStats(turns []domain.ConversationTurn) string {
	var user, agent int
	for _, t := range turns {
		if t.Role == domain.RoleUser {
			user++
		} else {
			agent++
		}
	}
	return stageStyle.Render(fmt.Sprintf("%d messages (%d from you, %d from the agent)", len(turns), user, agent))
}

func renderError(msg string) string {
	return errorStyle.Render("error: " + msg)
}

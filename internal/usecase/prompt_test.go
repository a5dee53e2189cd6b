package usecase

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"support-agent/internal/domain"
)

func TestDefaultPrompts_Parse(t *testing.T) {
	ps, err := DefaultPrompts()
	require.NoError(t, err)
	require.Contains(t, ps.EscalationText(), "escalated to a human agent")

	p, err := ps.categorizePrompt("My internet is down")
	require.NoError(t, err)
	require.Contains(t, p, "Technical, General, Billing")
	require.Contains(t, p, "Query: My internet is down")

	p, err = ps.sentimentPrompt("thanks a lot")
	require.NoError(t, err)
	require.Contains(t, p, "Positive, Negative, Neutral")
}

func TestResponderPrompt_ContextBlock(t *testing.T) {
	ps, err := DefaultPrompts()
	require.NoError(t, err)

	p, err := ps.responderPrompt(domain.RouteBilling, "Why was I charged twice?", nil)
	require.NoError(t, err)
	require.NotContains(t, p, "Previous conversation:")
	require.Contains(t, p, "billing support agent")
	require.True(t, strings.HasSuffix(p, "Current Query: Why was I charged twice?"))

	window := []domain.ConversationTurn{
		{Role: domain.RoleUser, Content: "My router blinks red", CreatedAt: time.Now()},
		{Role: domain.RoleAgent, Content: "Try  restarting\n it.", CreatedAt: time.Now()},
	}
	p, err = ps.responderPrompt(domain.RouteTechnical, "Still broken", window)
	require.NoError(t, err)
	require.Contains(t, p, "Previous conversation:\nCustomer: My router blinks red\nAgent: Try restarting it.\n")
	require.Contains(t, p, "technical support agent")
}

func TestResponderPrompt_UnknownRouteUsesGeneral(t *testing.T) {
	ps, err := DefaultPrompts()
	require.NoError(t, err)

	p, err := ps.responderPrompt(domain.Route("weird"), "hello", nil)
	require.NoError(t, err)
	require.Contains(t, p, "general customer support agent")
}

func TestParsePrompts_Errors(t *testing.T) {
	_, err := ParsePrompts([]byte("categorize: [unterminated"))
	require.Error(t, err)

	_, err = ParsePrompts([]byte(`
categorize: "{{.Query}}"
sentiment: "{{.Query}}"
responders:
  technical: "{{.Query}}"
  billing: "{{.Query}}"
escalation: "bye"
`))
	require.ErrorContains(t, err, "responders.general")

	_, err = ParsePrompts([]byte(`
categorize: "{{.Query"
sentiment: "{{.Query}}"
`))
	require.ErrorContains(t, err, "parse categorize")

	_, err = ParsePrompts([]byte(`
categorize: "{{.Query}}"
sentiment: "{{.Query}}"
responders:
  technical: "{{.Query}}"
  billing: "{{.Query}}"
  general: "{{.Query}}"
`))
	require.ErrorContains(t, err, "escalation")
}

func TestLoadPromptsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "prompts.yaml")
	doc := `
categorize: "C {{.Query}}"
sentiment: "S {{.Query}}"
responders:
  technical: "T {{.Context}}{{.Query}}"
  billing: "B {{.Query}}"
  general: "G {{.Query}}"
escalation: "handing you over"
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	ps, err := LoadPromptsFile(path)
	require.NoError(t, err)
	require.Equal(t, "handing you over", ps.EscalationText())

	p, err := ps.responderPrompt(domain.RouteBilling, "refund", nil)
	require.NoError(t, err)
	require.Equal(t, "B refund", p)

	_, err = LoadPromptsFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"support-agent/internal/domain"
)

const defaultContextTurns = 6

// Responder produces agent replies for the three persona branches and the
// escalation branch.
type Responder struct {
	llm     Completer
	prompts *PromptSet
	window  int
	now     func() time.Time
}

func NewResponder(llm Completer, prompts *PromptSet, contextTurns int) (*Responder, error) {
	if llm == nil {
		return nil, errors.New("usecase: completer must not be nil")
	}
	if prompts == nil {
		return nil, errors.New("usecase: prompts must not be nil")
	}
	if contextTurns <= 0 {
		contextTurns = defaultContextTurns
	}
	return &Responder{llm: llm, prompts: prompts, window: contextTurns, now: time.Now}, nil
}

// Respond asks the persona for route to answer query. Only prior turns are
// offered as context. The returned turn slice is a new slice holding history
// plus the (user, agent) exchange; history itself is left untouched.
func (r *Responder) Respond(ctx context.Context, route domain.Route, query string, history []domain.ConversationTurn, md domain.TurnMetadata) (string, []domain.ConversationTurn, error) {
	prompt, err := r.prompts.responderPrompt(route, query, domain.LastTurns(history, r.window))
	if err != nil {
		return "", nil, newError(ErrorInternal, "respond_prompt", err)
	}
	raw, err := r.llm.Complete(ctx, prompt)
	if err != nil {
		return "", nil, completionError(ctx, "respond_failed", err)
	}
	reply := strings.TrimSpace(raw)
	if reply == "" {
		return "", nil, newError(ErrorCompletion, "respond_malformed", errors.New("empty completion"))
	}
	return reply, r.appendExchange(history, query, reply, md), nil
}

// Escalate returns the canned hand-off reply without calling the model.
func (r *Responder) Escalate(query string, history []domain.ConversationTurn, md domain.TurnMetadata) (string, []domain.ConversationTurn) {
	reply := r.prompts.EscalationText()
	return reply, r.appendExchange(history, query, reply, md)
}

func (r *Responder) appendExchange(history []domain.ConversationTurn, query, reply string, md domain.TurnMetadata) []domain.ConversationTurn {
	now := r.now().UTC()
	out := make([]domain.ConversationTurn, 0, len(history)+2)
	out = append(out, history...)
	return append(out,
		domain.ConversationTurn{Role: domain.RoleUser, Content: query, CreatedAt: now},
		domain.ConversationTurn{Role: domain.RoleAgent, Content: reply, Metadata: &md, CreatedAt: now},
	)
}

package usecase

import (
	"context"
	"fmt"

	"support-agent/internal/domain"
)

// turnRecord is the per-call scratch record threaded through the stages.
// Stages receive it by value and return an updated copy.
type turnRecord struct {
	sessionKey string
	query      string
	category   domain.Category
	sentiment  domain.Sentiment
	route      domain.Route
	response   string
	turns      []domain.ConversationTurn

	// version and replace are carried from the loaded state to the store.
	version int
	replace bool

	// prefetched is set when both labels were classified up front.
	prefetched *rawLabels
}

func (r turnRecord) snapshot(stage domain.Stage, final bool) domain.Snapshot {
	return domain.Snapshot{
		Stage:      stage,
		SessionKey: r.sessionKey,
		Query:      r.query,
		Category:   r.category,
		Sentiment:  r.sentiment,
		Route:      r.route,
		Response:   r.response,
		Turns:      domain.CloneTurns(r.turns),
		Final:      final,
	}
}

type stageFunc func(ctx context.Context, rec turnRecord) (turnRecord, error)

// machine is the routing graph:
//
//	START -> Categorize -> AnalyzeSentiment -> {Technical|Billing|General|Escalate} -> END
//
// It is built once and never mutated, so one instance serves every call.
type machine struct {
	handlers map[domain.Stage]stageFunc
	edges    map[domain.Stage]domain.Stage
	// branchFrom is the only stage whose successor depends on the record.
	branchFrom domain.Stage
}

func newMachine(categorize, analyze, respond, escalate stageFunc) *machine {
	return &machine{
		handlers: map[domain.Stage]stageFunc{
			domain.StageCategorize:         categorize,
			domain.StageAnalyzeSentiment:   analyze,
			domain.StageTechnicalResponder: respond,
			domain.StageBillingResponder:   respond,
			domain.StageGeneralResponder:   respond,
			domain.StageEscalate:           escalate,
		},
		edges: map[domain.Stage]domain.Stage{
			domain.StageStart:              domain.StageCategorize,
			domain.StageCategorize:         domain.StageAnalyzeSentiment,
			domain.StageTechnicalResponder: domain.StageEnd,
			domain.StageBillingResponder:   domain.StageEnd,
			domain.StageGeneralResponder:   domain.StageEnd,
			domain.StageEscalate:           domain.StageEnd,
		},
		branchFrom: domain.StageAnalyzeSentiment,
	}
}

// next returns the stage that follows stage for rec.
func (m *machine) next(stage domain.Stage, rec turnRecord) (domain.Stage, error) {
	if stage == m.branchFrom {
		return rec.route.Stage(), nil
	}
	to, ok := m.edges[stage]
	if !ok {
		return "", fmt.Errorf("usecase: no transition from stage %q", stage)
	}
	return to, nil
}

func (m *machine) handler(stage domain.Stage) (stageFunc, error) {
	h, ok := m.handlers[stage]
	if !ok {
		return nil, fmt.Errorf("usecase: no handler for stage %q", stage)
	}
	return h, nil
}

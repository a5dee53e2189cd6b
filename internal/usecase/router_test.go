package usecase

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"support-agent/internal/domain"
)

func TestRoute_TruthTable(t *testing.T) {
	tests := []struct {
		category  domain.Category
		sentiment domain.Sentiment
		want      domain.Route
	}{
		{domain.CategoryTechnical, domain.SentimentPositive, domain.RouteTechnical},
		{domain.CategoryTechnical, domain.SentimentNeutral, domain.RouteTechnical},
		{domain.CategoryTechnical, domain.SentimentNegative, domain.RouteEscalate},
		{domain.CategoryBilling, domain.SentimentPositive, domain.RouteBilling},
		{domain.CategoryBilling, domain.SentimentNeutral, domain.RouteBilling},
		{domain.CategoryBilling, domain.SentimentNegative, domain.RouteEscalate},
		{domain.CategoryGeneral, domain.SentimentPositive, domain.RouteGeneral},
		{domain.CategoryGeneral, domain.SentimentNeutral, domain.RouteGeneral},
		{domain.CategoryGeneral, domain.SentimentNegative, domain.RouteEscalate},
	}
	for _, tc := range tests {
		t.Run(string(tc.category)+"/"+string(tc.sentiment), func(t *testing.T) {
			require.Equal(t, tc.want, Route(tc.category, tc.sentiment))
		})
	}
}

func TestMachine_Transitions(t *testing.T) {
	noop := func(_ context.Context, r turnRecord) (turnRecord, error) { return r, nil }
	m := newMachine(noop, noop, noop, noop)

	next, err := m.next(domain.StageStart, turnRecord{})
	require.NoError(t, err)
	require.Equal(t, domain.StageCategorize, next)

	next, err = m.next(domain.StageCategorize, turnRecord{})
	require.NoError(t, err)
	require.Equal(t, domain.StageAnalyzeSentiment, next)

	for route, want := range map[domain.Route]domain.Stage{
		domain.RouteTechnical: domain.StageTechnicalResponder,
		domain.RouteBilling:   domain.StageBillingResponder,
		domain.RouteGeneral:   domain.StageGeneralResponder,
		domain.RouteEscalate:  domain.StageEscalate,
	} {
		next, err = m.next(domain.StageAnalyzeSentiment, turnRecord{route: route})
		require.NoError(t, err)
		require.Equal(t, want, next)

		end, err := m.next(want, turnRecord{})
		require.NoError(t, err)
		require.Equal(t, domain.StageEnd, end)
	}

	_, err = m.next(domain.StageEnd, turnRecord{})
	require.Error(t, err)
	_, err = m.handler(domain.StageStart)
	require.Error(t, err)
}

package domain

// Stage identifies a node of the routing state machine.
type Stage string

const (
	StageStart              Stage = "START"
	StageCategorize         Stage = "Categorize"
	StageAnalyzeSentiment   Stage = "AnalyzeSentiment"
	StageTechnicalResponder Stage = "TechnicalResponder"
	StageBillingResponder   Stage = "BillingResponder"
	StageGeneralResponder   Stage = "GeneralResponder"
	StageEscalate           Stage = "Escalate"
	StageEnd                Stage = "END"
)

// Route is the router's branch decision.
type Route string

const (
	RouteTechnical Route = "technical"
	RouteBilling   Route = "billing"
	RouteGeneral   Route = "general"
	RouteEscalate  Route = "escalate"
)

// Stage returns the branch stage that handles r. Unknown routes resolve to
// the general responder.
func (r Route) Stage() Stage {
	switch r {
	case RouteTechnical:
		return StageTechnicalResponder
	case RouteBilling:
		return StageBillingResponder
	case RouteEscalate:
		return StageEscalate
	default:
		return StageGeneralResponder
	}
}

// Snapshot is the progress record emitted after each completed stage.
type Snapshot struct {
	Stage      Stage              `json:"stage"`
	SessionKey string             `json:"sessionKey"`
	Query      string             `json:"query"`
	Category   Category           `json:"category,omitempty"`
	Sentiment  Sentiment          `json:"sentiment,omitempty"`
	Route      Route              `json:"route,omitempty"`
	Response   string             `json:"response,omitempty"`
	Turns      []ConversationTurn `json:"turns,omitempty"`
	Final      bool               `json:"final"`
}

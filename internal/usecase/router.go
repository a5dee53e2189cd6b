package usecase

import "support-agent/internal/domain"

// Route maps classification results to a branch. First match wins and
// sentiment outranks category: any negative query is escalated whatever its
// topic.
func Route(category domain.Category, sentiment domain.Sentiment) domain.Route {
	switch {
	case sentiment == domain.SentimentNegative:
		return domain.RouteEscalate
	case category == domain.CategoryTechnical:
		return domain.RouteTechnical
	case category == domain.CategoryBilling:
		return domain.RouteBilling
	default:
		return domain.RouteGeneral
	}
}

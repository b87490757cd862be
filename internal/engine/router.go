package engine

import "github.com/sifthq/sift/internal/domain"

// Route decides the execution path from the event count alone. Zero events
// short-circuits the run; at or above the threshold the batch path wins.
func Route(count, threshold int) domain.Route {
	switch {
	case count == 0:
		return domain.RouteNone
	case count >= threshold:
		return domain.RouteBatch
	default:
		return domain.RouteOnDemand
	}
}

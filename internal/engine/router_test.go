package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sifthq/sift/internal/domain"
)

func TestRoute(t *testing.T) {
	tests := []struct {
		name      string
		count     int
		threshold int
		want      domain.Route
	}{
		{name: "zero events short-circuits", count: 0, threshold: 100, want: domain.RouteNone},
		{name: "single event goes on-demand", count: 1, threshold: 100, want: domain.RouteOnDemand},
		{name: "just below threshold goes on-demand", count: 99, threshold: 100, want: domain.RouteOnDemand},
		{name: "threshold exactly goes batch", count: 100, threshold: 100, want: domain.RouteBatch},
		{name: "above threshold goes batch", count: 150, threshold: 100, want: domain.RouteBatch},
		{name: "zero beats threshold of one", count: 0, threshold: 1, want: domain.RouteNone},
		{name: "threshold of one batches everything", count: 1, threshold: 1, want: domain.RouteBatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Route(tt.count, tt.threshold))
		})
	}
}

func TestRouteIsDeterministic(t *testing.T) {
	for count := 0; count <= 200; count++ {
		first := Route(count, 100)
		for i := 0; i < 3; i++ {
			assert.Equal(t, first, Route(count, 100), "count %d", count)
		}
	}
}

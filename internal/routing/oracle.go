package routing

import (
	"context"
	"errors"

	"github.com/example/shared-ride/internal/models"
)

var (
	// ErrNoRoute is returned by an oracle that answered but found no route.
	ErrNoRoute = errors.New("no route")
	// ErrNoPath is returned by graph-mode Dijkstra when the destination is unreachable.
	ErrNoPath = errors.New("no path found")
)

// Route is a routing oracle answer.
type Route struct {
	Waypoints       []models.Coordinate
	DurationSec     float64
	DistanceMeters  float64
	EncodedPolyline string
}

// Oracle resolves an origin/destination pair to a driving route.
type Oracle interface {
	Route(ctx context.Context, origin, destination models.Coordinate) (Route, error)
}

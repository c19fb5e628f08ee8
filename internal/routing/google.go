package routing

import (
	"context"
	"fmt"

	"googlemaps.github.io/maps"

	"github.com/example/shared-ride/internal/models"
)

type directionsAPI interface {
	Directions(ctx context.Context, r *maps.DirectionsRequest) ([]maps.Route, []maps.GeocodedWaypoint, error)
}

// GoogleOracle resolves routes with the Google Maps Directions API.
type GoogleOracle struct {
	client directionsAPI
}

// NewGoogleOracle creates a GoogleOracle with the given API key.
func NewGoogleOracle(apiKey string) (*GoogleOracle, error) {
	client, err := maps.NewClient(maps.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &GoogleOracle{client: client}, nil
}

func (g *GoogleOracle) Route(ctx context.Context, origin, destination models.Coordinate) (Route, error) {
	r := &maps.DirectionsRequest{
		Origin:      latLngString(origin),
		Destination: latLngString(destination),
		Mode:        maps.TravelModeDriving,
	}
	routes, _, err := g.client.Directions(ctx, r)
	if err != nil {
		return Route{}, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return Route{}, ErrNoRoute
	}

	route := routes[0]
	var out Route
	for _, leg := range route.Legs {
		out.DurationSec += leg.Duration.Seconds()
		out.DistanceMeters += float64(leg.Distance.Meters)
	}
	pts, err := route.OverviewPolyline.Decode()
	if err != nil {
		return Route{}, fmt.Errorf("decode overview polyline: %w", err)
	}
	out.Waypoints = fromLatLngs(pts)
	out.EncodedPolyline = route.OverviewPolyline.Points
	return out, nil
}

func latLngString(c models.Coordinate) string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

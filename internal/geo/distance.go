// Package geo holds great-circle math, geohash query bounds and the pending ride-request
// store the candidate locator searches.
package geo

import (
	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"

	"github.com/example/shared-ride/internal/models"
)

func point(c models.Coordinate) orb.Point { return orb.Point{c.Lng, c.Lat} }

// Distance is the haversine distance in meters.
func Distance(a, b models.Coordinate) float64 {
	return orbgeo.DistanceHaversine(point(a), point(b))
}

func DistanceKm(a, b models.Coordinate) float64 {
	return Distance(a, b) / 1000
}

// Bearing returns the initial bearing from a to b in degrees, [-180, 180].
func Bearing(a, b models.Coordinate) float64 {
	return orbgeo.Bearing(point(a), point(b))
}

// PathLength sums consecutive haversine distances.
func PathLength(points ...models.Coordinate) float64 {
	var total float64
	for i := 1; i < len(points); i++ {
		total += Distance(points[i-1], points[i])
	}
	return total
}

// Offset returns the point reached by travelling meters from c along bearing (degrees).
func Offset(c models.Coordinate, bearing, meters float64) models.Coordinate {
	p := orbgeo.PointAtBearingAndDistance(point(c), bearing, meters)
	return models.Coordinate{Lat: p.Lat(), Lng: p.Lon()}
}

package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/example/shared-ride/internal/models"
)

func TestDistanceZero(t *testing.T) {
	d := Distance(models.Coordinate{}, models.Coordinate{})
	if d != 0 {
		t.Fatalf("expected 0, got %f", d)
	}
}

func TestDistanceKnownPairs(t *testing.T) {
	tests := []struct {
		name     string
		a, b     models.Coordinate
		expected float64
	}{
		{"tenth of a degree of longitude near the equator", models.Coordinate{Lat: 1, Lng: 1}, models.Coordinate{Lat: 1, Lng: 1.1}, 11120},
		{"two degrees of latitude", models.Coordinate{Lat: -1, Lng: 100}, models.Coordinate{Lat: 1, Lng: 100}, 222400},
		{"across the antimeridian", models.Coordinate{Lat: 0, Lng: 179}, models.Coordinate{Lat: 0, Lng: -179}, 222400},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InEpsilon(t, tt.expected, Distance(tt.a, tt.b), 0.01)
			assert.InDelta(t, Distance(tt.a, tt.b), Distance(tt.b, tt.a), 1e-6)
		})
	}
}

func TestOffsetRoundTrip(t *testing.T) {
	start := models.Coordinate{Lat: -6.175392, Lng: 106.827153}
	for _, bearing := range []float64{0, 45, 90, 180, 270} {
		end := Offset(start, bearing, 1500)
		assert.InDelta(t, 1500, Distance(start, end), 5, "bearing %v", bearing)
	}
	north := Offset(start, 0, 1000)
	assert.InDelta(t, 0, Bearing(start, north), 0.5)
}

func TestPathLength(t *testing.T) {
	a := models.Coordinate{Lat: 10, Lng: 10}
	b := Offset(a, 90, 1000)
	c := Offset(b, 90, 1000)
	assert.InDelta(t, 2000, PathLength(a, b, c), 5)
	assert.Zero(t, PathLength(a))
}

package geo

import (
	"sort"

	"github.com/mmcloughlin/geohash"

	"github.com/example/shared-ride/internal/models"
)

// DefaultPrecision gives ~5m cells for stored request and opportunity origins.
const DefaultPrecision uint = 9

// Bound is an inclusive lexicographic geohash range.
type Bound struct {
	Lo string `json:"lo"`
	Hi string `json:"hi"`
}

func (b Bound) Contains(hash string) bool {
	return hash >= b.Lo && hash <= b.Hi
}

func Encode(c models.Coordinate) string {
	return geohash.EncodeWithPrecision(c.Lat, c.Lng, DefaultPrecision)
}

// QueryBounds returns the geohash ranges covering a circle of radiusMeters around center.
// The cell size is chosen so that one cell is at least as tall and wide as the radius,
// which means the center cell plus its eight neighbours always cover the circle.
// Results can contain points outside the circle; callers must verify distances.
func QueryBounds(center models.Coordinate, radiusMeters float64) []Bound {
	precision := precisionFor(center, radiusMeters)
	h := geohash.EncodeWithPrecision(center.Lat, center.Lng, precision)

	seen := map[string]struct{}{h: {}}
	cells := []string{h}
	for _, n := range geohash.Neighbors(h) {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		cells = append(cells, n)
	}
	sort.Strings(cells)

	bounds := make([]Bound, 0, len(cells))
	for _, c := range cells {
		bounds = append(bounds, Bound{Lo: c, Hi: c + "~"})
	}
	return bounds
}

func precisionFor(center models.Coordinate, radiusMeters float64) uint {
	for p := uint(12); p >= 1; p-- {
		box := geohash.BoundingBox(geohash.EncodeWithPrecision(center.Lat, center.Lng, p))
		height := Distance(
			models.Coordinate{Lat: box.MinLat, Lng: center.Lng},
			models.Coordinate{Lat: box.MaxLat, Lng: center.Lng},
		)
		width := Distance(
			models.Coordinate{Lat: center.Lat, Lng: box.MinLng},
			models.Coordinate{Lat: center.Lat, Lng: box.MaxLng},
		)
		if height >= radiusMeters && width >= radiusMeters {
			return p
		}
	}
	return 1
}

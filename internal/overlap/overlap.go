// Package overlap scores how much two trips share and what pooling them costs.
package overlap

import (
	"math"

	"github.com/example/shared-ride/internal/geo"
	"github.com/example/shared-ride/internal/models"
)

const (
	cellMeters      = 100.0
	metersPerDegree = 111000.0

	// below this the directional refinement is not worth computing
	refineThreshold = 0.1

	minSavings = 10
	maxSavings = 40
)

type cell struct{ lat, lng int64 }

func cellOf(c models.Coordinate) cell {
	latRad := c.Lat * math.Pi / 180
	return cell{
		lat: int64(math.Floor(c.Lat * metersPerDegree / cellMeters)),
		lng: int64(math.Floor(c.Lng * metersPerDegree * math.Cos(latRad) / cellMeters)),
	}
}

func cells(p *models.PathResult) map[cell]struct{} {
	if p == nil {
		return nil
	}
	out := make(map[cell]struct{}, len(p.Coordinates))
	for _, c := range p.Coordinates {
		out[cellOf(c)] = struct{}{}
	}
	return out
}

// ComputeOverlap is the Jaccard similarity of the ~100 m grid cells both paths visit.
// It is symmetric and in [0, 1]; an empty path scores 0.
func ComputeOverlap(a, b *models.PathResult) float64 {
	ca, cb := cells(a), cells(b)
	if len(ca) == 0 || len(cb) == 0 {
		return 0
	}
	small, large := ca, cb
	if len(small) > len(large) {
		small, large = large, small
	}
	inter := 0
	for k := range small {
		if _, ok := large[k]; ok {
			inter++
		}
	}
	union := len(ca) + len(cb) - inter
	return float64(inter) / float64(union)
}

// ComputeDirectionalOverlap scales the basic overlap by how close the two trips'
// origins and destinations are, so routes that cross while heading in opposite
// directions score lower. Direction alone never removes more than half the score.
func ComputeDirectionalOverlap(a, b *models.PathResult) float64 {
	basic := ComputeOverlap(a, b)
	if basic < refineThreshold {
		return 0
	}
	oa, _ := a.Origin()
	ob, _ := b.Origin()
	da, _ := a.Destination()
	db, _ := b.Destination()

	maxRouteLen := math.Max(a.TotalDistance, b.TotalDistance)
	if maxRouteLen <= 0 {
		return basic
	}
	spread := (geo.Distance(oa, ob) + geo.Distance(da, db)) / (2 * maxRouteLen)
	directionScore := 1 - math.Min(spread, 1)
	return basic * (0.5 + 0.5*directionScore)
}

// Detour is the cost of pooling a candidate into a rider's trip. Meters and Percent may
// be negative when the pooled route is no longer than the longer leg.
type Detour struct {
	CombinedMeters float64
	Meters         float64
	Seconds        float64
	Percent        float64
}

// EstimateDetour takes the cheapest of the four pickup/dropoff orderings that pick both
// riders up before either is dropped, using straight-line legs rather than a routing call.
func EstimateDetour(rider *models.PathResult, candidate models.RideCandidate, fallbackSpeedKmh float64) Detour {
	pa, _ := rider.Origin()
	da, _ := rider.Destination()
	pb, db := candidate.Origin, candidate.Destination

	orderings := [4][4]models.Coordinate{
		{pa, pb, da, db},
		{pa, pb, db, da},
		{pb, pa, da, db},
		{pb, pa, db, da},
	}
	combined := math.Inf(1)
	for _, o := range orderings {
		combined = math.Min(combined, geo.PathLength(o[:]...))
	}

	candidateLen := geo.Distance(pb, db)
	if candidate.Path != nil {
		candidateLen = candidate.Path.TotalDistance
	}
	d := Detour{CombinedMeters: combined}
	d.Meters = combined - math.Max(rider.TotalDistance, candidateLen)
	if rider.TotalDistance > 0 {
		d.Percent = d.Meters / rider.TotalDistance
	}
	d.Seconds = d.Meters / metersPerSecond(rider, fallbackSpeedKmh)
	return d
}

// metersPerSecond uses the rider's own route speed when known.
func metersPerSecond(p *models.PathResult, fallbackSpeedKmh float64) float64 {
	if p != nil && p.TotalWeight > 0 && p.TotalDistance > 0 {
		return p.TotalDistance / p.TotalWeight
	}
	if fallbackSpeedKmh <= 0 {
		fallbackSpeedKmh = 40
	}
	return fallbackSpeedKmh * 1000 / 3600
}

// PotentialSavings maps an overlap score to a discount percentage between 10 and 40.
func PotentialSavings(score float64) int {
	if score < 0 {
		score = 0
	}
	s := minSavings + int(math.Floor(score*30))
	if s > maxSavings {
		return maxSavings
	}
	return s
}

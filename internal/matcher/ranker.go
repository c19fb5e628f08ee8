package matcher

import (
	"context"
	"log/slog"
	"sort"

	"github.com/example/shared-ride/internal/models"
	"github.com/example/shared-ride/internal/observability"
	"github.com/example/shared-ride/internal/overlap"
)

const (
	DefaultMinOverlap       = 0.3
	DefaultMaxDetourPercent = 0.25
)

type PathFinder interface {
	FindPath(ctx context.Context, origin, destination models.Coordinate) (*models.PathResult, error)
}

// Ranker scores candidates against a rider's path.
type Ranker struct {
	paths      PathFinder
	minOverlap float64
	speedKmh   float64
	logger     *slog.Logger
}

func NewRanker(paths PathFinder, minOverlap, fallbackSpeedKmh float64, logger *slog.Logger) *Ranker {
	if minOverlap <= 0 {
		minOverlap = DefaultMinOverlap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Ranker{paths: paths, minOverlap: minOverlap, speedKmh: fallbackSpeedKmh, logger: logger}
}

// Rank returns the candidates that clear the overlap floor and the detour ceiling,
// best overlap first and lower detour first on ties. A cancelled context aborts the
// computation and discards partial results.
func (r *Ranker) Rank(ctx context.Context, riderPath *models.PathResult, candidates []models.RideCandidate, maxDetourPercent float64) ([]models.ScoredMatch, error) {
	if maxDetourPercent <= 0 {
		maxDetourPercent = DefaultMaxDetourPercent
	}
	out := make([]models.ScoredMatch, 0, len(candidates))
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if c.Path == nil {
			p, err := r.paths.FindPath(ctx, c.Origin, c.Destination)
			if err != nil {
				r.logger.Debug("skipping candidate without path", "request_id", c.RequestID, "error", err)
				continue
			}
			c.Path = p
		}

		score := overlap.ComputeDirectionalOverlap(riderPath, c.Path)
		if score < r.minOverlap {
			continue
		}
		d := overlap.EstimateDetour(riderPath, c, r.speedKmh)
		if d.Percent > maxDetourPercent {
			continue
		}
		m := models.ScoredMatch{
			Candidate:        c,
			OverlapScore:     score,
			PotentialSavings: overlap.PotentialSavings(score),
		}
		// a pooled route no longer than either leg costs nothing
		if d.Meters > 0 {
			m.DetourMeters = d.Meters
			m.DetourCost = d.Seconds
			m.DetourPercent = d.Percent
		}
		out = append(out, m)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.OverlapScore != b.OverlapScore {
			return a.OverlapScore > b.OverlapScore
		}
		if a.DetourPercent != b.DetourPercent {
			return a.DetourPercent < b.DetourPercent
		}
		return a.Candidate.RequestID < b.Candidate.RequestID
	})
	observability.MatchesRanked.Add(float64(len(out)))
	return out, nil
}

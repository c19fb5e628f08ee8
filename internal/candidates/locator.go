package candidates

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/example/shared-ride/internal/geo"
	"github.com/example/shared-ride/internal/models"
	"github.com/example/shared-ride/internal/observability"
)

// Locator finds other riders' pending requests near a new rider's origin.
type Locator struct {
	store  geo.GeoStore
	limit  int
	logger *slog.Logger
}

func NewLocator(store geo.GeoStore, perQueryLimit int, logger *slog.Logger) *Locator {
	if perQueryLimit <= 0 {
		perQueryLimit = geo.DefaultQueryLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Locator{store: store, limit: perQueryLimit, logger: logger}
}

// FindNearby returns deduplicated candidates whose origin is within radiusKm of origin.
// Invalid input is an error; a store failure is logged and yields no candidates.
func (l *Locator) FindNearby(ctx context.Context, origin models.Coordinate, excludeRiderID string, radiusKm float64) ([]models.RideCandidate, error) {
	if err := origin.Validate(); err != nil {
		return nil, err
	}
	if !(radiusKm > 0) {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidRadius, radiusKm)
	}
	radiusMeters := radiusKm * 1000

	seen := make(map[string]struct{})
	out := make([]models.RideCandidate, 0)
	for _, b := range geo.QueryBounds(origin, radiusMeters) {
		res, err := l.store.QueryByGeohashRange(ctx, geo.RangeQuery{
			Bound:          b,
			ExcludeRiderID: excludeRiderID,
			Limit:          l.limit,
		})
		if err != nil {
			observability.GeoQueryErrors.Inc()
			l.logger.Warn("candidate query failed", "bound_lo", b.Lo, "bound_hi", b.Hi, "error", err)
			return []models.RideCandidate{}, nil
		}
		for _, c := range res {
			if _, dup := seen[c.RequestID]; dup {
				continue
			}
			// geohash cells overshoot the circle near their corners
			if geo.Distance(origin, c.Origin) > radiusMeters {
				continue
			}
			seen[c.RequestID] = struct{}{}
			out = append(out, c)
		}
	}
	observability.CandidatesFound.Observe(float64(len(out)))
	return out, nil
}

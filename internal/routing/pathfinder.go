package routing

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/shared-ride/internal/geo"
	"github.com/example/shared-ride/internal/models"
	"github.com/example/shared-ride/internal/observability"
)

const (
	DefaultOracleTimeout    = 8 * time.Second
	DefaultFallbackSpeedKmh = 40.0
)

// Finder produces a path for any coordinate pair: cache first, then the routing oracle,
// then a straight-line estimate. Oracle failures never reach the caller.
type Finder struct {
	oracle   Oracle
	cache    *Cache
	timeout  time.Duration
	speedKmh float64
	logger   *slog.Logger
}

// NewFinder wires a Finder. oracle and cache may be nil.
func NewFinder(oracle Oracle, cache *Cache, timeout time.Duration, fallbackSpeedKmh float64, logger *slog.Logger) *Finder {
	if timeout <= 0 {
		timeout = DefaultOracleTimeout
	}
	if fallbackSpeedKmh <= 0 {
		fallbackSpeedKmh = DefaultFallbackSpeedKmh
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Finder{oracle: oracle, cache: cache, timeout: timeout, speedKmh: fallbackSpeedKmh, logger: logger}
}

func (f *Finder) FindPath(ctx context.Context, origin, destination models.Coordinate) (*models.PathResult, error) {
	if err := origin.Validate(); err != nil {
		return nil, fmt.Errorf("origin: %w", err)
	}
	if err := destination.Validate(); err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}

	if f.cache != nil {
		if p, ok := f.cache.Get(origin, destination); ok {
			observability.PathLookups.WithLabelValues("cache").Inc()
			return p, nil
		}
	}

	if f.oracle != nil {
		p, err := f.fromOracle(ctx, origin, destination)
		if err == nil {
			if f.cache != nil {
				f.cache.Set(origin, destination, p)
			}
			observability.PathLookups.WithLabelValues("oracle").Inc()
			return p, nil
		}
		f.logger.Warn("routing oracle failed, using straight-line path",
			"origin", origin, "destination", destination, "error", err)
	}

	// degraded results are not cached so a recovered oracle is used on the next call
	observability.PathLookups.WithLabelValues("fallback").Inc()
	return DirectPath(origin, destination, f.speedKmh), nil
}

func (f *Finder) fromOracle(ctx context.Context, origin, destination models.Coordinate) (*models.PathResult, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	r, err := f.oracle.Route(ctx, origin, destination)
	observability.OracleLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	coords := r.Waypoints
	if len(coords) == 0 {
		coords = []models.Coordinate{origin, destination}
	}
	nodes := make([]string, len(coords))
	for i := range coords {
		nodes[i] = fmt.Sprintf("node_%d", i)
	}
	return &models.PathResult{
		Nodes:           nodes,
		Coordinates:     coords,
		TotalWeight:     r.DurationSec,
		TotalDistance:   r.DistanceMeters,
		EncodedPolyline: r.EncodedPolyline,
	}, nil
}

// DirectPath is the two-waypoint great-circle estimate at the given average speed.
func DirectPath(origin, destination models.Coordinate, speedKmh float64) *models.PathResult {
	if speedKmh <= 0 {
		speedKmh = DefaultFallbackSpeedKmh
	}
	d := geo.Distance(origin, destination)
	coords := []models.Coordinate{origin, destination}
	return &models.PathResult{
		Nodes:           []string{"node_0", "node_1"},
		Coordinates:     coords,
		TotalWeight:     d / 1000 / speedKmh * 3600,
		TotalDistance:   d,
		EncodedPolyline: EncodePolyline(coords),
		Degraded:        true,
	}
}

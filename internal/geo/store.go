package geo

import (
	"context"
	"sort"
	"sync"

	"github.com/example/shared-ride/internal/models"
)

const DefaultQueryLimit = 50

// RangeQuery selects pending, share-enabled requests whose origin geohash is inside Bound.
type RangeQuery struct {
	Bound          Bound
	ExcludeRiderID string
	Limit          int
}

// GeoStore is the pending ride-request collection searched by the candidate locator.
type GeoStore interface {
	Upsert(ctx context.Context, c models.RideCandidate) error
	Remove(ctx context.Context, requestID string) error
	QueryByGeohashRange(ctx context.Context, q RangeQuery) ([]models.RideCandidate, error)
}

func matches(c models.RideCandidate, q RangeQuery) bool {
	if c.Status != models.RequestStatusPending || !c.ShareEnabled {
		return false
	}
	if q.ExcludeRiderID != "" && c.RiderID == q.ExcludeRiderID {
		return false
	}
	return q.Bound.Contains(c.OriginGeohash)
}

func limitOf(q RangeQuery) int {
	if q.Limit <= 0 {
		return DefaultQueryLimit
	}
	return q.Limit
}

// Index is an in-process GeoStore used when no redis is configured and in tests.
type Index struct {
	mu       sync.RWMutex
	requests map[string]models.RideCandidate
}

func NewIndex() *Index {
	return &Index{requests: make(map[string]models.RideCandidate)}
}

func (g *Index) Upsert(_ context.Context, c models.RideCandidate) error {
	if err := c.Origin.Validate(); err != nil {
		return err
	}
	if c.OriginGeohash == "" {
		c.OriginGeohash = Encode(c.Origin)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests[c.RequestID] = c
	return nil
}

func (g *Index) Remove(_ context.Context, requestID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.requests, requestID)
	return nil
}

func (g *Index) QueryByGeohashRange(_ context.Context, q RangeQuery) ([]models.RideCandidate, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]models.RideCandidate, 0)
	for _, c := range g.requests {
		if matches(c, q) {
			out = append(out, c)
		}
	}
	// same ordering as a lexicographic range scan
	sort.Slice(out, func(i, j int) bool {
		if out[i].OriginGeohash == out[j].OriginGeohash {
			return out[i].RequestID < out[j].RequestID
		}
		return out[i].OriginGeohash < out[j].OriginGeohash
	})
	if n := limitOf(q); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

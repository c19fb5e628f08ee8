package opportunity

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/shared-ride/internal/models"
)

// Store persists opportunities. Update is a compare-and-swap: it writes only when the
// stored version still equals expectedVersion and then bumps the version.
type Store interface {
	Create(ctx context.Context, o *models.SharedRideOpportunity) error
	Get(ctx context.Context, id string) (*models.SharedRideOpportunity, error)
	Update(ctx context.Context, o *models.SharedRideOpportunity, expectedVersion int) (bool, error)
	// QueryByGeohashRange returns open opportunities whose origin geohash is in [lo, hi].
	QueryByGeohashRange(ctx context.Context, lo, hi string, limit int) ([]*models.SharedRideOpportunity, error)
	// ListExpired returns open opportunities whose expiry is before now.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.SharedRideOpportunity, error)
}

type MemoryStore struct {
	mu   sync.RWMutex
	opps map[string]*models.SharedRideOpportunity
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{opps: make(map[string]*models.SharedRideOpportunity)}
}

func (m *MemoryStore) Create(_ context.Context, o *models.SharedRideOpportunity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.opps[o.ID] = o.Clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*models.SharedRideOpportunity, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.opps[id]
	if !ok {
		return nil, ErrNotFound
	}
	return o.Clone(), nil
}

func (m *MemoryStore) Update(_ context.Context, o *models.SharedRideOpportunity, expectedVersion int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.opps[o.ID]
	if !ok {
		return false, ErrNotFound
	}
	if cur.Version != expectedVersion {
		return false, nil
	}
	o.Version = expectedVersion + 1
	m.opps[o.ID] = o.Clone()
	return true, nil
}

func (m *MemoryStore) QueryByGeohashRange(_ context.Context, lo, hi string, limit int) ([]*models.SharedRideOpportunity, error) {
	m.mu.RLock()
	out := make([]*models.SharedRideOpportunity, 0)
	for _, o := range m.opps {
		if o.Status == models.StatusOpen && o.OriginGeohash >= lo && o.OriginGeohash <= hi {
			out = append(out, o.Clone())
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].OriginGeohash == out[j].OriginGeohash {
			return out[i].ID < out[j].ID
		}
		return out[i].OriginGeohash < out[j].OriginGeohash
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) ListExpired(_ context.Context, now time.Time, limit int) ([]*models.SharedRideOpportunity, error) {
	m.mu.RLock()
	out := make([]*models.SharedRideOpportunity, 0)
	for _, o := range m.opps {
		if o.Status == models.StatusOpen && o.ExpiresAt.Before(now) {
			out = append(out, o.Clone())
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ExpiresAt.Before(out[j].ExpiresAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

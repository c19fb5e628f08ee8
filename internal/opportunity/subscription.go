package opportunity

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/example/shared-ride/internal/geo"
	"github.com/example/shared-ride/internal/models"
)

var ErrSubscriptionClosed = errors.New("subscription closed")

// Subscription is a live feed of the opportunities near a moving rider. It owns one
// hub registration per geohash bound and re-registers them when the rider moves.
// Every change to the visible set is delivered as the full current set.
type Subscription struct {
	m        *Manager
	exclude  string
	radiusKm float64

	updates chan []models.SharedRideOpportunity
	signal  chan struct{}
	moves   chan models.Coordinate
	done    chan struct{}
	closed  sync.Once

	// owned by run
	location models.Coordinate
	children []func()
	last     []models.SharedRideOpportunity
	sent     bool
}

// SubscribeNearby starts a feed for location. The first update carries the current set.
// The feed ends when ctx is done or Close is called; Updates is then closed.
func (m *Manager) SubscribeNearby(ctx context.Context, location models.Coordinate, excludeRiderID string, radiusKm float64) (*Subscription, error) {
	if err := location.Validate(); err != nil {
		return nil, err
	}
	if !(radiusKm > 0) {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidRadius, radiusKm)
	}
	s := &Subscription{
		m:        m,
		exclude:  excludeRiderID,
		radiusKm: radiusKm,
		updates:  make(chan []models.SharedRideOpportunity, 1),
		signal:   make(chan struct{}, 1),
		moves:    make(chan models.Coordinate, 1),
		done:     make(chan struct{}),
		location: location,
	}
	go s.run(ctx)
	return s, nil
}

func (s *Subscription) Updates() <-chan []models.SharedRideOpportunity { return s.updates }

// Move re-centres the feed. Only the latest pending location is kept. It fails with
// ErrSubscriptionClosed once the feed has ended.
func (s *Subscription) Move(location models.Coordinate) error {
	if err := location.Validate(); err != nil {
		return err
	}
	for {
		select {
		case <-s.done:
			return ErrSubscriptionClosed
		default:
		}
		select {
		case s.moves <- location:
			return nil
		default:
		}
		select {
		case <-s.moves:
		default:
		}
	}
}

func (s *Subscription) Close() {
	s.closed.Do(func() { close(s.done) })
}

func (s *Subscription) run(ctx context.Context) {
	defer close(s.updates)
	defer s.unbind()
	defer s.Close()

	s.bind()
	if !s.refresh(ctx) {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case loc := <-s.moves:
			s.location = loc
			s.unbind()
			s.bind()
		case <-s.signal:
		}
		if !s.refresh(ctx) {
			return
		}
	}
}

func (s *Subscription) bind() {
	for _, b := range geo.QueryBounds(s.location, s.radiusKm*1000) {
		s.children = append(s.children, s.m.hub.Watch(b, s.signal))
	}
}

func (s *Subscription) unbind() {
	for _, cancel := range s.children {
		cancel()
	}
	s.children = nil
}

// refresh re-reads the visible set and delivers it if it changed. It returns false
// once the subscription is over.
func (s *Subscription) refresh(ctx context.Context) bool {
	bounds := geo.QueryBounds(s.location, s.radiusKm*1000)
	set, err := s.m.query(ctx, bounds, s.location, s.exclude, s.radiusKm)
	if err != nil {
		s.m.logger.Warn("nearby opportunity refresh failed", "error", err)
		return ctx.Err() == nil
	}
	if s.sent && sameSet(s.last, set) {
		return true
	}
	select {
	case <-ctx.Done():
		return false
	case <-s.done:
		return false
	case s.updates <- set:
		s.last = set
		s.sent = true
		return true
	}
}

func sameSet(a, b []models.SharedRideOpportunity) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID || a[i].Version != b[i].Version {
			return false
		}
	}
	return true
}

func sortNewestFirst(opps []models.SharedRideOpportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		if !opps[i].CreatedAt.Equal(opps[j].CreatedAt) {
			return opps[i].CreatedAt.After(opps[j].CreatedAt)
		}
		return opps[i].ID < opps[j].ID
	})
}

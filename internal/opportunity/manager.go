package opportunity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/example/shared-ride/internal/clock"
	"github.com/example/shared-ride/internal/geo"
	"github.com/example/shared-ride/internal/models"
	"github.com/example/shared-ride/internal/observability"
)

const (
	maxCASAttempts = 3
	sweepBatch     = 100
)

// Publisher ships lifecycle events to other processes.
type Publisher interface {
	Publish(ctx context.Context, ev models.OpportunityEvent) error
}

type Config struct {
	TTL           time.Duration
	MaxPassengers int
}

// Manager runs every opportunity mutation as a read-modify-write guarded by the
// store's version check, so concurrent accepts cannot overfill a ride.
type Manager struct {
	store         Store
	clock         clock.Clock
	hub           *Hub
	publisher     Publisher
	logger        *slog.Logger
	ttl           time.Duration
	maxPassengers int
}

func NewManager(store Store, clk clock.Clock, hub *Hub, publisher Publisher, cfg Config, logger *slog.Logger) *Manager {
	if clk == nil {
		clk = clock.System{}
	}
	if hub == nil {
		hub = NewHub()
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.MaxPassengers <= 1 {
		cfg.MaxPassengers = DefaultMaxPassengers
	}
	return &Manager{
		store:         store,
		clock:         clk,
		hub:           hub,
		publisher:     publisher,
		logger:        logger,
		ttl:           cfg.TTL,
		maxPassengers: cfg.MaxPassengers,
	}
}

func (m *Manager) Hub() *Hub { return m.hub }

func (m *Manager) Create(ctx context.Context, cmd CreateCommand) (*models.SharedRideOpportunity, error) {
	if cmd.InitiatorID == "" {
		return nil, fmt.Errorf("%w: initiator id is required", models.ErrInvalidRequest)
	}
	if err := cmd.Origin.Validate(); err != nil {
		return nil, fmt.Errorf("origin: %w", err)
	}
	if err := cmd.Destination.Validate(); err != nil {
		return nil, fmt.Errorf("destination: %w", err)
	}
	maxPassengers := cmd.MaxPassengers
	if maxPassengers == 0 {
		maxPassengers = m.maxPassengers
	}
	if maxPassengers <= 1 {
		return nil, fmt.Errorf("%w: max passengers %d", models.ErrInvalidCapacity, maxPassengers)
	}

	now := m.clock.Now()
	o := &models.SharedRideOpportunity{
		ID:                 uuid.NewString(),
		InitiatorID:        cmd.InitiatorID,
		InitiatorName:      cmd.InitiatorName,
		Origin:             cmd.Origin,
		Destination:        cmd.Destination,
		OriginGeohash:      geo.Encode(cmd.Origin),
		DestinationGeohash: geo.Encode(cmd.Destination),
		OriginAddress:      cmd.OriginAddress,
		DestinationAddress: cmd.DestinationAddress,
		EstimatedPrice:     cmd.Price,
		PotentialDiscount:  Discount(0),
		Status:             models.StatusOpen,
		ExpiresAt:          now.Add(m.ttl),
		CreatedAt:          now,
		MatchedRiders:      []string{},
		MaxPassengers:      maxPassengers,
	}
	if cmd.Path != nil {
		o.EncodedPath = cmd.Path.EncodedPolyline
	}
	if err := m.store.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create opportunity: %w", err)
	}
	m.emit(ctx, o, models.EventCreated, cmd.InitiatorID)
	return o.Clone(), nil
}

func (m *Manager) Get(ctx context.Context, id string) (*models.SharedRideOpportunity, error) {
	return m.store.Get(ctx, id)
}

// Accept adds riderID to the opportunity and returns the new discount. A full,
// expired or cancelled opportunity yields ErrUnavailable and is left unchanged.
// Accepting twice is a no-op that reports the current discount.
func (m *Manager) Accept(ctx context.Context, id, riderID, riderName string) (int, error) {
	if riderID == "" {
		return 0, fmt.Errorf("%w: rider id is required", models.ErrInvalidRequest)
	}
	o, ev, err := m.mutate(ctx, id, func(o *models.SharedRideOpportunity, now time.Time) (models.OpportunityEventType, error) {
		if o.Status != models.StatusOpen {
			return "", ErrUnavailable
		}
		if !now.Before(o.ExpiresAt) {
			o.Status = models.StatusExpired
			return models.EventExpired, nil
		}
		if o.InitiatorID == riderID {
			return "", ErrOwnOpportunity
		}
		if o.HasRider(riderID) {
			return "", nil
		}
		if len(o.MatchedRiders) >= o.MaxPassengers-1 {
			return "", ErrUnavailable
		}
		o.MatchedRiders = append(o.MatchedRiders, riderID)
		o.PotentialDiscount = Discount(len(o.MatchedRiders))
		if len(o.MatchedRiders) == o.MaxPassengers-1 {
			o.Status = models.StatusMatched
		}
		return models.EventAccepted, nil
	})
	if err != nil {
		observability.AcceptOutcomes.WithLabelValues(outcomeOf(err)).Inc()
		return 0, err
	}
	switch ev {
	case models.EventExpired:
		m.emit(ctx, o, ev, "")
		observability.AcceptOutcomes.WithLabelValues("unavailable").Inc()
		return 0, ErrUnavailable
	case models.EventAccepted:
		m.emit(ctx, o, ev, riderID)
		m.logger.Info("rider joined shared ride", "opportunity_id", id, "rider_id", riderID, "rider_name", riderName, "discount", o.PotentialDiscount)
	}
	observability.AcceptOutcomes.WithLabelValues("accepted").Inc()
	return o.PotentialDiscount, nil
}

// Leave removes riderID if present. A matched ride that drops below capacity reopens.
func (m *Manager) Leave(ctx context.Context, id, riderID string) error {
	o, ev, err := m.mutate(ctx, id, func(o *models.SharedRideOpportunity, _ time.Time) (models.OpportunityEventType, error) {
		if o.Status.IsTerminal() {
			return "", ErrUnavailable
		}
		idx := -1
		for i, r := range o.MatchedRiders {
			if r == riderID {
				idx = i
				break
			}
		}
		if idx < 0 {
			return "", nil
		}
		o.MatchedRiders = append(o.MatchedRiders[:idx], o.MatchedRiders[idx+1:]...)
		o.PotentialDiscount = Discount(len(o.MatchedRiders))
		if o.Status == models.StatusMatched && len(o.MatchedRiders) < o.MaxPassengers-1 {
			o.Status = models.StatusOpen
		}
		return models.EventLeft, nil
	})
	if err != nil {
		return err
	}
	if ev != "" {
		m.emit(ctx, o, ev, riderID)
	}
	return nil
}

// Cancel is only permitted to the initiator and cannot be undone.
func (m *Manager) Cancel(ctx context.Context, id, initiatorID string) error {
	o, ev, err := m.mutate(ctx, id, func(o *models.SharedRideOpportunity, _ time.Time) (models.OpportunityEventType, error) {
		if o.InitiatorID != initiatorID {
			return "", ErrNotInitiator
		}
		if !CanTransition(o.Status, models.StatusCancelled) {
			return "", ErrUnavailable
		}
		o.Status = models.StatusCancelled
		return models.EventCancelled, nil
	})
	if err != nil {
		return err
	}
	if ev != "" {
		m.emit(ctx, o, ev, initiatorID)
	}
	return nil
}

// ExpireDue moves every open opportunity past its expiry to expired and reports how
// many it changed. Safe to run from several processes at once.
func (m *Manager) ExpireDue(ctx context.Context) (int, error) {
	now := m.clock.Now()
	due, err := m.store.ListExpired(ctx, now, sweepBatch)
	if err != nil {
		return 0, fmt.Errorf("list expired: %w", err)
	}
	expired := 0
	for _, d := range due {
		o, ev, err := m.mutate(ctx, d.ID, func(o *models.SharedRideOpportunity, now time.Time) (models.OpportunityEventType, error) {
			if o.Status != models.StatusOpen || now.Before(o.ExpiresAt) {
				return "", nil
			}
			o.Status = models.StatusExpired
			return models.EventExpired, nil
		})
		if err != nil {
			m.logger.Warn("expire opportunity failed", "opportunity_id", d.ID, "error", err)
			continue
		}
		if ev != "" {
			m.emit(ctx, o, ev, "")
			expired++
		}
	}
	return expired, nil
}

// RunExpirySweeper calls ExpireDue every interval until ctx is done.
func (m *Manager) RunExpirySweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := m.ExpireDue(ctx)
			if err != nil {
				m.logger.Error("expiry sweep failed", "error", err)
				continue
			}
			if n > 0 {
				m.logger.Info("expired opportunities", "count", n)
			}
		}
	}
}

// Nearby returns the open, unexpired opportunities within radiusKm of location that
// were not started by excludeRiderID, newest first.
func (m *Manager) Nearby(ctx context.Context, location models.Coordinate, excludeRiderID string, radiusKm float64) ([]models.SharedRideOpportunity, error) {
	if err := location.Validate(); err != nil {
		return nil, err
	}
	if !(radiusKm > 0) {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidRadius, radiusKm)
	}
	return m.query(ctx, geo.QueryBounds(location, radiusKm*1000), location, excludeRiderID, radiusKm)
}

func (m *Manager) query(ctx context.Context, bounds []geo.Bound, location models.Coordinate, excludeRiderID string, radiusKm float64) ([]models.SharedRideOpportunity, error) {
	now := m.clock.Now()
	seen := make(map[string]struct{})
	out := make([]models.SharedRideOpportunity, 0)
	for _, b := range bounds {
		res, err := m.store.QueryByGeohashRange(ctx, b.Lo, b.Hi, geo.DefaultQueryLimit)
		if err != nil {
			observability.GeoQueryErrors.Inc()
			return nil, fmt.Errorf("query opportunities: %w", err)
		}
		for _, o := range res {
			if _, dup := seen[o.ID]; dup {
				continue
			}
			if o.Status != models.StatusOpen || !now.Before(o.ExpiresAt) || o.InitiatorID == excludeRiderID {
				continue
			}
			if geo.DistanceKm(location, o.Origin) > radiusKm {
				continue
			}
			seen[o.ID] = struct{}{}
			out = append(out, *o)
		}
	}
	sortNewestFirst(out)
	return out, nil
}

type mutation func(o *models.SharedRideOpportunity, now time.Time) (models.OpportunityEventType, error)

// mutate applies fn to a fresh copy and writes it back only if nobody else wrote in
// between, retrying on conflict. An empty event type means fn made no change.
func (m *Manager) mutate(ctx context.Context, id string, fn mutation) (*models.SharedRideOpportunity, models.OpportunityEventType, error) {
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		cur, err := m.store.Get(ctx, id)
		if err != nil {
			return nil, "", err
		}
		next := cur.Clone()
		ev, err := fn(next, m.clock.Now())
		if err != nil {
			return nil, "", err
		}
		if ev == "" {
			return cur, "", nil
		}
		ok, err := m.store.Update(ctx, next, cur.Version)
		if err != nil {
			return nil, "", err
		}
		if ok {
			return next, ev, nil
		}
		m.logger.Debug("opportunity write conflict", "opportunity_id", id, "attempt", attempt+1)
	}
	return nil, "", fmt.Errorf("%w: %w", ErrUnavailable, ErrConflict)
}

func (m *Manager) emit(ctx context.Context, o *models.SharedRideOpportunity, t models.OpportunityEventType, riderID string) {
	ev := models.OpportunityEvent{
		Type:          t,
		OpportunityID: o.ID,
		OriginGeohash: o.OriginGeohash,
		Status:        o.Status,
		RiderID:       riderID,
		MatchedRiders: append([]string(nil), o.MatchedRiders...),
		Discount:      o.PotentialDiscount,
		At:            m.clock.Now(),
	}
	observability.OpportunityTransition.WithLabelValues(string(t)).Inc()
	m.hub.Publish(ev)
	if m.publisher != nil {
		if err := m.publisher.Publish(ctx, ev); err != nil {
			m.logger.Warn("publish opportunity event failed", "opportunity_id", o.ID, "event", t, "error", err)
		}
	}
	m.logger.Debug("opportunity event", "opportunity_id", o.ID, "event", t, "status", o.Status)
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrOwnOpportunity):
		return "rejected"
	default:
		return "error"
	}
}

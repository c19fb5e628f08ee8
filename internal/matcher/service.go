package matcher

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/shared-ride/internal/models"
	"github.com/example/shared-ride/internal/observability"
	"github.com/example/shared-ride/internal/opportunity"
)

const (
	DefaultRadiusKm      = 3.0
	DefaultNotifyOverlap = 0.5
)

type CandidateFinder interface {
	FindNearby(ctx context.Context, origin models.Coordinate, excludeRiderID string, radiusKm float64) ([]models.RideCandidate, error)
}

type OpportunityCreator interface {
	Create(ctx context.Context, cmd opportunity.CreateCommand) (*models.SharedRideOpportunity, error)
}

// MatchNotifier tells matched riders about a new opportunity and reports how many
// were actually reached.
type MatchNotifier interface {
	NotifyMatches(ctx context.Context, opp *models.SharedRideOpportunity, matches []models.ScoredMatch) int
}

type Config struct {
	RadiusKm         float64
	MaxDetourPercent float64
	NotifyOverlap    float64
}

type ShareResult struct {
	Path        *models.PathResult            `json:"path,omitempty"`
	Matches     []models.ScoredMatch          `json:"matches"`
	Opportunity *models.SharedRideOpportunity `json:"opportunity,omitempty"`
	Notified    int                           `json:"notified"`
}

// Service runs share finding for a new ride: path, nearby candidates, ranking, and an
// opportunity for the riders that overlap enough to be worth notifying.
type Service struct {
	paths         PathFinder
	candidates    CandidateFinder
	ranker        *Ranker
	opportunities OpportunityCreator
	notifier      MatchNotifier
	cfg           Config
	logger        *slog.Logger
}

func NewService(paths PathFinder, candidates CandidateFinder, ranker *Ranker, opportunities OpportunityCreator, notifier MatchNotifier, cfg Config, logger *slog.Logger) *Service {
	if cfg.RadiusKm <= 0 {
		cfg.RadiusKm = DefaultRadiusKm
	}
	if cfg.MaxDetourPercent <= 0 {
		cfg.MaxDetourPercent = DefaultMaxDetourPercent
	}
	if cfg.NotifyOverlap <= 0 {
		cfg.NotifyOverlap = DefaultNotifyOverlap
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		paths:         paths,
		candidates:    candidates,
		ranker:        ranker,
		opportunities: opportunities,
		notifier:      notifier,
		cfg:           cfg,
		logger:        logger,
	}
}

// FindShares never fails a ride because sharing is unavailable: only invalid input
// and caller cancellation are returned as errors, anything else yields no matches.
func (s *Service) FindShares(ctx context.Context, req models.RideRequest) (ShareResult, error) {
	start := time.Now()
	defer func() { observability.MatchLatency.Observe(time.Since(start).Seconds()) }()

	if req.RiderID == "" {
		return ShareResult{}, fmt.Errorf("%w: rider id is required", models.ErrInvalidRequest)
	}
	if err := req.Origin.Validate(); err != nil {
		return ShareResult{}, fmt.Errorf("origin: %w", err)
	}
	if err := req.Destination.Validate(); err != nil {
		return ShareResult{}, fmt.Errorf("destination: %w", err)
	}

	res := ShareResult{Matches: []models.ScoredMatch{}}
	path, err := s.paths.FindPath(ctx, req.Origin, req.Destination)
	if err != nil {
		s.logger.Warn("rider path unavailable", "rider_id", req.RiderID, "error", err)
		return res, ctx.Err()
	}
	res.Path = path

	nearby, err := s.candidates.FindNearby(ctx, req.Origin, req.RiderID, s.cfg.RadiusKm)
	if err != nil {
		s.logger.Warn("candidate search failed", "rider_id", req.RiderID, "error", err)
		return res, ctx.Err()
	}
	if len(nearby) == 0 {
		return res, nil
	}

	matches, err := s.ranker.Rank(ctx, path, nearby, s.cfg.MaxDetourPercent)
	if err != nil {
		return res, err
	}
	res.Matches = matches

	notify := make([]models.ScoredMatch, 0, len(matches))
	for _, m := range matches {
		if m.OverlapScore >= s.cfg.NotifyOverlap {
			notify = append(notify, m)
		}
	}
	if len(notify) == 0 || s.opportunities == nil {
		return res, nil
	}

	opp, err := s.opportunities.Create(ctx, opportunity.CreateCommand{
		InitiatorID:        req.RiderID,
		InitiatorName:      req.RiderName,
		Origin:             req.Origin,
		Destination:        req.Destination,
		OriginAddress:      req.OriginAddress,
		DestinationAddress: req.DestinationAddress,
		Price:              req.Price,
		Path:               path,
	})
	if err != nil {
		s.logger.Error("create opportunity failed", "rider_id", req.RiderID, "error", err)
		return res, nil
	}
	res.Opportunity = opp
	if s.notifier != nil {
		res.Notified = s.notifier.NotifyMatches(ctx, opp, notify)
	}
	s.logger.Info("shared ride opportunity created",
		"opportunity_id", opp.ID, "rider_id", req.RiderID,
		"matches", len(matches), "notified", res.Notified)
	return res, nil
}

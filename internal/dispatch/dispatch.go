// Package dispatch delivers shared-ride notifications to riders.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/example/shared-ride/internal/models"
	"github.com/example/shared-ride/internal/observability"
)

const DefaultCooldown = 10 * time.Minute

var ErrNoToken = errors.New("rider has no notification token")

type Recipient struct {
	RiderID string
	Token   string
}

type Message struct {
	Title string            `json:"title"`
	Body  string            `json:"body"`
	Data  map[string]string `json:"data,omitempty"`
}

type Notifier interface {
	Send(ctx context.Context, to Recipient, msg Message) error
}

// FanOut notifies matched riders about a new opportunity, at most once per rider per
// cooldown window.
type FanOut struct {
	notifier Notifier
	limiter  RateLimiter
	cooldown time.Duration
	logger   *slog.Logger
}

func NewFanOut(notifier Notifier, limiter RateLimiter, cooldown time.Duration, logger *slog.Logger) *FanOut {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FanOut{notifier: notifier, limiter: limiter, cooldown: cooldown, logger: logger}
}

// NotifyMatches returns how many riders were sent a notification. Delivery failures
// are logged and counted, never returned.
func (f *FanOut) NotifyMatches(ctx context.Context, opp *models.SharedRideOpportunity, matches []models.ScoredMatch) int {
	sent := 0
	for _, m := range matches {
		c := m.Candidate
		if ctx.Err() != nil {
			break
		}
		if f.limiter != nil && !f.limiter.Allow(c.RiderID, f.cooldown) {
			observability.Notifications.WithLabelValues("suppressed").Inc()
			f.logger.Debug("notification suppressed by cooldown", "rider_id", c.RiderID, "opportunity_id", opp.ID)
			continue
		}
		err := f.notifier.Send(ctx, Recipient{RiderID: c.RiderID, Token: c.NotificationToken}, shareOffer(opp, m))
		if err != nil {
			if f.limiter != nil {
				f.limiter.Release(c.RiderID)
			}
			observability.Notifications.WithLabelValues("failed").Inc()
			f.logger.Warn("share notification failed", "rider_id", c.RiderID, "opportunity_id", opp.ID, "error", err)
			continue
		}
		observability.Notifications.WithLabelValues("sent").Inc()
		sent++
	}
	return sent
}

func shareOffer(opp *models.SharedRideOpportunity, m models.ScoredMatch) Message {
	name := opp.InitiatorName
	if name == "" {
		name = "A rider"
	}
	return Message{
		Title: fmt.Sprintf("Share your ride and save up to %d%%", m.PotentialSavings),
		Body:  fmt.Sprintf("%s is heading your way. Join their ride before it leaves.", name),
		Data: map[string]string{
			"type":           "share_offer",
			"opportunity_id": opp.ID,
			"request_id":     m.Candidate.RequestID,
			"discount":       strconv.Itoa(opp.PotentialDiscount),
			"savings":        strconv.Itoa(m.PotentialSavings),
			"overlap":        strconv.FormatFloat(m.OverlapScore, 'f', 2, 64),
			"expires_at":     opp.ExpiresAt.UTC().Format(time.RFC3339),
		},
	}
}

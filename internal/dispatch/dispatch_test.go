package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/shared-ride/internal/clock"
	"github.com/example/shared-ride/internal/models"
)

type recordingNotifier struct {
	mu   sync.Mutex
	sent []Recipient
	msgs []Message
	fail map[string]error
}

func (r *recordingNotifier) Send(_ context.Context, to Recipient, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail[to.RiderID]; err != nil {
		return err
	}
	r.sent = append(r.sent, to)
	r.msgs = append(r.msgs, msg)
	return nil
}

func match(riderID string, overlap float64, savings int) models.ScoredMatch {
	return models.ScoredMatch{
		Candidate:        models.RideCandidate{RequestID: "req-" + riderID, RiderID: riderID, NotificationToken: "tok-" + riderID},
		OverlapScore:     overlap,
		PotentialSavings: savings,
	}
}

var opp = &models.SharedRideOpportunity{
	ID:                "opp-1",
	InitiatorName:     "Ayu",
	PotentialDiscount: 10,
	ExpiresAt:         time.Date(2026, 3, 2, 8, 5, 0, 0, time.UTC),
}

func TestFanOutSendsShareOffer(t *testing.T) {
	n := &recordingNotifier{}
	f := NewFanOut(n, NewCooldownLimiter(clock.NewFake(time.Now())), 0, nil)

	sent := f.NotifyMatches(context.Background(), opp, []models.ScoredMatch{match("r1", 0.8, 34)})
	assert.Equal(t, 1, sent)
	require.Len(t, n.sent, 1)
	assert.Equal(t, Recipient{RiderID: "r1", Token: "tok-r1"}, n.sent[0])

	msg := n.msgs[0]
	assert.Equal(t, "Share your ride and save up to 34%", msg.Title)
	assert.Contains(t, msg.Body, "Ayu")
	assert.Equal(t, "opp-1", msg.Data["opportunity_id"])
	assert.Equal(t, "req-r1", msg.Data["request_id"])
	assert.Equal(t, "0.80", msg.Data["overlap"])
	assert.Equal(t, "2026-03-02T08:05:00Z", msg.Data["expires_at"])
}

func TestFanOutCooldownPerRider(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	n := &recordingNotifier{}
	f := NewFanOut(n, NewCooldownLimiter(clk), 10*time.Minute, nil)
	ctx := context.Background()

	assert.Equal(t, 2, f.NotifyMatches(ctx, opp, []models.ScoredMatch{match("r1", 0.9, 37), match("r2", 0.6, 28)}))
	clk.Advance(5 * time.Minute)
	assert.Equal(t, 1, f.NotifyMatches(ctx, opp, []models.ScoredMatch{match("r1", 0.9, 37), match("r3", 0.6, 28)}))
	clk.Advance(5 * time.Minute)
	assert.Equal(t, 1, f.NotifyMatches(ctx, opp, []models.ScoredMatch{match("r1", 0.9, 37)}))

	var riders []string
	for _, r := range n.sent {
		riders = append(riders, r.RiderID)
	}
	assert.Equal(t, []string{"r1", "r2", "r3", "r1"}, riders)
}

func TestFanOutContinuesPastFailures(t *testing.T) {
	n := &recordingNotifier{fail: map[string]error{"r1": errors.New("token expired")}}
	f := NewFanOut(n, nil, 0, nil)

	sent := f.NotifyMatches(context.Background(), opp, []models.ScoredMatch{match("r1", 0.9, 37), match("r2", 0.6, 28)})
	assert.Equal(t, 1, sent)
	require.Len(t, n.sent, 1)
	assert.Equal(t, "r2", n.sent[0].RiderID)
}

func TestFailedDeliveryKeepsRiderReachable(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	n := &recordingNotifier{fail: map[string]error{"r1": ErrNoSession}}
	f := NewFanOut(n, NewCooldownLimiter(clk), 10*time.Minute, nil)
	ctx := context.Background()

	assert.Equal(t, 0, f.NotifyMatches(ctx, opp, []models.ScoredMatch{match("r1", 0.9, 37)}))

	n.mu.Lock()
	n.fail = nil
	n.mu.Unlock()
	clk.Advance(time.Minute)
	assert.Equal(t, 1, f.NotifyMatches(ctx, opp, []models.ScoredMatch{match("r1", 0.9, 37)}))
	assert.Equal(t, 0, f.NotifyMatches(ctx, opp, []models.ScoredMatch{match("r1", 0.9, 37)}))
}

func TestCooldownLimiter(t *testing.T) {
	clk := clock.NewFake(time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC))
	l := NewCooldownLimiter(clk)

	assert.True(t, l.Allow("a", time.Minute))
	assert.False(t, l.Allow("a", time.Minute))
	assert.True(t, l.Allow("b", time.Minute))

	clk.Advance(time.Minute)
	assert.Equal(t, 2, l.Prune())
	assert.True(t, l.Allow("a", time.Minute))

	l.Release("a")
	assert.True(t, l.Allow("a", time.Minute))
}

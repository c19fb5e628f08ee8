package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/shared-ride/internal/geo"
	"github.com/example/shared-ride/internal/models"
	"github.com/example/shared-ride/internal/observability"
)

var candidate = models.RideCandidate{
	RequestID:    "req-1",
	RiderID:      "rider-1",
	Origin:       models.Coordinate{Lat: -6.2, Lng: 106.8166},
	Destination:  models.Coordinate{Lat: -6.225, Lng: 106.83},
	Status:       models.RequestStatusPending,
	ShareEnabled: true,
}

type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return f.err
}

func (f *fakeWriter) Close() error { return nil }

func TestEventPublisherKeysByOpportunity(t *testing.T) {
	w := &fakeWriter{}
	p := &EventPublisher{writer: w}

	err := p.Publish(context.Background(), models.OpportunityEvent{Type: models.EventAccepted, OpportunityID: "opp-1", Discount: 20})
	require.NoError(t, err)
	require.Len(t, w.msgs, 1)
	assert.Equal(t, "opp-1", string(w.msgs[0].Key))
	assert.Equal(t, "accepted", string(w.msgs[0].Headers[0].Value))

	var ev models.OpportunityEvent
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &ev))
	assert.Equal(t, 20, ev.Discount)
}

func TestRequestPublisherRoundTripsThroughDecode(t *testing.T) {
	w := &fakeWriter{}
	p := &RequestPublisher{writer: w}
	ctx := context.Background()

	require.NoError(t, p.PublishUpsert(ctx, candidate))
	require.NoError(t, p.PublishRemove(ctx, "req-2"))
	require.Len(t, w.msgs, 2)

	up, err := DecodeRequest(w.msgs[0].Value)
	require.NoError(t, err)
	assert.Equal(t, ActionUpsert, up.Action)
	assert.Equal(t, "req-1", up.RequestID)
	assert.Equal(t, candidate.Origin, up.Candidate.Origin)

	rm, err := DecodeRequest(w.msgs[1].Value)
	require.NoError(t, err)
	assert.Equal(t, ActionRemove, rm.Action)
	assert.Equal(t, "req-2", string(w.msgs[1].Key))
}

func TestDecodeRequestRejectsBadMessages(t *testing.T) {
	for name, raw := range map[string]string{
		"not json":          `{`,
		"unknown action":    `{"action":"teleport","request_id":"x"}`,
		"upsert no body":    `{"action":"upsert"}`,
		"bad origin":        `{"action":"upsert","candidate":{"request_id":"x","origin":{"lat":91,"lng":0}}}`,
		"remove without id": `{"action":"remove"}`,
	} {
		_, err := DecodeRequest([]byte(raw))
		assert.ErrorIs(t, err, ErrInvalidMessage, name)
	}
}

// flakyStore fails the first failUpsert upserts before delegating.
type flakyStore struct {
	geo.GeoStore
	mu         sync.Mutex
	failUpsert int
	upserts    int
}

func (f *flakyStore) Upsert(ctx context.Context, c models.RideCandidate) error {
	f.mu.Lock()
	f.upserts++
	fail := f.upserts <= f.failUpsert
	f.mu.Unlock()
	if fail {
		return errors.New("redis unavailable")
	}
	return f.GeoStore.Upsert(ctx, c)
}

func TestApplyWithRetrySucceedsAfterRetries(t *testing.T) {
	store := &flakyStore{GeoStore: geo.NewIndex(), failUpsert: 2}
	c := candidate
	start := time.Now()

	err := applyWithRetry(context.Background(), store, RequestMessage{Action: ActionUpsert, RequestID: c.RequestID, Candidate: &c}, 3, 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 3, store.upserts)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestApplyWithRetryFailsWhenExhausted(t *testing.T) {
	store := &flakyStore{GeoStore: geo.NewIndex(), failUpsert: 5}
	c := candidate

	err := applyWithRetry(context.Background(), store, RequestMessage{Action: ActionUpsert, RequestID: c.RequestID, Candidate: &c}, 3, time.Millisecond)
	assert.Error(t, err)
	assert.Equal(t, 3, store.upserts)
}

type fakeReader struct {
	msgs chan kafka.Message
}

func (f *fakeReader) ReadMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case m := <-f.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (f *fakeReader) Close() error { return nil }

func TestRequestConsumerAppliesMessages(t *testing.T) {
	store := geo.NewIndex()
	reader := &fakeReader{msgs: make(chan kafka.Message, 3)}
	c := newRequestConsumer(reader, store, nil)

	up, _ := json.Marshal(RequestMessage{Action: ActionUpsert, Candidate: &candidate})
	reader.msgs <- kafka.Message{Value: []byte("garbage")}
	reader.msgs <- kafka.Message{Value: up}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	bound := geo.QueryBounds(candidate.Origin, 1000)
	assert.Eventually(t, func() bool {
		for _, b := range bound {
			res, _ := store.QueryByGeohashRange(context.Background(), geo.RangeQuery{Bound: b})
			if len(res) == 1 {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	rm, _ := json.Marshal(RequestMessage{Action: ActionRemove, RequestID: candidate.RequestID})
	assert.True(t, c.Handle(context.Background(), rm))
	assert.False(t, c.Handle(context.Background(), []byte(`{"action":"remove"}`)))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop")
	}
}

func TestHandleCountsWritesNotPendingTotals(t *testing.T) {
	c := newRequestConsumer(&fakeReader{}, geo.NewIndex(), nil)
	upserts := observability.RequestWrites.WithLabelValues("consumer", "upsert")
	removes := observability.RequestWrites.WithLabelValues("consumer", "remove")
	baseUp, baseRm := testutil.ToFloat64(upserts), testutil.ToFloat64(removes)

	up, _ := json.Marshal(RequestMessage{Action: ActionUpsert, Candidate: &candidate})
	require.True(t, c.Handle(context.Background(), up))
	require.True(t, c.Handle(context.Background(), up))
	rm, _ := json.Marshal(RequestMessage{Action: ActionRemove, RequestID: "never-seen"})
	require.True(t, c.Handle(context.Background(), rm))

	assert.Equal(t, 2.0, testutil.ToFloat64(upserts)-baseUp)
	assert.Equal(t, 1.0, testutil.ToFloat64(removes)-baseRm)
}

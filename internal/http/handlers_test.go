package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/shared-ride/internal/candidates"
	"github.com/example/shared-ride/internal/clock"
	"github.com/example/shared-ride/internal/dispatch"
	"github.com/example/shared-ride/internal/geo"
	"github.com/example/shared-ride/internal/matcher"
	"github.com/example/shared-ride/internal/models"
	"github.com/example/shared-ride/internal/opportunity"
	"github.com/example/shared-ride/internal/routing"
)

var (
	pickup  = models.Coordinate{Lat: -6.2003, Lng: 106.8166}
	dropoff = models.Coordinate{Lat: -6.2253, Lng: 106.8300}
)

type testEnv struct {
	srv   *httptest.Server
	opps  *opportunity.Manager
	ws    *dispatch.WSRegistry
	clock *clock.Fake
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	clk := clock.NewFake(time.Now())
	paths := routing.NewFinder(nil, routing.NewCache(0, clk), 0, 40, logger)
	requests := geo.NewIndex()
	ranker := matcher.NewRanker(paths, 0, 40, logger)
	opps := opportunity.NewManager(opportunity.NewMemoryStore(), clk, nil, nil, opportunity.Config{}, logger)
	ws := dispatch.NewWSRegistry()
	fanout := dispatch.NewFanOut(dispatch.NewPushDispatcher(ws, nil, logger), dispatch.NewCooldownLimiter(clk), 0, logger)
	shares := matcher.NewService(paths, candidates.NewLocator(requests, 0, logger), ranker, opps, fanout, matcher.Config{}, logger)

	s := NewServer(Deps{
		Paths:         paths,
		Ranker:        ranker,
		Shares:        shares,
		Opportunities: opps,
		Requests:      requests,
		WS:            ws,
		Clock:         clk,
		Logger:        logger,
	})
	srv := httptest.NewServer(s)
	t.Cleanup(srv.Close)
	return &testEnv{srv: srv, opps: opps, ws: ws, clock: clk}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rd)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	_ = json.Unmarshal(raw, &out)
	return resp, out
}

func (e *testEnv) dial(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(e.srv.URL, "http")+path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHealthz(t *testing.T) {
	e := newTestEnv(t)
	resp, err := http.Get(e.srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestFindPathFallsBackWithoutOracle(t *testing.T) {
	e := newTestEnv(t)
	resp, body := e.do(t, "POST", "/api/v1/paths", pathRequest{Origin: pickup, Destination: dropoff})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["degraded"])
	assert.Len(t, body["coordinates"], 2)
	assert.InDelta(t, geo.Distance(pickup, dropoff), body["total_distance_meters"], 1)

	resp, _ = e.do(t, "POST", "/api/v1/paths", pathRequest{Origin: models.Coordinate{Lat: 95}, Destination: dropoff})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGraphPath(t *testing.T) {
	e := newTestEnv(t)
	g := models.NewGraph()
	for i, id := range []string{"A", "B", "C", "D"} {
		g.AddNode(id, geo.Offset(pickup, 90, float64(i)*100))
	}
	g.AddEdge("A", "B", 1, 100)
	g.AddEdge("B", "C", 1, 100)
	g.AddEdge("C", "D", 1, 100)
	g.AddEdge("A", "D", 10, 300)

	resp, body := e.do(t, "POST", "/api/v1/paths/graph", graphRequest{Graph: g, Start: "A", End: "D"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{"A", "B", "C", "D"}, body["nodes"])
	assert.Equal(t, 3.0, body["total_weight_seconds"])

	g.AddNode("E", pickup)
	resp, _ = e.do(t, "POST", "/api/v1/paths/graph", graphRequest{Graph: g, Start: "A", End: "E"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp, _ = e.do(t, "POST", "/api/v1/paths/graph",
		json.RawMessage(`{"graph":{"nodes":{"A":{"edges":[{"target_id":"B","weight":1}]},"B":null}},"start":"A","end":"B"}`))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestShareFlowNotifiesConnectedRider(t *testing.T) {
	e := newTestEnv(t)
	rider := e.dial(t, "/ws/riders/rider-2")
	require.Eventually(t, func() bool { return e.ws.Connected("rider-2") }, time.Second, 10*time.Millisecond)

	resp, body := e.do(t, "POST", "/internal/ride-requests", models.RideCandidate{
		RequestID: "req-2", RiderID: "rider-2", Origin: pickup, Destination: dropoff, ShareEnabled: true,
	})
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, geo.Encode(pickup), body["origin_geohash"])

	resp, body = e.do(t, "POST", "/api/v1/rides/share", models.RideRequest{
		RiderID: "rider-1", RiderName: "Ayu", Origin: pickup, Destination: dropoff, Price: 50000,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	matches := body["matches"].([]any)
	require.Len(t, matches, 1)
	assert.Equal(t, 1.0, matches[0].(map[string]any)["overlap_score"])
	opp := body["opportunity"].(map[string]any)
	assert.Equal(t, "rider-1", opp["initiator_id"])
	assert.Equal(t, 1.0, body["notified"])

	var note struct {
		Type    string           `json:"type"`
		Message dispatch.Message `json:"message"`
	}
	_ = rider.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, rider.ReadJSON(&note))
	assert.Equal(t, opp["id"], note.Message.Data["opportunity_id"])

	resp, _ = e.do(t, "DELETE", "/internal/ride-requests/req-2", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, body = e.do(t, "POST", "/api/v1/rides/share", models.RideRequest{RiderID: "rider-3", Origin: pickup, Destination: dropoff})
	assert.Empty(t, body["matches"])
}

func TestShareWithoutRiderIsBadRequest(t *testing.T) {
	e := newTestEnv(t)
	resp, body := e.do(t, "POST", "/api/v1/rides/share", models.RideRequest{Origin: pickup, Destination: dropoff})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "rider id is required")
}

func TestRankEndpoint(t *testing.T) {
	e := newTestEnv(t)
	resp, body := e.do(t, "POST", "/api/v1/matches/rank", rankRequest{
		Origin:      &pickup,
		Destination: &dropoff,
		Candidates: []models.RideCandidate{
			{RequestID: "same", Origin: pickup, Destination: dropoff},
			{RequestID: "elsewhere", Origin: models.Coordinate{Lat: -6.9, Lng: 107.6}, Destination: models.Coordinate{Lat: -6.95, Lng: 107.65}},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	matches := body["matches"].([]any)
	require.Len(t, matches, 1)
	assert.Equal(t, "same", matches[0].(map[string]any)["candidate"].(map[string]any)["request_id"])

	resp, _ = e.do(t, "POST", "/api/v1/matches/rank", rankRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestOpportunityLifecycleEndpoints(t *testing.T) {
	e := newTestEnv(t)
	resp, body := e.do(t, "POST", "/api/v1/opportunities", createOpportunityRequest{
		InitiatorID: "init", Origin: pickup, Destination: dropoff, Price: 40000,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id := body["id"].(string)
	assert.Equal(t, "open", body["status"])
	assert.Equal(t, 36000.0, body["discounted_price"])

	for i, want := range []float64{20, 30, 40} {
		resp, body = e.do(t, "POST", "/api/v1/opportunities/"+id+"/accept", riderRequest{RiderID: fmt.Sprintf("r%d", i)})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, want, body["discount"])
	}
	resp, body = e.do(t, "POST", "/api/v1/opportunities/"+id+"/accept", riderRequest{RiderID: "late"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, opportunity.ErrUnavailable.Error(), body["error"])

	_, body = e.do(t, "GET", "/api/v1/opportunities/"+id, nil)
	assert.Equal(t, "matched", body["status"])

	resp, _ = e.do(t, "POST", "/api/v1/opportunities/"+id+"/leave", riderRequest{RiderID: "r1"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	_, body = e.do(t, "GET", "/api/v1/opportunities/"+id, nil)
	assert.Equal(t, "open", body["status"])

	resp, _ = e.do(t, "POST", "/api/v1/opportunities/"+id+"/cancel", riderRequest{RiderID: "r0"})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	resp, _ = e.do(t, "POST", "/api/v1/opportunities/"+id+"/cancel", riderRequest{RiderID: "init"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = e.do(t, "POST", "/api/v1/opportunities/"+id+"/accept", riderRequest{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = e.do(t, "GET", "/api/v1/opportunities/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestNearbyEndpoint(t *testing.T) {
	e := newTestEnv(t)
	resp, body := e.do(t, "POST", "/api/v1/opportunities", createOpportunityRequest{InitiatorID: "init", Origin: pickup, Destination: dropoff})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	q := fmt.Sprintf("/api/v1/opportunities/nearby?lat=%f&lng=%f&rider_id=me", pickup.Lat, pickup.Lng)
	resp, out := e.do(t, "GET", q, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := out["opportunities"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, body["id"], list[0].(map[string]any)["id"])

	resp, _ = e.do(t, "GET", "/api/v1/opportunities/nearby?lat=abc&lng=1", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = e.do(t, "GET", q+"&radius_km=-2", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNearbyStream(t *testing.T) {
	e := newTestEnv(t)
	conn := e.dial(t, fmt.Sprintf("/ws/opportunities/nearby?lat=%f&lng=%f&rider_id=me", pickup.Lat, pickup.Lng))

	read := func() []models.SharedRideOpportunity {
		var set []models.SharedRideOpportunity
		_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
		require.NoError(t, conn.ReadJSON(&set))
		return set
	}
	assert.Empty(t, read())

	resp, body := e.do(t, "POST", "/api/v1/opportunities", createOpportunityRequest{InitiatorID: "init", Origin: pickup, Destination: dropoff})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	set := read()
	require.Len(t, set, 1)
	assert.Equal(t, body["id"], set[0].ID)

	require.NoError(t, conn.WriteJSON(models.Coordinate{Lat: -6.9175, Lng: 107.6191}))
	assert.Empty(t, read())
}

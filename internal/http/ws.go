package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/example/shared-ride/internal/models"
	"github.com/example/shared-ride/internal/opportunity"
)

const wsWriteWait = 5 * time.Second

var upgrader = websocket.Upgrader{}

// handleNearbyStream pushes the full set of nearby open opportunities whenever it
// changes. The client moves the feed by sending {"lat":..,"lng":..}.
func (s *Server) handleNearbyStream(w http.ResponseWriter, r *http.Request) {
	loc, radius, ok := s.locationQuery(w, r)
	if !ok {
		return
	}
	riderID := r.URL.Query().Get("rider_id")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub, err := s.deps.Opportunities.SubscribeNearby(ctx, loc, riderID, radius)
	if err != nil {
		_ = conn.WriteJSON(map[string]string{"error": err.Error()})
		return
	}
	defer sub.Close()

	go func() {
		defer cancel()
		for {
			var next models.Coordinate
			if err := conn.ReadJSON(&next); err != nil {
				return
			}
			if err := sub.Move(next); err != nil {
				if errors.Is(err, opportunity.ErrSubscriptionClosed) {
					return
				}
				s.logger.Debug("ignoring invalid location update", "rider_id", riderID, "error", err)
			}
		}
	}()

	for set := range sub.Updates() {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := conn.WriteJSON(set); err != nil {
			return
		}
	}
}

// handleRiderSession keeps a notification socket open for a rider until the client leaves.
func (s *Server) handleRiderSession(w http.ResponseWriter, r *http.Request) {
	riderID := mux.Vars(r)["rider_id"]
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	session := s.deps.WS.Add(riderID, conn)
	defer func() {
		s.deps.WS.Remove(riderID, session)
		conn.Close()
	}()
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

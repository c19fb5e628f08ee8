package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/shared-ride/internal/clock"
	"github.com/example/shared-ride/internal/dispatch"
	"github.com/example/shared-ride/internal/geo"
	"github.com/example/shared-ride/internal/matcher"
	"github.com/example/shared-ride/internal/models"
	"github.com/example/shared-ride/internal/observability"
	"github.com/example/shared-ride/internal/opportunity"
	"github.com/example/shared-ride/internal/routing"
)

// RequestPublisher forwards pending-request changes to other consumers.
type RequestPublisher interface {
	PublishUpsert(ctx context.Context, c models.RideCandidate) error
	PublishRemove(ctx context.Context, requestID string) error
}

// Deps are the collaborators the API serves. Requests and Publisher may be nil.
type Deps struct {
	Paths         matcher.PathFinder
	Ranker        *matcher.Ranker
	Shares        *matcher.Service
	Opportunities *opportunity.Manager
	Requests      geo.GeoStore
	Publisher     RequestPublisher
	WS            *dispatch.WSRegistry
	Clock         clock.Clock
	RadiusKm      float64
	MaxDetour     float64
	Logger        *slog.Logger
}

type Server struct {
	deps   Deps
	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Clock == nil {
		d.Clock = clock.System{}
	}
	if d.RadiusKm <= 0 {
		d.RadiusKm = matcher.DefaultRadiusKm
	}
	if d.MaxDetour <= 0 {
		d.MaxDetour = matcher.DefaultMaxDetourPercent
	}
	if d.WS == nil {
		d.WS = dispatch.NewWSRegistry()
	}
	s := &Server{deps: d, logger: d.Logger, mux: mux.NewRouter()}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) }).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())

	s.mux.HandleFunc("/internal/ride-requests", s.handleUpsertRequest).Methods("POST")
	s.mux.HandleFunc("/internal/ride-requests/{id}", s.handleRemoveRequest).Methods("DELETE")

	api := s.mux.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/paths", s.handleFindPath).Methods("POST")
	api.HandleFunc("/paths/graph", s.handleGraphPath).Methods("POST")
	api.HandleFunc("/rides/share", s.handleFindShares).Methods("POST")
	api.HandleFunc("/matches/rank", s.handleRank).Methods("POST")
	api.HandleFunc("/opportunities", s.handleCreateOpportunity).Methods("POST")
	api.HandleFunc("/opportunities/nearby", s.handleNearby).Methods("GET")
	api.HandleFunc("/opportunities/{id}", s.handleGetOpportunity).Methods("GET")
	api.HandleFunc("/opportunities/{id}/accept", s.handleAccept).Methods("POST")
	api.HandleFunc("/opportunities/{id}/leave", s.handleLeave).Methods("POST")
	api.HandleFunc("/opportunities/{id}/cancel", s.handleCancel).Methods("POST")

	s.mux.HandleFunc("/ws/opportunities/nearby", s.handleNearbyStream)
	s.mux.HandleFunc("/ws/riders/{rider_id}", s.handleRiderSession)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

type pathRequest struct {
	Origin      models.Coordinate `json:"origin"`
	Destination models.Coordinate `json:"destination"`
}

func (s *Server) handleFindPath(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := s.deps.Paths.FindPath(r.Context(), req.Origin, req.Destination)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type graphRequest struct {
	Graph *models.Graph `json:"graph"`
	Start string        `json:"start"`
	End   string        `json:"end"`
}

func (s *Server) handleGraphPath(w http.ResponseWriter, r *http.Request) {
	var req graphRequest
	if !decode(w, r, &req) {
		return
	}
	p, err := routing.RunDijkstra(req.Graph, req.Start, req.End)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleFindShares(w http.ResponseWriter, r *http.Request) {
	var req models.RideRequest
	if !decode(w, r, &req) {
		return
	}
	if req.RequestID == "" {
		req.RequestID = newID()
	}
	res, err := s.deps.Shares.FindShares(r.Context(), req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type rankRequest struct {
	Path             *models.PathResult     `json:"path"`
	Origin           *models.Coordinate     `json:"origin,omitempty"`
	Destination      *models.Coordinate     `json:"destination,omitempty"`
	Candidates       []models.RideCandidate `json:"candidates"`
	MaxDetourPercent float64                `json:"max_detour_percent"`
}

func (s *Server) handleRank(w http.ResponseWriter, r *http.Request) {
	var req rankRequest
	if !decode(w, r, &req) {
		return
	}
	path := req.Path
	if path == nil || len(path.Coordinates) == 0 {
		if req.Origin == nil || req.Destination == nil {
			http.Error(w, "path or origin and destination required", http.StatusBadRequest)
			return
		}
		p, err := s.deps.Paths.FindPath(r.Context(), *req.Origin, *req.Destination)
		if err != nil {
			s.writeError(w, err)
			return
		}
		path = p
	}
	maxDetour := req.MaxDetourPercent
	if maxDetour <= 0 {
		maxDetour = s.deps.MaxDetour
	}
	matches, err := s.deps.Ranker.Rank(r.Context(), path, req.Candidates, maxDetour)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

func (s *Server) handleUpsertRequest(w http.ResponseWriter, r *http.Request) {
	var c models.RideCandidate
	if !decode(w, r, &c) {
		return
	}
	if c.RequestID == "" {
		c.RequestID = newID()
	}
	if err := c.Origin.Validate(); err != nil {
		s.writeError(w, err)
		return
	}
	if err := c.Destination.Validate(); err != nil {
		s.writeError(w, err)
		return
	}
	if c.Status == "" {
		c.Status = models.RequestStatusPending
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.deps.Clock.Now()
	}
	c.OriginGeohash = geo.Encode(c.Origin)
	if err := s.deps.Requests.Upsert(r.Context(), c); err != nil {
		s.writeError(w, err)
		return
	}
	if s.deps.Publisher != nil {
		if err := s.deps.Publisher.PublishUpsert(r.Context(), c); err != nil {
			s.logger.Warn("publish ride request failed", "request_id", c.RequestID, "error", err)
		}
	}
	observability.RequestWrites.WithLabelValues("api", "upsert").Inc()
	writeJSON(w, http.StatusAccepted, map[string]string{"request_id": c.RequestID, "origin_geohash": c.OriginGeohash})
}

func (s *Server) handleRemoveRequest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.deps.Requests.Remove(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	if s.deps.Publisher != nil {
		if err := s.deps.Publisher.PublishRemove(r.Context(), id); err != nil {
			s.logger.Warn("publish ride request removal failed", "request_id", id, "error", err)
		}
	}
	observability.RequestWrites.WithLabelValues("api", "remove").Inc()
	w.WriteHeader(http.StatusNoContent)
}

// writeError maps domain errors to status codes; anything unrecognised is a 500.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrInvalidCoordinate),
		errors.Is(err, models.ErrInvalidRadius),
		errors.Is(err, models.ErrInvalidCapacity),
		errors.Is(err, models.ErrInvalidRequest),
		errors.Is(err, errBadRequest):
		status = http.StatusBadRequest
	case errors.Is(err, opportunity.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, opportunity.ErrUnavailable):
		status = http.StatusConflict
	case errors.Is(err, opportunity.ErrNotInitiator), errors.Is(err, opportunity.ErrOwnOpportunity):
		status = http.StatusForbidden
	case errors.Is(err, routing.ErrNoPath):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

var errBadRequest = errors.New("bad request")

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func queryFloat(r *http.Request, key string) (float64, bool) {
	v, err := strconv.ParseFloat(r.URL.Query().Get(key), 64)
	return v, err == nil
}

func newID() string { return uuid.NewString() }

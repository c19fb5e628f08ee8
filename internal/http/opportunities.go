package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/example/shared-ride/internal/models"
	"github.com/example/shared-ride/internal/opportunity"
)

type createOpportunityRequest struct {
	InitiatorID        string             `json:"initiator_id"`
	InitiatorName      string             `json:"initiator_name"`
	Origin             models.Coordinate  `json:"origin"`
	Destination        models.Coordinate  `json:"destination"`
	OriginAddress      string             `json:"origin_address"`
	DestinationAddress string             `json:"destination_address"`
	Price              float64            `json:"price"`
	Path               *models.PathResult `json:"path,omitempty"`
	MaxPassengers      int                `json:"max_passengers"`
}

type riderRequest struct {
	RiderID   string `json:"rider_id"`
	RiderName string `json:"rider_name"`
}

// opportunityView adds the price after the current discount.
type opportunityView struct {
	*models.SharedRideOpportunity
	DiscountedPrice float64 `json:"discounted_price"`
}

func view(o *models.SharedRideOpportunity) opportunityView {
	return opportunityView{SharedRideOpportunity: o, DiscountedPrice: o.DiscountedPrice()}
}

func (s *Server) handleCreateOpportunity(w http.ResponseWriter, r *http.Request) {
	var req createOpportunityRequest
	if !decode(w, r, &req) {
		return
	}
	if req.InitiatorID == "" {
		s.writeError(w, fmt.Errorf("%w: initiator_id is required", errBadRequest))
		return
	}
	if req.Path == nil {
		p, err := s.deps.Paths.FindPath(r.Context(), req.Origin, req.Destination)
		if err != nil {
			s.writeError(w, err)
			return
		}
		req.Path = p
	}
	o, err := s.deps.Opportunities.Create(r.Context(), opportunity.CreateCommand{
		InitiatorID:        req.InitiatorID,
		InitiatorName:      req.InitiatorName,
		Origin:             req.Origin,
		Destination:        req.Destination,
		OriginAddress:      req.OriginAddress,
		DestinationAddress: req.DestinationAddress,
		Price:              req.Price,
		Path:               req.Path,
		MaxPassengers:      req.MaxPassengers,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view(o))
}

func (s *Server) handleGetOpportunity(w http.ResponseWriter, r *http.Request) {
	o, err := s.deps.Opportunities.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view(o))
}

func (s *Server) handleNearby(w http.ResponseWriter, r *http.Request) {
	loc, radius, ok := s.locationQuery(w, r)
	if !ok {
		return
	}
	opps, err := s.deps.Opportunities.Nearby(r.Context(), loc, r.URL.Query().Get("rider_id"), radius)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunities": opps})
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	req, ok := s.riderRequest(w, r)
	if !ok {
		return
	}
	discount, err := s.deps.Opportunities.Accept(r.Context(), id, req.RiderID, req.RiderName)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"opportunity_id": id, "ok": true, "discount": discount})
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	req, ok := s.riderRequest(w, r)
	if !ok {
		return
	}
	if err := s.deps.Opportunities.Leave(r.Context(), mux.Vars(r)["id"], req.RiderID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	req, ok := s.riderRequest(w, r)
	if !ok {
		return
	}
	if err := s.deps.Opportunities.Cancel(r.Context(), mux.Vars(r)["id"], req.RiderID); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) riderRequest(w http.ResponseWriter, r *http.Request) (riderRequest, bool) {
	var req riderRequest
	if !decode(w, r, &req) {
		return req, false
	}
	if req.RiderID == "" {
		s.writeError(w, fmt.Errorf("%w: rider_id is required", errBadRequest))
		return req, false
	}
	return req, true
}

// locationQuery reads lat, lng and an optional radius_km from the query string.
func (s *Server) locationQuery(w http.ResponseWriter, r *http.Request) (models.Coordinate, float64, bool) {
	lat, okLat := queryFloat(r, "lat")
	lng, okLng := queryFloat(r, "lng")
	if !okLat || !okLng {
		s.writeError(w, fmt.Errorf("%w: lat and lng are required", errBadRequest))
		return models.Coordinate{}, 0, false
	}
	loc := models.Coordinate{Lat: lat, Lng: lng}
	if err := loc.Validate(); err != nil {
		s.writeError(w, err)
		return models.Coordinate{}, 0, false
	}
	radius := s.deps.RadiusKm
	if v, ok := queryFloat(r, "radius_km"); ok {
		radius = v
	}
	if !(radius > 0) {
		s.writeError(w, fmt.Errorf("%w: %v", models.ErrInvalidRadius, radius))
		return models.Coordinate{}, 0, false
	}
	return loc, radius, true
}

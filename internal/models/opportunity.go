package models

import "time"

type OpportunityStatus string

const (
	StatusOpen      OpportunityStatus = "open"
	StatusMatched   OpportunityStatus = "matched"
	StatusExpired   OpportunityStatus = "expired"
	StatusCancelled OpportunityStatus = "cancelled"
)

// IsTerminal reports whether no further transition is permitted.
func (s OpportunityStatus) IsTerminal() bool {
	return s == StatusExpired || s == StatusCancelled
}

type SharedRideOpportunity struct {
	ID                 string            `json:"id"`
	InitiatorID        string            `json:"initiator_id"`
	InitiatorName      string            `json:"initiator_name"`
	Origin             Coordinate        `json:"origin"`
	Destination        Coordinate        `json:"destination"`
	OriginGeohash      string            `json:"origin_geohash"`
	DestinationGeohash string            `json:"destination_geohash"`
	OriginAddress      string            `json:"origin_address"`
	DestinationAddress string            `json:"destination_address"`
	EncodedPath        string            `json:"encoded_path,omitempty"`
	EstimatedPrice     float64           `json:"estimated_price"`
	PotentialDiscount  int               `json:"potential_discount"`
	Status             OpportunityStatus `json:"status"`
	ExpiresAt          time.Time         `json:"expires_at"`
	CreatedAt          time.Time         `json:"created_at"`
	MatchedRiders      []string          `json:"matched_riders"`
	MaxPassengers      int               `json:"max_passengers"`
	// Version increases on every write and guards compare-and-swap updates.
	Version int `json:"version"`
}

// Clone returns a deep copy so stores never hand out shared slices.
func (o *SharedRideOpportunity) Clone() *SharedRideOpportunity {
	if o == nil {
		return nil
	}
	cp := *o
	cp.MatchedRiders = append([]string(nil), o.MatchedRiders...)
	return &cp
}

func (o *SharedRideOpportunity) HasRider(riderID string) bool {
	for _, r := range o.MatchedRiders {
		if r == riderID {
			return true
		}
	}
	return false
}

// DiscountedPrice applies the current potential discount to the estimated price.
func (o *SharedRideOpportunity) DiscountedPrice() float64 {
	return o.EstimatedPrice * float64(100-o.PotentialDiscount) / 100
}

type OpportunityEventType string

const (
	EventCreated   OpportunityEventType = "created"
	EventAccepted  OpportunityEventType = "accepted"
	EventLeft      OpportunityEventType = "left"
	EventExpired   OpportunityEventType = "expired"
	EventCancelled OpportunityEventType = "cancelled"
)

type OpportunityEvent struct {
	Type          OpportunityEventType `json:"type"`
	OpportunityID string               `json:"opportunity_id"`
	OriginGeohash string               `json:"origin_geohash"`
	Status        OpportunityStatus    `json:"status"`
	RiderID       string               `json:"rider_id,omitempty"`
	MatchedRiders []string             `json:"matched_riders"`
	Discount      int                  `json:"discount"`
	At            time.Time            `json:"at"`
}

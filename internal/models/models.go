package models

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrInvalidRadius     = errors.New("radius must be > 0")
	ErrInvalidCapacity   = errors.New("max passengers must be > 1")
	ErrInvalidRequest    = errors.New("invalid request")
)

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Validate rejects out-of-range latitude/longitude pairs.
func (c Coordinate) Validate() error {
	if c.Lat != c.Lat || c.Lng != c.Lng { // NaN
		return fmt.Errorf("%w: NaN", ErrInvalidCoordinate)
	}
	if c.Lat < -90 || c.Lat > 90 || c.Lng < -180 || c.Lng > 180 {
		return fmt.Errorf("%w: (%f,%f)", ErrInvalidCoordinate, c.Lat, c.Lng)
	}
	return nil
}

// PathResult is immutable once produced; callers must not modify the slices.
type PathResult struct {
	Nodes           []string     `json:"nodes"`
	Coordinates     []Coordinate `json:"coordinates"`
	TotalWeight     float64      `json:"total_weight_seconds"`
	TotalDistance   float64      `json:"total_distance_meters"`
	EncodedPolyline string       `json:"encoded_polyline,omitempty"`
	// Degraded marks a straight-line estimate produced without the routing oracle.
	Degraded bool `json:"degraded"`
}

func (p *PathResult) Origin() (Coordinate, bool) {
	if p == nil || len(p.Coordinates) == 0 {
		return Coordinate{}, false
	}
	return p.Coordinates[0], true
}

func (p *PathResult) Destination() (Coordinate, bool) {
	if p == nil || len(p.Coordinates) == 0 {
		return Coordinate{}, false
	}
	return p.Coordinates[len(p.Coordinates)-1], true
}

// Edge weights are seconds and must be non-negative.
type Edge struct {
	TargetID string  `json:"target_id"`
	Weight   float64 `json:"weight"`
	Distance float64 `json:"distance"`
}

type GraphNode struct {
	ID         string     `json:"id"`
	Coordinate Coordinate `json:"coordinate"`
	Edges      []Edge     `json:"edges"`
}

type Graph struct {
	Nodes map[string]*GraphNode `json:"nodes"`
}

func NewGraph() *Graph {
	return &Graph{Nodes: make(map[string]*GraphNode)}
}

func (g *Graph) AddNode(id string, c Coordinate) *GraphNode {
	n := &GraphNode{ID: id, Coordinate: c}
	g.Nodes[id] = n
	return n
}

func (g *Graph) AddEdge(from, to string, weight, distance float64) {
	if n, ok := g.Nodes[from]; ok {
		n.Edges = append(n.Edges, Edge{TargetID: to, Weight: weight, Distance: distance})
	}
}

const RequestStatusPending = "pending"

// RideCandidate is another rider's pending, share-eligible request as read from the geo store.
type RideCandidate struct {
	RequestID         string      `json:"request_id"`
	RiderID           string      `json:"rider_id"`
	RiderName         string      `json:"rider_name"`
	Origin            Coordinate  `json:"origin"`
	Destination       Coordinate  `json:"destination"`
	OriginGeohash     string      `json:"origin_geohash"`
	Path              *PathResult `json:"path,omitempty"`
	NotificationToken string      `json:"notification_token,omitempty"`
	Status            string      `json:"status"`
	ShareEnabled      bool        `json:"share_enabled"`
	CreatedAt         time.Time   `json:"created_at"`
	Price             float64     `json:"price"`
}

type ScoredMatch struct {
	Candidate        RideCandidate `json:"candidate"`
	OverlapScore     float64       `json:"overlap_score"`
	DetourCost       float64       `json:"detour_cost_seconds"`
	DetourMeters     float64       `json:"detour_meters"`
	DetourPercent    float64       `json:"detour_percent"`
	PotentialSavings int           `json:"potential_savings"`
}

// RideRequest is the input to the share-finding pipeline.
type RideRequest struct {
	RequestID          string     `json:"request_id"`
	RiderID            string     `json:"rider_id"`
	RiderName          string     `json:"rider_name"`
	Origin             Coordinate `json:"origin"`
	Destination        Coordinate `json:"destination"`
	OriginAddress      string     `json:"origin_address"`
	DestinationAddress string     `json:"destination_address"`
	Price              float64    `json:"price"`
}

package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"googlemaps.github.io/maps"

	"github.com/example/shared-ride/internal/models"
)

// OSRMClient performs route lookups against an OSRM HTTP server.
type OSRMClient struct {
	Endpoint string
	Client   *http.Client
}

func NewOSRMClient(endpoint string) *OSRMClient {
	return &OSRMClient{Endpoint: strings.TrimRight(endpoint, "/"), Client: &http.Client{Timeout: 10 * time.Second}}
}

// Route queries OSRM /route with the full overview geometry as an encoded polyline.
func (o *OSRMClient) Route(ctx context.Context, from, to models.Coordinate) (Route, error) {
	// /route/v1/driving/{lon1},{lat1};{lon2},{lat2}
	url := fmt.Sprintf("%s/route/v1/driving/%.6f,%.6f;%.6f,%.6f?overview=full&geometries=polyline",
		o.Endpoint, from.Lng, from.Lat, to.Lng, to.Lat)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Route{}, err
	}
	resp, err := o.Client.Do(req)
	if err != nil {
		return Route{}, err
	}
	defer resp.Body.Close()
	var out struct {
		Routes []struct {
			Duration float64 `json:"duration"`
			Distance float64 `json:"distance"`
			Geometry string  `json:"geometry"`
		} `json:"routes"`
		Code string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Route{}, fmt.Errorf("osrm decode (status %d): %w", resp.StatusCode, err)
	}
	if out.Code != "Ok" || len(out.Routes) == 0 {
		return Route{}, fmt.Errorf("osrm %s: %w", out.Code, ErrNoRoute)
	}
	r := out.Routes[0]
	pts, err := maps.DecodePolyline(r.Geometry)
	if err != nil {
		return Route{}, fmt.Errorf("osrm geometry: %w", err)
	}
	return Route{
		Waypoints:       fromLatLngs(pts),
		DurationSec:     r.Duration,
		DistanceMeters:  r.Distance,
		EncodedPolyline: r.Geometry,
	}, nil
}

func fromLatLngs(pts []maps.LatLng) []models.Coordinate {
	out := make([]models.Coordinate, len(pts))
	for i, p := range pts {
		out[i] = models.Coordinate{Lat: p.Lat, Lng: p.Lng}
	}
	return out
}

// EncodePolyline encodes coordinates with the Google polyline algorithm (precision 5).
func EncodePolyline(coords []models.Coordinate) string {
	pts := make([]maps.LatLng, len(coords))
	for i, c := range coords {
		pts[i] = maps.LatLng{Lat: c.Lat, Lng: c.Lng}
	}
	return maps.Encode(pts)
}

func DecodePolyline(s string) ([]models.Coordinate, error) {
	pts, err := maps.DecodePolyline(s)
	if err != nil {
		return nil, err
	}
	return fromLatLngs(pts), nil
}

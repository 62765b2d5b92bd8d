package api

import (
	"time"

	"github.com/turku-citybike/racks/internal/citybike"
	"github.com/turku-citybike/racks/internal/db"
	"github.com/turku-citybike/racks/internal/geo"
	"github.com/turku-citybike/racks/internal/racklist"
)

// Item types in list responses
const (
	ItemTypeRack  = "rack"
	ItemTypeError = "error"
)

// Freshness status values
const (
	FreshnessFresh       = "fresh"
	FreshnessStale       = "stale"
	FreshnessUnavailable = "unavailable"
)

// ErrorResponse is the JSON error response structure
type ErrorResponse struct {
	Error   string                 `json:"error"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// RackResponse is one rack as rendered in lists and detail views
type RackResponse struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Latitude       float64  `json:"lat"`
	Longitude      float64  `json:"lon"`
	ClassicBikes   int      `json:"classicBikes"`
	ElectricBikes  int      `json:"electricBikes"`
	EmptySlots     int      `json:"emptySlots"`
	AvailableBikes int      `json:"availableBikes"`
	Capacity       int      `json:"capacity"`
	DistanceMeters *float64 `json:"distanceMeters,omitempty"`
	Distance       string   `json:"distance,omitempty"`
}

// ItemResponse is either a rack or the error shown in place of the list
type ItemResponse struct {
	Type    string        `json:"type"`
	Rack    *RackResponse `json:"rack,omitempty"`
	Message string        `json:"message,omitempty"`
	Retry   bool          `json:"retry,omitempty"`
}

// ListResponse is the JSON response structure for GET /api/racks and the stream
type ListResponse struct {
	Version         uint64          `json:"version"`
	State           string          `json:"state"`
	Items           []ItemResponse  `json:"items"`
	Count           int             `json:"count"`
	Coordinate      *geo.Coordinate `json:"coordinate,omitempty"`
	LocationFailure string          `json:"locationFailure,omitempty"`
	Generated       *int64          `json:"generated,omitempty"`
	LastUpdate      *int64          `json:"lastUpdate,omitempty"`
	FetchedAt       *time.Time      `json:"fetchedAt,omitempty"`
}

// SnapshotsResponse is the JSON response structure for GET /api/snapshots
type SnapshotsResponse struct {
	Snapshots []db.SnapshotSummary `json:"snapshots"`
	Count     int                  `json:"count"`
}

// RackHistoryResponse is the JSON response structure for GET /api/racks/{rackID}/history
type RackHistoryResponse struct {
	RackID       string               `json:"rackId"`
	Observations []db.RackObservation `json:"observations"`
	Count        int                  `json:"count"`
}

// FeedFreshness reports how old the feed's lastupdate is
type FeedFreshness struct {
	LastUpdate *time.Time `json:"lastUpdate"`
	AgeSeconds int        `json:"ageSeconds"`
	Status     string     `json:"status"`
}

// HealthResponse is the JSON response structure for GET /health
type HealthResponse struct {
	Status        string                `json:"status"`
	State         string                `json:"state"`
	Feed          FeedFreshness         `json:"feed"`
	LastErrorKind string                `json:"lastErrorKind,omitempty"`
	Latency       racklist.LatencyStats `json:"latency"`
	Timestamp     time.Time             `json:"timestamp"`
}

// CalculateFreshnessStatus returns the freshness status based on age
func CalculateFreshnessStatus(ageSeconds int) string {
	if ageSeconds < 0 {
		return FreshnessUnavailable
	}
	if ageSeconds < 60 {
		return FreshnessFresh
	}
	if ageSeconds < 300 {
		return FreshnessStale
	}
	return FreshnessUnavailable
}

func newRackResponse(r citybike.Rack, distance *float64) *RackResponse {
	resp := &RackResponse{
		ID:             r.ID,
		Name:           r.Name,
		Latitude:       r.Coordinate.Latitude,
		Longitude:      r.Coordinate.Longitude,
		ClassicBikes:   r.ClassicBikes,
		ElectricBikes:  r.ElectricBikes,
		EmptySlots:     r.EmptySlots,
		AvailableBikes: r.AvailableBikes(),
		Capacity:       r.Capacity(),
	}
	if distance != nil {
		d := *distance
		resp.DistanceMeters = &d
		resp.Distance = geo.FormatDistance(d)
	}
	return resp
}

// NewListResponse renders a view the way GET /api/racks and the stream do
func NewListResponse(v racklist.View) ListResponse {
	resp := ListResponse{
		Version:    v.Version,
		State:      v.State,
		Items:      make([]ItemResponse, 0, len(v.Items)),
		Coordinate: v.Coordinate,
	}

	for _, item := range v.Items {
		switch it := item.(type) {
		case racklist.RackItem:
			resp.Items = append(resp.Items, ItemResponse{
				Type: ItemTypeRack,
				Rack: newRackResponse(it.Rack, it.DistanceMeters),
			})
		case racklist.ErrorItem:
			resp.Items = append(resp.Items, ItemResponse{
				Type:    ItemTypeError,
				Message: it.Message,
				Retry:   true,
			})
		}
	}
	resp.Count = len(resp.Items)

	if v.LocationFailure != "" {
		resp.LocationFailure = string(v.LocationFailure)
	}
	if v.Directory != nil {
		generated, lastUpdate := v.Directory.Generated, v.Directory.LastUpdate
		resp.Generated = &generated
		resp.LastUpdate = &lastUpdate
	}
	if !v.FetchedAt.IsZero() {
		fetchedAt := v.FetchedAt
		resp.FetchedAt = &fetchedAt
	}
	return resp
}

package transit

import "time"

// Stop is one fixed bus stop from the DataMall catalog. The catalog is loaded
// once per session and treated as read-only afterwards.
type Stop struct {
	Code        string  `json:"code"`
	Description string  `json:"description"`
	RoadName    string  `json:"roadName"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

// Arrival is one ranked arrival report (1st/2nd/3rd next bus) for a service
// at a stop. It only lives for the duration of a single poll cycle.
type Arrival struct {
	Rank             int
	OriginCode       string
	DestinationCode  string
	EstimatedArrival time.Time // zero if the feed did not provide one
	HasPosition      bool      // false when the bus has not reported coordinates yet
	Latitude         float64
	Longitude        float64
	VisitNumber      string
	Load             string
	Type             string
	Feature          string
}

// ServiceArrivals groups the ranked arrivals of one service at one stop,
// in rank order. Ranks the feed did not report are omitted.
type ServiceArrivals struct {
	ServiceNo string
	Operator  string
	Arrivals  []Arrival
}

// StopArrivals is the full live-feed response for a single stop.
type StopArrivals struct {
	StopCode string
	Services []ServiceArrivals
}

// Sighting is one deduplicated bus on the map: a service plus the rounded
// position it was reported at. Identity is inferred per snapshot only; there
// is no stable bus ID across snapshots.
type Sighting struct {
	ServiceNo        string    `json:"serviceNo"`
	StopCode         string    `json:"stopCode"`
	StopDescription  string    `json:"stopDescription"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	EstimatedArrival time.Time `json:"estimatedArrival"`
	Load             string    `json:"load"`
	Type             string    `json:"type"`
	Feature          string    `json:"feature"`
}

type SnapshotStatus string

const (
	// StatusOK marks a snapshot produced from a known observer position,
	// even if the working set or sighting list came out empty.
	StatusOK SnapshotStatus = "ok"
	// StatusNoPosition marks a snapshot published while the observer
	// position is unknown. Not an error; polling resumes once a position
	// arrives.
	StatusNoPosition SnapshotStatus = "no_position"
)

// Snapshot is the atomic published result of one refresh cycle: the working
// set of stops plus the deduplicated sightings derived from their feeds.
// Immutable once published.
type Snapshot struct {
	Status      SnapshotStatus `json:"status"`
	Stops       []Stop         `json:"stops"`
	Sightings   []Sighting     `json:"sightings"`
	FailedStops int            `json:"failedStops"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Position is the observer's last known location.
type Position struct {
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

// AllowedRadii are the search radii the tracker accepts, in meters.
// Other values are rejected, not clamped.
var AllowedRadii = []float64{500, 1000, 2000, 3000}

// ValidRadius reports whether r is one of the allowed radii.
func ValidRadius(r float64) bool {
	for _, v := range AllowedRadii {
		if r == v {
			return true
		}
	}
	return false
}

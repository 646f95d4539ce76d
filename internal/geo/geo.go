package geo

import (
	"math"

	"bus-radar/internal/transit"
)

const earthRadiusM = 6371000.0

// Distance returns the great-circle distance in meters between two
// lat/lon points (degrees, WGS84) using the haversine formula.
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	toRad := func(d float64) float64 { return d * math.Pi / 180 }
	dLat := toRad(lat2 - lat1)
	dLon := toRad(lon2 - lon1)
	a := (math.Sin(dLat/2) * math.Sin(dLat/2)) + math.Cos(toRad(lat1))*math.Cos(toRad(lat2))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusM * c
}

// Nearby returns the stops within radius meters of the observer, boundary
// inclusive. The filter is stable: output keeps catalog order and shares no
// state with the caller beyond the returned slice.
func Nearby(catalog []transit.Stop, lat, lon, radius float64) []transit.Stop {
	var out []transit.Stop
	for _, stop := range catalog {
		if Distance(lat, lon, stop.Latitude, stop.Longitude) <= radius {
			out = append(out, stop)
		}
	}
	return out
}

package datamall

import (
	"strconv"
	"time"

	"bus-radar/internal/transit"
)

// Wire types for the LTA DataMall OData endpoints. Coordinates in the
// arrivals feed are strings; the catalog uses proper numbers.

type busStopsResponse struct {
	Value []busStopJSON `json:"value"`
}

type busStopJSON struct {
	BusStopCode string  `json:"BusStopCode"`
	RoadName    string  `json:"RoadName"`
	Description string  `json:"Description"`
	Latitude    float64 `json:"Latitude"`
	Longitude   float64 `json:"Longitude"`
}

type arrivalsResponse struct {
	BusStopCode string        `json:"BusStopCode"`
	Services    []serviceJSON `json:"Services"`
}

type serviceJSON struct {
	ServiceNo string      `json:"ServiceNo"`
	Operator  string      `json:"Operator"`
	NextBus   arrivalJSON `json:"NextBus"`
	NextBus2  arrivalJSON `json:"NextBus2"`
	NextBus3  arrivalJSON `json:"NextBus3"`
}

type arrivalJSON struct {
	OriginCode       string `json:"OriginCode"`
	DestinationCode  string `json:"DestinationCode"`
	EstimatedArrival string `json:"EstimatedArrival"`
	Latitude         string `json:"Latitude"`
	Longitude        string `json:"Longitude"`
	VisitNumber      string `json:"VisitNumber"`
	Load             string `json:"Load"`
	Feature          string `json:"Feature"`
	Type             string `json:"Type"`
}

func (s busStopJSON) toStop() transit.Stop {
	return transit.Stop{
		Code:        s.BusStopCode,
		Description: s.Description,
		RoadName:    s.RoadName,
		Latitude:    s.Latitude,
		Longitude:   s.Longitude,
	}
}

// empty reports whether the feed left this rank blank (the API returns an
// all-empty object for ranks it has nothing for).
func (a arrivalJSON) empty() bool {
	return a.EstimatedArrival == "" && a.OriginCode == ""
}

// toArrival converts one ranked report. Unparseable or missing coordinates
// leave HasPosition false; such records are dropped from candidate selection
// downstream rather than surfaced as errors.
func (a arrivalJSON) toArrival(rank int) transit.Arrival {
	out := transit.Arrival{
		Rank:            rank,
		OriginCode:      a.OriginCode,
		DestinationCode: a.DestinationCode,
		VisitNumber:     a.VisitNumber,
		Load:            a.Load,
		Type:            a.Type,
		Feature:         a.Feature,
	}
	if t, err := time.Parse(time.RFC3339, a.EstimatedArrival); err == nil {
		out.EstimatedArrival = t
	}
	if a.Latitude != "" && a.Longitude != "" {
		lat, errLat := strconv.ParseFloat(a.Latitude, 64)
		lon, errLon := strconv.ParseFloat(a.Longitude, 64)
		if errLat == nil && errLon == nil {
			out.HasPosition = true
			out.Latitude = lat
			out.Longitude = lon
		}
	}
	return out
}

func (r arrivalsResponse) toStopArrivals() transit.StopArrivals {
	out := transit.StopArrivals{StopCode: r.BusStopCode}
	for _, svc := range r.Services {
		sa := transit.ServiceArrivals{ServiceNo: svc.ServiceNo, Operator: svc.Operator}
		ranks := []arrivalJSON{svc.NextBus, svc.NextBus2, svc.NextBus3}
		for i, rank := range ranks {
			if rank.empty() {
				continue
			}
			sa.Arrivals = append(sa.Arrivals, rank.toArrival(i+1))
		}
		if len(sa.Arrivals) > 0 {
			out.Services = append(out.Services, sa)
		}
	}
	return out
}

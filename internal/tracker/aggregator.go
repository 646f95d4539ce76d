package tracker

import (
	"context"
	"log"
	"sort"
	"strconv"
	"time"

	"github.com/sourcegraph/conc/pool"

	"bus-radar/internal/transit"
)

// coordPrecision is the number of decimal places coordinates are rounded to
// when forming the dedup key. Nearby stops frequently report the same
// physical bus; at 6 decimals (~0.11 m) such reports share a key while two
// buses of the same service elsewhere on the route do not. Policy constant,
// not derived.
const coordPrecision = 6

// FeedSource is the per-stop live arrivals boundary. Implementations must
// fail explicitly on transport errors rather than returning empty results.
type FeedSource interface {
	FetchArrivals(ctx context.Context, stopCode string) (transit.StopArrivals, error)
}

type stopResult struct {
	idx      int
	arrivals transit.StopArrivals
	err      error
}

func dedupKey(serviceNo string, lat, lon float64) string {
	return serviceNo + "|" + strconv.FormatFloat(lat, 'f', coordPrecision, 64) + "|" + strconv.FormatFloat(lon, 'f', coordPrecision, 64)
}

// aggregate fans out one feed fetch per working-set stop, then merges the
// results into a deduplicated sighting list. Fetches run concurrently but the
// merge walks results in working-set order (rank order within a stop), so the
// outcome is independent of response arrival order. A failed stop contributes
// nothing and is counted; it never aborts the cycle.
func (t *Tracker) aggregate(ctx context.Context, working []transit.Stop) ([]transit.Sighting, int) {
	p := pool.NewWithResults[stopResult]().WithMaxGoroutines(t.concurrency)
	for i, stop := range working {
		i, stop := i, stop
		p.Go(func() stopResult {
			start := time.Now()
			arrivals, err := t.feed.FetchArrivals(ctx, stop.Code)
			if t.metrics != nil {
				t.metrics.FetchDuration.Observe(time.Since(start).Seconds())
			}
			return stopResult{idx: i, arrivals: arrivals, err: err}
		})
	}
	results := p.Wait()
	sort.Slice(results, func(a, b int) bool { return results[a].idx < results[b].idx })

	seen := make(map[string]struct{})
	var sightings []transit.Sighting
	failed := 0
	for _, res := range results {
		stop := working[res.idx]
		if res.err != nil {
			failed++
			if t.metrics != nil {
				t.metrics.StopFetchErrs.Inc()
			}
			log.Printf("stop %s fetch failed: %v", stop.Code, res.err)
			continue
		}
		for _, svc := range res.arrivals.Services {
			for _, arr := range svc.Arrivals {
				if !arr.HasPosition {
					continue
				}
				key := dedupKey(svc.ServiceNo, arr.Latitude, arr.Longitude)
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				sightings = append(sightings, transit.Sighting{
					ServiceNo:        svc.ServiceNo,
					StopCode:         stop.Code,
					StopDescription:  stop.Description,
					Latitude:         arr.Latitude,
					Longitude:        arr.Longitude,
					EstimatedArrival: arr.EstimatedArrival,
					Load:             arr.Load,
					Type:             arr.Type,
					Feature:          arr.Feature,
				})
			}
		}
	}
	return sightings, failed
}

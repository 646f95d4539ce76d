package tracker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bus-radar/internal/transit"
)

// fakeFeed serves canned per-stop responses, optionally with errors or
// per-stop delays to shuffle completion order.
type fakeFeed struct {
	mu        sync.Mutex
	responses map[string]transit.StopArrivals
	errs      map[string]error
	delays    map[string]time.Duration
	calls     []string
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{
		responses: map[string]transit.StopArrivals{},
		errs:      map[string]error{},
		delays:    map[string]time.Duration{},
	}
}

func (f *fakeFeed) FetchArrivals(ctx context.Context, stopCode string) (transit.StopArrivals, error) {
	f.mu.Lock()
	delay := f.delays[stopCode]
	f.calls = append(f.calls, stopCode)
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[stopCode]; err != nil {
		return transit.StopArrivals{}, err
	}
	return f.responses[stopCode], nil
}

func (f *fakeFeed) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func positioned(serviceNo string, rank int, lat, lon float64) transit.ServiceArrivals {
	return transit.ServiceArrivals{
		ServiceNo: serviceNo,
		Arrivals: []transit.Arrival{
			{Rank: rank, HasPosition: true, Latitude: lat, Longitude: lon, Load: "SEA", Type: "SD"},
		},
	}
}

func stopFixture(codes ...string) []transit.Stop {
	var out []transit.Stop
	for _, c := range codes {
		out = append(out, transit.Stop{Code: c, Description: "Stop " + c, Latitude: 1.3, Longitude: 103.8})
	}
	return out
}

func newTestTracker(feed FeedSource) *Tracker {
	return New(feed, Options{Interval: time.Hour, Concurrency: 4})
}

func TestAggregateCollapsesSameBus(t *testing.T) {
	// Two stops both report service 15 at coordinates that only differ in
	// the 7th decimal: one physical bus, one sighting.
	feed := newFakeFeed()
	feed.responses["A"] = transit.StopArrivals{StopCode: "A", Services: []transit.ServiceArrivals{
		positioned("15", 1, 1.3500001, 103.9100001),
	}}
	feed.responses["B"] = transit.StopArrivals{StopCode: "B", Services: []transit.ServiceArrivals{
		positioned("15", 1, 1.3500002, 103.9100002),
	}}

	trk := newTestTracker(feed)
	sightings, failed := trk.aggregate(context.Background(), stopFixture("A", "B"))
	require.Zero(t, failed)
	require.Len(t, sightings, 1)
	assert.Equal(t, "A", sightings[0].StopCode, "first stop in working-set order wins")
}

func TestAggregateMergeOrderIndependentOfCompletion(t *testing.T) {
	// Stop A answers last but still wins the dedup because merging follows
	// working-set order, not response order.
	feed := newFakeFeed()
	feed.delays["A"] = 30 * time.Millisecond
	feed.responses["A"] = transit.StopArrivals{StopCode: "A", Services: []transit.ServiceArrivals{
		positioned("15", 1, 1.3500001, 103.9100001),
	}}
	feed.responses["B"] = transit.StopArrivals{StopCode: "B", Services: []transit.ServiceArrivals{
		positioned("15", 1, 1.3500002, 103.9100002),
	}}

	trk := newTestTracker(feed)
	sightings, _ := trk.aggregate(context.Background(), stopFixture("A", "B"))
	require.Len(t, sightings, 1)
	assert.Equal(t, "A", sightings[0].StopCode)
}

func TestAggregateKeepsDistinctBuses(t *testing.T) {
	// A 6th-decimal difference (~0.11 m grid) means distinct keys.
	feed := newFakeFeed()
	feed.responses["A"] = transit.StopArrivals{StopCode: "A", Services: []transit.ServiceArrivals{
		positioned("15", 1, 1.350001, 103.91),
	}}
	feed.responses["B"] = transit.StopArrivals{StopCode: "B", Services: []transit.ServiceArrivals{
		positioned("15", 1, 1.350002, 103.91),
	}}

	trk := newTestTracker(feed)
	sightings, _ := trk.aggregate(context.Background(), stopFixture("A", "B"))
	assert.Len(t, sightings, 2)
}

func TestAggregateSameSpotDifferentServices(t *testing.T) {
	feed := newFakeFeed()
	feed.responses["A"] = transit.StopArrivals{StopCode: "A", Services: []transit.ServiceArrivals{
		positioned("15", 1, 1.35, 103.91),
		positioned("155", 1, 1.35, 103.91),
	}}

	trk := newTestTracker(feed)
	sightings, _ := trk.aggregate(context.Background(), stopFixture("A"))
	assert.Len(t, sightings, 2, "service number is part of the identity key")
}

func TestAggregateDropsPositionlessRanks(t *testing.T) {
	feed := newFakeFeed()
	feed.responses["A"] = transit.StopArrivals{StopCode: "A", Services: []transit.ServiceArrivals{
		{
			ServiceNo: "15",
			Arrivals: []transit.Arrival{
				{Rank: 1, HasPosition: false},
				{Rank: 2, HasPosition: true, Latitude: 1.35, Longitude: 103.91},
			},
		},
	}}

	trk := newTestTracker(feed)
	sightings, _ := trk.aggregate(context.Background(), stopFixture("A"))
	require.Len(t, sightings, 1)
	assert.Equal(t, 1.35, sightings[0].Latitude)
}

func TestAggregatePartialFailure(t *testing.T) {
	feed := newFakeFeed()
	codes := []string{"A", "B", "C", "D", "E"}
	for i, c := range codes {
		feed.responses[c] = transit.StopArrivals{StopCode: c, Services: []transit.ServiceArrivals{
			positioned("15", 1, 1.35+float64(i)*0.001, 103.91),
		}}
	}
	feed.errs["B"] = errors.New("upstream timeout")
	feed.errs["D"] = errors.New("connection refused")

	trk := newTestTracker(feed)
	sightings, failed := trk.aggregate(context.Background(), stopFixture(codes...))
	assert.Equal(t, 2, failed)
	require.Len(t, sightings, 3)
	for _, s := range sightings {
		assert.NotContains(t, []string{"B", "D"}, s.StopCode)
	}
}

func TestAggregateIdempotent(t *testing.T) {
	feed := newFakeFeed()
	feed.responses["A"] = transit.StopArrivals{StopCode: "A", Services: []transit.ServiceArrivals{
		positioned("15", 1, 1.3500001, 103.91),
		positioned("67", 1, 1.36, 103.92),
	}}
	feed.responses["B"] = transit.StopArrivals{StopCode: "B", Services: []transit.ServiceArrivals{
		positioned("15", 1, 1.3500002, 103.91),
	}}

	trk := newTestTracker(feed)
	working := stopFixture("A", "B")
	first, _ := trk.aggregate(context.Background(), working)
	second, _ := trk.aggregate(context.Background(), working)
	assert.Equal(t, first, second)
}

func TestAggregateFirstSeenKeepsEarlierData(t *testing.T) {
	// When two records share a key, the earlier record's fields survive.
	feed := newFakeFeed()
	a := positioned("15", 1, 1.35, 103.91)
	a.Arrivals[0].Load = "SEA"
	b := positioned("15", 1, 1.35, 103.91)
	b.Arrivals[0].Load = "LSD"
	feed.responses["A"] = transit.StopArrivals{StopCode: "A", Services: []transit.ServiceArrivals{a}}
	feed.responses["B"] = transit.StopArrivals{StopCode: "B", Services: []transit.ServiceArrivals{b}}

	trk := newTestTracker(feed)
	sightings, _ := trk.aggregate(context.Background(), stopFixture("A", "B"))
	require.Len(t, sightings, 1)
	assert.Equal(t, "SEA", sightings[0].Load)
}

func TestDedupKeyRounding(t *testing.T) {
	assert.Equal(t, dedupKey("15", 1.3500001, 103.91), dedupKey("15", 1.3500002, 103.91))
	assert.NotEqual(t, dedupKey("15", 1.350001, 103.91), dedupKey("15", 1.350002, 103.91))
	assert.NotEqual(t, dedupKey("15", 1.35, 103.91), dedupKey("16", 1.35, 103.91))
}

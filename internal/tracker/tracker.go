package tracker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"bus-radar/internal/geo"
	"bus-radar/internal/metrics"
	"bus-radar/internal/transit"
)

// DefaultInterval is the refresh cadence between poll cycles.
const DefaultInterval = 15 * time.Second

// SnapshotPublisher receives every snapshot the tracker publishes, in
// addition to the in-process store.
type SnapshotPublisher interface {
	PublishSnapshot(snap transit.Snapshot) error
}

type Options struct {
	Interval    time.Duration // 0 means DefaultInterval
	Concurrency int           // max concurrent per-stop fetches, 0 means 8
	Publisher   SnapshotPublisher
	Metrics     *metrics.Collector
}

// Tracker owns the refresh loop: it recomputes the working set from the
// observer position and radius, polls each working-set stop's feed, and
// publishes the deduplicated result as a snapshot. Cycles run one at a time
// in a single goroutine; observer/radius/catalog changes park in a buffered
// kick channel and trigger exactly one follow-up cycle once the in-flight
// one finishes.
type Tracker struct {
	feed        FeedSource
	store       *SnapshotStore
	pub         SnapshotPublisher
	metrics     *metrics.Collector
	interval    time.Duration
	concurrency int

	mu       sync.Mutex
	catalog  []transit.Stop
	observer *transit.Position
	radius   float64

	kick   chan struct{}
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func New(feed FeedSource, opts Options) *Tracker {
	interval := opts.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 8
	}
	return &Tracker{
		feed:        feed,
		store:       NewSnapshotStore(),
		pub:         opts.Publisher,
		metrics:     opts.Metrics,
		interval:    interval,
		concurrency: concurrency,
		radius:      1000,
		kick:        make(chan struct{}, 1),
	}
}

// Snapshot returns the latest published snapshot, possibly empty.
func (t *Tracker) Snapshot() transit.Snapshot {
	return t.store.Current()
}

// SetCatalog replaces the stop catalog and schedules a refresh.
func (t *Tracker) SetCatalog(stops []transit.Stop) {
	t.mu.Lock()
	t.catalog = stops
	t.mu.Unlock()
	t.wake()
}

// SetObserver updates the observer position and schedules a refresh.
func (t *Tracker) SetObserver(lat, lon float64) {
	t.mu.Lock()
	t.observer = &transit.Position{Latitude: lat, Longitude: lon}
	t.mu.Unlock()
	t.wake()
}

// ClearObserver marks the position unknown. Polling stops and an empty
// no_position snapshot replaces the current one until a position returns.
func (t *Tracker) ClearObserver() {
	t.mu.Lock()
	t.observer = nil
	t.mu.Unlock()
	t.wake()
}

// SetRadius changes the search radius. Values outside transit.AllowedRadii
// are rejected.
func (t *Tracker) SetRadius(m float64) error {
	if !transit.ValidRadius(m) {
		return fmt.Errorf("radius %.0f m not allowed, pick one of %v", m, transit.AllowedRadii)
	}
	t.mu.Lock()
	t.radius = m
	t.mu.Unlock()
	if t.metrics != nil {
		t.metrics.RadiusMeters.Set(m)
	}
	t.wake()
	return nil
}

// Radius returns the current search radius in meters.
func (t *Tracker) Radius() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.radius
}

// wake requests a refresh. The channel holds one pending request; further
// requests while a cycle is in flight coalesce into a single follow-up run.
func (t *Tracker) wake() {
	select {
	case t.kick <- struct{}{}:
	default:
	}
}

// Start launches the refresh loop. The first cycle runs immediately.
func (t *Tracker) Start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	t.cancel = cancel
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.run(ctx)
	}()
}

// Stop halts the loop and waits for any in-flight cycle to complete. It does
// not abort in-flight fetches; they finish and their result is discarded
// with the cycle.
func (t *Tracker) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()
}

func (t *Tracker) run(ctx context.Context) {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	t.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.kick:
		case <-ticker.C:
		}
		if ctx.Err() != nil {
			return
		}
		t.cycle(ctx)
	}
}

// cycle runs one refresh: recompute the working set, poll its feeds, publish.
func (t *Tracker) cycle(ctx context.Context) {
	start := time.Now()

	t.mu.Lock()
	observer := t.observer
	radius := t.radius
	catalog := t.catalog
	t.mu.Unlock()

	if observer == nil {
		t.publish(transit.Snapshot{Status: transit.StatusNoPosition, Timestamp: time.Now()})
		return
	}

	working := geo.Nearby(catalog, observer.Latitude, observer.Longitude, radius)
	var sightings []transit.Sighting
	failed := 0
	if len(working) > 0 {
		sightings, failed = t.aggregate(ctx, working)
	}
	t.publish(transit.Snapshot{
		Status:      transit.StatusOK,
		Stops:       working,
		Sightings:   sightings,
		FailedStops: failed,
		Timestamp:   time.Now(),
	})

	if t.metrics != nil {
		t.metrics.CycleDuration.Observe(time.Since(start).Seconds())
	}
	log.Printf("cycle complete: stops=%d sightings=%d failed=%d in %s",
		len(working), len(sightings), failed, time.Since(start).Round(time.Millisecond))
}

func (t *Tracker) publish(snap transit.Snapshot) {
	t.store.publish(snap)
	if t.metrics != nil {
		t.metrics.CyclesTotal.Inc()
		t.metrics.WorkingSetSize.Set(float64(len(snap.Stops)))
		t.metrics.Sightings.Set(float64(len(snap.Sightings)))
	}
	if t.pub != nil {
		if err := t.pub.PublishSnapshot(snap); err != nil {
			log.Printf("snapshot publish failed: %v", err)
		}
	}
}

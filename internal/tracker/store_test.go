package tracker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"bus-radar/internal/transit"
)

func TestSnapshotStoreStartsEmpty(t *testing.T) {
	s := NewSnapshotStore()
	snap := s.Current()
	assert.Equal(t, transit.StatusNoPosition, snap.Status)
	assert.Empty(t, snap.Stops)
	assert.Empty(t, snap.Sightings)
}

func TestSnapshotStoreReplacesWholesale(t *testing.T) {
	s := NewSnapshotStore()
	s.publish(transit.Snapshot{
		Status:    transit.StatusOK,
		Stops:     stopFixture("A"),
		Sightings: []transit.Sighting{{ServiceNo: "15"}},
		Timestamp: time.Now(),
	})
	snap := s.Current()
	assert.Equal(t, transit.StatusOK, snap.Status)
	assert.Len(t, snap.Stops, 1)
	assert.Len(t, snap.Sightings, 1)
}

func TestSnapshotStoreNoTornReads(t *testing.T) {
	// The stop list length and sighting list length always come from the
	// same publish, even under concurrent reads.
	s := NewSnapshotStore()
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			n := i%3 + 1
			s.publish(transit.Snapshot{
				Status:    transit.StatusOK,
				Stops:     stopFixture(make([]string, n)...),
				Sightings: make([]transit.Sighting, n),
			})
		}
	}()

	for i := 0; i < 1000; i++ {
		snap := s.Current()
		if snap.Status == transit.StatusNoPosition {
			continue
		}
		assert.Equal(t, len(snap.Stops), len(snap.Sightings))
	}
	close(stop)
	wg.Wait()
}

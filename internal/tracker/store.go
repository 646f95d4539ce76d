package tracker

import (
	"sync"
	"time"

	"bus-radar/internal/transit"
)

// SnapshotStore holds the latest published snapshot. The refresh loop is the
// only writer; everything else reads through Current. Snapshots are replaced
// wholesale, so a reader never sees a working set from one cycle paired with
// sightings from another.
type SnapshotStore struct {
	mu   sync.RWMutex
	snap transit.Snapshot
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		snap: transit.Snapshot{Status: transit.StatusNoPosition, Timestamp: time.Now()},
	}
}

func (s *SnapshotStore) Current() transit.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

func (s *SnapshotStore) publish(snap transit.Snapshot) {
	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
}

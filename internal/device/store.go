package device

import (
	"sync"
	"time"

	"github.com/nerrad567/classroom-core/internal/appliance"
)

// Store holds the latest Snapshot. Writers replace it whole; readers get
// deep copies. The zero value is ready to use.
type Store struct {
	mu      sync.Mutex
	current Snapshot
	present bool
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Read returns a copy of the latest snapshot, or false if none was written.
func (s *Store) Read() (Snapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.present {
		return Snapshot{}, false
	}
	return s.current.DeepCopy(), true
}

// Write replaces the latest snapshot with a copy of snap.
func (s *Store) Write(snap Snapshot) {
	c := snap.DeepCopy()
	s.mu.Lock()
	s.current = c
	s.present = true
	s.mu.Unlock()
}

// State returns the latest appliance state, or the all-off default when
// nothing has been observed yet.
func (s *Store) State() appliance.DeviceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.present {
		return appliance.DefaultState()
	}
	return s.current.State
}

// LatestTime returns the device time of the latest snapshot.
func (s *Store) LatestTime() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.ObservedAt, s.present
}

// README: In-memory Store for tests and dev mode without a database.
package ride

import (
	"context"
	"fmt"
	"sync"

	"glide/internal/types"
)

type memoryEntry struct {
	mu   sync.Mutex
	ride *Ride
}

// MemoryStore keeps aggregates in a map with one mutex per ride, so
// mutations of different rides never contend while mutations of the same
// ride are fully serialized.
type MemoryStore struct {
	mu     sync.RWMutex
	rides  map[types.ID]*memoryEntry
	events map[types.ID][]Event
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		rides:  make(map[types.ID]*memoryEntry),
		events: make(map[types.ID][]Event),
	}
}

func (s *MemoryStore) Create(_ context.Context, r *Ride) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rides[r.ID]; ok {
		return fmt.Errorf("%w: ride %s already exists", ErrConflict, r.ID)
	}
	cp := r.Clone()
	s.rides[r.ID] = &memoryEntry{ride: cp}
	s.appendEventsLocked(r.ID, r.TakeEvents())
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Ride, error) {
	s.mu.RLock()
	entry, ok := s.rides[types.ID(id)]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: ride %s", ErrNotFound, id)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()
	return entry.ride.Clone(), nil
}

func (s *MemoryStore) Mutate(_ context.Context, id string, fn func(*Ride) error) (*Ride, error) {
	s.mu.RLock()
	entry, ok := s.rides[types.ID(id)]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: ride %s", ErrNotFound, id)
	}
	entry.mu.Lock()
	defer entry.mu.Unlock()

	next := entry.ride.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	evts := next.TakeEvents()
	entry.ride = next

	s.mu.Lock()
	s.appendEventsLocked(next.ID, evts)
	s.mu.Unlock()
	return next.Clone(), nil
}

func (s *MemoryStore) ListByPassenger(_ context.Context, passengerID string) ([]*Ride, error) {
	s.mu.RLock()
	entries := make([]*memoryEntry, 0, len(s.rides))
	for _, entry := range s.rides {
		entries = append(entries, entry)
	}
	s.mu.RUnlock()

	var out []*Ride
	for _, entry := range entries {
		entry.mu.Lock()
		if entry.ride.PassengerID == types.ID(passengerID) {
			out = append(out, entry.ride.Clone())
		}
		entry.mu.Unlock()
	}
	return out, nil
}

func (s *MemoryStore) Events(_ context.Context, id string) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.rides[types.ID(id)]; !ok {
		return nil, fmt.Errorf("%w: ride %s", ErrNotFound, id)
	}
	return append([]Event(nil), s.events[types.ID(id)]...), nil
}

func (s *MemoryStore) appendEventsLocked(id types.ID, evts []Event) {
	for _, e := range evts {
		e.ID = int64(len(s.events[id]) + 1)
		s.events[id] = append(s.events[id], e)
	}
}

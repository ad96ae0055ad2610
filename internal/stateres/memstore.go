package stateres

import (
	"context"
	"fmt"
	"sync"

	"github.com/roach88/stateres/internal/event"
)

// MemoryStore is an in-memory Store keyed by room and event id.
type MemoryStore struct {
	mu     sync.RWMutex
	events map[event.RoomID]map[event.EventID]*event.Event
}

// NewMemoryStore returns a store holding events.
func NewMemoryStore(events ...*event.Event) *MemoryStore {
	s := &MemoryStore{events: make(map[event.RoomID]map[event.EventID]*event.Event)}
	s.Add(events...)
	return s
}

// Add stores events, replacing any with the same room and id.
func (s *MemoryStore) Add(events ...*event.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		room, ok := s.events[ev.RoomID]
		if !ok {
			room = make(map[event.EventID]*event.Event)
			s.events[ev.RoomID] = room
		}
		room[ev.ID] = ev
	}
}

// GetEvent implements Store.
func (s *MemoryStore) GetEvent(_ context.Context, roomID event.RoomID, eventID event.EventID) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[roomID][eventID]
	if !ok {
		return nil, fmt.Errorf("%s in %s: %w", eventID, roomID, ErrEventNotFound)
	}
	return ev, nil
}

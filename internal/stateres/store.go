package stateres

import (
	"context"
	"errors"

	"github.com/roach88/stateres/internal/event"
)

// ErrEventNotFound is returned (possibly wrapped) by a Store when the event
// does not exist.
var ErrEventNotFound = errors.New("event not found")

// Store is the read-only event source resolution consumes. Implementations
// must be safe for concurrent use and must eventually serve every event
// reachable from the events they return.
type Store interface {
	GetEvent(ctx context.Context, roomID event.RoomID, eventID event.EventID) (*event.Event, error)
}

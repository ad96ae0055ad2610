package stateres

import (
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/stateres/internal/event"
)

// ErrorCode categorizes resolution failures.
type ErrorCode string

const (
	// ErrCodeNotFound indicates a referenced event could not be fetched.
	ErrCodeNotFound ErrorCode = "NOT_FOUND"

	// ErrCodeMalformedEvent indicates an event lacks something resolution
	// requires, such as a state key, or belongs to another room.
	ErrCodeMalformedEvent ErrorCode = "MALFORMED_EVENT"

	// ErrCodeCycleDetected indicates the auth graph has a causal cycle.
	ErrCodeCycleDetected ErrorCode = "CYCLE_DETECTED"
)

// ErrNoStateSets is returned when Resolve is called without snapshots.
var ErrNoStateSets = errors.New("no state sets to resolve")

// ResolveError is a fatal resolution failure. No partial state accompanies it.
type ResolveError struct {
	// Code identifies the error category.
	Code ErrorCode

	// Message is a human-readable description.
	Message string

	// RoomID is the room being resolved, if known.
	RoomID event.RoomID

	// EventID is the offending event, if any.
	EventID event.EventID

	// Cycle lists the events on a detected cycle, sorted.
	Cycle []event.EventID

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *ResolveError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Code, e.Message)
	if e.EventID != "" {
		fmt.Fprintf(&b, " (event=%s)", e.EventID)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *ResolveError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code ErrorCode) bool {
	var re *ResolveError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}

// IsNotFound reports whether err is a NOT_FOUND resolution error.
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsMalformedEvent reports whether err is a MALFORMED_EVENT resolution error.
func IsMalformedEvent(err error) bool {
	return hasCode(err, ErrCodeMalformedEvent)
}

// IsCycleDetected reports whether err is a CYCLE_DETECTED resolution error.
func IsCycleDetected(err error) bool {
	return hasCode(err, ErrCodeCycleDetected)
}

// NewNotFoundError creates a NOT_FOUND error for an event.
func NewNotFoundError(roomID event.RoomID, eventID event.EventID, cause error) *ResolveError {
	return &ResolveError{
		Code:    ErrCodeNotFound,
		Message: "event not found",
		RoomID:  roomID,
		EventID: eventID,
		Err:     cause,
	}
}

// NewMalformedEventError creates a MALFORMED_EVENT error for an event.
func NewMalformedEventError(roomID event.RoomID, eventID event.EventID, format string, args ...any) *ResolveError {
	return &ResolveError{
		Code:    ErrCodeMalformedEvent,
		Message: fmt.Sprintf(format, args...),
		RoomID:  roomID,
		EventID: eventID,
	}
}

// NewCycleError creates a CYCLE_DETECTED error naming the cycle's events.
func NewCycleError(cycle []event.EventID) *ResolveError {
	ids := make([]string, len(cycle))
	for i, id := range cycle {
		ids[i] = string(id)
	}
	return &ResolveError{
		Code:    ErrCodeCycleDetected,
		Message: fmt.Sprintf("auth graph has a cycle through %s", strings.Join(ids, ", ")),
		Cycle:   cycle,
	}
}

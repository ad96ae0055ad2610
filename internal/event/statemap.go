package event

import (
	"cmp"
	"maps"
	"slices"

	"github.com/roach88/stateres/internal/canonicaljson"
)

// StateKey is a (type, state_key) slot in room state.
type StateKey struct {
	Type     string `json:"type" yaml:"type"`
	StateKey string `json:"state_key" yaml:"state_key"`
}

// Compare orders slots by type, then state key, byte-wise.
func (k StateKey) Compare(other StateKey) int {
	if c := cmp.Compare(k.Type, other.Type); c != 0 {
		return c
	}
	return cmp.Compare(k.StateKey, other.StateKey)
}

// StateMap maps slots to the event id occupying them.
// Keys are unique; map order is irrelevant. Iterate with SortedKeys.
type StateMap map[StateKey]EventID

// SortedKeys returns the slots in (type, state_key) order.
func (m StateMap) SortedKeys() []StateKey {
	keys := slices.Collect(maps.Keys(m))
	slices.SortFunc(keys, StateKey.Compare)
	return keys
}

// Clone returns an independent copy.
func (m StateMap) Clone() StateMap {
	out := make(StateMap, len(m))
	maps.Copy(out, m)
	return out
}

// Equal reports whether both maps hold the same slots and values.
func (m StateMap) Equal(other StateMap) bool {
	return maps.Equal(m, other)
}

// Get returns the event id in a slot.
func (m StateMap) Get(eventType, stateKey string) (EventID, bool) {
	id, ok := m[StateKey{Type: eventType, StateKey: stateKey}]
	return id, ok
}

// StateEntry is the serialized form of one slot.
type StateEntry struct {
	Type     string  `json:"type" yaml:"type"`
	StateKey string  `json:"state_key" yaml:"state_key"`
	EventID  EventID `json:"event_id" yaml:"event_id"`
}

// Entries returns the slots as a sorted list.
func (m StateMap) Entries() []StateEntry {
	keys := m.SortedKeys()
	out := make([]StateEntry, len(keys))
	for i, k := range keys {
		out[i] = StateEntry{Type: k.Type, StateKey: k.StateKey, EventID: m[k]}
	}
	return out
}

// StateMapFromEntries builds a StateMap, rejecting duplicate slots.
func StateMapFromEntries(entries []StateEntry) (StateMap, error) {
	m := make(StateMap, len(entries))
	for _, e := range entries {
		k := StateKey{Type: e.Type, StateKey: e.StateKey}
		if prev, dup := m[k]; dup {
			return nil, &DuplicateSlotError{Key: k, First: prev, Second: e.EventID}
		}
		m[k] = e.EventID
	}
	return m, nil
}

// DuplicateSlotError reports two entries for the same slot.
type DuplicateSlotError struct {
	Key           StateKey
	First, Second EventID
}

func (e *DuplicateSlotError) Error() string {
	return "duplicate state slot (" + e.Key.Type + ", " + e.Key.StateKey + "): " +
		string(e.First) + " and " + string(e.Second)
}

// MarshalCanonical serializes the map as a canonical JSON array of
// {"event_id","state_key","type"} objects in slot order. Output is
// byte-identical for equal maps.
func (m StateMap) MarshalCanonical() ([]byte, error) {
	return canonicaljson.Marshal(m.canonicalValue())
}

func (m StateMap) canonicalValue() canonicaljson.Array {
	keys := m.SortedKeys()
	arr := make(canonicaljson.Array, len(keys))
	for i, k := range keys {
		arr[i] = canonicaljson.Object{
			"type":      canonicaljson.String(k.Type),
			"state_key": canonicaljson.String(k.StateKey),
			"event_id":  canonicaljson.String(m[k]),
		}
	}
	return arr
}

// CanonicalValue exposes the canonical form for embedding in larger documents.
func (m StateMap) CanonicalValue() canonicaljson.Value {
	return m.canonicalValue()
}

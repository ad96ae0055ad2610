package event

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"
)

// Well-known event types.
const (
	TypeCreate            = "m.room.create"
	TypeMember            = "m.room.member"
	TypePowerLevels       = "m.room.power_levels"
	TypeJoinRules         = "m.room.join_rules"
	TypeThirdPartyInvite  = "m.room.third_party_invite"
	TypeAliases           = "m.room.aliases"
	TypeRedaction         = "m.room.redaction"
	TypeTopic             = "m.room.topic"
	TypeName              = "m.room.name"
	TypeHistoryVisibility = "m.room.history_visibility"
)

// Event is an immutable view over a persisted room event (a PDU).
// All fields are set at construction and never mutated afterwards.
type Event struct {
	ID             EventID         `json:"event_id"`
	RoomID         RoomID          `json:"room_id"`
	Type           string          `json:"type"`
	StateKey       *string         `json:"state_key,omitempty"`
	Sender         UserID          `json:"sender"`
	Content        json.RawMessage `json:"content"`
	PrevEvents     []EventID       `json:"prev_events"`
	AuthEvents     []EventID       `json:"auth_events"`
	Depth          int64           `json:"depth"`
	OriginServerTS int64           `json:"origin_server_ts"`
	Redacts        *EventID        `json:"redacts,omitempty"`
}

// IsState reports whether the event carries a state key.
func (e *Event) IsState() bool {
	return e.StateKey != nil
}

// Key returns the (type, state_key) slot the event occupies.
// ok is false for non-state events.
func (e *Event) Key() (StateKey, bool) {
	if e.StateKey == nil {
		return StateKey{}, false
	}
	return StateKey{Type: e.Type, StateKey: *e.StateKey}, true
}

// IsTypeAndKey reports whether the event occupies exactly the given slot.
func (e *Event) IsTypeAndKey(eventType, stateKey string) bool {
	return e.Type == eventType && e.StateKey != nil && *e.StateKey == stateKey
}

// Validate checks the fields every event must carry.
func (e *Event) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("event_id is required")
	}
	if e.RoomID == "" {
		return fmt.Errorf("event %s: room_id is required", e.ID)
	}
	if e.Type == "" {
		return fmt.Errorf("event %s: type is required", e.ID)
	}
	if e.Sender == "" {
		return fmt.Errorf("event %s: sender is required", e.ID)
	}
	if len(e.Content) > 0 && !json.Valid(e.Content) {
		return fmt.Errorf("event %s: content is not valid JSON", e.ID)
	}
	if !e.validUTF8() {
		return fmt.Errorf("event %s: contains invalid UTF-8", e.ID)
	}
	return nil
}

// validUTF8 reports whether every string field and the content are valid
// UTF-8.
func (e *Event) validUTF8() bool {
	strs := []string{string(e.ID), string(e.RoomID), e.Type, string(e.Sender)}
	if e.StateKey != nil {
		strs = append(strs, *e.StateKey)
	}
	if e.Redacts != nil {
		strs = append(strs, string(*e.Redacts))
	}
	for _, id := range e.PrevEvents {
		strs = append(strs, string(id))
	}
	for _, id := range e.AuthEvents {
		strs = append(strs, string(id))
	}
	for _, s := range strs {
		if !utf8.ValidString(s) {
			return false
		}
	}
	return utf8.Valid(e.Content)
}

// StringPtr returns a pointer to s. Handy for building state keys.
func StringPtr(s string) *string {
	return &s
}

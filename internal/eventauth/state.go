package eventauth

import (
	"github.com/roach88/stateres/internal/event"
)

// AuthState is the partial room state an event is checked against:
// the events occupying its auth-type slots.
type AuthState map[event.StateKey]*event.Event

// Get returns the event in a slot, or nil.
func (s AuthState) Get(eventType, stateKey string) *event.Event {
	return s[event.StateKey{Type: eventType, StateKey: stateKey}]
}

// Create returns the m.room.create event, or nil.
func (s AuthState) Create() *event.Event {
	return s.Get(event.TypeCreate, "")
}

// PowerLevelsEvent returns the m.room.power_levels event, or nil.
func (s AuthState) PowerLevelsEvent() *event.Event {
	return s.Get(event.TypePowerLevels, "")
}

// Membership returns the user's current membership; leave if absent.
func (s AuthState) Membership(user event.UserID) (event.Membership, error) {
	ev := s.Get(event.TypeMember, string(user))
	if ev == nil {
		return event.MembershipLeave, nil
	}
	return event.ContentMembership(ev.Content)
}

// JoinRule returns the current join rule; invite if absent.
func (s AuthState) JoinRule() (event.JoinRule, error) {
	ev := s.Get(event.TypeJoinRules, "")
	if ev == nil {
		return event.JoinRuleInvite, nil
	}
	return event.ContentJoinRule(ev.Content)
}

// PowerLevels parses the current power levels; nil if the room has none.
func (s AuthState) PowerLevels(rules Rules) (*PowerLevels, error) {
	ev := s.PowerLevelsEvent()
	if ev == nil {
		return nil, nil
	}
	return ParsePowerLevels(ev.Content, rules)
}

// creator returns the room creator under the version's rules.
func creator(create *event.Event, rules Rules) (event.UserID, error) {
	if rules.UseRoomCreateSender {
		return create.Sender, nil
	}
	c, ok := event.ContentCreator(create.Content)
	if !ok {
		return "", rejectf("missing creator field in %s event", event.TypeCreate)
	}
	return c, nil
}

// UserPowerLevel returns a user's level given the current power levels
// (nil if none) and the create event (nil if unknown). Without power levels
// the creator has CreatorPowerLevel and everyone else 0.
func UserPowerLevel(user event.UserID, pl *PowerLevels, create *event.Event, rules Rules) int64 {
	if pl != nil {
		return pl.UserLevel(user)
	}
	if create != nil {
		if c, err := creator(create, rules); err == nil && c == user {
			return CreatorPowerLevel
		}
	}
	return 0
}

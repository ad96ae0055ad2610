package eventauth

import (
	"encoding/json"
	"fmt"
	"slices"

	"github.com/roach88/stateres/internal/event"
)

// AuthTypesForEvent returns the state slots relevant to authorizing an event
// of the given kind, in selection order, without duplicates:
//   - m.room.create: none
//   - otherwise: power levels, the sender's membership, create
//   - m.room.member additionally: the target's membership; join rules for
//     join, invite and knock; the third-party invite named by the signed
//     token for invites; the authorising user's membership for restricted
//     joins
//
// An error means the content is malformed for the kind.
func AuthTypesForEvent(kind string, sender event.UserID, stateKey *string, content json.RawMessage, rules Rules) ([]event.StateKey, error) {
	if kind == event.TypeCreate {
		return []event.StateKey{}, nil
	}

	types := []event.StateKey{
		{Type: event.TypePowerLevels, StateKey: ""},
		{Type: event.TypeMember, StateKey: string(sender)},
		{Type: event.TypeCreate, StateKey: ""},
	}
	add := func(k event.StateKey) {
		if !slices.Contains(types, k) {
			types = append(types, k)
		}
	}

	if kind != event.TypeMember {
		return types, nil
	}

	if stateKey == nil {
		return nil, fmt.Errorf("missing state_key for %s event", event.TypeMember)
	}
	add(event.StateKey{Type: event.TypeMember, StateKey: *stateKey})

	membership, err := event.ContentMembership(content)
	if err != nil {
		return nil, err
	}

	switch membership {
	case event.MembershipJoin, event.MembershipInvite, event.MembershipKnock:
		add(event.StateKey{Type: event.TypeJoinRules, StateKey: ""})
	}

	if membership == event.MembershipInvite {
		tpi, err := event.ContentThirdPartyInvite(content)
		if err != nil {
			return nil, err
		}
		if tpi != nil {
			add(event.StateKey{Type: event.TypeThirdPartyInvite, StateKey: tpi.Token})
		}
	}

	if membership == event.MembershipJoin && rules.RestrictedJoinRule {
		via, ok, err := event.ContentJoinAuthorisedVia(content)
		if err != nil {
			return nil, err
		}
		if ok {
			add(event.StateKey{Type: event.TypeMember, StateKey: string(via)})
		}
	}

	return types, nil
}

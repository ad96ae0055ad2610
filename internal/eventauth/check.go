package eventauth

import (
	"strings"

	"github.com/tidwall/gjson"

	"github.com/roach88/stateres/internal/event"
)

// Check evaluates ev against state. It returns nil when the event is
// authorized and a *Rejection otherwise.
//
// state must hold the events for ev's auth types (see AuthTypesForEvent);
// Check reads nothing else and depends on nothing outside its arguments.
func Check(rules Rules, ev *event.Event, state AuthState) error {
	if ev.Type == event.TypeCreate {
		return checkCreate(rules, ev)
	}

	create := state.Create()
	if create == nil {
		return rejectf("no %s event in state", event.TypeCreate)
	}

	federate, err := event.ContentFederate(create.Content)
	if err != nil {
		return rejectf("invalid create event: %v", err)
	}
	if !federate && create.Sender.ServerName() != ev.Sender.ServerName() {
		return rejectf("room is not federated and sender's server does not match the creator's")
	}

	if rules.SpecialCaseAliases && ev.Type == event.TypeAliases {
		if ev.StateKey == nil || *ev.StateKey != ev.Sender.ServerName() {
			return rejectf("state_key of %s must be the sender's server name", event.TypeAliases)
		}
		return nil
	}

	if ev.Type == event.TypeMember {
		return checkMember(rules, ev, create, state)
	}

	membership, err := state.Membership(ev.Sender)
	if err != nil {
		return rejectf("invalid sender membership: %v", err)
	}
	if membership != event.MembershipJoin {
		return rejectf("sender is not joined")
	}

	pl, err := state.PowerLevels(rules)
	if err != nil {
		return rejectf("invalid current power levels: %v", err)
	}
	senderLevel := UserPowerLevel(ev.Sender, pl, create, rules)

	if ev.Type == event.TypeThirdPartyInvite {
		if senderLevel < inviteLevel(pl) {
			return rejectf("sender does not have enough power to invite")
		}
		return nil
	}

	required := int64(0)
	if pl != nil {
		required = pl.EventLevel(ev.Type, ev.IsState())
	}
	if senderLevel < required {
		return rejectf("sender does not have enough power to send %s", ev.Type)
	}

	if ev.StateKey != nil && strings.HasPrefix(*ev.StateKey, "@") && *ev.StateKey != string(ev.Sender) {
		return rejectf("state_key matches another user's id")
	}

	if ev.Type == event.TypePowerLevels {
		next, err := ParsePowerLevels(ev.Content, rules)
		if err != nil {
			return rejectf("invalid power levels content: %v", err)
		}
		return checkPowerLevelsChange(pl, next, ev.Sender, senderLevel, rules)
	}

	if rules.SpecialCaseRedaction && ev.Type == event.TypeRedaction {
		return checkRedaction(ev, pl, senderLevel)
	}

	return nil
}

func checkCreate(rules Rules, ev *event.Event) error {
	if len(ev.PrevEvents) > 0 {
		return rejectf("%s event cannot have previous events", event.TypeCreate)
	}
	roomServer := ev.RoomID.ServerName()
	if roomServer == "" {
		return rejectf("room_id has no server name")
	}
	if roomServer != ev.Sender.ServerName() {
		return rejectf("room_id server name does not match the sender's")
	}
	// Absent means version 1.
	if rv := event.ContentField(ev.Content, "room_version"); rv.Exists() {
		if rv.Type != gjson.String {
			return rejectf("room_version in %s event is not a string", event.TypeCreate)
		}
		if _, err := RulesFor(RoomVersion(rv.Str)); err != nil {
			return rejectf("%s event names an unknown room_version %q", event.TypeCreate, rv.Str)
		}
	}
	if !rules.UseRoomCreateSender {
		if _, ok := event.ContentCreator(ev.Content); !ok {
			return rejectf("missing creator field in %s event", event.TypeCreate)
		}
	}
	return nil
}

func checkRedaction(ev *event.Event, pl *PowerLevels, senderLevel int64) error {
	redact := FieldRedact.Default()
	if pl != nil {
		redact = pl.Field(FieldRedact)
	}
	if senderLevel >= redact {
		return nil
	}
	if ev.Redacts != nil && ev.ID.ServerName() != "" && ev.ID.ServerName() == ev.Redacts.ServerName() {
		return nil
	}
	return rejectf("%s event did not pass any allow rule", event.TypeRedaction)
}

func inviteLevel(pl *PowerLevels) int64 {
	if pl == nil {
		return FieldInvite.Default()
	}
	return pl.Field(FieldInvite)
}

// CheckAuthEvents applies the state-independent rules to the auth events an
// event declares: each must be a state event of the same room matching one
// of the event's auth types, no slot may repeat, and the create event must
// be among them. When stateBefore holds a power levels event, the declared
// auth events must cite one as well.
//
// authEvents are the fetched events for ev.AuthEvents, in any order.
func CheckAuthEvents(rules Rules, ev *event.Event, authEvents []*event.Event, stateBefore AuthState) error {
	if ev.Type == event.TypeCreate {
		if len(authEvents) > 0 {
			return rejectf("%s event cannot have auth events", event.TypeCreate)
		}
		return nil
	}

	expected, err := AuthTypesForEvent(ev.Type, ev.Sender, ev.StateKey, ev.Content, rules)
	if err != nil {
		return rejectf("malformed content: %v", err)
	}
	allowed := make(map[event.StateKey]bool, len(expected))
	for _, k := range expected {
		allowed[k] = true
	}

	seen := make(map[event.StateKey]bool, len(authEvents))
	for _, ae := range authEvents {
		if ae.RoomID != ev.RoomID {
			return rejectf("auth event %s is not in room %s", ae.ID, ev.RoomID)
		}
		key, ok := ae.Key()
		if !ok {
			return rejectf("auth event %s has no state_key", ae.ID)
		}
		if seen[key] {
			return rejectf("duplicate auth event %s for (%s, %s)", ae.ID, key.Type, key.StateKey)
		}
		if !allowed[key] {
			return rejectf("unexpected auth event %s for (%s, %s)", ae.ID, key.Type, key.StateKey)
		}
		seen[key] = true
	}

	if !seen[event.StateKey{Type: event.TypeCreate}] {
		return rejectf("no %s event in auth events", event.TypeCreate)
	}

	if stateBefore.PowerLevelsEvent() != nil && !seen[event.StateKey{Type: event.TypePowerLevels}] {
		return rejectf("auth events do not cite the room's %s event", event.TypePowerLevels)
	}

	return nil
}

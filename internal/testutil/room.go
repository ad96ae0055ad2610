package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/stateres/internal/event"
)

// Fixture users and room.
const (
	Alice   event.UserID = "@alice:example.org"
	Bob     event.UserID = "@bob:example.org"
	Charlie event.UserID = "@charlie:example.org"
	Ella    event.UserID = "@ella:example.org"

	RoomID event.RoomID = "!room:example.org"
)

// ID returns the event id for a fixture alias: "$ALIAS:example.org".
func ID(alias string) event.EventID {
	return event.EventID("$" + alias + ":example.org")
}

// Room builds a small event DAG for tests. Events are addressed by alias;
// ids, depths and timestamps are derived deterministically.
//
// Room is not safe for concurrent use.
type Room struct {
	ID     event.RoomID
	clock  *DeterministicClock
	events map[string]*event.Event
	order  []string
}

// NewRoom returns an empty room with id RoomID.
func NewRoom() *Room {
	return &Room{
		ID:     RoomID,
		clock:  NewDeterministicClock(),
		events: make(map[string]*event.Event),
	}
}

// EventOption adjusts an event before it is added.
type EventOption func(*event.Event, *Room)

// Prev sets prev_events by alias.
func Prev(aliases ...string) EventOption {
	return func(ev *event.Event, r *Room) {
		ev.PrevEvents = r.IDs(aliases...)
	}
}

// Auth sets auth_events by alias.
func Auth(aliases ...string) EventOption {
	return func(ev *event.Event, r *Room) {
		ev.AuthEvents = r.IDs(aliases...)
	}
}

// TS sets origin_server_ts.
func TS(ts int64) EventOption {
	return func(ev *event.Event, _ *Room) {
		ev.OriginServerTS = ts
	}
}

// Redacts sets the redacted event by alias.
func Redacts(alias string) EventOption {
	return func(ev *event.Event, r *Room) {
		id := ID(alias)
		ev.Redacts = &id
	}
}

// InRoom overrides room_id.
func InRoom(id event.RoomID) EventOption {
	return func(ev *event.Event, _ *Room) {
		ev.RoomID = id
	}
}

// Add builds an event and records it under alias. content is any value
// encoding/json can marshal, or a json.RawMessage. stateKey nil makes a
// message event. Add panics on duplicate aliases and unknown references.
func (r *Room) Add(alias, eventType string, sender event.UserID, stateKey *string, content any, opts ...EventOption) *event.Event {
	if _, dup := r.events[alias]; dup {
		panic(fmt.Sprintf("testutil: duplicate alias %q", alias))
	}

	raw, ok := content.(json.RawMessage)
	if !ok {
		b, err := json.Marshal(content)
		if err != nil {
			panic(fmt.Sprintf("testutil: content for %q: %v", alias, err))
		}
		raw = b
	}

	ev := &event.Event{
		ID:         ID(alias),
		RoomID:     r.ID,
		Type:       eventType,
		StateKey:   stateKey,
		Sender:     sender,
		Content:    raw,
		PrevEvents: []event.EventID{},
		AuthEvents: []event.EventID{},
	}
	for _, opt := range opts {
		opt(ev, r)
	}

	if ev.OriginServerTS == 0 {
		ev.OriginServerTS = r.clock.Next()
	} else {
		r.clock.Observe(ev.OriginServerTS)
	}
	for _, p := range ev.PrevEvents {
		if prev := r.byID(p); prev != nil && prev.Depth >= ev.Depth {
			ev.Depth = prev.Depth + 1
		}
	}

	r.events[alias] = ev
	r.order = append(r.order, alias)
	return ev
}

func (r *Room) byID(id event.EventID) *event.Event {
	for _, ev := range r.events {
		if ev.ID == id {
			return ev
		}
	}
	return nil
}

// Event returns the event for alias. It panics if the alias is unknown.
func (r *Room) Event(alias string) *event.Event {
	ev, ok := r.events[alias]
	if !ok {
		panic(fmt.Sprintf("testutil: unknown alias %q", alias))
	}
	return ev
}

// IDs maps aliases to event ids. It panics on unknown aliases.
func (r *Room) IDs(aliases ...string) []event.EventID {
	out := make([]event.EventID, 0, len(aliases))
	for _, a := range aliases {
		out = append(out, r.Event(a).ID)
	}
	return out
}

// Events returns every event in the order it was added.
func (r *Room) Events() []*event.Event {
	out := make([]*event.Event, 0, len(r.order))
	for _, a := range r.order {
		out = append(out, r.events[a])
	}
	return out
}

// State builds a state map from state events named by alias.
// It panics on message events or two events for one slot.
func (r *Room) State(aliases ...string) event.StateMap {
	m := make(event.StateMap, len(aliases))
	for _, a := range aliases {
		ev := r.Event(a)
		key, ok := ev.Key()
		if !ok {
			panic(fmt.Sprintf("testutil: %q is not a state event", a))
		}
		if prev, dup := m[key]; dup {
			panic(fmt.Sprintf("testutil: %q and %s share slot (%s, %s)", a, prev, key.Type, key.StateKey))
		}
		m[key] = ev.ID
	}
	return m
}

// Member adds an m.room.member event.
func (r *Room) Member(alias string, sender, target event.UserID, membership event.Membership, opts ...EventOption) *event.Event {
	return r.Add(alias, event.TypeMember, sender, event.StringPtr(string(target)),
		map[string]any{"membership": string(membership)}, opts...)
}

// PowerLevels adds an m.room.power_levels event with the given users map
// and any extra top-level fields.
func (r *Room) PowerLevels(alias string, sender event.UserID, users map[event.UserID]int64, extra map[string]any, opts ...EventOption) *event.Event {
	content := map[string]any{}
	for k, v := range extra {
		content[k] = v
	}
	u := map[string]int64{}
	for k, v := range users {
		u[string(k)] = v
	}
	content["users"] = u
	return r.Add(alias, event.TypePowerLevels, sender, event.StringPtr(""), content, opts...)
}

// JoinRules adds an m.room.join_rules event.
func (r *Room) JoinRules(alias string, sender event.UserID, rule event.JoinRule, opts ...EventOption) *event.Event {
	return r.Add(alias, event.TypeJoinRules, sender, event.StringPtr(""),
		map[string]any{"join_rule": string(rule)}, opts...)
}

// Topic adds an m.room.topic event.
func (r *Room) Topic(alias string, sender event.UserID, topic string, opts ...EventOption) *event.Event {
	return r.Add(alias, event.TypeTopic, sender, event.StringPtr(""),
		map[string]any{"topic": topic}, opts...)
}

// NewBaseRoom returns a room holding the usual opening events:
//
//	CREATE  m.room.create by Alice
//	IMA     Alice joins
//	IPOWER  power levels, Alice at 100 plus users
//	IJR     join rule public
//
// users adds extra power level entries to IPOWER.
func NewBaseRoom(users map[event.UserID]int64) *Room {
	r := NewRoom()
	r.Add("CREATE", event.TypeCreate, Alice, event.StringPtr(""),
		map[string]any{"creator": string(Alice)})
	r.Member("IMA", Alice, Alice, event.MembershipJoin,
		Prev("CREATE"), Auth("CREATE"))

	levels := map[event.UserID]int64{Alice: 100}
	for u, l := range users {
		levels[u] = l
	}
	r.PowerLevels("IPOWER", Alice, levels, nil,
		Prev("IMA"), Auth("CREATE", "IMA"))
	r.JoinRules("IJR", Alice, event.JoinRulePublic,
		Prev("IPOWER"), Auth("CREATE", "IMA", "IPOWER"))
	return r
}

// BaseState is the state after the NewBaseRoom events.
func (r *Room) BaseState() event.StateMap {
	return r.State("CREATE", "IMA", "IPOWER", "IJR")
}

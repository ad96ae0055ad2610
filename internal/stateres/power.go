package stateres

import (
	"slices"

	"github.com/roach88/stateres/internal/event"
	"github.com/roach88/stateres/internal/eventauth"
)

// IsPowerEvent reports whether ev can change who may do what: the create,
// power levels and join rules events, and a member event that kicks or bans
// someone other than its sender.
func IsPowerEvent(ev *event.Event) bool {
	switch {
	case ev.IsTypeAndKey(event.TypeCreate, ""),
		ev.IsTypeAndKey(event.TypePowerLevels, ""),
		ev.IsTypeAndKey(event.TypeJoinRules, ""):
		return true
	case ev.Type == event.TypeMember && ev.StateKey != nil && *ev.StateKey != string(ev.Sender):
		m, err := event.ContentMembership(ev.Content)
		return err == nil && (m == event.MembershipLeave || m == event.MembershipBan)
	}
	return false
}

// senderPowerLevel returns the sender's level as seen by the event's own
// declared auth events: the power levels event it cites, or the creator
// default when it cites none. Power levels content that does not parse
// counts as level 0. Only fetch failures are errors.
func (f *fetcher) senderPowerLevel(ev *event.Event, rules eventauth.Rules) (int64, error) {
	var pl, create *event.Event
	for _, id := range ev.AuthEvents {
		ae, err := f.get(id)
		if err != nil {
			return 0, err
		}
		switch {
		case pl == nil && ae.IsTypeAndKey(event.TypePowerLevels, ""):
			pl = ae
		case create == nil && ae.IsTypeAndKey(event.TypeCreate, ""):
			create = ae
		}
	}

	var levels *eventauth.PowerLevels
	if pl != nil {
		var err error
		levels, err = eventauth.ParsePowerLevels(pl.Content, rules)
		if err != nil {
			// Unreadable levels sort at 0; replay rejects whatever relies on them.
			return 0, nil
		}
	}
	if create == nil && ev.IsTypeAndKey(event.TypeCreate, "") {
		create = ev
	}
	return eventauth.UserPowerLevel(ev.Sender, levels, create, rules), nil
}

// sortPowerEvents selects the power events of the full conflicted set, adds
// their auth ancestors inside that set, and orders the result with the
// reverse topological power ordering.
func (f *fetcher) sortPowerEvents(full map[event.EventID]struct{}, rules eventauth.Rules) ([]event.EventID, error) {
	ids := sortedIDs(full)

	graph := make(Graph)
	for _, id := range ids {
		ev, err := f.get(id)
		if err != nil {
			return nil, err
		}
		if !IsPowerEvent(ev) {
			continue
		}
		if err := f.addWithAuthAncestors(graph, id, full); err != nil {
			return nil, err
		}
	}

	levels := make(map[event.EventID]int64, len(graph))
	return LexicographicalTopologicalSort(graph, func(id event.EventID) (SortKey, error) {
		ev, err := f.get(id)
		if err != nil {
			return SortKey{}, err
		}
		level, ok := levels[id]
		if !ok {
			if level, err = f.senderPowerLevel(ev, rules); err != nil {
				return SortKey{}, err
			}
			levels[id] = level
		}
		return SortKey{PowerLevel: level, OriginServerTS: ev.OriginServerTS}, nil
	})
}

// addWithAuthAncestors adds id and its auth ancestors inside within to
// graph, each node depending on its auth events inside within.
func (f *fetcher) addWithAuthAncestors(graph Graph, id event.EventID, within map[event.EventID]struct{}) error {
	stack := []event.EventID{id}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, done := graph[cur]; done {
			continue
		}

		ev, err := f.get(cur)
		if err != nil {
			return err
		}
		deps := []event.EventID{}
		for _, a := range ev.AuthEvents {
			if _, ok := within[a]; !ok || slices.Contains(deps, a) {
				continue
			}
			deps = append(deps, a)
			if _, done := graph[a]; !done {
				stack = append(stack, a)
			}
		}
		graph[cur] = deps
	}
	return nil
}

func sortedIDs(set map[event.EventID]struct{}) []event.EventID {
	out := make([]event.EventID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

package stateres

import (
	"cmp"
	"slices"

	"github.com/roach88/stateres/internal/event"
)

// MainlinePosition locates an event relative to the mainline: the chain of
// power levels events reachable from the resolved one. Position 0 is the
// oldest mainline event. Events whose power levels ancestry never meets the
// mainline are Unreachable and sort after every reachable event.
type MainlinePosition struct {
	Position    int
	Unreachable bool
}

// Compare orders positions ascending with Unreachable last.
func (p MainlinePosition) Compare(other MainlinePosition) int {
	switch {
	case p.Unreachable && other.Unreachable:
		return 0
	case p.Unreachable:
		return 1
	case other.Unreachable:
		return -1
	}
	return cmp.Compare(p.Position, other.Position)
}

// powerLevelsAuthEvent returns the power levels event ev cites, or nil.
func (f *fetcher) powerLevelsAuthEvent(ev *event.Event) (*event.Event, error) {
	for _, id := range ev.AuthEvents {
		ae, err := f.get(id)
		if err != nil {
			return nil, err
		}
		if ae.IsTypeAndKey(event.TypePowerLevels, "") {
			return ae, nil
		}
	}
	return nil, nil
}

// mainline maps each event on the mainline of the power levels event pl to
// its position. An empty pl gives an empty mainline.
func (f *fetcher) mainline(pl event.EventID) (map[event.EventID]int, error) {
	var chain []event.EventID
	onChain := make(map[event.EventID]bool)
	for cur := pl; cur != ""; {
		if onChain[cur] {
			return nil, NewCycleError([]event.EventID{cur})
		}
		onChain[cur] = true
		chain = append(chain, cur)

		ev, err := f.get(cur)
		if err != nil {
			return nil, err
		}
		next, err := f.powerLevelsAuthEvent(ev)
		if err != nil {
			return nil, err
		}
		cur = ""
		if next != nil {
			cur = next.ID
		}
	}

	positions := make(map[event.EventID]int, len(chain))
	for i, id := range chain {
		positions[id] = len(chain) - 1 - i
	}
	return positions, nil
}

// mainlinePosition walks ev's power levels ancestry until it meets the
// mainline. memo caches positions by power levels event id.
func (f *fetcher) mainlinePosition(ev *event.Event, mainline map[event.EventID]int, memo map[event.EventID]MainlinePosition) (MainlinePosition, error) {
	var walked []event.EventID
	result := MainlinePosition{Unreachable: true}

	cur, err := f.powerLevelsAuthEvent(ev)
	if err != nil {
		return MainlinePosition{}, err
	}
	for cur != nil {
		if pos, ok := mainline[cur.ID]; ok {
			result = MainlinePosition{Position: pos}
			break
		}
		if pos, ok := memo[cur.ID]; ok {
			result = pos
			break
		}
		if slices.Contains(walked, cur.ID) {
			return MainlinePosition{}, NewCycleError([]event.EventID{cur.ID})
		}
		walked = append(walked, cur.ID)
		if cur, err = f.powerLevelsAuthEvent(cur); err != nil {
			return MainlinePosition{}, err
		}
	}

	for _, id := range walked {
		memo[id] = result
	}
	return result, nil
}

// mainlineSort orders ids by (mainline position, origin_server_ts, id)
// against the mainline of the power levels event pl ("" for none).
func (f *fetcher) mainlineSort(ids []event.EventID, pl event.EventID) ([]event.EventID, error) {
	if len(ids) == 0 {
		return []event.EventID{}, nil
	}

	mainline, err := f.mainline(pl)
	if err != nil {
		return nil, err
	}

	type entry struct {
		id  event.EventID
		pos MainlinePosition
		ts  int64
	}
	memo := make(map[event.EventID]MainlinePosition)
	entries := make([]entry, 0, len(ids))
	for _, id := range ids {
		ev, err := f.get(id)
		if err != nil {
			return nil, err
		}
		pos, err := f.mainlinePosition(ev, mainline, memo)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry{id: id, pos: pos, ts: ev.OriginServerTS})
	}

	slices.SortFunc(entries, func(a, b entry) int {
		if c := a.pos.Compare(b.pos); c != 0 {
			return c
		}
		if c := cmp.Compare(a.ts, b.ts); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})

	out := make([]event.EventID, len(entries))
	for i, e := range entries {
		out[i] = e.id
	}
	return out, nil
}

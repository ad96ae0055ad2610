package stateres

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/roach88/stateres/internal/event"
)

// fetcher serves events for one resolution call. Every event is fetched
// from the store at most once; the caller's cache is consulted first and
// never mutated.
type fetcher struct {
	ctx    context.Context
	roomID event.RoomID
	store  Store
	cache  map[event.EventID]*event.Event
	seen   map[event.EventID]*event.Event
	chains map[event.EventID][]event.EventID
}

func newFetcher(ctx context.Context, roomID event.RoomID, store Store, cache map[event.EventID]*event.Event) *fetcher {
	return &fetcher{
		ctx:    ctx,
		roomID: roomID,
		store:  store,
		cache:  cache,
		seen:   make(map[event.EventID]*event.Event),
		chains: make(map[event.EventID][]event.EventID),
	}
}

// get returns the event with the given id. A miss is NOT_FOUND; an event
// from another room, or stored under another id, is MALFORMED_EVENT.
func (f *fetcher) get(id event.EventID) (*event.Event, error) {
	if ev, ok := f.seen[id]; ok {
		return ev, nil
	}

	ev, ok := f.cache[id]
	if !ok || ev == nil {
		if f.store == nil {
			return nil, NewNotFoundError(f.roomID, id, ErrEventNotFound)
		}
		var err error
		ev, err = f.store.GetEvent(f.ctx, f.roomID, id)
		switch {
		case errors.Is(err, ErrEventNotFound):
			return nil, NewNotFoundError(f.roomID, id, err)
		case err != nil:
			return nil, fmt.Errorf("failed to fetch event %s: %w", id, err)
		case ev == nil:
			return nil, NewNotFoundError(f.roomID, id, ErrEventNotFound)
		}
	}

	if ev.ID != id {
		return nil, NewMalformedEventError(f.roomID, id, "store returned event %s", ev.ID)
	}
	if ev.RoomID != f.roomID {
		return nil, NewMalformedEventError(f.roomID, id, "event belongs to room %s", ev.RoomID)
	}

	f.seen[id] = ev
	return ev, nil
}

// authChain returns the ids reachable from seeds over auth references,
// seeds included. Per-event results are memoized for the call, so diamond
// ancestries and overlapping snapshots are walked once.
func (f *fetcher) authChain(seeds []event.EventID) (map[event.EventID]struct{}, error) {
	out := make(map[event.EventID]struct{})
	for _, seed := range seeds {
		chain, err := f.eventAuthChain(seed)
		if err != nil {
			return nil, err
		}
		for _, id := range chain {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

// eventAuthChain returns the sorted auth chain of one event, itself
// included.
func (f *fetcher) eventAuthChain(root event.EventID) ([]event.EventID, error) {
	if chain, ok := f.chains[root]; ok {
		return chain, nil
	}

	visited := map[event.EventID]struct{}{root: {}}
	stack := []event.EventID{root}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if chain, ok := f.chains[id]; ok && id != root {
			for _, a := range chain {
				visited[a] = struct{}{}
			}
			continue
		}

		ev, err := f.get(id)
		if err != nil {
			return nil, err
		}
		for _, a := range ev.AuthEvents {
			if _, ok := visited[a]; ok {
				continue
			}
			visited[a] = struct{}{}
			stack = append(stack, a)
		}
	}

	chain := make([]event.EventID, 0, len(visited))
	for id := range visited {
		chain = append(chain, id)
	}
	slices.Sort(chain)
	f.chains[root] = chain
	return chain, nil
}

// AuthChain returns the sorted auth chain of the given events, seeds
// included, reading events from store. A missing event is NOT_FOUND.
func AuthChain(ctx context.Context, store Store, roomID event.RoomID, seeds []event.EventID) ([]event.EventID, error) {
	f := newFetcher(ctx, roomID, store, nil)
	sorted := slices.Clone(seeds)
	slices.Sort(sorted)
	set, err := f.authChain(sorted)
	if err != nil {
		return nil, err
	}
	out := make([]event.EventID, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	slices.Sort(out)
	return out, nil
}

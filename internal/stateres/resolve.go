package stateres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/stateres/internal/event"
	"github.com/roach88/stateres/internal/eventauth"
)

// TracerName is the instrumentation scope of resolver spans.
const TracerName = "github.com/roach88/stateres/internal/stateres"

// Resolver resolves room state against a Store.
type Resolver struct {
	store  Store
	logger *slog.Logger
	tracer trace.Tracer
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// WithTracer sets the tracer. Defaults to the global provider's tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(r *Resolver) {
		r.tracer = tracer
	}
}

// New creates a Resolver reading events from store.
func New(store Store, opts ...Option) *Resolver {
	r := &Resolver{
		store:  store,
		logger: slog.Default(),
		tracer: otel.Tracer(TracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve is shorthand for New(store).Resolve.
func Resolve(ctx context.Context, roomID event.RoomID, version eventauth.RoomVersion, stateSets []event.StateMap, cache map[event.EventID]*event.Event, store Store) (event.StateMap, error) {
	return New(store).Resolve(ctx, roomID, version, stateSets, cache)
}

// Resolve merges stateSets, the states of roomID at the tips of diverging
// branches, into one state. cache optionally supplies events up front; it is
// read, never written. The input maps are not modified.
//
// The result depends only on the events and the set of input snapshots:
// reordering stateSets or repeating the call yields an equal map.
func (r *Resolver) Resolve(ctx context.Context, roomID event.RoomID, version eventauth.RoomVersion, stateSets []event.StateMap, cache map[event.EventID]*event.Event) (resolved event.StateMap, err error) {
	ctx, span := r.tracer.Start(ctx, "stateres.Resolve", trace.WithAttributes(
		attribute.String("stateres.room_id", string(roomID)),
		attribute.String("stateres.room_version", string(version)),
		attribute.Int("stateres.state_sets", len(stateSets)),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else {
			span.SetAttributes(attribute.Int("stateres.resolved", len(resolved)))
		}
		span.End()
	}()

	if len(stateSets) == 0 {
		return nil, ErrNoStateSets
	}
	rules, err := eventauth.RulesFor(version)
	if err != nil {
		return nil, err
	}

	res := &resolution{
		fetcher:  newFetcher(ctx, roomID, r.store, cache),
		rules:    rules,
		logger:   r.logger.With("room_id", string(roomID)),
		rejected: make(map[event.EventID]string),
	}
	resolved, err = res.run(stateSets)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("stateres.rejected", len(res.rejected)))
	return resolved, nil
}

// resolution is the call-local state of one Resolve.
type resolution struct {
	*fetcher
	rules    eventauth.Rules
	logger   *slog.Logger
	rejected map[event.EventID]string
}

func (res *resolution) run(stateSets []event.StateMap) (event.StateMap, error) {
	res.logger.Debug("state resolution starting", "state_sets", len(stateSets))

	unconflicted, conflicted := partition(stateSets)
	res.logger.Debug("state partitioned", "unconflicted", len(unconflicted), "conflicted", len(conflicted))
	if len(conflicted) == 0 {
		return unconflicted, nil
	}

	full, err := res.fullConflictedSet(stateSets, conflicted)
	if err != nil {
		return nil, err
	}
	res.logger.Debug("full conflicted set", "count", len(full))

	powerEvents, err := res.sortPowerEvents(full, res.rules)
	if err != nil {
		return nil, err
	}
	res.logger.Debug("power events sorted", "count", len(powerEvents))

	state, err := res.iterativeAuthChecks(powerEvents, unconflicted.Clone())
	if err != nil {
		return nil, err
	}

	isPower := make(map[event.EventID]bool, len(powerEvents))
	for _, id := range powerEvents {
		isPower[id] = true
	}
	var remaining []event.EventID
	for _, id := range sortedIDs(full) {
		if !isPower[id] {
			remaining = append(remaining, id)
		}
	}

	pl, _ := state.Get(event.TypePowerLevels, "")
	res.logger.Debug("mainline sort", "power_levels", string(pl), "count", len(remaining))
	remaining, err = res.mainlineSort(remaining, pl)
	if err != nil {
		return nil, err
	}

	state, err = res.iterativeAuthChecks(remaining, state)
	if err != nil {
		return nil, err
	}

	for k, id := range unconflicted {
		state[k] = id
	}

	res.logger.Info("state resolved",
		"slots", len(state),
		"conflicted", len(conflicted),
		"candidates", len(full),
		"rejected", len(res.rejected),
	)
	return state, nil
}

// partition splits the slots of stateSets. A slot is unconflicted when every
// snapshot holds it with the same event; otherwise its distinct event ids,
// sorted, are conflicted.
func partition(stateSets []event.StateMap) (event.StateMap, map[event.StateKey][]event.EventID) {
	unconflicted := make(event.StateMap)
	conflicted := make(map[event.StateKey][]event.EventID)

	keys := make(map[event.StateKey]struct{})
	for _, s := range stateSets {
		for k := range s {
			keys[k] = struct{}{}
		}
	}

	for k := range keys {
		var ids []event.EventID
		inAll := true
		for _, s := range stateSets {
			id, ok := s[k]
			if !ok {
				inAll = false
				continue
			}
			if !slices.Contains(ids, id) {
				ids = append(ids, id)
			}
		}
		if inAll && len(ids) == 1 {
			unconflicted[k] = ids[0]
			continue
		}
		slices.Sort(ids)
		conflicted[k] = ids
	}

	return unconflicted, conflicted
}

// fullConflictedSet returns the conflicted ids plus the auth difference:
// every event in some snapshot's auth chain that is missing from another's.
// Conflicted events must be state events occupying the slot they are
// conflicted in.
func (res *resolution) fullConflictedSet(stateSets []event.StateMap, conflicted map[event.StateKey][]event.EventID) (map[event.EventID]struct{}, error) {
	full := make(map[event.EventID]struct{})

	keys := make([]event.StateKey, 0, len(conflicted))
	for k := range conflicted {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, event.StateKey.Compare)
	for _, k := range keys {
		for _, id := range conflicted[k] {
			ev, err := res.get(id)
			if err != nil {
				return nil, err
			}
			key, ok := ev.Key()
			if !ok {
				return nil, NewMalformedEventError(res.roomID, id, "state event has no state_key")
			}
			if key != k {
				return nil, NewMalformedEventError(res.roomID, id, "event occupies (%s, %s), not (%s, %s)",
					key.Type, key.StateKey, k.Type, k.StateKey)
			}
			full[id] = struct{}{}
		}
	}

	counts := make(map[event.EventID]int)
	for _, s := range stateSets {
		seeds := make([]event.EventID, 0, len(s))
		for _, k := range s.SortedKeys() {
			seeds = append(seeds, s[k])
		}
		chain, err := res.authChain(seeds)
		if err != nil {
			return nil, err
		}
		for id := range chain {
			counts[id]++
		}
	}
	for id, n := range counts {
		if n < len(stateSets) {
			full[id] = struct{}{}
		}
	}

	return full, nil
}

// iterativeAuthChecks replays ids in order on top of state. Each event is
// checked against its declared auth events overlaid with the current state
// for its auth types; accepted events take their slot, rejected ones are
// remembered so later events cannot lean on them.
func (res *resolution) iterativeAuthChecks(ids []event.EventID, state event.StateMap) (event.StateMap, error) {
	for _, id := range ids {
		ev, err := res.get(id)
		if err != nil {
			return nil, err
		}
		key, ok := ev.Key()
		if !ok {
			return nil, NewMalformedEventError(res.roomID, id, "state event has no state_key")
		}

		reason, err := res.authorize(ev, state)
		if err != nil {
			return nil, err
		}
		if reason != "" {
			res.rejected[id] = reason
			res.logger.Debug("event rejected", "event_id", string(id), "reason", reason)
			continue
		}
		state[key] = id
	}
	return state, nil
}

// authorize returns "" if ev is allowed against state, or the rejection
// reason. Errors are fatal fetch failures only.
func (res *resolution) authorize(ev *event.Event, state event.StateMap) (string, error) {
	declared := make([]*event.Event, 0, len(ev.AuthEvents))
	authState := make(eventauth.AuthState)
	for _, id := range ev.AuthEvents {
		ae, err := res.get(id)
		if err != nil {
			return "", err
		}
		declared = append(declared, ae)
		if _, bad := res.rejected[id]; bad {
			continue
		}
		if k, ok := ae.Key(); ok {
			authState[k] = ae
		}
	}

	authTypes, err := eventauth.AuthTypesForEvent(ev.Type, ev.Sender, ev.StateKey, ev.Content, res.rules)
	if err != nil {
		return fmt.Sprintf("malformed content: %v", err), nil
	}
	for _, k := range authTypes {
		id, ok := state[k]
		if !ok {
			continue
		}
		if _, bad := res.rejected[id]; bad {
			continue
		}
		se, err := res.get(id)
		if err != nil {
			return "", err
		}
		authState[k] = se
	}

	if err := eventauth.CheckAuthEvents(res.rules, ev, declared, authState); err != nil {
		return rejectionReason(err), nil
	}
	if err := eventauth.Check(res.rules, ev, authState); err != nil {
		return rejectionReason(err), nil
	}
	return "", nil
}

func rejectionReason(err error) string {
	var r *eventauth.Rejection
	if errors.As(err, &r) {
		return r.Reason
	}
	return err.Error()
}

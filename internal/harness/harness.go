package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/stateres/internal/event"
	"github.com/roach88/stateres/internal/stateres"
	"github.com/roach88/stateres/internal/store"
	"github.com/roach88/stateres/internal/testutil"
)

// Harness executes scenarios against a store.
type Harness struct {
	store  *store.Store
	room   *testutil.Room
	logger *slog.Logger
}

// Option configures a Harness run.
type Option func(*Harness)

// WithLogger routes resolver logs to logger. Runs are silent by default.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Harness) {
		h.logger = logger
	}
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Build the room DAG and persist it
// 3. Build the state sets
// 4. Resolve, reading auth chains from the store
// 5. Evaluate assertions
//
// A resolution failure is an outcome, not an error: it is recorded on the
// result for error assertions. The returned error covers setup problems.
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	if err := validateScenario(scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	h := &Harness{
		store:  st,
		room:   testutil.NewRoom(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	if scenario.RoomID != "" {
		h.room.ID = event.RoomID(scenario.RoomID)
	}

	if err := h.buildRoom(ctx, scenario.Events); err != nil {
		return nil, fmt.Errorf("failed to build room: %w", err)
	}

	stateSets, err := h.buildStateSets(scenario.StateSets)
	if err != nil {
		return nil, fmt.Errorf("failed to build state sets: %w", err)
	}

	version := scenario.Version
	if version == "" {
		version = DefaultVersion
	}

	result := NewResult()
	resolver := stateres.New(st, stateres.WithLogger(h.logger))
	resolved, err := resolver.Resolve(ctx, h.room.ID, version, stateSets, nil)
	if err != nil {
		var re *stateres.ResolveError
		if !errors.As(err, &re) {
			return nil, fmt.Errorf("failed to resolve: %w", err)
		}
		result.Err = re
	} else {
		result.State = resolved
	}

	for _, msg := range EvaluateAssertions(result, scenario.Assertions) {
		result.AddError(msg)
	}

	return result, nil
}

// buildRoom adds every event to the room and writes them to the store.
func (h *Harness) buildRoom(ctx context.Context, steps []EventStep) error {
	for _, step := range steps {
		content := step.Content
		if content == nil {
			content = map[string]any{}
		}

		opts := []testutil.EventOption{
			withPrev(step.Prev),
			withAuth(step.Auth),
		}
		if step.TS != 0 {
			opts = append(opts, testutil.TS(step.TS))
		}
		if step.Redacts != "" {
			opts = append(opts, testutil.Redacts(step.Redacts))
		}

		h.room.Add(step.ID, step.Type, event.UserID(step.Sender), step.StateKey, content, opts...)
	}

	return h.store.WriteEvents(ctx, h.room.Events())
}

// buildStateSets maps alias lists to state maps.
func (h *Harness) buildStateSets(sets [][]string) ([]event.StateMap, error) {
	out := make([]event.StateMap, 0, len(sets))
	for i, aliases := range sets {
		entries := make([]event.StateEntry, 0, len(aliases))
		for _, alias := range aliases {
			ev := h.room.Event(alias)
			key, ok := ev.Key()
			if !ok {
				return nil, fmt.Errorf("state_sets[%d]: %s is not a state event", i, alias)
			}
			entries = append(entries, event.StateEntry{Type: key.Type, StateKey: key.StateKey, EventID: ev.ID})
		}
		m, err := event.StateMapFromEntries(entries)
		if err != nil {
			return nil, fmt.Errorf("state_sets[%d]: %w", i, err)
		}
		out = append(out, m)
	}
	return out, nil
}

// withPrev and withAuth set references by alias without requiring the
// referenced event to exist yet, so missing and forward references work.
func withPrev(aliases []string) testutil.EventOption {
	return func(ev *event.Event, _ *testutil.Room) {
		ev.PrevEvents = aliasIDs(aliases)
	}
}

func withAuth(aliases []string) testutil.EventOption {
	return func(ev *event.Event, _ *testutil.Room) {
		ev.AuthEvents = aliasIDs(aliases)
	}
}

func aliasIDs(aliases []string) []event.EventID {
	ids := make([]event.EventID, len(aliases))
	for i, a := range aliases {
		ids[i] = testutil.ID(a)
	}
	return ids
}

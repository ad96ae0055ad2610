// Package harness runs state resolution scenarios written in YAML.
//
// A scenario describes a small room DAG, the state sets to resolve and the
// outcome expected. Each run gets a fresh in-memory SQLite event store, so
// resolution reads auth chains through the same code path the CLI uses.
//
// # Scenario Format
//
//	name: ban_race
//	description: "A ban beats a concurrent state change by the banned user"
//	version: "10"
//	events:
//	  - id: CREATE
//	    type: m.room.create
//	    sender: "@alice:example.org"
//	    state_key: ""
//	    content: { creator: "@alice:example.org" }
//	  - id: IMA
//	    type: m.room.member
//	    sender: "@alice:example.org"
//	    state_key: "@alice:example.org"
//	    content: { membership: join }
//	    prev: [CREATE]
//	    auth: [CREATE]
//	state_sets:
//	  - [CREATE, IMA]
//	assertions:
//	  - type: state_equals
//	    events: [CREATE, IMA]
//
// Event ids are derived from aliases: id FOO becomes "$FOO:example.org".
// References to aliases listed under missing resolve to ids that are never
// stored, which is how scenarios exercise store misses.
//
// # Assertion Types
//
//   - state_equals: the resolved state is exactly the listed events
//   - state_contains: every listed event is in the resolved state
//   - state_excludes: no listed event is in the resolved state
//   - error: resolution fails with the given code (and event, if set)
//
// # Validation
//
// Files are decoded with unknown-field rejection and then checked against an
// embedded CUE schema (schema.cue). Alias references are checked last.
//
// # Deterministic Testing
//
// Timestamps not set in the file come from testutil.DeterministicClock, so
// the same file produces the same events, the same ids and the same golden
// output on every run.
package harness

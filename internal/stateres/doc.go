// Package stateres implements room state resolution (the v2 algorithm).
//
// Given two or more candidate state snapshots of a room and read access to
// its event graph, Resolve computes one agreed snapshot. Every server that
// runs it over the same events reaches the same answer with no coordinator.
//
// ALGORITHM:
//
// 1. Partition slots into unconflicted (same event in every snapshot) and
// conflicted (differing, or missing from some snapshot).
// 2. Expand the conflicted ids with the auth difference: events in some
// snapshot's auth chain but not in all of them.
// 3. Order the power events of that set (create, power levels, join rules,
// kicks and bans) with the reverse topological power ordering and replay
// them through the authorization rules, starting from the unconflicted state.
// 4. Order everything else by mainline position against the power levels
// event accepted so far, and replay it.
// 5. Overlay the unconflicted state.
//
// DETERMINISM:
//
// Every ordering decision reads from sorted slices or from the total order
// of LexicographicalTopologicalSort. Map iteration never reaches the output.
// Timestamps are only tie-breaks, never read from the wall clock.
//
// ERRORS:
//
// A missing event (NOT_FOUND), an event the algorithm cannot place
// (MALFORMED_EVENT) or a causal cycle (CYCLE_DETECTED) aborts the call with
// a *ResolveError. An event failing authorization is not an error: it is
// left out of the result and logged at debug level.
//
// All mutable state is local to one call, so a Resolver may be shared by
// concurrent callers.
package stateres

// Package store provides SQLite-backed durable storage for room events and
// named state snapshots.
//
// The store holds:
//   - Events: one row per PDU, keyed by event id, with the canonical JSON body
//   - Snapshots: named state maps ((type, state_key) -> event id) per room
//
// # Invariants
//
// Event Identity
//   - event_id is the primary key; writes use ON CONFLICT DO NOTHING
//   - The first write for an id wins, so re-importing a file is a no-op
//
// Deterministic Query Results
//   - Event listings ORDER BY depth, origin_server_ts, event_id COLLATE BINARY
//   - Snapshot entries ORDER BY type, state_key COLLATE BINARY
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Snapshot entries reference their snapshot
//
// *Store satisfies stateres.Store, so a resolver can read auth chains
// straight from disk.
package store

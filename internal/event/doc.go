// Package event provides the room event model shared by every other package:
// identifiers, the immutable Event view, StateMap, well-known content
// accessors, and content-addressed event ids.
//
// Events reference each other by id only (prev_events, auth_events); the
// graph lives in whatever id-keyed store the host supplies. Nothing here
// owns another event.
//
// Key constraints:
//   - identifiers compare by byte order and carry no meaning beyond identity,
//     except the server name suffix used by federation rules
//   - content is opaque JSON; only the fields in content.go are ever read
//   - StateMap iteration must go through SortedKeys for deterministic output
package event

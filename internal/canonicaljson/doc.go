// Package canonicaljson provides the value model and canonical encoding used
// for event identity and for byte-stable resolver output.
//
// Canonical form follows the Matrix canonical JSON rules:
//   - object keys sorted by Unicode code point (byte order of UTF-8)
//   - no insignificant whitespace
//   - integers only, in the range a JSON number can represent; floats are rejected
//   - strings escape only '"', '\\' and control characters
//
// Marshal writes strings exactly as given. MarshalNFC additionally NFC
// normalizes keys and strings; it is used only for event id hashing, so
// visually identical content hashes to the same id while stored events and
// resolved state keep their original bytes.
//
// This package imports nothing internal.
package canonicaljson

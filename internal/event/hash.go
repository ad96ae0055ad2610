package event

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"github.com/roach88/stateres/internal/canonicaljson"
)

// DomainEvent prefixes every event reference hash.
// The version suffix leaves room for a future algorithm.
const DomainEvent = "stateres/event/v1"

// hashWithDomain computes SHA-256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) []byte {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return h.Sum(nil)
}

// ComputeEventID returns the content-addressed id of ev: "$" followed by the
// unpadded URL-safe base64 of the reference hash over the canonical event
// with event_id removed. Identical events always get identical ids.
func ComputeEventID(ev *Event) (EventID, error) {
	canonical, err := canonicalForHash(ev)
	if err != nil {
		return "", fmt.Errorf("compute event id: %w", err)
	}
	sum := hashWithDomain(DomainEvent, canonical)
	return EventID("$" + base64.RawURLEncoding.EncodeToString(sum)), nil
}

// MustComputeEventID is like ComputeEventID but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustComputeEventID(ev *Event) EventID {
	id, err := ComputeEventID(ev)
	if err != nil {
		panic(err)
	}
	return id
}

func canonicalForHash(ev *Event) ([]byte, error) {
	obj := canonicaljson.Object{
		"room_id":          canonicaljson.String(ev.RoomID),
		"type":             canonicaljson.String(ev.Type),
		"sender":           canonicaljson.String(ev.Sender),
		"prev_events":      idArray(ev.PrevEvents),
		"auth_events":      idArray(ev.AuthEvents),
		"depth":            canonicaljson.Int(ev.Depth),
		"origin_server_ts": canonicaljson.Int(ev.OriginServerTS),
	}
	if ev.StateKey != nil {
		obj["state_key"] = canonicaljson.String(*ev.StateKey)
	}
	if ev.Redacts != nil {
		obj["redacts"] = canonicaljson.String(*ev.Redacts)
	}

	content := canonicaljson.Value(canonicaljson.Object{})
	if len(ev.Content) > 0 {
		parsed, err := canonicaljson.Parse(ev.Content)
		if err != nil {
			return nil, fmt.Errorf("content: %w", err)
		}
		content = parsed
	}
	obj["content"] = content

	return canonicaljson.MarshalNFC(obj)
}

func idArray(ids []EventID) canonicaljson.Array {
	arr := make(canonicaljson.Array, len(ids))
	for i, id := range ids {
		arr[i] = canonicaljson.String(id)
	}
	return arr
}

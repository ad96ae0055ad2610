package canonicaljson

import (
	"slices"
)

// Value is a sealed interface over the JSON shapes event content may take.
// There is no float type: non-integral numbers are rejected at parse time.
type Value interface {
	jsonValue()
}

// Null is JSON null. Event content may legitimately carry it.
type Null struct{}

func (Null) jsonValue() {}

// String is a JSON string.
type String string

func (String) jsonValue() {}

// Int is a JSON integer. Always int64.
type Int int64

func (Int) jsonValue() {}

// Bool is a JSON boolean.
type Bool bool

func (Bool) jsonValue() {}

// Array is a JSON array.
type Array []Value

func (Array) jsonValue() {}

// Object is a JSON object. Use SortedKeys for deterministic iteration.
type Object map[string]Value

func (Object) jsonValue() {}

// SortedKeys returns keys in code point order.
// Byte-wise comparison of UTF-8 strings is code point order, so the
// standard string ordering is exactly what canonical JSON requires.
func (obj Object) SortedKeys() []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// MaxSafeInt and MinSafeInt bound the integers canonical JSON accepts.
const (
	MaxSafeInt = 1<<53 - 1
	MinSafeInt = -(1<<53 - 1)
)

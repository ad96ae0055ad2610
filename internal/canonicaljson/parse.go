package canonicaljson

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Parse decodes a single JSON document into a Value.
// Floats and integers outside the canonical range are rejected.
func Parse(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, fmt.Errorf("trailing data after JSON value")
	}

	return fromGo(raw)
}

// ParseObject is like Parse but requires the document to be an object.
func ParseObject(data []byte) (Object, error) {
	v, err := Parse(data)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(Object)
	if !ok {
		return nil, fmt.Errorf("expected JSON object, got %T", v)
	}
	return obj, nil
}

// fromGo converts a value produced by encoding/json (with UseNumber) or
// gopkg.in/yaml.v3 into a Value.
func fromGo(v any) (Value, error) {
	switch val := v.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return val, nil
	case bool:
		return Bool(val), nil
	case string:
		return String(val), nil
	case int:
		return checkRange(int64(val))
	case int64:
		return checkRange(val)
	case uint64:
		if val > MaxSafeInt {
			return nil, fmt.Errorf("integer out of canonical range: %d", val)
		}
		return Int(val), nil
	case float32, float64:
		return nil, fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	case json.Number:
		s := string(val)
		if strings.ContainsAny(s, ".eE") {
			return nil, fmt.Errorf("floats are forbidden in canonical JSON: %s", s)
		}
		n, err := val.Int64()
		if err != nil {
			return nil, fmt.Errorf("integer out of range: %s", s)
		}
		return checkRange(n)
	case json.RawMessage:
		return Parse(val)
	case []any:
		arr := make(Array, len(val))
		for i, elem := range val {
			conv, err := fromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("array[%d]: %w", i, err)
			}
			arr[i] = conv
		}
		return arr, nil
	case map[string]any:
		obj := make(Object, len(val))
		for k, elem := range val {
			conv, err := fromGo(elem)
			if err != nil {
				return nil, fmt.Errorf("object[%q]: %w", k, err)
			}
			obj[k] = conv
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

// FromGo converts plain Go values (maps, slices, strings, integers, bools,
// nil) into a Value. YAML and JSON decoders produce these shapes.
func FromGo(v any) (Value, error) {
	return fromGo(v)
}

func checkRange(n int64) (Value, error) {
	if n > MaxSafeInt || n < MinSafeInt {
		return nil, fmt.Errorf("integer out of canonical range: %d", n)
	}
	return Int(n), nil
}

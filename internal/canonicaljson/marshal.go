package canonicaljson

import (
	"bytes"
	"fmt"
	"strconv"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Marshal produces canonical JSON for v. Strings are written exactly as
// given, so ids and state keys survive a round trip byte for byte.
// v may be a Value or any shape accepted by FromGo.
func Marshal(v any) ([]byte, error) {
	return marshal(v, false)
}

// MarshalNFC is Marshal with every key and string NFC normalized first.
// Event ids are hashed over this form.
func MarshalNFC(v any) ([]byte, error) {
	return marshal(v, true)
}

// Canonicalize re-encodes a JSON document in canonical form.
func Canonicalize(data []byte) ([]byte, error) {
	v, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return Marshal(v)
}

func marshal(v any, nfc bool) ([]byte, error) {
	val, err := fromGo(v)
	if err != nil {
		return nil, err
	}
	e := &encoder{nfc: nfc}
	if err := e.encode(val); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

type encoder struct {
	buf bytes.Buffer
	nfc bool
}

func (e *encoder) normalize(s string) string {
	if e.nfc {
		return norm.NFC.String(s)
	}
	return s
}

func (e *encoder) encode(v Value) error {
	buf := &e.buf
	switch val := v.(type) {
	case Null:
		buf.WriteString("null")
	case String:
		writeString(buf, e.normalize(string(val)))
	case Int:
		buf.WriteString(strconv.FormatInt(int64(val), 10))
	case Bool:
		if val {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case Array:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := e.encode(elem); err != nil {
				return fmt.Errorf("array[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case Object:
		return e.encodeObject(val)
	default:
		return fmt.Errorf("unknown value type: %T", v)
	}
	return nil
}

// encodeObject writes keys in code point order. In NFC mode two keys that
// normalize to the same form are a conflict.
func (e *encoder) encodeObject(obj Object) error {
	if e.nfc {
		normalized := make(Object, len(obj))
		for k, v := range obj {
			nk := norm.NFC.String(k)
			if _, dup := normalized[nk]; dup {
				return fmt.Errorf("duplicate key after normalization: %q", nk)
			}
			normalized[nk] = v
		}
		obj = normalized
	}

	buf := &e.buf
	buf.WriteByte('{')
	for i, k := range obj.SortedKeys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(buf, k)
		buf.WriteByte(':')
		if err := e.encode(obj[k]); err != nil {
			return fmt.Errorf("value for key %q: %w", k, err)
		}
	}
	buf.WriteByte('}')
	return nil
}

// writeString escapes only what JSON requires. <, >, & and U+2028/U+2029
// are written literally. Callers validate UTF-8 first; a stray invalid byte
// is written as U+FFFD.
func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for i := 0; i < len(s); {
		c := s[i]
		if c < utf8.RuneSelf {
			switch c {
			case '"':
				buf.WriteString(`\"`)
			case '\\':
				buf.WriteString(`\\`)
			case '\b':
				buf.WriteString(`\b`)
			case '\f':
				buf.WriteString(`\f`)
			case '\n':
				buf.WriteString(`\n`)
			case '\r':
				buf.WriteString(`\r`)
			case '\t':
				buf.WriteString(`\t`)
			default:
				if c < 0x20 {
					fmt.Fprintf(buf, `\u%04x`, c)
				} else {
					buf.WriteByte(c)
				}
			}
			i++
			continue
		}
		r, size := utf8.DecodeRuneInString(s[i:])
		if r == utf8.RuneError && size == 1 {
			buf.WriteString("\ufffd")
		} else {
			buf.WriteString(s[i : i+size])
		}
		i += size
	}
	buf.WriteByte('"')
}

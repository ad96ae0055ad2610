package event

import "strings"

// EventID identifies an event. For content-addressed ids see ComputeEventID.
type EventID string

// RoomID identifies a room, e.g. "!abc:example.org".
type RoomID string

// UserID identifies a user, e.g. "@alice:example.org".
type UserID string

func (id EventID) String() string { return string(id) }
func (id RoomID) String() string  { return string(id) }
func (id UserID) String() string  { return string(id) }

// ServerName returns the part after the first ':' of the event id, or ""
// for ids without a server part (content-addressed ids).
func (id EventID) ServerName() string {
	return serverName(string(id), '$')
}

// ServerName returns the server part of the room id, or "" if malformed.
func (id RoomID) ServerName() string {
	return serverName(string(id), '!')
}

// ServerName returns the server part of the user id, or "" if malformed.
func (id UserID) ServerName() string {
	return serverName(string(id), '@')
}

// Valid reports whether the user id has a sigil, a localpart and a server.
func (id UserID) Valid() bool {
	s := string(id)
	if len(s) < 4 || s[0] != '@' {
		return false
	}
	i := strings.IndexByte(s, ':')
	return i > 1 && i < len(s)-1
}

func serverName(s string, sigil byte) string {
	if len(s) == 0 || s[0] != sigil {
		return ""
	}
	i := strings.IndexByte(s, ':')
	if i < 0 || i == len(s)-1 {
		return ""
	}
	return s[i+1:]
}

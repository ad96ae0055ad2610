package eventauth

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/roach88/stateres/internal/event"
)

// IntField names a top-level integer field of power levels content.
type IntField string

const (
	FieldUsersDefault  IntField = "users_default"
	FieldEventsDefault IntField = "events_default"
	FieldStateDefault  IntField = "state_default"
	FieldBan           IntField = "ban"
	FieldRedact        IntField = "redact"
	FieldKick          IntField = "kick"
	FieldInvite        IntField = "invite"
)

// AllIntFields lists the integer fields in the order they are checked.
var AllIntFields = []IntField{
	FieldUsersDefault, FieldEventsDefault, FieldStateDefault,
	FieldBan, FieldRedact, FieldKick, FieldInvite,
}

// Default returns the value used when the field is absent from an existing
// power levels event.
func (f IntField) Default() int64 {
	switch f {
	case FieldStateDefault, FieldBan, FieldRedact, FieldKick:
		return 50
	default:
		return 0
	}
}

// CreatorPowerLevel is the creator's level when the room has no power
// levels event.
const CreatorPowerLevel = 100

// PowerLevels is parsed m.room.power_levels content.
// Maps hold only the entries present in content.
type PowerLevels struct {
	fields        map[IntField]int64
	Users         map[event.UserID]int64
	Events        map[string]int64
	Notifications map[string]int64
}

// ParsePowerLevels parses power levels content for a room version.
// Before v10 integers may also be given as strings; floats never parse.
func ParsePowerLevels(content json.RawMessage, rules Rules) (*PowerLevels, error) {
	if len(content) == 0 || !gjson.ValidBytes(content) {
		return nil, fmt.Errorf("power levels content is not valid JSON")
	}
	root := gjson.ParseBytes(content)
	if !root.IsObject() {
		return nil, fmt.Errorf("power levels content is not an object")
	}

	pl := &PowerLevels{
		fields:        make(map[IntField]int64),
		Users:         make(map[event.UserID]int64),
		Events:        make(map[string]int64),
		Notifications: make(map[string]int64),
	}

	for _, f := range AllIntFields {
		v := root.Get(string(f))
		if !v.Exists() {
			continue
		}
		n, err := powerLevelInt(v, rules)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		pl.fields[f] = n
	}

	if err := parseLevelMap(root, "users", rules, nil); err != nil {
		return nil, err
	}
	var err error
	root.Get("users").ForEach(func(k, v gjson.Result) bool {
		user := event.UserID(k.String())
		if !user.Valid() {
			err = fmt.Errorf("users: %q is not a user id", k.String())
			return false
		}
		n, perr := powerLevelInt(v, rules)
		if perr != nil {
			err = fmt.Errorf("users[%s]: %w", user, perr)
			return false
		}
		pl.Users[user] = n
		return true
	})
	if err != nil {
		return nil, err
	}

	if err := parseLevelMap(root, "events", rules, pl.Events); err != nil {
		return nil, err
	}
	if err := parseLevelMap(root, "notifications", rules, pl.Notifications); err != nil {
		return nil, err
	}

	return pl, nil
}

// parseLevelMap fills dst from an object of integer levels.
// With a nil dst only the shape is validated.
func parseLevelMap(root gjson.Result, name string, rules Rules, dst map[string]int64) error {
	v := root.Get(name)
	if !v.Exists() {
		return nil
	}
	if !v.IsObject() {
		return fmt.Errorf("%s is not an object", name)
	}
	if dst == nil {
		return nil
	}
	var err error
	v.ForEach(func(k, val gjson.Result) bool {
		n, perr := powerLevelInt(val, rules)
		if perr != nil {
			err = fmt.Errorf("%s[%s]: %w", name, k.String(), perr)
			return false
		}
		dst[k.String()] = n
		return true
	})
	return err
}

// powerLevelInt reads an integer power level. Strings holding integers are
// accepted only before v10.
func powerLevelInt(v gjson.Result, rules Rules) (int64, error) {
	switch v.Type {
	case gjson.Number:
		if strings.ContainsAny(v.Raw, ".eE") {
			return 0, fmt.Errorf("not an integer: %s", v.Raw)
		}
		n, err := strconv.ParseInt(v.Raw, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("not an integer: %s", v.Raw)
		}
		return n, nil
	case gjson.String:
		if rules.IntegerPowerLevels {
			return 0, fmt.Errorf("string power levels are not allowed in room version %s", rules.Version)
		}
		n, err := strconv.ParseInt(strings.TrimSpace(v.Str), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("not an integer string: %q", v.Str)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("not an integer: %s", v.Raw)
	}
}

// Field returns the field value, or its default when absent.
func (pl *PowerLevels) Field(f IntField) int64 {
	if n, ok := pl.fields[f]; ok {
		return n
	}
	return f.Default()
}

// FieldIfSet returns the field value and whether content set it.
func (pl *PowerLevels) FieldIfSet(f IntField) (int64, bool) {
	n, ok := pl.fields[f]
	return n, ok
}

// UserLevel returns the user's level: users[user] else users_default.
func (pl *PowerLevels) UserLevel(user event.UserID) int64 {
	if n, ok := pl.Users[user]; ok {
		return n
	}
	return pl.Field(FieldUsersDefault)
}

// EventLevel returns the level required to send an event of the given type.
func (pl *PowerLevels) EventLevel(eventType string, isState bool) int64 {
	if n, ok := pl.Events[eventType]; ok {
		return n
	}
	if isState {
		return pl.Field(FieldStateDefault)
	}
	return pl.Field(FieldEventsDefault)
}

// checkPowerLevelsChange applies the m.room.power_levels rules for a sender
// at senderLevel replacing current (nil if none) with next.
func checkPowerLevelsChange(current, next *PowerLevels, sender event.UserID, senderLevel int64, rules Rules) error {
	if current == nil {
		return nil
	}

	for _, f := range AllIntFields {
		cur, curOK := current.FieldIfSet(f)
		nxt, nxtOK := next.FieldIfSet(f)
		if curOK == nxtOK && cur == nxt {
			continue
		}
		if !curOK {
			cur = f.Default()
		}
		if !nxtOK {
			nxt = f.Default()
		}
		if cur > senderLevel || nxt > senderLevel {
			return rejectf("sender does not have enough power to change %s", f)
		}
	}

	if err := checkLevelMap(current.Events, next.Events, senderLevel, func(string, int64) bool { return false }); err != "" {
		return rejectf("sender does not have enough power to change the %s event level", err)
	}

	if rules.LimitNotificationsPowerLevels {
		if err := checkLevelMap(current.Notifications, next.Notifications, senderLevel, func(string, int64) bool { return false }); err != "" {
			return rejectf("sender does not have enough power to change the %s notification level", err)
		}
	}

	curUsers := stringKeyed(current.Users)
	nextUsers := stringKeyed(next.Users)
	otherAtOrAbove := func(user string, level int64) bool {
		return user != string(sender) && level >= senderLevel
	}
	if err := checkLevelMap(curUsers, nextUsers, senderLevel, otherAtOrAbove); err != "" {
		return rejectf("sender does not have enough power to change the level of %s", err)
	}

	return nil
}

// checkLevelMap walks the union of keys in sorted order. A change or removal
// of an entry whose current value exceeds senderLevel, or for which
// rejectCurrent holds, is refused; so is an addition or change to a value
// above senderLevel. Returns the first offending key, or "".
func checkLevelMap(current, next map[string]int64, senderLevel int64, rejectCurrent func(string, int64) bool) string {
	keys := make([]string, 0, len(current)+len(next))
	for k := range current {
		keys = append(keys, k)
	}
	for k := range next {
		if _, ok := current[k]; !ok {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)

	for _, k := range keys {
		cur, curOK := current[k]
		nxt, nxtOK := next[k]
		if curOK == nxtOK && cur == nxt {
			continue
		}
		if curOK && (cur > senderLevel || rejectCurrent(k, cur)) {
			return k
		}
		if nxtOK && nxt > senderLevel {
			return k
		}
	}
	return ""
}

func stringKeyed(m map[event.UserID]int64) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[string(k)] = v
	}
	return out
}

package eventauth

import (
	"fmt"
	"slices"
)

// RoomVersion identifies a room version, e.g. "10".
type RoomVersion string

// Supported room versions.
const (
	RoomV1  RoomVersion = "1"
	RoomV2  RoomVersion = "2"
	RoomV3  RoomVersion = "3"
	RoomV4  RoomVersion = "4"
	RoomV5  RoomVersion = "5"
	RoomV6  RoomVersion = "6"
	RoomV7  RoomVersion = "7"
	RoomV8  RoomVersion = "8"
	RoomV9  RoomVersion = "9"
	RoomV10 RoomVersion = "10"
	RoomV11 RoomVersion = "11"
)

// Rules are the authorization rule switches of one room version.
type Rules struct {
	Version RoomVersion

	// SpecialCaseAliases applies the v1-v5 m.room.aliases rule.
	SpecialCaseAliases bool

	// SpecialCaseRedaction applies the v1-v2 m.room.redaction rule.
	SpecialCaseRedaction bool

	// LimitNotificationsPowerLevels checks notifications changes (v6+).
	LimitNotificationsPowerLevels bool

	// AllowKnocking enables the knock membership (v7+).
	AllowKnocking bool

	// RestrictedJoinRule enables the restricted join rule (v8+).
	RestrictedJoinRule bool

	// KnockRestrictedJoinRule enables the knock_restricted join rule (v10+).
	KnockRestrictedJoinRule bool

	// IntegerPowerLevels rejects string power levels (v10+).
	IntegerPowerLevels bool

	// UseRoomCreateSender takes the creator from the create event's sender
	// instead of content.creator (v11+).
	UseRoomCreateSender bool
}

var rulesTable = map[RoomVersion]Rules{
	RoomV1:  {Version: RoomV1, SpecialCaseAliases: true, SpecialCaseRedaction: true},
	RoomV2:  {Version: RoomV2, SpecialCaseAliases: true, SpecialCaseRedaction: true},
	RoomV3:  {Version: RoomV3, SpecialCaseAliases: true},
	RoomV4:  {Version: RoomV4, SpecialCaseAliases: true},
	RoomV5:  {Version: RoomV5, SpecialCaseAliases: true},
	RoomV6:  {Version: RoomV6, LimitNotificationsPowerLevels: true},
	RoomV7:  {Version: RoomV7, LimitNotificationsPowerLevels: true, AllowKnocking: true},
	RoomV8:  {Version: RoomV8, LimitNotificationsPowerLevels: true, AllowKnocking: true, RestrictedJoinRule: true},
	RoomV9:  {Version: RoomV9, LimitNotificationsPowerLevels: true, AllowKnocking: true, RestrictedJoinRule: true},
	RoomV10: {Version: RoomV10, LimitNotificationsPowerLevels: true, AllowKnocking: true, RestrictedJoinRule: true, KnockRestrictedJoinRule: true, IntegerPowerLevels: true},
	RoomV11: {Version: RoomV11, LimitNotificationsPowerLevels: true, AllowKnocking: true, RestrictedJoinRule: true, KnockRestrictedJoinRule: true, IntegerPowerLevels: true, UseRoomCreateSender: true},
}

// UnsupportedVersionError is returned for room versions outside the table.
type UnsupportedVersionError struct {
	Version RoomVersion
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("unsupported room version %q", string(e.Version))
}

// RulesFor returns the rule row for a room version.
func RulesFor(v RoomVersion) (Rules, error) {
	r, ok := rulesTable[v]
	if !ok {
		return Rules{}, &UnsupportedVersionError{Version: v}
	}
	return r, nil
}

// MustRulesFor is like RulesFor but panics on unknown versions.
// Use only in tests or with constants.
func MustRulesFor(v RoomVersion) Rules {
	r, err := RulesFor(v)
	if err != nil {
		panic(err)
	}
	return r
}

// SupportedVersions lists the known room versions in numeric order.
func SupportedVersions() []RoomVersion {
	out := make([]RoomVersion, 0, len(rulesTable))
	for v := range rulesTable {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b RoomVersion) int {
		if len(a) != len(b) {
			return len(a) - len(b)
		}
		if a < b {
			return -1
		}
		if a > b {
			return 1
		}
		return 0
	})
	return out
}

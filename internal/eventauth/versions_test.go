package eventauth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRulesFor_Known(t *testing.T) {
	r, err := RulesFor(RoomV1)
	require.NoError(t, err)
	assert.True(t, r.SpecialCaseAliases)
	assert.True(t, r.SpecialCaseRedaction)
	assert.False(t, r.AllowKnocking)

	r, err = RulesFor(RoomV10)
	require.NoError(t, err)
	assert.False(t, r.SpecialCaseAliases)
	assert.True(t, r.KnockRestrictedJoinRule)
	assert.True(t, r.IntegerPowerLevels)
	assert.False(t, r.UseRoomCreateSender)

	assert.True(t, MustRulesFor(RoomV11).UseRoomCreateSender)
}

func TestRulesFor_Unknown(t *testing.T) {
	_, err := RulesFor("12")
	require.Error(t, err)

	var uv *UnsupportedVersionError
	require.ErrorAs(t, err, &uv)
	assert.Equal(t, RoomVersion("12"), uv.Version)

	assert.Panics(t, func() { MustRulesFor("bogus") })
}

func TestSupportedVersions_NumericOrder(t *testing.T) {
	assert.Equal(t, []RoomVersion{
		RoomV1, RoomV2, RoomV3, RoomV4, RoomV5, RoomV6,
		RoomV7, RoomV8, RoomV9, RoomV10, RoomV11,
	}, SupportedVersions())
}

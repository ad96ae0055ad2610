package stateres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stateres/internal/event"
	"github.com/roach88/stateres/internal/eventauth"
	"github.com/roach88/stateres/internal/testutil"
)

func TestIsPowerEvent(t *testing.T) {
	r := testutil.NewBaseRoom(nil)

	tests := []struct {
		name string
		ev   *event.Event
		want bool
	}{
		{"create", r.Event("CREATE"), true},
		{"power levels", r.Event("IPOWER"), true},
		{"join rules", r.Event("IJR"), true},
		{"self join", r.Event("IMA"), false},
		{"topic", r.Topic("T", testutil.Alice, "hi"), false},
		{"self leave", r.Member("L", testutil.Bob, testutil.Bob, event.MembershipLeave), false},
		{"kick", r.Member("K", testutil.Alice, testutil.Bob, event.MembershipLeave), true},
		{"ban", r.Member("B", testutil.Alice, testutil.Charlie, event.MembershipBan), true},
		{"invite", r.Member("I", testutil.Alice, testutil.Ella, event.MembershipInvite), false},
		{"keyed power levels", r.Add("PLK", event.TypePowerLevels, testutil.Alice, event.StringPtr("x"), map[string]any{}), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPowerEvent(tt.ev))
		})
	}
}

func TestSenderPowerLevel(t *testing.T) {
	r := testutil.NewBaseRoom(map[event.UserID]int64{testutil.Bob: 50})
	cites := r.Topic("T1", testutil.Bob, "hi", testutil.Auth("CREATE", "IPOWER"))
	creatorOnly := r.Topic("T2", testutil.Alice, "hi", testutil.Auth("CREATE", "IMA"))
	otherOnly := r.Topic("T3", testutil.Bob, "hi", testutil.Auth("CREATE"))
	r.Add("BADPL", event.TypePowerLevels, testutil.Alice, event.StringPtr(""), map[string]any{"ban": 1.5})
	bad := r.Topic("T4", testutil.Bob, "hi", testutil.Auth("CREATE", "BADPL"))

	f := newFetcher(context.Background(), r.ID, NewMemoryStore(r.Events()...), nil)
	rules := eventauth.MustRulesFor(eventauth.RoomV10)

	level, err := f.senderPowerLevel(cites, rules)
	require.NoError(t, err)
	assert.Equal(t, int64(50), level)

	level, err = f.senderPowerLevel(creatorOnly, rules)
	require.NoError(t, err)
	assert.Equal(t, int64(eventauth.CreatorPowerLevel), level)

	level, err = f.senderPowerLevel(otherOnly, rules)
	require.NoError(t, err)
	assert.Equal(t, int64(0), level)

	level, err = f.senderPowerLevel(bad, rules)
	require.NoError(t, err)
	assert.Equal(t, int64(0), level)
}

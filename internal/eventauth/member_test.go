package eventauth

import (
	"testing"

	"github.com/roach88/stateres/internal/event"
	"github.com/roach88/stateres/internal/testutil"
)

func TestMember_CreatorFirstJoin(t *testing.T) {
	r := testutil.NewRoom()
	r.Add("CREATE", event.TypeCreate, testutil.Alice, event.StringPtr(""),
		map[string]any{"creator": string(testutil.Alice)})
	join := r.Member("IMA", testutil.Alice, testutil.Alice, event.MembershipJoin, testutil.Prev("CREATE"))
	stranger := r.Member("IMB", testutil.Bob, testutil.Bob, event.MembershipJoin, testutil.Prev("CREATE"))

	rules := MustRulesFor(RoomV10)
	assertAllowed(t, Check(rules, join, stateOf(r, "CREATE")))
	// No join rules yet means invite-only.
	assertRejected(t, Check(rules, stranger, stateOf(r, "CREATE")))
}

func TestMember_Join(t *testing.T) {
	r := testutil.NewBaseRoom(nil)
	r.JoinRules("JRI", testutil.Alice, event.JoinRuleInvite)
	r.Member("INV", testutil.Alice, testutil.Ella, event.MembershipInvite)
	r.Member("BAN", testutil.Alice, testutil.Ella, event.MembershipBan)

	rules := MustRulesFor(RoomV10)
	join := r.Member("J", testutil.Ella, testutil.Ella, event.MembershipJoin)
	onBehalf := r.Member("J2", testutil.Alice, testutil.Ella, event.MembershipJoin)

	assertAllowed(t, Check(rules, join, stateOf(r, "CREATE", "IMA", "IPOWER", "IJR")))
	assertRejected(t, Check(rules, onBehalf, stateOf(r, "CREATE", "IMA", "IPOWER", "IJR")))
	assertRejected(t, Check(rules, join, stateOf(r, "CREATE", "IMA", "IPOWER", "IJR", "BAN")))

	assertRejected(t, Check(rules, join, stateOf(r, "CREATE", "IMA", "IPOWER", "JRI")))
	assertAllowed(t, Check(rules, join, stateOf(r, "CREATE", "IMA", "IPOWER", "JRI", "INV")))
}

func TestMember_RestrictedJoin(t *testing.T) {
	r := testutil.NewBaseRoom(nil)
	r.JoinRules("JRR", testutil.Alice, event.JoinRuleRestricted)

	via := r.Add("J1", event.TypeMember, testutil.Ella, event.StringPtr(string(testutil.Ella)),
		map[string]any{"membership": "join", "join_authorised_via_users_server": string(testutil.Alice)})
	viaAbsent := r.Add("J2", event.TypeMember, testutil.Ella, event.StringPtr(string(testutil.Ella)),
		map[string]any{"membership": "join", "join_authorised_via_users_server": string(testutil.Bob)})
	noVia := r.Member("J3", testutil.Ella, testutil.Ella, event.MembershipJoin)

	state := stateOf(r, "CREATE", "IMA", "IPOWER", "JRR")
	v8 := MustRulesFor(RoomV8)
	assertAllowed(t, Check(v8, via, state))
	assertRejected(t, Check(v8, viaAbsent, state))
	assertRejected(t, Check(v8, noVia, state))

	// Before v8 the restricted rule is unknown and never admits.
	assertRejected(t, Check(MustRulesFor(RoomV7), via, state))
}

func TestMember_KnockRestrictedJoin(t *testing.T) {
	r := testutil.NewBaseRoom(nil)
	r.JoinRules("JRKR", testutil.Alice, event.JoinRuleKnockRestricted)
	join := r.Add("J", event.TypeMember, testutil.Ella, event.StringPtr(string(testutil.Ella)),
		map[string]any{"membership": "join", "join_authorised_via_users_server": string(testutil.Alice)})

	state := stateOf(r, "CREATE", "IMA", "IPOWER", "JRKR")
	assertAllowed(t, Check(MustRulesFor(RoomV10), join, state))
	assertRejected(t, Check(MustRulesFor(RoomV9), join, state))
}

func TestMember_Invite(t *testing.T) {
	r := testutil.NewBaseRoom(nil)
	r.Member("IMB", testutil.Bob, testutil.Bob, event.MembershipJoin)
	r.Member("BAN", testutil.Alice, testutil.Ella, event.MembershipBan)
	r.PowerLevels("PL50", testutil.Alice, map[event.UserID]int64{testutil.Alice: 100}, map[string]any{"invite": 50})

	rules := MustRulesFor(RoomV10)
	invite := r.Member("INV", testutil.Bob, testutil.Ella, event.MembershipInvite)
	inviteJoined := r.Member("INV2", testutil.Bob, testutil.Alice, event.MembershipInvite)
	byOutsider := r.Member("INV3", testutil.Charlie, testutil.Ella, event.MembershipInvite)

	base := stateOf(r, "CREATE", "IMA", "IPOWER", "IJR", "IMB")
	assertAllowed(t, Check(rules, invite, base))
	assertRejected(t, Check(rules, inviteJoined, base))
	assertRejected(t, Check(rules, byOutsider, base))
	assertRejected(t, Check(rules, invite, stateOf(r, "CREATE", "IMA", "IPOWER", "IJR", "IMB", "BAN")))
	assertRejected(t, Check(rules, invite, stateOf(r, "CREATE", "IMA", "PL50", "IJR", "IMB")))
}

func TestMember_ThirdPartyInvite(t *testing.T) {
	r := testutil.NewBaseRoom(nil)
	r.Add("TPI", event.TypeThirdPartyInvite, testutil.Alice, event.StringPtr("tok"), map[string]any{})
	signed := func(mxid event.UserID) map[string]any {
		return map[string]any{
			"membership": "invite",
			"third_party_invite": map[string]any{
				"display_name": "ella",
				"signed":       map[string]any{"token": "tok", "mxid": string(mxid)},
			},
		}
	}

	ok := r.Add("I1", event.TypeMember, testutil.Alice, event.StringPtr(string(testutil.Ella)), signed(testutil.Ella))
	wrongMXID := r.Add("I2", event.TypeMember, testutil.Alice, event.StringPtr(string(testutil.Ella)), signed(testutil.Charlie))
	wrongSender := r.Add("I3", event.TypeMember, testutil.Bob, event.StringPtr(string(testutil.Ella)), signed(testutil.Ella))

	rules := MustRulesFor(RoomV10)
	state := stateOf(r, "CREATE", "IMA", "IPOWER", "IJR", "TPI")
	assertAllowed(t, Check(rules, ok, state))
	assertRejected(t, Check(rules, wrongMXID, state))
	assertRejected(t, Check(rules, wrongSender, state))
	assertRejected(t, Check(rules, ok, stateOf(r, "CREATE", "IMA", "IPOWER", "IJR")))
}

func TestMember_LeaveAndKick(t *testing.T) {
	r := testutil.NewBaseRoom(nil)
	r.Member("IMB", testutil.Bob, testutil.Bob, event.MembershipJoin)
	r.Member("BAN", testutil.Alice, testutil.Charlie, event.MembershipBan)

	rules := MustRulesFor(RoomV10)
	state := stateOf(r, "CREATE", "IMA", "IPOWER", "IJR", "IMB", "BAN")

	assertAllowed(t, Check(rules, r.Member("L1", testutil.Bob, testutil.Bob, event.MembershipLeave), state))
	assertRejected(t, Check(rules, r.Member("L2", testutil.Ella, testutil.Ella, event.MembershipLeave), state))
	assertAllowed(t, Check(rules, r.Member("K1", testutil.Alice, testutil.Bob, event.MembershipLeave), state))
	assertRejected(t, Check(rules, r.Member("K2", testutil.Bob, testutil.Alice, event.MembershipLeave), state))
	assertAllowed(t, Check(rules, r.Member("U1", testutil.Alice, testutil.Charlie, event.MembershipLeave), state))
	assertRejected(t, Check(rules, r.Member("U2", testutil.Bob, testutil.Charlie, event.MembershipLeave), state))
}

func TestMember_Ban(t *testing.T) {
	r := testutil.NewBaseRoom(nil)
	r.Member("IMB", testutil.Bob, testutil.Bob, event.MembershipJoin)

	rules := MustRulesFor(RoomV10)
	state := stateOf(r, "CREATE", "IMA", "IPOWER", "IJR", "IMB")

	assertAllowed(t, Check(rules, r.Member("B1", testutil.Alice, testutil.Charlie, event.MembershipBan), state))
	assertRejected(t, Check(rules, r.Member("B2", testutil.Bob, testutil.Charlie, event.MembershipBan), state))
	assertRejected(t, Check(rules, r.Member("B3", testutil.Ella, testutil.Charlie, event.MembershipBan), state))
}

func TestMember_Knock(t *testing.T) {
	r := testutil.NewBaseRoom(nil)
	r.JoinRules("JRK", testutil.Alice, event.JoinRuleKnock)
	r.Member("IMB", testutil.Bob, testutil.Bob, event.MembershipJoin)

	knock := r.Member("K", testutil.Ella, testutil.Ella, event.MembershipKnock)
	joinedKnock := r.Member("K2", testutil.Bob, testutil.Bob, event.MembershipKnock)
	onBehalf := r.Member("K3", testutil.Alice, testutil.Ella, event.MembershipKnock)

	v7 := MustRulesFor(RoomV7)
	state := stateOf(r, "CREATE", "IMA", "IPOWER", "JRK", "IMB")
	assertAllowed(t, Check(v7, knock, state))
	assertRejected(t, Check(v7, joinedKnock, state))
	assertRejected(t, Check(v7, onBehalf, state))
	assertRejected(t, Check(v7, knock, stateOf(r, "CREATE", "IMA", "IPOWER", "IJR")))
	assertRejected(t, Check(MustRulesFor(RoomV6), knock, state))

	// A pending knock can be withdrawn from v7 on.
	r.Member("KE", testutil.Ella, testutil.Ella, event.MembershipKnock)
	withdraw := r.Member("W", testutil.Ella, testutil.Ella, event.MembershipLeave)
	assertAllowed(t, Check(v7, withdraw, stateOf(r, "CREATE", "IMA", "IPOWER", "JRK", "KE")))
}

func TestMember_Malformed(t *testing.T) {
	r := testutil.NewBaseRoom(nil)
	state := stateOf(r, "CREATE", "IMA", "IPOWER", "IJR")
	rules := MustRulesFor(RoomV10)

	badKey := r.Add("M1", event.TypeMember, testutil.Alice, event.StringPtr("not-a-user"), map[string]any{"membership": "join"})
	assertRejected(t, Check(rules, badKey, state))

	unknown := r.Add("M2", event.TypeMember, testutil.Alice, event.StringPtr(string(testutil.Alice)), map[string]any{"membership": "dance"})
	assertRejected(t, Check(rules, unknown, state))

	missing := r.Add("M3", event.TypeMember, testutil.Alice, event.StringPtr(string(testutil.Alice)), map[string]any{})
	assertRejected(t, Check(rules, missing, state))
}

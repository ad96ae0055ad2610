package eventauth

import (
	"github.com/roach88/stateres/internal/event"
)

// checkMember applies the m.room.member rules.
func checkMember(rules Rules, ev *event.Event, create *event.Event, state AuthState) error {
	if ev.StateKey == nil {
		return rejectf("missing state_key for %s event", event.TypeMember)
	}
	target := event.UserID(*ev.StateKey)
	if !target.Valid() {
		return rejectf("state_key %q is not a user id", *ev.StateKey)
	}

	membership, err := event.ContentMembership(ev.Content)
	if err != nil {
		return rejectf("malformed membership content: %v", err)
	}

	pl, err := state.PowerLevels(rules)
	if err != nil {
		return rejectf("invalid current power levels: %v", err)
	}

	m := memberCheck{
		rules:       rules,
		ev:          ev,
		create:      create,
		state:       state,
		pl:          pl,
		target:      target,
		senderLevel: UserPowerLevel(ev.Sender, pl, create, rules),
		targetLevel: UserPowerLevel(target, pl, create, rules),
	}
	if m.senderMembership, err = state.Membership(ev.Sender); err != nil {
		return rejectf("invalid sender membership: %v", err)
	}
	if m.targetMembership, err = state.Membership(target); err != nil {
		return rejectf("invalid target membership: %v", err)
	}

	switch membership {
	case event.MembershipJoin:
		return m.join()
	case event.MembershipInvite:
		return m.invite()
	case event.MembershipLeave:
		return m.leave()
	case event.MembershipBan:
		return m.ban()
	case event.MembershipKnock:
		if !rules.AllowKnocking {
			return rejectf("knocking is not supported in room version %s", rules.Version)
		}
		return m.knock()
	default:
		return rejectf("unknown membership %q", membership)
	}
}

type memberCheck struct {
	rules            Rules
	ev               *event.Event
	create           *event.Event
	state            AuthState
	pl               *PowerLevels
	target           event.UserID
	senderMembership event.Membership
	targetMembership event.Membership
	senderLevel      int64
	targetLevel      int64
}

func (m *memberCheck) level(f IntField) int64 {
	if m.pl == nil {
		return f.Default()
	}
	return m.pl.Field(f)
}

func (m *memberCheck) join() error {
	// The creator's own join directly after room creation.
	if len(m.ev.PrevEvents) == 1 && m.ev.PrevEvents[0] == m.create.ID {
		if c, err := creator(m.create, m.rules); err == nil && c == m.target {
			return nil
		}
	}

	if m.ev.Sender != m.target {
		return rejectf("cannot join on behalf of another user")
	}
	if m.senderMembership == event.MembershipBan {
		return rejectf("banned user cannot join")
	}

	joinRule, err := m.state.JoinRule()
	if err != nil {
		return rejectf("invalid join rules: %v", err)
	}

	alreadyIn := m.targetMembership == event.MembershipJoin || m.targetMembership == event.MembershipInvite

	switch {
	case joinRule == event.JoinRuleInvite,
		joinRule == event.JoinRuleKnock && m.rules.AllowKnocking:
		if alreadyIn {
			return nil
		}
		return rejectf("join rule is %s and user is not invited", joinRule)

	case joinRule == event.JoinRuleRestricted && m.rules.RestrictedJoinRule,
		joinRule == event.JoinRuleKnockRestricted && m.rules.KnockRestrictedJoinRule:
		if alreadyIn {
			return nil
		}
		return m.authorisedVia()

	case joinRule == event.JoinRulePublic:
		return nil
	}

	return rejectf("join rule %s does not allow joining", joinRule)
}

// authorisedVia checks join_authorised_via_users_server for restricted joins.
func (m *memberCheck) authorisedVia() error {
	via, ok, err := event.ContentJoinAuthorisedVia(m.ev.Content)
	if err != nil {
		return rejectf("malformed membership content: %v", err)
	}
	if !ok {
		return rejectf("restricted join without an authorising user")
	}
	viaMembership, err := m.state.Membership(via)
	if err != nil {
		return rejectf("invalid authorising user membership: %v", err)
	}
	if viaMembership != event.MembershipJoin {
		return rejectf("authorising user %s is not joined", via)
	}
	if UserPowerLevel(via, m.pl, m.create, m.rules) < m.level(FieldInvite) {
		return rejectf("authorising user %s cannot invite", via)
	}
	return nil
}

func (m *memberCheck) invite() error {
	tpi, err := event.ContentThirdPartyInvite(m.ev.Content)
	if err != nil {
		return rejectf("malformed third_party_invite: %v", err)
	}
	if tpi != nil {
		return m.thirdPartyInvite(tpi)
	}

	if m.senderMembership != event.MembershipJoin {
		return rejectf("sender is not joined")
	}
	if m.targetMembership == event.MembershipBan || m.targetMembership == event.MembershipJoin {
		return rejectf("target is %s and cannot be invited", m.targetMembership)
	}
	if m.senderLevel < m.level(FieldInvite) {
		return rejectf("sender does not have enough power to invite")
	}
	return nil
}

// thirdPartyInvite checks an invite derived from a third-party invite.
// Signature verification is the caller's concern.
func (m *memberCheck) thirdPartyInvite(tpi *event.ThirdPartyInvite) error {
	if m.targetMembership == event.MembershipBan {
		return rejectf("target is banned")
	}
	if tpi.MXID != m.target {
		return rejectf("third-party invite mxid does not match the target")
	}
	invite := m.state.Get(event.TypeThirdPartyInvite, tpi.Token)
	if invite == nil {
		return rejectf("no %s event for token %q", event.TypeThirdPartyInvite, tpi.Token)
	}
	if invite.Sender != m.ev.Sender {
		return rejectf("sender did not send the third-party invite")
	}
	return nil
}

func (m *memberCheck) leave() error {
	if m.ev.Sender == m.target {
		switch m.targetMembership {
		case event.MembershipJoin, event.MembershipInvite:
			return nil
		case event.MembershipKnock:
			if m.rules.AllowKnocking {
				return nil
			}
		}
		return rejectf("cannot leave from membership %s", m.targetMembership)
	}

	if m.senderMembership != event.MembershipJoin {
		return rejectf("sender is not joined")
	}
	if m.targetMembership == event.MembershipBan && m.senderLevel < m.level(FieldBan) {
		return rejectf("sender does not have enough power to unban")
	}
	if m.senderLevel >= m.level(FieldKick) && m.targetLevel < m.senderLevel {
		return nil
	}
	return rejectf("sender does not have enough power to kick")
}

func (m *memberCheck) ban() error {
	if m.senderMembership != event.MembershipJoin {
		return rejectf("sender is not joined")
	}
	if m.senderLevel >= m.level(FieldBan) && m.targetLevel < m.senderLevel {
		return nil
	}
	return rejectf("sender does not have enough power to ban")
}

func (m *memberCheck) knock() error {
	joinRule, err := m.state.JoinRule()
	if err != nil {
		return rejectf("invalid join rules: %v", err)
	}
	if joinRule != event.JoinRuleKnock && !(joinRule == event.JoinRuleKnockRestricted && m.rules.KnockRestrictedJoinRule) {
		return rejectf("join rule %s does not allow knocking", joinRule)
	}
	if m.ev.Sender != m.target {
		return rejectf("cannot knock on behalf of another user")
	}
	switch m.targetMembership {
	case event.MembershipBan, event.MembershipInvite, event.MembershipJoin:
		return rejectf("cannot knock from membership %s", m.targetMembership)
	}
	return nil
}

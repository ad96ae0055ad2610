package event

import (
	"encoding/json"
	"fmt"

	"github.com/tidwall/gjson"
)

// Membership is the value of content.membership on m.room.member events.
type Membership string

const (
	MembershipJoin   Membership = "join"
	MembershipInvite Membership = "invite"
	MembershipLeave  Membership = "leave"
	MembershipBan    Membership = "ban"
	MembershipKnock  Membership = "knock"
)

// JoinRule is the value of content.join_rule on m.room.join_rules events.
type JoinRule string

const (
	JoinRulePublic          JoinRule = "public"
	JoinRuleInvite          JoinRule = "invite"
	JoinRuleKnock           JoinRule = "knock"
	JoinRuleRestricted      JoinRule = "restricted"
	JoinRuleKnockRestricted JoinRule = "knock_restricted"
	JoinRulePrivate         JoinRule = "private"
)

// contentObject parses raw content and checks that it is a JSON object.
func contentObject(content json.RawMessage) (gjson.Result, error) {
	if len(content) == 0 {
		return gjson.Result{}, fmt.Errorf("content is missing")
	}
	if !gjson.ValidBytes(content) {
		return gjson.Result{}, fmt.Errorf("content is not valid JSON")
	}
	res := gjson.ParseBytes(content)
	if !res.IsObject() {
		return gjson.Result{}, fmt.Errorf("content is not a JSON object")
	}
	return res, nil
}

// ContentMembership reads content.membership.
func ContentMembership(content json.RawMessage) (Membership, error) {
	obj, err := contentObject(content)
	if err != nil {
		return "", err
	}
	m := obj.Get("membership")
	if !m.Exists() {
		return "", fmt.Errorf("missing membership field")
	}
	if m.Type != gjson.String {
		return "", fmt.Errorf("membership field is not a string")
	}
	return Membership(m.Str), nil
}

// ContentJoinRule reads content.join_rule.
func ContentJoinRule(content json.RawMessage) (JoinRule, error) {
	obj, err := contentObject(content)
	if err != nil {
		return "", err
	}
	r := obj.Get("join_rule")
	if !r.Exists() || r.Type != gjson.String {
		return "", fmt.Errorf("missing or invalid join_rule field")
	}
	return JoinRule(r.Str), nil
}

// ContentCreator reads content.creator from an m.room.create event.
func ContentCreator(content json.RawMessage) (UserID, bool) {
	obj, err := contentObject(content)
	if err != nil {
		return "", false
	}
	c := obj.Get("creator")
	if c.Type != gjson.String {
		return "", false
	}
	return UserID(c.Str), true
}

// ContentFederate reads content["m.federate"] from an m.room.create event.
// Absent means true.
func ContentFederate(content json.RawMessage) (bool, error) {
	obj, err := contentObject(content)
	if err != nil {
		return false, err
	}
	f := obj.Get(`m\.federate`)
	if !f.Exists() {
		return true, nil
	}
	if f.Type != gjson.True && f.Type != gjson.False {
		return false, fmt.Errorf("m.federate is not a boolean")
	}
	return f.Bool(), nil
}

// ThirdPartyInvite is the signed block of content.third_party_invite.
type ThirdPartyInvite struct {
	Token string
	MXID  UserID
}

// ContentThirdPartyInvite reads content.third_party_invite.signed.
// Returns nil without error when the property is absent.
func ContentThirdPartyInvite(content json.RawMessage) (*ThirdPartyInvite, error) {
	obj, err := contentObject(content)
	if err != nil {
		return nil, err
	}
	tpi := obj.Get("third_party_invite")
	if !tpi.Exists() {
		return nil, nil
	}
	if !tpi.IsObject() {
		return nil, fmt.Errorf("third_party_invite is not an object")
	}
	signed := tpi.Get("signed")
	if !signed.IsObject() {
		return nil, fmt.Errorf("third_party_invite has no signed object")
	}
	token := signed.Get("token")
	mxid := signed.Get("mxid")
	if token.Type != gjson.String || mxid.Type != gjson.String {
		return nil, fmt.Errorf("third_party_invite.signed requires token and mxid")
	}
	return &ThirdPartyInvite{Token: token.Str, MXID: UserID(mxid.Str)}, nil
}

// ContentJoinAuthorisedVia reads content.join_authorised_via_users_server.
func ContentJoinAuthorisedVia(content json.RawMessage) (UserID, bool, error) {
	obj, err := contentObject(content)
	if err != nil {
		return "", false, err
	}
	v := obj.Get("join_authorised_via_users_server")
	if !v.Exists() || v.Type == gjson.Null {
		return "", false, nil
	}
	if v.Type != gjson.String || !UserID(v.Str).Valid() {
		return "", false, fmt.Errorf("join_authorised_via_users_server is not a user id")
	}
	return UserID(v.Str), true, nil
}

// ContentField returns a raw gjson lookup on content for callers that need
// fields not covered above (power levels parsing lives in eventauth).
func ContentField(content json.RawMessage, path string) gjson.Result {
	if len(content) == 0 {
		return gjson.Result{}
	}
	return gjson.GetBytes(content, path)
}

// Package eventauth implements the Matrix authorization rules: which state
// slots authorize an event (AuthTypesForEvent) and whether an event is
// allowed against a given state (Check, CheckAuthEvents).
//
// Rules vary by room version. RoomVersion is a closed enumeration; each
// version maps to one Rules row of feature flags that the checks consult.
// Every function here is pure: no store access, no clock, no logging.
//
// A failed check returns a *Rejection. Rejection is an expected outcome,
// never a fatal error.
package eventauth

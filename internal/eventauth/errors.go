package eventauth

import "fmt"

// Rejection is the outcome of an event failing an authorization rule.
// It is an expected result: callers skip the event and carry on.
type Rejection struct {
	Reason string
}

func (r *Rejection) Error() string {
	return "rejected: " + r.Reason
}

func rejectf(format string, args ...any) *Rejection {
	return &Rejection{Reason: fmt.Sprintf(format, args...)}
}

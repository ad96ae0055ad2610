package harness

import (
	"github.com/roach88/stateres/internal/event"
	"github.com/roach88/stateres/internal/stateres"
)

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass indicates overall success. True if every assertion held.
	Pass bool `json:"pass"`

	// State is the resolved state. Nil when resolution failed.
	State event.StateMap `json:"-"`

	// Err is the resolution failure, if any.
	Err *stateres.ResolveError `json:"-"`

	// Errors contains assertion failure messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

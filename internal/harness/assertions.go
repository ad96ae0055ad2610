package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/stateres/internal/event"
	"github.com/roach88/stateres/internal/stateres"
	"github.com/roach88/stateres/internal/testutil"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s", e.Actual)
	return buf.String()
}

// EvaluateAssertions checks every assertion against the result and returns
// the failure messages in assertion order.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for i, a := range assertions {
		var err error
		switch a.Type {
		case AssertStateEquals:
			err = assertStateEquals(result, a)
		case AssertStateContains:
			err = assertStateContains(result, a)
		case AssertStateExcludes:
			err = assertStateExcludes(result, a)
		case AssertError:
			err = assertError(result, a)
		default:
			err = fmt.Errorf("unknown assertion type %q", a.Type)
		}
		if err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func assertStateEquals(result *Result, a Assertion) error {
	if err := requireState(result, a.Type); err != nil {
		return err
	}
	want := sortedIDs(aliasIDs(a.Events))
	got := stateIDs(result.State)
	if !slices.Equal(want, got) {
		return &AssertionError{
			Type:     a.Type,
			Expected: formatIDs(want),
			Actual:   formatIDs(got),
		}
	}
	return nil
}

func assertStateContains(result *Result, a Assertion) error {
	if err := requireState(result, a.Type); err != nil {
		return err
	}
	got := stateIDs(result.State)
	var missing []event.EventID
	for _, id := range aliasIDs(a.Events) {
		if !slices.Contains(got, id) {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return &AssertionError{
			Type:     a.Type,
			Expected: "state containing " + formatIDs(missing),
			Actual:   formatIDs(got),
		}
	}
	return nil
}

func assertStateExcludes(result *Result, a Assertion) error {
	if err := requireState(result, a.Type); err != nil {
		return err
	}
	got := stateIDs(result.State)
	var present []event.EventID
	for _, id := range aliasIDs(a.Events) {
		if slices.Contains(got, id) {
			present = append(present, id)
		}
	}
	if len(present) > 0 {
		return &AssertionError{
			Type:     a.Type,
			Expected: "state without " + formatIDs(present),
			Actual:   formatIDs(got),
		}
	}
	return nil
}

func assertError(result *Result, a Assertion) error {
	if result.Err == nil {
		return &AssertionError{
			Type:     a.Type,
			Expected: a.Code,
			Actual:   "resolved state " + formatIDs(stateIDs(result.State)),
		}
	}
	if string(result.Err.Code) != a.Code {
		return &AssertionError{
			Type:     a.Type,
			Expected: a.Code,
			Actual:   result.Err.Error(),
		}
	}
	if a.Event != "" && !errorNames(result.Err, testutil.ID(a.Event)) {
		return &AssertionError{
			Type:     a.Type,
			Expected: fmt.Sprintf("%s naming %s", a.Code, testutil.ID(a.Event)),
			Actual:   result.Err.Error(),
		}
	}
	return nil
}

func requireState(result *Result, assertion string) error {
	if result.Err != nil {
		return &AssertionError{
			Type:     assertion,
			Expected: "resolved state",
			Actual:   result.Err.Error(),
		}
	}
	return nil
}

// errorNames reports whether the error points at id, either as the
// offending event or as a member of a detected cycle.
func errorNames(err *stateres.ResolveError, id event.EventID) bool {
	return err.EventID == id || slices.Contains(err.Cycle, id)
}

func stateIDs(m event.StateMap) []event.EventID {
	ids := make([]event.EventID, 0, len(m))
	for _, k := range m.SortedKeys() {
		ids = append(ids, m[k])
	}
	return sortedIDs(ids)
}

func sortedIDs(ids []event.EventID) []event.EventID {
	out := slices.Clone(ids)
	slices.Sort(out)
	return out
}

func formatIDs(ids []event.EventID) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = string(id)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/stateres/internal/canonicaljson"
)

// Snapshot renders a scenario outcome as canonical JSON for golden
// comparison. A successful run records the resolved state; a failed
// resolution records the error code and the event it names.
func Snapshot(scenario *Scenario, result *Result) ([]byte, error) {
	version := scenario.Version
	if version == "" {
		version = DefaultVersion
	}

	doc := canonicaljson.Object{
		"scenario": canonicaljson.String(scenario.Name),
		"version":  canonicaljson.String(version),
	}
	if result.Err != nil {
		errObj := canonicaljson.Object{
			"code": canonicaljson.String(result.Err.Code),
		}
		if result.Err.EventID != "" {
			errObj["event_id"] = canonicaljson.String(result.Err.EventID)
		}
		if len(result.Err.Cycle) > 0 {
			cycle := make(canonicaljson.Array, len(result.Err.Cycle))
			for i, id := range result.Err.Cycle {
				cycle[i] = canonicaljson.String(id)
			}
			errObj["cycle"] = cycle
		}
		doc["error"] = errObj
	} else {
		doc["state"] = result.State.CanonicalValue()
	}

	return canonicaljson.Marshal(doc)
}

// RunWithGolden executes a scenario and compares the outcome against a
// golden file at testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns error if scenario execution fails. Assertion failures and golden
// mismatches fail t.
func RunWithGolden(t *testing.T, scenario *Scenario) error {
	t.Helper()

	result, err := Run(t.Context(), scenario)
	if err != nil {
		return err
	}
	for _, msg := range result.Errors {
		t.Error(msg)
	}
	return AssertGolden(t, scenario, result)
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenario *Scenario, result *Result) error {
	t.Helper()

	data, err := Snapshot(scenario, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenario.Name, data)

	return nil
}

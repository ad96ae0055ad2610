package harness

import (
	"bytes"
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScenarios_Golden(t *testing.T) {
	files, err := filepath.Glob("testdata/*.yaml")
	require.NoError(t, err)
	require.NotEmpty(t, files)

	for _, f := range files {
		name := strings.TrimSuffix(filepath.Base(f), ".yaml")
		t.Run(name, func(t *testing.T) {
			scenario, err := LoadScenario(f)
			require.NoError(t, err)
			require.NoError(t, RunWithGolden(t, scenario))
		})
	}
}

func TestRun_Passes(t *testing.T) {
	scenario, err := LoadScenario("testdata/ban_race.yaml")
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Nil(t, result.Err)
	assert.Len(t, result.State, 4)
}

func TestRun_FailingAssertion(t *testing.T) {
	scenario, err := LoadScenario("testdata/ban_race.yaml")
	require.NoError(t, err)
	scenario.Assertions = []Assertion{{Type: AssertStateContains, Events: []string{"JOIN"}}}

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.False(t, result.Pass)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "$JOIN:example.org")
}

func TestRun_ResolutionErrorIsOutcome(t *testing.T) {
	scenario, err := LoadScenario("testdata/missing_ancestor.yaml")
	require.NoError(t, err)

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	require.NotNil(t, result.Err)
	assert.Equal(t, "NOT_FOUND", string(result.Err.Code))
	assert.Nil(t, result.State)
	assert.True(t, result.Pass)
}

func TestRun_InvalidScenario(t *testing.T) {
	_, err := Run(context.Background(), &Scenario{
		Name:      "broken",
		Events:    []EventStep{{ID: "A", Type: "m.room.create", Sender: "@a:x"}},
		StateSets: [][]string{{"A"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid scenario")
}

func TestRun_RoomIDOverride(t *testing.T) {
	scenario, err := LoadScenario("testdata/concurrent_joins.yaml")
	require.NoError(t, err)
	scenario.RoomID = "!elsewhere:example.org"

	result, err := Run(context.Background(), scenario)
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
}

func TestRun_WithLogger(t *testing.T) {
	scenario, err := LoadScenario("testdata/join_rule_evasion.yaml")
	require.NoError(t, err)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	result, err := Run(context.Background(), scenario, WithLogger(logger))
	require.NoError(t, err)
	assert.True(t, result.Pass, "errors: %v", result.Errors)
	assert.Contains(t, buf.String(), "$IME:example.org")
}

func TestSnapshot_Deterministic(t *testing.T) {
	scenario, err := LoadScenario("testdata/concurrent_joins.yaml")
	require.NoError(t, err)

	var first []byte
	for i := 0; i < 3; i++ {
		result, err := Run(context.Background(), scenario)
		require.NoError(t, err)
		data, err := Snapshot(scenario, result)
		require.NoError(t, err)
		if first == nil {
			first = data
			continue
		}
		assert.Equal(t, string(first), string(data))
	}
}

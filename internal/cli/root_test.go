package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "stateres", cmd.Use)
	assert.Contains(t, cmd.Long, "state resolution")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, path := range [][]string{
		{"import"},
		{"resolve"},
		{"authchain"},
		{"snapshot"},
		{"snapshot", "put"},
		{"snapshot", "get"},
		{"snapshot", "list"},
		{"scenario"},
	} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err, "command %v should exist", path)
		assert.Equal(t, path[len(path)-1], sub.Name())
	}
}

func TestGlobalFlags(t *testing.T) {
	t.Setenv("STATERES_FORMAT", "json")
	t.Setenv("STATERES_LOG_LEVEL", "debug")
	t.Setenv("STATERES_DB", "/tmp/env.db")
	cmd := NewRootCommand()

	verbose := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verbose)
	assert.Equal(t, "v", verbose.Shorthand)
	assert.Equal(t, "false", verbose.DefValue)

	assert.Equal(t, "json", cmd.PersistentFlags().Lookup("format").DefValue)
	assert.Equal(t, "debug", cmd.PersistentFlags().Lookup("log-level").DefValue)
	assert.Equal(t, "/tmp/env.db", cmd.PersistentFlags().Lookup("db").DefValue)
}

func TestResolveVersionDefaultFromEnv(t *testing.T) {
	t.Setenv("STATERES_ROOM_VERSION", "6")
	cmd := NewRootCommand()

	sub, _, err := cmd.Find([]string{"resolve"})
	require.NoError(t, err)
	assert.Equal(t, "6", sub.Flags().Lookup("version").DefValue)
}

func TestVersionFlagListsSupportedVersions(t *testing.T) {
	cmd := NewRootCommand()

	for _, path := range [][]string{{"resolve"}, {"snapshot", "put"}} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err)
		usage := sub.Flags().Lookup("version").Usage
		assert.Contains(t, usage, "one of 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11")
	}
}

func TestRootCommand_InvalidFormat(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"snapshot", "list", "--format", "yaml", "--db", t.TempDir() + "/x.db"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}

func TestRootCommand_InvalidLogLevel(t *testing.T) {
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"snapshot", "list", "--log-level", "loud", "--db", t.TempDir() + "/x.db"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestRootCommand_InvalidEnvironment(t *testing.T) {
	t.Setenv("STATERES_LOG_LEVEL", "shouting")
	cmd := NewRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"snapshot", "list", "--db", t.TempDir() + "/x.db"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid environment")
}

func TestRootCommand_SetsRunID(t *testing.T) {
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"snapshot", "list", "--format", "json", "--db", t.TempDir() + "/x.db"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), `"trace_id": "`)
	assert.Contains(t, out.String(), `"status": "ok"`)
}

package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/roach88/stateres/internal/event"
	"github.com/roach88/stateres/internal/testutil"
)

// execute runs the root command with args and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

// banRace builds a room where Alice bans Charlie while Charlie joins.
func banRace() *testutil.Room {
	r := testutil.NewBaseRoom(nil)
	r.Member("BAN", testutil.Alice, testutil.Charlie, event.MembershipBan,
		testutil.Prev("IJR"), testutil.Auth("CREATE", "IPOWER", "IMA"), testutil.TS(20))
	r.Member("JOIN", testutil.Charlie, testutil.Charlie, event.MembershipJoin,
		testutil.Prev("IJR"), testutil.Auth("CREATE", "IJR", "IPOWER"), testutil.TS(10))
	return r
}

func writeJSON(t *testing.T, dir, name string, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, data, 0644))
	return path
}

// importRoom writes r's events to a file and imports them into a new store.
func importRoom(t *testing.T, r *testutil.Room) (db, dir string) {
	t.Helper()
	dir = t.TempDir()
	db = filepath.Join(dir, "room.db")
	events := writeJSON(t, dir, "events.json", r.Events())
	_, err := execute(t, "import", "--db", db, events)
	require.NoError(t, err)
	return db, dir
}

func decodeResponse(t *testing.T, out string, data any) CLIResponse {
	t.Helper()
	var resp struct {
		CLIResponse
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	if data != nil && len(resp.Data) > 0 {
		require.NoError(t, json.Unmarshal(resp.Data, data))
	}
	return resp.CLIResponse
}

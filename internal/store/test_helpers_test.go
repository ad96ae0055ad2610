package store

import (
	"path/filepath"
	"testing"

	"github.com/roach88/stateres/internal/testutil"
)

// createTestStore creates a new on-disk store in a temp dir.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestRoom builds the standard base room plus a topic.
func createTestRoom() *testutil.Room {
	r := testutil.NewBaseRoom(nil)
	r.Topic("T1", testutil.Alice, "hello",
		testutil.Prev("IJR"), testutil.Auth("CREATE", "IPOWER", "IMA"))
	return r
}

package vaultdb

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// makeTestDB opens a fresh store under a temp directory, registering
// cleanup so the file and its lock are released when the test ends.
func makeTestDB(t *testing.T) *DB {
	t.Helper()

	dir, err := os.MkdirTemp("", "vaultdb-test")
	require.NoError(t, err)

	db, err := Open(dir)
	require.NoError(t, err)

	t.Cleanup(func() {
		db.Close()
		os.RemoveAll(dir)
	})

	return db
}

package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/favbox/chainkit/store/storetest"
)

func openTemp(t *testing.T) (*Store, string) {
	path := filepath.Join(t.TempDir(), "trees.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestSQLiteStore_Contract(t *testing.T) {
	s, _ := openTemp(t)
	storetest.RunContract(t, s)
}

func TestOpen_Idempotent(t *testing.T) {
	ctx := context.Background()
	s, path := openTemp(t)
	rev, err := s.Put(ctx, "keep", "text")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	again, err := Open(path)
	require.NoError(t, err)
	defer again.Close()

	text, err := again.Get(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, "text", text)

	got, err := again.Revision(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, rev, got)

	var mode string
	require.NoError(t, again.db.QueryRow("PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

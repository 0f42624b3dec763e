// Package storetest 所有 Store 实现共用的行为测试。
package storetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/favbox/chainkit/schema"
	"github.com/favbox/chainkit/store"
)

const sampleText = `{"grp":1,"type":"constructor","id":["ns","C"],"kwargs":{"attr1":1}}`

// RunContract 对一个空的 Store 执行完整的行为检查。
func RunContract(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("GetMissing", func(t *testing.T) {
		_, err := s.Get(ctx, "missing")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("PutGet", func(t *testing.T) {
		rev, err := s.Put(ctx, "alpha", sampleText)
		require.NoError(t, err)
		assert.NotEmpty(t, rev)

		text, err := s.Get(ctx, "alpha")
		require.NoError(t, err)
		assert.Equal(t, sampleText, text)
	})

	t.Run("Overwrite", func(t *testing.T) {
		rev1, err := s.Put(ctx, "beta", "one")
		require.NoError(t, err)
		rev2, err := s.Put(ctx, "beta", "two")
		require.NoError(t, err)
		assert.NotEqual(t, rev1, rev2)

		text, err := s.Get(ctx, "beta")
		require.NoError(t, err)
		assert.Equal(t, "two", text)
	})

	t.Run("List", func(t *testing.T) {
		names, err := s.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"alpha", "beta"}, names)
	})

	t.Run("InvalidName", func(t *testing.T) {
		_, err := s.Put(ctx, "has space", sampleText)
		assert.ErrorIs(t, err, schema.ErrValidation)
	})

	t.Run("Delete", func(t *testing.T) {
		require.NoError(t, s.Delete(ctx, "alpha"))
		_, err := s.Get(ctx, "alpha")
		assert.ErrorIs(t, err, store.ErrNotFound)
		assert.ErrorIs(t, s.Delete(ctx, "alpha"), store.ErrNotFound)

		names, err := s.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"beta"}, names)
	})
}

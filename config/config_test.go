package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/favbox/chainkit/caller"
	"github.com/favbox/chainkit/store/memory"
	"github.com/favbox/chainkit/store/redis"
	"github.com/favbox/chainkit/store/sqlite"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "chainkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
log:
  level: debug
retry:
  max_retries: 2
  initial_delay: 250ms
store:
  driver: sqlite
  sqlite:
    path: /tmp/x.db
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 2, cfg.Retry.MaxRetries)
	assert.Equal(t, 250*time.Millisecond, cfg.Retry.InitialDelay)
	// 未出现的字段保留默认值
	assert.Equal(t, caller.DefaultMaxDelay, cfg.Retry.MaxDelay)
	assert.Equal(t, caller.DefaultFactor, cfg.Retry.Factor)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "/tmp/x.db", cfg.Store.SQLite.Path)
	assert.Equal(t, redis.DefaultPrefix, cfg.Store.Redis.Prefix)
}

func TestLoadDefault(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.NotNil(t, cfg.Logger())
}

func TestLoadInvalid(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "retry: [1, 2"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "retry:\n  jitter: 2\n"))
	assert.ErrorContains(t, err, "jitter")

	_, err = Load(writeConfig(t, "store:\n  driver: etcd\n"))
	assert.ErrorContains(t, err, "etcd")
}

func TestCaller(t *testing.T) {
	cfg := Default()
	cfg.Retry.MaxRetries = 3
	opts := cfg.Caller(caller.WithName("cli"))
	assert.Len(t, opts, 7)
	assert.NotNil(t, caller.New(opts...))
}

func TestOpenStore(t *testing.T) {
	cfg := Default()
	s, err := cfg.OpenStore()
	require.NoError(t, err)
	assert.IsType(t, &memory.Store{}, s)

	cfg.Store.Driver = DriverSQLite
	cfg.Store.SQLite.Path = filepath.Join(t.TempDir(), "trees.db")
	s, err = cfg.OpenStore()
	require.NoError(t, err)
	assert.IsType(t, &sqlite.Store{}, s)
	require.NoError(t, s.Close())

	mr := miniredis.RunT(t)
	cfg.Store.Driver = DriverRedis
	cfg.Store.Redis.Addr = mr.Addr()
	s, err = cfg.OpenStore()
	require.NoError(t, err)
	assert.IsType(t, &redis.Store{}, s)
	_, err = s.Put(t.Context(), "n", "text")
	require.NoError(t, err)
	assert.True(t, mr.Exists(redis.DefaultPrefix+"tree:n"))
	require.NoError(t, s.Close())
}

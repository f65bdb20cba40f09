package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]KV {
	t.Helper()
	ctx := context.Background()
	dir := t.TempDir()

	boltKV, err := NewBoltKV(filepath.Join(dir, "logs.db"))
	require.NoError(t, err)

	sqliteKV, err := NewSQLiteKV(filepath.Join(dir, "logs.sqlite"))
	require.NoError(t, err)

	mr := miniredis.RunT(t)
	redisKV, err := NewRedisKV(ctx, "redis://"+mr.Addr(), "test:")
	require.NoError(t, err)

	stores := map[string]KV{
		"memory": NewMemoryKV(),
		"bolt":   boltKV,
		"sqlite": sqliteKV,
		"redis":  redisKV,
	}
	t.Cleanup(func() {
		for _, kv := range stores {
			kv.Close()
		}
	})
	return stores
}

func TestKVContract(t *testing.T) {
	ctx := context.Background()

	for name, kv := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := kv.Get(ctx, "app_logs")
			require.NoError(t, err)
			assert.False(t, ok, "absent key must report ok=false")

			require.NoError(t, kv.Set(ctx, "app_logs", `[{"message":"a"}]`))
			value, ok, err := kv.Get(ctx, "app_logs")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, `[{"message":"a"}]`, value)

			require.NoError(t, kv.Set(ctx, "app_logs", `[]`))
			value, _, err = kv.Get(ctx, "app_logs")
			require.NoError(t, err)
			assert.Equal(t, `[]`, value, "set must overwrite")

			require.NoError(t, kv.Remove(ctx, "app_logs"))
			_, ok, err = kv.Get(ctx, "app_logs")
			require.NoError(t, err)
			assert.False(t, ok)

			assert.NoError(t, kv.Remove(ctx, "never-set"), "removing an absent key is not an error")
		})
	}
}

func TestRedisKVPrefix(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	kv, err := NewRedisKV(ctx, "redis://"+mr.Addr(), "web:")
	require.NoError(t, err)
	defer kv.Close()

	require.NoError(t, kv.Set(ctx, "app_logs", "[]"))
	assert.True(t, mr.Exists("web:app_logs"))
}

func TestNewRedisKVUnreachable(t *testing.T) {
	_, err := NewRedisKV(context.Background(), "redis://127.0.0.1:1", "")
	assert.Error(t, err)

	_, err = NewRedisKV(context.Background(), "http://localhost:6379", "")
	assert.Error(t, err)
}

func TestBoltKVPersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "logs.db")

	kv, err := NewBoltKV(path)
	require.NoError(t, err)
	require.NoError(t, kv.Set(ctx, "app_logs", "persisted"))
	require.NoError(t, kv.Close())

	kv, err = NewBoltKV(path)
	require.NoError(t, err)
	defer kv.Close()

	value, ok, err := kv.Get(ctx, "app_logs")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "persisted", value)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	mr := miniredis.RunT(t)

	tests := []struct {
		url      string
		expected interface{}
	}{
		{"memory://", &MemoryKV{}},
		{"bolt://" + filepath.Join(dir, "a.db"), &BoltKV{}},
		{"sqlite://" + filepath.Join(dir, "a.sqlite"), &SQLiteKV{}},
		{"redis://" + mr.Addr() + "/0?prefix=app:", &RedisKV{}},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			kv, err := Open(ctx, tt.url)
			require.NoError(t, err)
			defer kv.Close()
			assert.IsType(t, tt.expected, kv)
		})
	}

	_, err := Open(ctx, "ftp://somewhere")
	assert.Error(t, err)
}

func TestOpenRedisStripsPrefixParam(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	kv, err := Open(ctx, "redis://"+mr.Addr()+"?prefix=app:")
	require.NoError(t, err)
	defer kv.Close()

	require.NoError(t, kv.Set(ctx, "k", "v"))
	assert.True(t, mr.Exists("app:k"))
}

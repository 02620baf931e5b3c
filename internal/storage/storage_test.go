package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func exerciseKV(t *testing.T, kv KV) {
	t.Helper()
	ctx := context.Background()

	_, err := kv.Get(ctx, SessionsKey)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, kv.Set(ctx, SessionsKey, `[{"id":"1"}]`))
	require.NoError(t, kv.Set(ctx, ActiveSessionKey, "1"))

	got, err := kv.Get(ctx, SessionsKey)
	require.NoError(t, err)
	require.Equal(t, `[{"id":"1"}]`, got)

	require.NoError(t, kv.Set(ctx, ActiveSessionKey, "2"))
	got, err = kv.Get(ctx, ActiveSessionKey)
	require.NoError(t, err)
	require.Equal(t, "2", got)
}

func TestMemoryStore(t *testing.T) {
	exerciseKV(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(filepath.Join(t.TempDir(), "nested", "store.json"))
	require.NoError(t, err)
	exerciseKV(t, s)
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	ctx := context.Background()

	first, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, ActiveSessionKey, "abc"))

	second, err := NewFileStore(path)
	require.NoError(t, err)
	got, err := second.Get(ctx, ActiveSessionKey)
	require.NoError(t, err)
	require.Equal(t, "abc", got)
}

func TestFileStoreCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	require.NoError(t, os.WriteFile(path, []byte("{oops"), 0o644))
	ctx := context.Background()

	s, err := NewFileStore(path)
	require.NoError(t, err)

	_, err = s.Get(ctx, SessionsKey)
	require.Error(t, err)
	require.NotErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, SessionsKey, "[]"))
	got, err := s.Get(ctx, SessionsKey)
	require.NoError(t, err)
	require.Equal(t, "[]", got)
}

func TestSQLiteStore(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "chat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	exerciseKV(t, s)
}

func TestRedisStore(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	s, err := NewRedisStore(context.Background(), RedisOptions{Addr: addr, Prefix: fmt.Sprintf("test:%d:", time.Now().UnixNano())})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	exerciseKV(t, s)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "etcd"})
	require.Error(t, err)
}

func TestOpenMemory(t *testing.T) {
	kv, err := Open(context.Background(), Config{Driver: DriverMemory})
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, kv)
}

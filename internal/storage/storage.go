// Package storage provides the key-value persistence that backs the session store.
//
// Values are opaque strings. Writes overwrite unconditionally; there is no
// versioning or merge between writers.
package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Keys written by the session store.
const (
	SessionsKey      = "chat_sessions"
	ActiveSessionKey = "chat_active_session_id"
)

// ErrNotFound is returned by Get when the key has never been written.
var ErrNotFound = errors.New("storage: key not found")

// KV is a minimal string key-value store.
type KV interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Close() error
}

// Driver names accepted by Open.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// Config selects and configures a backend.
type Config struct {
	Driver        string
	Path          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// Open builds the backend named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (KV, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverFile, "":
		return NewFileStore(cfg.Path)
	case DriverSQLite:
		return NewSQLiteStore(cfg.Path)
	case DriverRedis:
		return NewRedisStore(ctx, RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Prefix:   cfg.RedisPrefix,
		})
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

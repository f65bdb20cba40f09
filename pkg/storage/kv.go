package storage

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// KV is a string key/value store. Get reports ok=false for an absent key.
type KV interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Remove(ctx context.Context, key string) error
	Close() error
}

// Open picks a backend from a URL:
//
//	memory://
//	bolt:///var/lib/app/logs.db
//	sqlite:///var/lib/app/logs.sqlite
//	redis://localhost:6379/0?prefix=web:
func Open(ctx context.Context, rawURL string) (KV, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid store URL %q: %w", rawURL, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "memory", "mem", "":
		return NewMemoryKV(), nil
	case "bolt", "bbolt":
		return NewBoltKV(filePath(u))
	case "sqlite", "sqlite3":
		return NewSQLiteKV(filePath(u))
	case "redis", "rediss":
		prefix := u.Query().Get("prefix")
		q := u.Query()
		q.Del("prefix")
		u.RawQuery = q.Encode()
		return NewRedisKV(ctx, u.String(), prefix)
	}
	return nil, fmt.Errorf("unsupported store scheme %q", u.Scheme)
}

// filePath accepts both bolt:///abs/path and bolt://relative/path.
func filePath(u *url.URL) string {
	if u.Host != "" {
		return u.Host + u.Path
	}
	return u.Path
}

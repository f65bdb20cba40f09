// Package retention keeps the most recent log entries in a single slot of a
// key/value store, as a JSON array ordered oldest first.
package retention

import (
	"context"
	"encoding/json"
	"os"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/kerlexov/clientlog/pkg/logger"
	"github.com/kerlexov/clientlog/pkg/storage"
)

const DefaultKey = "app_logs"

// Store implements logger.Retention. Every failure is reported to the
// diagnostic logger and otherwise ignored; a slot that is absent or does not
// decode reads as empty.
//
// Appends are serialized within one Store. Two processes sharing a slot (a
// redis backend, say) can still interleave and lose an entry.
type Store struct {
	kv   storage.KV
	key  string
	diag *logrus.Entry
	mu   sync.Mutex
}

type Option func(*Store)

func WithKey(key string) Option {
	return func(s *Store) { s.key = key }
}

func WithDiagnostics(diag *logrus.Entry) Option {
	return func(s *Store) { s.diag = diag }
}

func New(kv storage.KV, opts ...Option) *Store {
	s := &Store{kv: kv, key: DefaultKey}
	for _, opt := range opts {
		opt(s)
	}
	if s.diag == nil {
		diag := logrus.New()
		diag.SetOutput(os.Stderr)
		diag.SetLevel(logrus.WarnLevel)
		s.diag = diag.WithField("component", "clientlog")
	}
	s.diag = s.diag.WithField("slot", s.key)
	return s
}

var _ logger.Retention = (*Store)(nil)

func (s *Store) Append(ctx context.Context, entry logger.LogEntry, capacity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries := s.read(ctx)
	entries = append(entries, entry)

	if capacity < 0 {
		capacity = 0
	}
	if over := len(entries) - capacity; over > 0 {
		entries = entries[over:]
	}

	data, err := json.Marshal(entries)
	if err != nil {
		s.diag.WithError(err).Warn("failed to encode retained logs")
		return
	}
	if err := s.kv.Set(ctx, s.key, string(data)); err != nil {
		s.diag.WithError(logger.ErrStorage("failed to persist retained logs", err)).Warn("local log retention failed")
	}
}

func (s *Store) All(ctx context.Context) []logger.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read(ctx)
}

func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.kv.Remove(ctx, s.key); err != nil {
		s.diag.WithError(logger.ErrStorage("failed to clear retained logs", err)).Warn("local log retention failed")
	}
}

func (s *Store) read(ctx context.Context) []logger.LogEntry {
	raw, ok, err := s.kv.Get(ctx, s.key)
	if err != nil {
		s.diag.WithError(logger.ErrStorage("failed to read retained logs", err)).Warn("local log retention failed")
		return []logger.LogEntry{}
	}
	if !ok || raw == "" {
		return []logger.LogEntry{}
	}

	var entries []logger.LogEntry
	if err := json.Unmarshal([]byte(raw), &entries); err != nil {
		s.diag.WithError(err).Warn("retained logs are corrupt, starting over")
		return []logger.LogEntry{}
	}
	if entries == nil {
		entries = []logger.LogEntry{}
	}
	return entries
}

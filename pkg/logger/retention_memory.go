package logger

import (
	"context"
	"sync"
)

type memoryRetention struct {
	entries []LogEntry
	mu      sync.Mutex
}

// NewMemoryRetention keeps retained entries in process memory. It is the
// fallback when local retention is enabled without a persistent store.
func NewMemoryRetention() Retention {
	return &memoryRetention{}
}

func (r *memoryRetention) Append(ctx context.Context, entry LogEntry, capacity int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = append(r.entries, entry)
	if capacity < 0 {
		capacity = 0
	}
	if over := len(r.entries) - capacity; over > 0 {
		copy(r.entries, r.entries[over:])
		r.entries = r.entries[:capacity]
	}
}

func (r *memoryRetention) All(ctx context.Context) []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	entries := make([]LogEntry, len(r.entries))
	copy(entries, r.entries)
	return entries
}

func (r *memoryRetention) Clear(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}

package collector

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kerlexov/clientlog/pkg/config"
	"github.com/kerlexov/clientlog/pkg/logger"
)

func stored(id string, level logger.Level, ts time.Time) StoredEntry {
	return StoredEntry{
		ID:         id,
		ReceivedAt: ts,
		LogEntry: logger.LogEntry{
			Level:     level,
			Message:   id,
			Timestamp: ts.UTC().Format(logger.TimestampFormat),
		},
	}
}

func TestPrunerSweep(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	search, err := NewSearchIndex("")
	require.NoError(t, err)
	defer search.Close()

	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	entries := []StoredEntry{
		stored("old-debug", logger.LevelDebug, now.AddDate(0, 0, -10)),
		stored("new-debug", logger.LevelDebug, now.AddDate(0, 0, -1)),
		stored("old-error", logger.LevelError, now.AddDate(0, 0, -100)),
		stored("ancient-error", logger.LevelError, now.AddDate(0, 0, -400)),
	}
	require.NoError(t, store.Store(ctx, entries))
	require.NoError(t, search.Index(entries))

	policy := config.RetentionConfig{
		DefaultDays: 30,
		ByLevel:     map[string]int{"debug": 7, "error": 365},
	}
	pruner := NewPruner(store, search, policy, NewMetrics(), zap.NewNop())
	pruner.now = func() time.Time { return now }

	result, err := pruner.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.TotalDeleted)
	assert.Equal(t, 1, result.DeletedByLevel[logger.LevelDebug])
	assert.Equal(t, 1, result.DeletedByLevel[logger.LevelError])

	remaining, err := store.Query(ctx, Filter{})
	require.NoError(t, err)
	var ids []string
	for _, e := range remaining.Logs {
		ids = append(ids, e.ID)
	}
	assert.ElementsMatch(t, []string{"new-debug", "old-error"}, ids)

	docs, err := search.DocCount()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), docs)
}

func TestPrunerKeepsForeverWhenZeroDays(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	now := time.Now()
	require.NoError(t, store.Store(ctx, []StoredEntry{stored("x", logger.LevelInfo, now.AddDate(-5, 0, 0))}))

	pruner := NewPruner(store, nil, config.RetentionConfig{DefaultDays: 0}, nil, zap.NewNop())
	result, err := pruner.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.TotalDeleted)
}

func TestStoreGetByIDsKeepsOrder(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	now := time.Now()
	require.NoError(t, store.Store(ctx, []StoredEntry{
		stored("a", logger.LevelInfo, now),
		stored("b", logger.LevelInfo, now),
		stored("c", logger.LevelInfo, now),
	}))

	got, err := store.GetByIDs(ctx, []string{"c", "missing", "a"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "c", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
}

func TestStoreReopenKeepsMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "collector.db")

	store, err := NewStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Store(context.Background(), []StoredEntry{stored("a", logger.LevelWarn, time.Now())}))
	require.NoError(t, store.Close())

	store, err = NewStore(path)
	require.NoError(t, err)
	defer store.Close()

	count, err := store.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

package collector

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kerlexov/clientlog/pkg/logger"
)

// Store persists received entries in SQLite.
type Store struct {
	db *sql.DB
}

func NewStore(connectionString string) (*Store, error) {
	db, err := sql.Open("sqlite3", connectionString)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}

	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *Store) migrate() error {
	createMigrationsTable := `
	CREATE TABLE IF NOT EXISTS migrations (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := s.db.Exec(createMigrationsTable); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{
			version: 1,
			sql: `
			CREATE TABLE IF NOT EXISTS log_entries (
				id TEXT PRIMARY KEY,
				timestamp DATETIME NOT NULL,
				received_at DATETIME NOT NULL,
				level INTEGER NOT NULL CHECK (level BETWEEN 0 AND 3),
				message TEXT NOT NULL,
				tag TEXT NOT NULL DEFAULT '',
				data TEXT, -- JSON
				user_agent TEXT NOT NULL DEFAULT '',
				url TEXT NOT NULL DEFAULT '',
				app_version TEXT NOT NULL DEFAULT ''
			);

			CREATE INDEX IF NOT EXISTS idx_log_entries_timestamp ON log_entries(timestamp);
			CREATE INDEX IF NOT EXISTS idx_log_entries_level ON log_entries(level);
			CREATE INDEX IF NOT EXISTS idx_log_entries_tag ON log_entries(tag);
			`,
		},
		{
			version: 2,
			sql:     `ALTER TABLE log_entries ADD COLUMN client_ip TEXT NOT NULL DEFAULT '';`,
		},
	}

	for _, migration := range migrations {
		var count int
		err := s.db.QueryRow("SELECT COUNT(*) FROM migrations WHERE version = ?", migration.version).Scan(&count)
		if err != nil {
			return fmt.Errorf("failed to check migration version %d: %w", migration.version, err)
		}

		if count == 0 {
			if _, err := s.db.Exec(migration.sql); err != nil {
				return fmt.Errorf("failed to apply migration version %d: %w", migration.version, err)
			}

			if _, err := s.db.Exec("INSERT INTO migrations (version) VALUES (?)", migration.version); err != nil {
				return fmt.Errorf("failed to record migration version %d: %w", migration.version, err)
			}
		}
	}

	return nil
}

// Store writes a batch of entries in one transaction.
func (s *Store) Store(ctx context.Context, entries []StoredEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO log_entries (
			id, timestamp, received_at, level, message, tag,
			data, user_agent, url, app_version, client_ip
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, entry := range entries {
		var dataJSON *string
		if entry.Data != nil {
			data, err := json.Marshal(entry.Data)
			if err != nil {
				return fmt.Errorf("failed to marshal data for log %s: %w", entry.ID, err)
			}
			encoded := string(data)
			dataJSON = &encoded
		}

		timestamp := entry.Time()
		if timestamp.IsZero() {
			timestamp = entry.ReceivedAt
		}

		_, err := stmt.ExecContext(ctx,
			entry.ID,
			timestamp.UTC(),
			entry.ReceivedAt.UTC(),
			int(entry.Level),
			entry.Message,
			entry.Tag,
			dataJSON,
			entry.UserAgent,
			entry.URL,
			entry.AppVersion,
			entry.ClientIP,
		)
		if err != nil {
			return fmt.Errorf("failed to insert log entry %s: %w", entry.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

const selectColumns = `id, timestamp, received_at, level, message, tag, data, user_agent, url, app_version, client_ip`

// Query returns entries matching filter, newest first.
func (s *Store) Query(ctx context.Context, filter Filter) (*Result, error) {
	filter = filter.normalized()

	var conditions []string
	var args []interface{}

	if filter.MinLevel > logger.LevelDebug {
		conditions = append(conditions, "level >= ?")
		args = append(args, int(filter.MinLevel))
	}

	if filter.Tag != "" {
		conditions = append(conditions, "tag = ?")
		args = append(args, filter.Tag)
	}

	if !filter.Since.IsZero() {
		conditions = append(conditions, "timestamp >= ?")
		args = append(args, filter.Since.UTC())
	}

	if !filter.Until.IsZero() {
		conditions = append(conditions, "timestamp <= ?")
		args = append(args, filter.Until.UTC())
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	var totalCount int
	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM log_entries %s", whereClause)
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to get total count: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM log_entries %s
		ORDER BY timestamp DESC, received_at DESC
		LIMIT ? OFFSET ?
	`, selectColumns, whereClause)
	args = append(args, filter.Limit, filter.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs: %w", err)
	}
	defer rows.Close()

	logs, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}

	return &Result{
		Logs:       logs,
		TotalCount: totalCount,
		HasMore:    filter.Offset+len(logs) < totalCount,
	}, nil
}

// GetByIDs returns the entries in the order of ids. Unknown ids are skipped.
func (s *Store) GetByIDs(ctx context.Context, ids []string) ([]StoredEntry, error) {
	if len(ids) == 0 {
		return []StoredEntry{}, nil
	}

	placeholders := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}

	query := fmt.Sprintf("SELECT %s FROM log_entries WHERE id IN (%s)", selectColumns, strings.Join(placeholders, ","))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query logs by id: %w", err)
	}
	defer rows.Close()

	found, err := scanEntries(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]StoredEntry, len(found))
	for _, entry := range found {
		byID[entry.ID] = entry
	}

	ordered := make([]StoredEntry, 0, len(found))
	for _, id := range ids {
		if entry, ok := byID[id]; ok {
			ordered = append(ordered, entry)
		}
	}
	return ordered, nil
}

// DeleteBefore removes entries of level older than cutoff and returns their ids.
func (s *Store) DeleteBefore(ctx context.Context, level logger.Level, cutoff time.Time) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, "SELECT id FROM log_entries WHERE level = ? AND timestamp < ?", int(level), cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to select expired logs: %w", err)
	}

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return nil, nil
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM log_entries WHERE level = ? AND timestamp < ?", int(level), cutoff.UTC()); err != nil {
		return nil, fmt.Errorf("failed to delete expired logs: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return ids, nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM log_entries").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count logs: %w", err)
	}
	return count, nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	return s.db.Close()
}

func scanEntries(rows *sql.Rows) ([]StoredEntry, error) {
	logs := []StoredEntry{}
	for rows.Next() {
		var (
			entry     StoredEntry
			timestamp time.Time
			level     int
			dataJSON  sql.NullString
		)

		err := rows.Scan(
			&entry.ID,
			&timestamp,
			&entry.ReceivedAt,
			&level,
			&entry.Message,
			&entry.Tag,
			&dataJSON,
			&entry.UserAgent,
			&entry.URL,
			&entry.AppVersion,
			&entry.ClientIP,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}

		entry.Level = logger.Level(level)
		entry.Timestamp = timestamp.UTC().Format(logger.TimestampFormat)

		if dataJSON.Valid {
			if err := json.Unmarshal([]byte(dataJSON.String), &entry.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal data for log %s: %w", entry.ID, err)
			}
		}

		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate logs: %w", err)
	}
	return logs, nil
}

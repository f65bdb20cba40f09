package logger

import (
	"context"
	"time"
)

type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	Log(level Level, msg string, fields ...Field)

	DebugContext(ctx context.Context, msg string, fields ...Field)
	InfoContext(ctx context.Context, msg string, fields ...Field)
	WarnContext(ctx context.Context, msg string, fields ...Field)
	ErrorContext(ctx context.Context, msg string, fields ...Field)
	LogContext(ctx context.Context, level Level, msg string, fields ...Field)

	// Err logs err at error level: its text becomes the message and its
	// type name and stack are merged into the entry data.
	Err(err error, fields ...Field)
	LogErr(ctx context.Context, level Level, err error, fields ...Field)

	WithFields(fields ...Field) Logger
	WithTag(tag string) Logger

	SetLevel(level Level)
	EnableServerReport(url string, batch bool)
	EnableLocalStorage(maxLogs int)
	Config() Config

	LocalLogs(ctx context.Context) []LogEntry
	ClearLocalLogs(ctx context.Context)

	Flush()
	Close() error
}

// Transport delivers entries to a remote endpoint. A returned error means
// the payload was never handed to the network; failures after hand-off are
// the transport's own business and are never reported back.
type Transport interface {
	Send(endpoint string, entry LogEntry) error
	SendBatch(endpoint string, entries []LogEntry) error
	Close() error
}

// Retention is the capped local copy of accepted entries. Implementations
// swallow their own failures.
type Retention interface {
	Append(ctx context.Context, entry LogEntry, capacity int)
	All(ctx context.Context) []LogEntry
	Clear(ctx context.Context)
}

// Beacon is a best-effort send that should outlive the caller. It reports
// whether the payload was accepted for delivery.
type Beacon interface {
	SendBeacon(url string, payload []byte) bool
}

// Environment supplies the ambient values stamped on every entry.
type Environment interface {
	Now() time.Time
	URL() string
	UserAgent() string
}

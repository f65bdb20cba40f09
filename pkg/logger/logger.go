package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"runtime/debug"
	"sync"

	"github.com/sirupsen/logrus"
)

type Option func(*core)

func UseTransport(transport Transport) Option {
	return func(c *core) { c.transport = transport }
}

func UseRetention(retention Retention) Option {
	return func(c *core) { c.retention = retention }
}

func UseEnvironment(env Environment) Option {
	return func(c *core) { c.env = env }
}

// UseConsole replaces the console echo. Its formatter is left untouched.
func UseConsole(console *logrus.Logger) Option {
	return func(c *core) { c.console = console }
}

func UseDiagnostics(diag *logrus.Entry) Option {
	return func(c *core) { c.diag = diag }
}

// core is shared by a logger and every logger derived from it.
type core struct {
	config    Config
	env       Environment
	transport Transport
	retention Retention
	queue     *deliveryQueue
	console   *logrus.Logger
	diag      *logrus.Entry
	mu        sync.RWMutex
	closed    bool
}

type clientLogger struct {
	core          *core
	tag           string
	defaultFields map[string]interface{}
}

func New(config Config, opts ...Option) (Logger, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	c := &core{config: config}
	for _, opt := range opts {
		opt(c)
	}

	if c.diag == nil {
		c.diag = newDiagnostics()
	}
	if c.console == nil {
		c.console = newConsole()
	}
	if c.env == nil {
		c.env = NewProcessEnvironment("")
	}
	if c.transport == nil {
		c.transport = NewHTTPTransport(HTTPTransportConfig{
			Timeout:     config.HTTPTimeout,
			Diagnostics: c.diag,
		})
	}
	if c.retention == nil {
		c.retention = NewMemoryRetention()
	}
	c.queue = newDeliveryQueue(c.transport, c.diag)

	return &clientLogger{
		core:          c,
		defaultFields: make(map[string]interface{}),
	}, nil
}

func (l *clientLogger) Debug(msg string, fields ...Field) {
	l.LogContext(context.Background(), LevelDebug, msg, fields...)
}

func (l *clientLogger) Info(msg string, fields ...Field) {
	l.LogContext(context.Background(), LevelInfo, msg, fields...)
}

func (l *clientLogger) Warn(msg string, fields ...Field) {
	l.LogContext(context.Background(), LevelWarn, msg, fields...)
}

func (l *clientLogger) Error(msg string, fields ...Field) {
	l.LogContext(context.Background(), LevelError, msg, fields...)
}

func (l *clientLogger) Log(level Level, msg string, fields ...Field) {
	l.LogContext(context.Background(), level, msg, fields...)
}

func (l *clientLogger) DebugContext(ctx context.Context, msg string, fields ...Field) {
	l.LogContext(ctx, LevelDebug, msg, fields...)
}

func (l *clientLogger) InfoContext(ctx context.Context, msg string, fields ...Field) {
	l.LogContext(ctx, LevelInfo, msg, fields...)
}

func (l *clientLogger) WarnContext(ctx context.Context, msg string, fields ...Field) {
	l.LogContext(ctx, LevelWarn, msg, fields...)
}

func (l *clientLogger) ErrorContext(ctx context.Context, msg string, fields ...Field) {
	l.LogContext(ctx, LevelError, msg, fields...)
}

func (l *clientLogger) Err(err error, fields ...Field) {
	l.LogErr(context.Background(), LevelError, err, fields...)
}

func (l *clientLogger) LogErr(ctx context.Context, level Level, err error, fields ...Field) {
	defer func() {
		if r := recover(); r != nil {
			l.core.diag.WithField("panic", r).Error("error value panicked while logging")
		}
	}()

	if err == nil {
		l.LogContext(ctx, level, "<nil>", fields...)
		return
	}

	var stack string
	if _, ok := err.(fmt.Formatter); ok {
		// errors that format themselves with %+v usually carry their own stack
		stack = fmt.Sprintf("%+v", err)
	} else {
		stack = string(debug.Stack())
	}

	merged := make([]Field, 0, len(fields)+2)
	merged = append(merged, fields...)
	merged = append(merged,
		Field{Key: "stack", Value: stack},
		Field{Key: "name", Value: fmt.Sprintf("%T", err)},
	)
	l.LogContext(ctx, level, err.Error(), merged...)
}

func (l *clientLogger) WithFields(fields ...Field) Logger {
	derived := &clientLogger{
		core:          l.core,
		tag:           l.tag,
		defaultFields: make(map[string]interface{}, len(l.defaultFields)+len(fields)),
	}
	for k, v := range l.defaultFields {
		derived.defaultFields[k] = v
	}
	for _, field := range fields {
		if field.Key == tagFieldKey {
			if tag, ok := field.Value.(string); ok {
				derived.tag = tag
			}
			continue
		}
		derived.defaultFields[field.Key] = field.Value
	}
	return derived
}

func (l *clientLogger) WithTag(tag string) Logger {
	return l.WithFields(Tag(tag))
}

func (l *clientLogger) SetLevel(level Level) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.config.Level = level
}

func (l *clientLogger) EnableServerReport(url string, batch bool) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	l.core.config.ReportToServer = true
	l.core.config.ServerURL = url
	l.core.config.BatchReport = batch
}

func (l *clientLogger) EnableLocalStorage(maxLogs int) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	if maxLogs <= 0 {
		maxLogs = defaultMaxLocalLogs
	}
	l.core.config.UseLocalStorage = true
	l.core.config.MaxLocalLogs = maxLogs
}

func (l *clientLogger) Config() Config {
	l.core.mu.RLock()
	defer l.core.mu.RUnlock()
	return l.core.config
}

func (l *clientLogger) LocalLogs(ctx context.Context) []LogEntry {
	return l.core.retention.All(ctx)
}

func (l *clientLogger) ClearLocalLogs(ctx context.Context) {
	l.core.retention.Clear(ctx)
}

// Flush sends whatever the delivery queue holds. It is what a caller runs
// right before the process goes away.
func (l *clientLogger) Flush() {
	config := l.Config()
	if !config.BatchReport || l.core.queue.Len() == 0 {
		return
	}
	l.core.queue.Flush(config.ServerURL)
}

func (l *clientLogger) Close() error {
	l.core.mu.Lock()
	if l.core.closed {
		l.core.mu.Unlock()
		return nil
	}
	l.core.closed = true
	l.core.mu.Unlock()

	l.Flush()

	if err := l.core.transport.Close(); err != nil {
		l.core.diag.WithError(err).Warn("failed to close transport")
	}
	return nil
}

func (l *clientLogger) LogContext(ctx context.Context, level Level, msg string, fields ...Field) {
	defer func() {
		if r := recover(); r != nil {
			l.core.diag.WithField("panic", r).Error("log call panicked")
		}
	}()

	l.core.mu.RLock()
	if l.core.closed {
		l.core.mu.RUnlock()
		return
	}
	config := l.core.config
	l.core.mu.RUnlock()

	level = clampLevel(level)
	if level < config.Level {
		return
	}

	entry := l.buildEntry(level, msg, config.AppVersion, fields)

	if config.Console {
		echo(l.core.console, entry)
	}

	if config.UseLocalStorage {
		l.core.retention.Append(ctx, entry, config.MaxLocalLogs)
	}

	if config.ReportToServer && config.ServerURL != "" && level >= LevelWarn {
		if config.BatchReport {
			l.core.queue.Enqueue(config.ServerURL, entry, config.BatchSize)
		} else {
			l.report(config.ServerURL, entry)
		}
	}
}

func (l *clientLogger) report(endpoint string, entry LogEntry) {
	if err := l.core.transport.Send(endpoint, entry); err != nil {
		l.core.diag.WithError(err).Warn("report log to server failed")
	}
}

func (l *clientLogger) buildEntry(level Level, msg, appVersion string, fields []Field) LogEntry {
	data := make(map[string]interface{}, len(l.defaultFields)+len(fields))
	for k, v := range l.defaultFields {
		data[k] = v
	}

	tag := l.tag
	for _, field := range fields {
		if field.Key == tagFieldKey {
			if t, ok := field.Value.(string); ok {
				tag = t
			}
			continue
		}
		data[field.Key] = field.Value
	}
	for k, v := range data {
		data[k] = encodable(v)
	}

	return LogEntry{
		Level:      level,
		Message:    msg,
		Tag:        tag,
		Data:       data,
		Timestamp:  formatTimestamp(l.core.env.Now()),
		UserAgent:  l.core.env.UserAgent(),
		URL:        l.core.env.URL(),
		AppVersion: appVersion,
	}
}

// clampLevel maps out-of-range levels onto debug or error so every entry
// has a level the wire format can carry.
func clampLevel(level Level) Level {
	switch {
	case level < LevelDebug:
		return LevelDebug
	case level > LevelError:
		return LevelError
	}
	return level
}

// encodable replaces a value that does not marshal with a string: the fmt
// rendering for scalars, the type name for anything that may nest.
func encodable(v interface{}) interface{} {
	if _, err := json.Marshal(v); err == nil {
		return v
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct, reflect.Ptr, reflect.Interface,
		reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return fmt.Sprintf("<unencodable %T>", v)
	}
	return fmt.Sprint(v)
}

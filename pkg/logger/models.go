package logger

import (
	"fmt"
	"strings"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = map[Level]string{
	LevelDebug: "debug",
	LevelInfo:  "info",
	LevelWarn:  "warn",
	LevelError: "error",
}

func (l Level) String() string {
	if name, ok := levelNames[l]; ok {
		return name
	}
	return fmt.Sprintf("level(%d)", int(l))
}

func (l Level) Valid() bool {
	_, ok := levelNames[l]
	return ok
}

func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, ErrInvalidConfig(fmt.Sprintf("unknown level %d", int(l)))
	}
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLevel accepts the level name in any case. "warning" is accepted as warn.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, ErrInvalidConfig(fmt.Sprintf("unknown level %q", s))
}

// LogEntry is one accepted log call. The JSON shape is what the remote
// endpoint receives and what the retention slot stores.
type LogEntry struct {
	Level      Level                  `json:"level"`
	Message    string                 `json:"message"`
	Tag        string                 `json:"tag"`
	Data       map[string]interface{} `json:"data"`
	Timestamp  string                 `json:"timestamp"`
	UserAgent  string                 `json:"userAgent"`
	URL        string                 `json:"url"`
	AppVersion string                 `json:"appVersion,omitempty"`
}

// Time parses Timestamp. A malformed timestamp yields the zero time.
func (e LogEntry) Time() time.Time {
	t, err := time.Parse(TimestampFormat, e.Timestamp)
	if err != nil {
		return time.Time{}
	}
	return t
}

// TimestampFormat is ISO-8601 in UTC with millisecond precision.
const TimestampFormat = "2006-01-02T15:04:05.000Z07:00"

func formatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampFormat)
}

type Batch struct {
	Logs []LogEntry `json:"logs"`
}

type Field struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
}

const tagFieldKey = "\x00tag"

// Tag sets the entry tag for a single call.
func Tag(name string) Field {
	return Field{Key: tagFieldKey, Value: name}
}

func F(key string, value interface{}) Field {
	return Field{Key: key, Value: value}
}

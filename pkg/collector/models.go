package collector

import (
	"time"

	"github.com/kerlexov/clientlog/pkg/logger"
)

// StoredEntry is a received log entry with the collector's own bookkeeping.
type StoredEntry struct {
	ID         string    `json:"id"`
	ReceivedAt time.Time `json:"receivedAt"`
	ClientIP   string    `json:"clientIp,omitempty"`
	logger.LogEntry
}

// Filter selects stored entries. MinLevel keeps entries at or above it.
type Filter struct {
	MinLevel logger.Level
	Tag      string
	Since    time.Time
	Until    time.Time
	Limit    int
	Offset   int
}

type Result struct {
	Logs       []StoredEntry `json:"logs"`
	TotalCount int           `json:"totalCount"`
	HasMore    bool          `json:"hasMore"`
}

const (
	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

func (f Filter) normalized() Filter {
	if f.Limit <= 0 {
		f.Limit = defaultQueryLimit
	}
	if f.Limit > maxQueryLimit {
		f.Limit = maxQueryLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// incomingEntry is the wire shape accepted from clients. Level is a pointer
// so that a missing level can be told apart from debug.
type incomingEntry struct {
	Level      *logger.Level          `json:"level" validate:"required"`
	Message    string                 `json:"message" validate:"max=10000"`
	Tag        string                 `json:"tag" validate:"max=200"`
	Data       map[string]interface{} `json:"data"`
	Timestamp  string                 `json:"timestamp" validate:"max=64"`
	UserAgent  string                 `json:"userAgent" validate:"max=1024"`
	URL        string                 `json:"url" validate:"max=4096"`
	AppVersion string                 `json:"appVersion" validate:"max=100"`
}

func (e incomingEntry) toLogEntry(receivedAt time.Time) logger.LogEntry {
	entry := logger.LogEntry{
		Level:      *e.Level,
		Message:    e.Message,
		Tag:        e.Tag,
		Data:       e.Data,
		Timestamp:  e.Timestamp,
		UserAgent:  e.UserAgent,
		URL:        e.URL,
		AppVersion: e.AppVersion,
	}
	if entry.Time().IsZero() {
		entry.Timestamp = receivedAt.UTC().Format(logger.TimestampFormat)
	}
	return entry
}

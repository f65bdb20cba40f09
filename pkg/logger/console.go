package logger

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

const (
	consoleTimestampKey = "clientlog_timestamp"
	consoleTagKey       = "clientlog_tag"
)

// ConsoleFormatter renders "[timestamp] [LEVEL] [tag]: message {data}".
type ConsoleFormatter struct{}

func (f *ConsoleFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var buf bytes.Buffer

	timestamp, _ := entry.Data[consoleTimestampKey].(string)
	if timestamp == "" {
		timestamp = formatTimestamp(entry.Time)
	}
	tag, _ := entry.Data[consoleTagKey].(string)

	fmt.Fprintf(&buf, "[%s] [%s]", timestamp, strings.ToUpper(levelFromLogrus(entry.Level).String()))
	if tag != "" {
		fmt.Fprintf(&buf, " [%s]", tag)
	}
	fmt.Fprintf(&buf, ": %s", entry.Message)

	data := make(map[string]interface{}, len(entry.Data))
	for k, v := range entry.Data {
		if k == consoleTimestampKey || k == consoleTagKey {
			continue
		}
		data[k] = v
	}
	if len(data) > 0 {
		encoded, err := json.Marshal(data)
		if err != nil {
			encoded = []byte(fmt.Sprintf("%v", data))
		}
		buf.WriteByte(' ')
		buf.Write(encoded)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func newConsole() *logrus.Logger {
	console := logrus.New()
	console.SetOutput(os.Stdout)
	console.SetFormatter(&ConsoleFormatter{})
	console.SetLevel(logrus.DebugLevel)
	return console
}

func newDiagnostics() *logrus.Entry {
	diag := logrus.New()
	diag.SetOutput(os.Stderr)
	diag.SetLevel(logrus.WarnLevel)
	return diag.WithField("component", "clientlog")
}

func levelToLogrus(level Level) logrus.Level {
	switch level {
	case LevelDebug:
		return logrus.DebugLevel
	case LevelWarn:
		return logrus.WarnLevel
	case LevelError:
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

func levelFromLogrus(level logrus.Level) Level {
	switch level {
	case logrus.TraceLevel, logrus.DebugLevel:
		return LevelDebug
	case logrus.WarnLevel:
		return LevelWarn
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return LevelError
	default:
		return LevelInfo
	}
}

func echo(console *logrus.Logger, entry LogEntry) {
	fields := make(logrus.Fields, len(entry.Data)+2)
	for k, v := range entry.Data {
		fields[k] = v
	}
	fields[consoleTimestampKey] = entry.Timestamp
	fields[consoleTagKey] = entry.Tag
	console.WithFields(fields).Log(levelToLogrus(entry.Level), entry.Message)
}

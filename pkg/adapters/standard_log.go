package adapters

import (
	"io"
	"log"
	"strings"
	"sync"

	"github.com/kerlexov/clientlog/pkg/logger"
)

// StandardLogAdapter routes the standard library's log package into a
// clientlog Logger. Every line is logged at the adapter's level.
type StandardLogAdapter struct {
	writer *logWriter
}

type logWriter struct {
	clientLogger logger.Logger
	mu           sync.RWMutex
	level        logger.Level
}

func NewStandardLogAdapter(clientLogger logger.Logger) *StandardLogAdapter {
	return &StandardLogAdapter{
		writer: &logWriter{
			clientLogger: clientLogger,
			level:        logger.LevelInfo,
		},
	}
}

// Install points the standard logger's output at the adapter.
func (a *StandardLogAdapter) Install() {
	log.SetOutput(a.writer)
}

func (w *logWriter) Write(p []byte) (n int, err error) {
	message := strings.TrimSpace(string(p))
	if message == "" {
		return len(p), nil
	}

	message = strings.TrimPrefix(message, log.Prefix())

	w.mu.RLock()
	level := w.level
	w.mu.RUnlock()

	w.clientLogger.Log(level, message)

	return len(p), nil
}

func (a *StandardLogAdapter) SetLevel(level logger.Level) {
	a.writer.mu.Lock()
	defer a.writer.mu.Unlock()
	a.writer.level = level
}

func (a *StandardLogAdapter) GetWriter() io.Writer {
	return a.writer
}

// NewStandardLogger returns a *log.Logger writing into clientLogger at level.
func NewStandardLogger(clientLogger logger.Logger, level logger.Level) *log.Logger {
	adapter := NewStandardLogAdapter(clientLogger)
	adapter.SetLevel(level)
	return log.New(adapter.GetWriter(), "", 0)
}

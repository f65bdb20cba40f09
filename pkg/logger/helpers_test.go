package logger

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

type recordingTransport struct {
	mu        sync.Mutex
	singles   []LogEntry
	batches   [][]LogEntry
	failBatch int
	panicNext bool
	closed    bool
}

func (r *recordingTransport) Send(endpoint string, entry LogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.singles = append(r.singles, entry)
	return nil
}

func (r *recordingTransport) SendBatch(endpoint string, entries []LogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.panicNext {
		r.panicNext = false
		panic("transport exploded")
	}
	if r.failBatch > 0 {
		r.failBatch--
		return errors.New("simulated synchronous failure")
	}
	batch := make([]LogEntry, len(entries))
	copy(batch, entries)
	r.batches = append(r.batches, batch)
	return nil
}

func (r *recordingTransport) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingTransport) batchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func messages(entries []LogEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Message
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

var fixedTime = time.Date(2024, 3, 9, 8, 7, 6, 5_000_000, time.UTC)

func newTestLogger(t *testing.T, config Config, transport Transport) (Logger, *bytes.Buffer) {
	t.Helper()

	console := logrus.New()
	out := &bytes.Buffer{}
	console.SetOutput(out)
	console.SetFormatter(&ConsoleFormatter{})
	console.SetLevel(logrus.DebugLevel)

	diag := logrus.New()
	diag.SetOutput(io.Discard)

	l, err := New(config,
		UseTransport(transport),
		UseConsole(console),
		UseDiagnostics(diag.WithField("component", "test")),
		UseEnvironment(StaticEnvironment{Time: fixedTime, PageURL: "https://app.example.com/home", Agent: "test-agent"}),
	)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	t.Cleanup(func() { l.Close() })
	return l, out
}

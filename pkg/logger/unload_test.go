package logger

import (
	"context"
	"syscall"
	"testing"
	"time"
)

func TestFlushOnSignal(t *testing.T) {
	transport := &recordingTransport{}
	config := DefaultConfig()
	config.ReportToServer = true
	config.ServerURL = "http://collector.test/logs"
	config.BatchReport = true
	config.BatchSize = 50

	l, _ := newTestLogger(t, config, transport)
	l.Error("pending")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	FlushOnSignal(ctx, l, syscall.SIGUSR1)

	if err := syscall.Kill(syscall.Getpid(), syscall.SIGUSR1); err != nil {
		t.Fatalf("Failed to signal self: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for transport.batchCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if transport.batchCount() != 1 {
		t.Errorf("Expected the signal to flush the queue, got %d batches", transport.batchCount())
	}
}

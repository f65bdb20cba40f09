package logger

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// FlushOnSignal flushes l's delivery queue each time one of signals arrives
// (SIGINT and SIGTERM when none are given). It stops listening when ctx is
// done. The signal is not consumed otherwise; callers still decide whether
// to exit.
func FlushOnSignal(ctx context.Context, l Logger, signals ...os.Signal) {
	if len(signals) == 0 {
		signals = []os.Signal{os.Interrupt, syscall.SIGTERM}
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, signals...)

	go func() {
		defer signal.Stop(sigCh)
		for {
			select {
			case <-ctx.Done():
				return
			case <-sigCh:
				l.Flush()
			}
		}
	}()
}

package logger

import (
	"bytes"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

type beaconRequest struct {
	url     string
	payload []byte
}

// QueueBeacon accepts payloads without blocking and posts them from a
// background goroutine. Close drains whatever is still queued, so payloads
// accepted before shutdown are still attempted.
type QueueBeacon struct {
	client *http.Client
	queue  chan beaconRequest
	done   chan struct{}
	diag   *logrus.Entry
	wg     sync.WaitGroup
	mu     sync.RWMutex
	closed bool
}

func NewQueueBeacon(size int, timeout time.Duration, diag *logrus.Entry) *QueueBeacon {
	if size <= 0 {
		size = 256
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if diag == nil {
		diag = newDiagnostics()
	}

	b := &QueueBeacon{
		client: &http.Client{Timeout: timeout, Transport: newKeepAliveRoundTripper()},
		queue:  make(chan beaconRequest, size),
		done:   make(chan struct{}),
		diag:   diag.WithField("transport", "beacon"),
	}

	b.wg.Add(1)
	go b.runLoop()
	return b
}

func (b *QueueBeacon) SendBeacon(url string, payload []byte) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return false
	}

	select {
	case b.queue <- beaconRequest{url: url, payload: payload}:
		return true
	default:
		return false
	}
}

func (b *QueueBeacon) runLoop() {
	defer b.wg.Done()

	for {
		select {
		case req := <-b.queue:
			b.post(req)
		case <-b.done:
			for {
				select {
				case req := <-b.queue:
					b.post(req)
				default:
					return
				}
			}
		}
	}
}

func (b *QueueBeacon) post(req beaconRequest) {
	httpReq, err := http.NewRequest(http.MethodPost, req.url, bytes.NewReader(req.payload))
	if err != nil {
		b.diag.WithError(err).Debug("beacon request rejected")
		return
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(httpReq)
	if err != nil {
		b.diag.WithError(err).Debug("beacon delivery failed")
		return
	}
	resp.Body.Close()
}

func (b *QueueBeacon) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	b.mu.Unlock()

	close(b.done)
	b.wg.Wait()
	return nil
}

package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/sirupsen/logrus"
)

type HTTPTransportConfig struct {
	Timeout time.Duration
	// Beacon, when set, is tried first for every payload.
	Beacon      Beacon
	Headers     map[string]string
	MaxFailures int
	Cooldown    time.Duration
	// Compress gzips direct POST bodies. Beacon payloads are never compressed.
	Compress    bool
	Client      *http.Client
	Diagnostics *logrus.Entry
}

// HTTPTransport posts JSON payloads fire-and-forget. Building the request
// happens on the caller's goroutine and its errors are returned; the round
// trip happens in the background and its failures are only logged.
type HTTPTransport struct {
	client         *http.Client
	headers        map[string]string
	beacon         Beacon
	compress       bool
	circuitBreaker *CircuitBreaker
	diag           *logrus.Entry
	wg             sync.WaitGroup
	mu             sync.Mutex
	closed         bool
}

func NewHTTPTransport(config HTTPTransportConfig) *HTTPTransport {
	if config.Timeout <= 0 {
		config.Timeout = defaultHTTPTimeout
	}
	if config.Cooldown <= 0 {
		config.Cooldown = 30 * time.Second
	}
	if config.Diagnostics == nil {
		config.Diagnostics = newDiagnostics()
	}

	client := config.Client
	if client == nil {
		client = &http.Client{
			Timeout:   config.Timeout,
			Transport: newKeepAliveRoundTripper(),
		}
	}

	headers := map[string]string{
		"Content-Type": "application/json",
		"Connection":   "keep-alive",
		"User-Agent":   "clientlog-go/" + sdkVersion,
	}
	for k, v := range config.Headers {
		headers[k] = v
	}

	return &HTTPTransport{
		client:         client,
		headers:        headers,
		beacon:         config.Beacon,
		compress:       config.Compress,
		circuitBreaker: NewCircuitBreaker(config.MaxFailures, config.Cooldown),
		diag:           config.Diagnostics.WithField("transport", "http"),
	}
}

func newKeepAliveRoundTripper() http.RoundTripper {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DisableKeepAlives = false
	transport.MaxIdleConnsPerHost = 4
	transport.IdleConnTimeout = 90 * time.Second
	return transport
}

func (h *HTTPTransport) Send(endpoint string, entry LogEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return ErrEncode("failed to marshal log entry", err)
	}
	return h.deliver(endpoint, data)
}

func (h *HTTPTransport) SendBatch(endpoint string, entries []LogEntry) error {
	if len(entries) == 0 {
		return nil
	}

	data, err := json.Marshal(Batch{Logs: entries})
	if err != nil {
		return ErrEncode("failed to marshal log entries", err)
	}
	return h.deliver(endpoint, data)
}

func (h *HTTPTransport) deliver(endpoint string, data []byte) error {
	if endpoint == "" {
		return ErrInvalidConfig("report endpoint is empty")
	}
	if h.isClosed() {
		return errTransportClosed()
	}

	if h.beacon != nil && h.beacon.SendBeacon(endpoint, data) {
		return nil
	}

	body := data
	if h.compress {
		compressed, err := gzipPayload(data)
		if err != nil {
			return ErrEncode("failed to compress payload", err)
		}
		body = compressed
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return ErrNetworkError("failed to create request", err)
	}
	for key, value := range h.headers {
		req.Header.Set(key, value)
	}
	if h.compress {
		req.Header.Set("Content-Encoding", "gzip")
	}

	// Add must not race with the Wait in Close.
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return errTransportClosed()
	}
	h.wg.Add(1)
	h.mu.Unlock()

	go func() {
		defer h.wg.Done()
		err := h.circuitBreaker.Do(req.Context(), func() error {
			return h.roundTrip(req)
		})
		if err != nil {
			h.diag.WithError(err).WithField("endpoint", endpoint).Debug("log report dropped")
		}
	}()
	return nil
}

func gzipPayload(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (h *HTTPTransport) roundTrip(req *http.Request) error {
	resp, err := h.client.Do(req)
	if err != nil {
		return ErrNetworkError("failed to send request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return ErrServerError(
			fmt.Sprintf("server returned status %d", resp.StatusCode),
			fmt.Errorf("response body: %s", string(body)),
		)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (h *HTTPTransport) isClosed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func errTransportClosed() *Error {
	return ErrNetworkError("transport is closed", nil)
}

func (h *HTTPTransport) CircuitState() CircuitBreakerState {
	return h.circuitBreaker.GetState()
}

// Wait blocks until every background request has finished.
func (h *HTTPTransport) Wait() {
	h.wg.Wait()
}

// Close waits for in-flight requests and then closes the beacon if it is closable.
// Sends that start after Close fail synchronously.
func (h *HTTPTransport) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	h.wg.Wait()
	if closer, ok := h.beacon.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

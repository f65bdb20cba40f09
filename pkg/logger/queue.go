package logger

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// deliveryQueue accumulates entries for batch reporting. Flush swaps the
// pending entries out under the lock and sends them outside it, so entries
// enqueued while a batch is in flight start a fresh queue.
type deliveryQueue struct {
	entries   []LogEntry
	transport Transport
	diag      *logrus.Entry
	mu        sync.Mutex
}

func newDeliveryQueue(transport Transport, diag *logrus.Entry) *deliveryQueue {
	return &deliveryQueue{
		transport: transport,
		diag:      diag,
	}
}

func (q *deliveryQueue) Enqueue(endpoint string, entry LogEntry, batchSize int) {
	q.mu.Lock()
	q.entries = append(q.entries, entry)
	full := len(q.entries) >= batchSize
	q.mu.Unlock()

	if full {
		q.Flush(endpoint)
	}
}

func (q *deliveryQueue) Flush(endpoint string) {
	q.mu.Lock()
	if len(q.entries) == 0 {
		q.mu.Unlock()
		return
	}
	batch := q.entries
	q.entries = nil
	q.mu.Unlock()

	if err := q.sendBatch(endpoint, batch); err != nil {
		q.mu.Lock()
		q.entries = append(batch, q.entries...)
		q.mu.Unlock()

		q.diag.WithError(err).WithField("entries", len(batch)).Warn("batch report failed, entries requeued")
	}
}

func (q *deliveryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// sendBatch turns a panicking transport into a synchronous failure.
func (q *deliveryQueue) sendBatch(endpoint string, batch []LogEntry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = ErrNetworkError("transport panicked", fmt.Errorf("%v", r))
		}
	}()
	return q.transport.SendBatch(endpoint, batch)
}

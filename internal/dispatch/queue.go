package dispatch

import (
	"sync"

	"github.com/vietddude/relay/internal/core/domain"
)

// callQueue is the ingress buffer between producers and the dispatch
// worker. Multi-producer, single-consumer, unbounded; the mutex covers
// only slice bookkeeping so producer appends stay cheap.
type callQueue struct {
	mu    sync.Mutex
	items []*domain.Request
	head  int
}

func newCallQueue() *callQueue {
	return &callQueue{}
}

// push appends a request to the tail. Safe from any goroutine.
func (q *callQueue) push(r *domain.Request) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, r)
}

// nextBatch removes and returns the next batch: the head request, plus —
// for batchable endpoints only — consecutive requests for the same
// endpoint up to max. Returns nil when the queue is empty.
func (q *callQueue) nextBatch(max int) []*domain.Request {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head >= len(q.items) {
		return nil
	}

	first := q.items[q.head]
	batch := []*domain.Request{first}
	q.head++

	if first.Endpoint.Batchable() {
		for q.head < len(q.items) && len(batch) < max {
			next := q.items[q.head]
			if next.Endpoint != first.Endpoint {
				break
			}
			batch = append(batch, next)
			q.head++
		}
	}

	q.compact()
	return batch
}

// len reports the number of queued requests.
func (q *callQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) - q.head
}

// compact reclaims consumed slots once they dominate the backing slice.
// Caller must hold q.mu.
func (q *callQueue) compact() {
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
		return
	}
	if q.head > 1024 && q.head > len(q.items)/2 {
		n := copy(q.items, q.items[q.head:])
		q.items = q.items[:n]
		q.head = 0
	}
}

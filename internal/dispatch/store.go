package dispatch

import (
	"container/heap"
	"sync"
	"time"

	"github.com/vietddude/relay/internal/core/domain"
)

// retryStore holds previously-failed requests awaiting their scheduled
// retry time. A min-heap keyed by NextRetryAt turns the "sweep all due"
// operation into pop-while-due instead of a full scan.
type retryStore struct {
	mu sync.Mutex
	h  requestHeap
}

func newRetryStore() *retryStore {
	return &retryStore{}
}

// add inserts a request scheduled at r.NextRetryAt.
func (s *retryStore) add(r *domain.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	heap.Push(&s.h, r)
}

// takeDue removes and returns every request whose NextRetryAt has elapsed,
// or every request unconditionally when all is set (the last-chance flush
// before shutdown).
func (s *retryStore) takeDue(now time.Time, all bool) []*domain.Request {
	s.mu.Lock()
	defer s.mu.Unlock()

	var due []*domain.Request
	for s.h.Len() > 0 {
		next := s.h[0]
		if !all && next.NextRetryAt.After(now) {
			break
		}
		due = append(due, heap.Pop(&s.h).(*domain.Request))
	}
	return due
}

// size reports the number of stored requests.
func (s *retryStore) size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.h.Len()
}

// requestHeap orders requests by NextRetryAt, soonest first.
type requestHeap []*domain.Request

func (h requestHeap) Len() int            { return len(h) }
func (h requestHeap) Less(i, j int) bool  { return h[i].NextRetryAt.Before(h[j].NextRetryAt) }
func (h requestHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *requestHeap) Push(x any)         { *h = append(*h, x.(*domain.Request)) }
func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	r := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return r
}

// Package batcher implements the batching coordinator of spec.md §4.2:
// a FIFO ingress queue plus soft (size-or-timeout) and hard
// (strict-size) batch assembly, grounded on the teacher's adaptive
// micro-batching engine (pkg/worker/batcher.go, pkg/worker/queue.go).
// The teacher's priority queue is simplified to plain FIFO: the core
// has no priority concept (spec.md §3 Glossary never mentions one).
package batcher

import (
	"sync"
	"time"

	"github.com/amdinfer/amdinfer/pkg/request"
)

// PendingRequest is a request waiting in an endpoint's ingress queue,
// tagged with the model it targets and its arrival time.
type PendingRequest struct {
	Req       *request.Request
	Model     string
	EnqueueAt time.Time
}

// Queue is a thread-safe FIFO of PendingRequest, the ingress structure
// batcher threads dequeue from (spec.md §5 "shared MPMC ingress queue").
type Queue struct {
	mu    sync.Mutex
	items []*PendingRequest
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{items: make([]*PendingRequest, 0, 64)}
}

// Enqueue appends p to the back of the queue.
func (q *Queue) Enqueue(p *PendingRequest) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, p)
}

// DequeueN removes and returns up to n items from the front of the queue.
func (q *Queue) DequeueN(n int) []*PendingRequest {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 || n <= 0 {
		return nil
	}
	count := n
	if count > len(q.items) {
		count = len(q.items)
	}
	out := make([]*PendingRequest, count)
	copy(out, q.items[:count])
	remaining := make([]*PendingRequest, len(q.items)-count)
	copy(remaining, q.items[count:])
	q.items = remaining
	return out
}

// Depth returns the current queue length.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
